package game

import (
	"math"

	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/vec"
)

// VisualPlayer визуальное представление игрока на клиенте.
// Displayed — сглаженная позиция для отрисовки; реплика в реестре
// остаётся последним авторитативным значением.
type VisualPlayer struct {
	EntityID  entity.ID
	NetworkID uint64
	Displayed vec.Vec2Float
	IsLocal   bool
}

// Color возвращает условный цвет игрока: локальный отличим от удалённых
func (v *VisualPlayer) Color() string {
	if v.IsLocal {
		return "green"
	}
	return "red"
}

// Presenter поддерживает визуальные представления для каждой реплики.
// Представления создаются лениво при первом появлении и удаляются
// вместе с репликой.
type Presenter struct {
	registry   *entity.Registry
	interpRate float64
	visuals    map[entity.ID]*VisualPlayer
}

// NewPresenter создаёт презентер поверх клиентского реестра
func NewPresenter(registry *entity.Registry, interpRate float64) *Presenter {
	return &Presenter{
		registry:   registry,
		interpRate: interpRate,
		visuals:    make(map[entity.ID]*VisualPlayer),
	}
}

// Update продвигает презентацию на dt секунд.
// Локальная сущность прыгает в авторитативную позицию сразу, удалённые
// сглаживаются экспоненциально к последней реплицированной.
func (p *Presenter) Update(dt float64) {
	alive := make(map[entity.ID]bool, len(p.visuals))

	p.registry.Each(entity.KindPlayer, func(id entity.ID, value interface{}) {
		player, ok := value.(entity.Player)
		if !ok {
			return
		}
		pos, ok := entity.PositionOf(p.registry, id)
		if !ok {
			return
		}
		alive[id] = true

		isLocal := p.registry.Has(id, entity.KindLocalPlayer)

		visual, exists := p.visuals[id]
		if !exists {
			// Новое представление появляется сразу в актуальной позиции
			p.visuals[id] = &VisualPlayer{
				EntityID:  id,
				NetworkID: player.NetworkID,
				Displayed: pos,
				IsLocal:   isLocal,
			}
			return
		}

		visual.IsLocal = isLocal
		if isLocal {
			visual.Displayed = pos
			return
		}

		t := 1 - math.Exp(-p.interpRate*dt)
		visual.Displayed = visual.Displayed.Lerp(pos, t)
	})

	// Представления исчезнувших реплик удаляются немедленно
	for id := range p.visuals {
		if !alive[id] {
			delete(p.visuals, id)
		}
	}
}

// Visual возвращает представление сущности
func (p *Presenter) Visual(id entity.ID) (*VisualPlayer, bool) {
	v, ok := p.visuals[id]
	return v, ok
}

// Count возвращает число активных представлений
func (p *Presenter) Count() int {
	return len(p.visuals)
}
