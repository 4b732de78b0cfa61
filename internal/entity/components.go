package entity

import (
	"github.com/annel0/movesync/internal/vec"
)

// Виды компонентов протокола движения
const (
	KindPlayer        Kind = "player"         // Реплицируется на все клиенты
	KindPosition      Kind = "position"       // Авторитативна только на сервере
	KindMovementInput Kind = "movement_input" // Только сервер, не реплицируется
	KindLocalPlayer   Kind = "local_player"   // Только клиент, маркер
)

// Player идентифицирует сущность игрока.
// Инвариант: не более одной сущности на активный network_id.
type Player struct {
	NetworkID uint64
}

// MovementInput накопитель последнего интента игрока.
// Перезаписывается каждым новым интентом, не аккумулируется.
type MovementInput struct {
	Direction vec.Vec2Float
}

// LocalPlayer маркер локально управляемой сущности.
// Назначается ровно один раз за время жизни процесса клиента.
type LocalPlayer struct{}

// PositionOf возвращает позицию сущности
func PositionOf(r *Registry, id ID) (vec.Vec2Float, bool) {
	value, ok := r.Get(id, KindPosition)
	if !ok {
		return vec.Vec2Float{}, false
	}
	pos, ok := value.(vec.Vec2Float)
	return pos, ok
}

// PlayerOf возвращает компонент Player сущности
func PlayerOf(r *Registry, id ID) (Player, bool) {
	value, ok := r.Get(id, KindPlayer)
	if !ok {
		return Player{}, false
	}
	player, ok := value.(Player)
	return player, ok
}

// FindByNetworkID находит сущность игрока по network_id
func FindByNetworkID(r *Registry, networkID uint64) (ID, bool) {
	var found ID
	var ok bool
	r.Each(KindPlayer, func(id ID, value interface{}) {
		if player, isPlayer := value.(Player); isPlayer && player.NetworkID == networkID {
			found = id
			ok = true
		}
	})
	return found, ok
}
