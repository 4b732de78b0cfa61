// Package game реализует авторитативную симуляцию движения на сервере
// и клиентский цикл идентификации/презентации.
package game

import (
	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/protocol"
	"github.com/annel0/movesync/internal/vec"
)

// StepMovement продвигает симуляцию на dt секунд: для каждой сущности
// с накопителем интента позиция сдвигается на direction * speed * dt.
// Нулевое направление оставляет позицию неизменной. Возвращает число
// сдвинутых сущностей.
//
// Правило одинаково для всех игроков: скорость общая, физики и коллизий нет.
func StepMovement(r *entity.Registry, dt, speed float64) int {
	moved := 0
	r.Each(entity.KindMovementInput, func(id entity.ID, value interface{}) {
		input, ok := value.(entity.MovementInput)
		if !ok || input.Direction.IsZero() {
			return
		}

		pos, ok := entity.PositionOf(r, id)
		if !ok {
			return
		}

		next := pos.Add(input.Direction.Mul(speed * dt))
		r.Set(id, entity.KindPosition, next)
		logging.LogEntityMovement(uint64(id), pos.X, pos.Y, next.X, next.Y)
		moved++
	})
	return moved
}

// ApplyIntent перезаписывает накопитель интента игрока с указанным
// network_id. Предыдущее значение теряется: интенты не аккумулируются.
// Интент от неизвестного network_id молча отбрасывается (канал ненадёжный,
// датаграмма могла пережить соединение).
func ApplyIntent(r *entity.Registry, networkID uint64, direction vec.Vec2Float) bool {
	id, ok := entity.FindByNetworkID(r, networkID)
	if !ok {
		return false
	}
	r.Set(id, entity.KindMovementInput, entity.MovementInput{Direction: direction})
	return true
}

// DrainIntents применяет пачку датаграмм интентов к реестру.
// Порядок применения — порядок получения: при нескольких интентах от
// одного игрока за тик побеждает последний. Возвращает число применённых
// и отброшенных интентов.
func DrainIntents(r *entity.Registry, serializer *protocol.MessageSerializer, msgs []*protocol.GameMsg) (applied, dropped int) {
	for _, msg := range msgs {
		if msg.Type != protocol.MsgMovementIntent {
			dropped++
			continue
		}

		var intent protocol.MovementIntent
		if err := serializer.DeserializePayload(msg, &intent); err != nil {
			dropped++
			continue
		}

		if ApplyIntent(r, msg.Sender, intent.Direction) {
			applied++
		} else {
			dropped++
		}
	}
	return applied, dropped
}
