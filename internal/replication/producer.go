package replication

import (
	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/protocol"
	"github.com/annel0/movesync/internal/vec"
)

// Broadcaster отправляет реплику клиентам: широковещательно или адресно.
type Broadcaster interface {
	Broadcast(msg *protocol.GameMsg)
	SendToClient(connID string, msg *protocol.GameMsg) error
}

// Producer рассылает диффы авторитативного состояния после симуляции.
// Коалесцирование: за один Flush уходит не более одного обновления на
// сущность, и только если позиция реально изменилась с прошлой рассылки.
type Producer struct {
	registry *entity.Registry
	decl     *Declaration
	lastSent map[entity.ID]vec.Vec2Float
	logger   *logging.Logger
}

// NewProducer создаёт producer границы репликации
func NewProducer(registry *entity.Registry, decl *Declaration) *Producer {
	return &Producer{
		registry: registry,
		decl:     decl,
		lastSent: make(map[entity.ID]vec.Vec2Float),
		logger:   logging.GetSyncLogger(),
	}
}

// AnnounceSpawn рассылает появление сущности всем клиентам
func (p *Producer) AnnounceSpawn(b Broadcaster, id entity.ID) {
	player, ok := entity.PlayerOf(p.registry, id)
	if !ok {
		return
	}
	pos, _ := entity.PositionOf(p.registry, id)

	msg, err := protocol.NewGameMsg(protocol.MsgEntitySpawn, 0, protocol.FlagReliable|protocol.FlagOrdered, protocol.EntitySpawn{
		EntityID:  uint64(id),
		NetworkID: player.NetworkID,
		Position:  pos,
	})
	if err != nil {
		p.logger.Error("Failed to build spawn message: %v", err)
		return
	}

	p.lastSent[id] = pos
	b.Broadcast(msg)
}

// AnnounceDespawn рассылает удаление сущности и забывает её состояние
func (p *Producer) AnnounceDespawn(b Broadcaster, id entity.ID) {
	delete(p.lastSent, id)

	msg, err := protocol.NewGameMsg(protocol.MsgEntityDespawn, 0, protocol.FlagReliable|protocol.FlagOrdered, protocol.EntityDespawn{
		EntityID: uint64(id),
	})
	if err != nil {
		p.logger.Error("Failed to build despawn message: %v", err)
		return
	}
	b.Broadcast(msg)
}

// SnapshotFor отправляет новому клиенту полный снимок мира (адресно)
func (p *Producer) SnapshotFor(b Broadcaster, connID string) {
	p.registry.Each(entity.KindPlayer, func(id entity.ID, value interface{}) {
		player, ok := value.(entity.Player)
		if !ok {
			return
		}
		pos, _ := entity.PositionOf(p.registry, id)

		msg, err := protocol.NewGameMsg(protocol.MsgEntitySpawn, 0, protocol.FlagReliable|protocol.FlagOrdered, protocol.EntitySpawn{
			EntityID:  uint64(id),
			NetworkID: player.NetworkID,
			Position:  pos,
		})
		if err != nil {
			p.logger.Error("Failed to build snapshot message: %v", err)
			return
		}
		if err := b.SendToClient(connID, msg); err != nil {
			p.logger.Warn("Failed to send snapshot to %s: %v", connID, err)
		}
	})
}

// Flush рассылает обновления позиций, изменившихся с прошлой рассылки.
// Вызывается после шага симуляции: реплика отражает только
// пост-симуляционное состояние. Возвращает число отправленных обновлений.
func (p *Producer) Flush(b Broadcaster) int {
	sent := 0
	p.registry.Each(entity.KindPlayer, func(id entity.ID, _ interface{}) {
		pos, ok := entity.PositionOf(p.registry, id)
		if !ok {
			return
		}
		if last, seen := p.lastSent[id]; seen && last == pos {
			return
		}

		msg, err := protocol.NewGameMsg(protocol.MsgEntityUpdate, 0, protocol.FlagReliable|protocol.FlagOrdered, protocol.EntityUpdate{
			EntityID: uint64(id),
			Position: pos,
		})
		if err != nil {
			p.logger.Error("Failed to build update message: %v", err)
			return
		}

		p.lastSent[id] = pos
		b.Broadcast(msg)
		sent++
	})
	return sent
}
