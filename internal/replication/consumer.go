package replication

import (
	"context"
	"fmt"

	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/eventbus"
	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/protocol"
)

// Consumer применяет входящие диффы к клиентскому реестру-реплике.
// Семантика "последнее значение побеждает": повторная доставка одного
// снимка не меняет итоговое состояние.
type Consumer struct {
	registry   *entity.Registry
	bus        eventbus.EventBus
	serializer *protocol.MessageSerializer
	logger     *logging.Logger

	// Серверный entity_id -> локальный ID реплики
	byRemote map[uint64]entity.ID
}

// NewConsumer создаёт consumer границы репликации
func NewConsumer(registry *entity.Registry, bus eventbus.EventBus) (*Consumer, error) {
	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		return nil, err
	}

	return &Consumer{
		registry:   registry,
		bus:        bus,
		serializer: serializer,
		logger:     logging.GetSyncLogger(),
		byRemote:   make(map[uint64]entity.ID),
	}, nil
}

// Close освобождает ресурсы
func (c *Consumer) Close() error {
	return c.serializer.Close()
}

// LocalID возвращает локальный ID реплики для серверного entity_id
func (c *Consumer) LocalID(remoteID uint64) (entity.ID, bool) {
	id, ok := c.byRemote[remoteID]
	return id, ok
}

// Apply применяет одно сообщение репликации.
// Сообщения о неизвестных сущностях, кроме spawn, — no-op.
func (c *Consumer) Apply(ctx context.Context, msg *protocol.GameMsg) error {
	switch msg.Type {
	case protocol.MsgEntitySpawn:
		var spawn protocol.EntitySpawn
		if err := c.serializer.DeserializePayload(msg, &spawn); err != nil {
			return fmt.Errorf("bad spawn payload: %w", err)
		}
		c.applySpawn(ctx, spawn)
		return nil

	case protocol.MsgEntityUpdate:
		var update protocol.EntityUpdate
		if err := c.serializer.DeserializePayload(msg, &update); err != nil {
			return fmt.Errorf("bad update payload: %w", err)
		}
		c.applyUpdate(ctx, update)
		return nil

	case protocol.MsgEntityDespawn:
		var despawn protocol.EntityDespawn
		if err := c.serializer.DeserializePayload(msg, &despawn); err != nil {
			return fmt.Errorf("bad despawn payload: %w", err)
		}
		c.applyDespawn(ctx, despawn)
		return nil

	default:
		return fmt.Errorf("not a replication message: %v", msg.Type)
	}
}

// applySpawn создаёт реплику или обновляет существующую (идемпотентность
// при повторной доставке)
func (c *Consumer) applySpawn(ctx context.Context, spawn protocol.EntitySpawn) {
	if id, exists := c.byRemote[spawn.EntityID]; exists {
		c.registry.Set(id, entity.KindPosition, spawn.Position)
		return
	}

	id := c.registry.Spawn()
	c.registry.Set(id, entity.KindPlayer, entity.Player{NetworkID: spawn.NetworkID})
	c.registry.Set(id, entity.KindPosition, spawn.Position)
	c.byRemote[spawn.EntityID] = id

	c.logger.Debug("Replica spawned: remote=%d local=%d network_id=%d", spawn.EntityID, id, spawn.NetworkID)

	_ = eventbus.PublishEvent(ctx, c.bus, "replication", eventbus.EventEntitySpawned, eventbus.EntityEvent{
		EntityID:  uint64(id),
		NetworkID: spawn.NetworkID,
	})
}

// applyUpdate перезаписывает позицию реплики последним значением
func (c *Consumer) applyUpdate(ctx context.Context, update protocol.EntityUpdate) {
	id, exists := c.byRemote[update.EntityID]
	if !exists {
		// Обновление до spawn или после despawn — молча дропаем
		return
	}
	c.registry.Set(id, entity.KindPosition, update.Position)
}

// applyDespawn удаляет реплику
func (c *Consumer) applyDespawn(ctx context.Context, despawn protocol.EntityDespawn) {
	id, exists := c.byRemote[despawn.EntityID]
	if !exists {
		return
	}

	player, _ := entity.PlayerOf(c.registry, id)
	c.registry.Despawn(id)
	delete(c.byRemote, despawn.EntityID)

	c.logger.Debug("Replica despawned: remote=%d local=%d", despawn.EntityID, id)

	_ = eventbus.PublishEvent(ctx, c.bus, "replication", eventbus.EventEntityDespawned, eventbus.EntityEvent{
		EntityID:  uint64(id),
		NetworkID: player.NetworkID,
	})
}
