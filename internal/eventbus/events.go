package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы событий жизненного цикла протокола движения
const (
	EventPeerConnected    = "PeerConnected"
	EventPeerDisconnected = "PeerDisconnected"
	EventEntitySpawned    = "EntitySpawned"
	EventEntityDespawned  = "EntityDespawned"
	EventLocalIdentified  = "LocalIdentified"
)

// PeerEvent тело событий подключения/отключения
type PeerEvent struct {
	ConnID    string `json:"conn_id"`
	NetworkID uint64 `json:"network_id,omitempty"`
}

// EntityEvent тело событий появления/удаления сущности
type EntityEvent struct {
	EntityID  uint64 `json:"entity_id"`
	NetworkID uint64 `json:"network_id"`
}

// PublishEvent собирает Envelope и публикует его в шину.
// Ошибка сериализации тела считается программной и приводит к дропу.
func PublishEvent(ctx context.Context, bus EventBus, source, eventType string, body interface{}) error {
	if bus == nil {
		return nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return bus.Publish(ctx, &Envelope{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Priority:  3,
		Payload:   payload,
	})
}
