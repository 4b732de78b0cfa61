// Package protocol определяет сообщения протокола синхронизации движения
// и их бинарную упаковку для сетевых каналов.
package protocol

import (
	"github.com/annel0/movesync/internal/vec"
)

// MsgType определяет тип сообщения в системе
type MsgType int32

// Определение констант для типов сообщений
const (
	MsgUnknown MsgType = 0
	MsgPing    MsgType = 3
	MsgPong    MsgType = 4

	// Сущности (репликация сервер -> клиенты)
	MsgEntitySpawn   MsgType = 20
	MsgEntityDespawn MsgType = 21
	MsgEntityUpdate  MsgType = 22

	// Идентификация и движение
	MsgClientID       MsgType = 40 // Сервер сообщает клиенту его network_id (надёжный канал, ровно один раз)
	MsgMovementIntent MsgType = 41 // Клиент сообщает желаемое направление (ненадёжный канал)
)

// String возвращает строковое имя типа сообщения
func (t MsgType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgEntitySpawn:
		return "entity_spawn"
	case MsgEntityDespawn:
		return "entity_despawn"
	case MsgEntityUpdate:
		return "entity_update"
	case MsgClientID:
		return "client_id"
	case MsgMovementIntent:
		return "movement_intent"
	default:
		return "unknown"
	}
}

// NetFlags определяет класс доставки сообщения
type NetFlags uint8

const (
	// FlagReliable гарантирует доставку сообщения
	FlagReliable NetFlags = 1 << iota
	// FlagOrdered гарантирует порядок доставки сообщений
	FlagOrdered
	// FlagUnsequenced отправляет без гарантий (для интентов движения)
	FlagUnsequenced
)

// CompressionType определяет сжатие полезной нагрузки
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionZstd CompressionType = 1
)

// GameMsg представляет основное сообщение протокола.
// Sender заполняется клиентом на ненадёжном канале: по нему сервер
// сопоставляет датаграмму с соединением (и молча дропает неизвестных).
type GameMsg struct {
	Type        MsgType         `json:"type"`
	Sequence    uint32          `json:"seq,omitempty"`
	Timestamp   int64           `json:"ts,omitempty"`
	Sender      uint64          `json:"sender,omitempty"`
	Flags       NetFlags        `json:"flags,omitempty"`
	Compression CompressionType `json:"compression,omitempty"`
	Payload     []byte          `json:"payload,omitempty"`
}

// ===== Полезные нагрузки (JSON) =====

// ClientIDNotify сообщает клиенту его назначенный network_id.
// Адресуется только владеющему соединению, доставляется ровно один раз.
type ClientIDNotify struct {
	NetworkID uint64 `json:"network_id"`
}

// MovementIntent желаемое направление движения на текущий тик.
// Семантика перезаписи: имеет значение только последний обработанный интент.
type MovementIntent struct {
	Direction vec.Vec2Float `json:"direction"`
}

// EntitySpawn появление реплицируемой сущности игрока
type EntitySpawn struct {
	EntityID  uint64        `json:"entity_id"`
	NetworkID uint64        `json:"network_id"`
	Position  vec.Vec2Float `json:"position"`
}

// EntityUpdate изменение авторитативной позиции сущности
type EntityUpdate struct {
	EntityID uint64        `json:"entity_id"`
	Position vec.Vec2Float `json:"position"`
}

// EntityDespawn удаление сущности (владелец отключился)
type EntityDespawn struct {
	EntityID uint64 `json:"entity_id"`
}

// PingPayload запрос keepalive
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload ответ keepalive
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}
