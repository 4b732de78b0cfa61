// Package network предоставляет сетевые каналы протокола движения:
// надёжный KCP канал и ненадёжный UDP канал интентов.
package network

import (
	"context"
	"time"

	"github.com/annel0/movesync/internal/protocol"
)

// ConnectionStats содержит статистику соединения
type ConnectionStats struct {
	PacketsSent     uint64    // Отправлено пакетов
	PacketsReceived uint64    // Получено пакетов
	BytesSent       uint64    // Отправлено байт
	BytesReceived   uint64    // Получено байт
	LastActivity    time.Time // Последняя активность
	Connected       bool      // Статус соединения
	RemoteAddr      string    // Адрес удалённого узла
}

// NetChannel представляет унифицированный интерфейс для надёжного канала
type NetChannel interface {
	// Основные операции
	Send(ctx context.Context, msg *protocol.GameMsg) error
	Receive(ctx context.Context) (*protocol.GameMsg, error)
	Close() error

	// Управление соединением
	Connect(ctx context.Context, addr string) error
	IsConnected() bool
	RemoteAddr() string

	// Статистика
	Stats() ConnectionStats

	// События
	OnDisconnect(handler func(error))
}

// ChannelConfig содержит конфигурацию канала
type ChannelConfig struct {
	BufferSize  int
	Passphrase  string
	IdleTimeout time.Duration
}

// DefaultChannelConfig возвращает конфигурацию канала по умолчанию
func DefaultChannelConfig() *ChannelConfig {
	return &ChannelConfig{
		BufferSize:  1024,
		IdleTimeout: 30 * time.Second,
	}
}
