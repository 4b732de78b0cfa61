package network

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/protocol"
)

// KCPChannel реализует NetChannel поверх KCP (надёжный упорядоченный UDP)
type KCPChannel struct {
	conn       *kcp.UDPSession
	config     *ChannelConfig
	serializer *protocol.MessageSerializer
	logger     *logging.Logger

	// Статистика
	stats ConnectionStats

	// Обработчики событий
	onDisconnect func(error)

	// Контроль выполнения
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Буферы
	sendBuffer chan *protocol.GameMsg
	recvBuffer chan *protocol.GameMsg

	// Счётчик исходящих сообщений
	sendSequence uint32

	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewKCPChannel создаёт неподключённый KCP канал (клиентская сторона)
func NewKCPChannel(config *ChannelConfig, logger *logging.Logger) (*KCPChannel, error) {
	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &KCPChannel{
		config:     config,
		serializer: serializer,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan *protocol.GameMsg, config.BufferSize),
		recvBuffer: make(chan *protocol.GameMsg, config.BufferSize),
	}, nil
}

// NewKCPChannelFromConn создаёт канал из принятого соединения (серверная сторона)
func NewKCPChannelFromConn(conn *kcp.UDPSession, config *ChannelConfig, logger *logging.Logger) (*KCPChannel, error) {
	channel, err := NewKCPChannel(config, logger)
	if err != nil {
		return nil, err
	}

	channel.conn = conn
	tuneSession(conn)

	channel.stats.Connected = true
	channel.stats.RemoteAddr = conn.RemoteAddr().String()
	channel.stats.LastActivity = time.Now()

	channel.wg.Add(2)
	go channel.sendLoop()
	go channel.receiveLoop()

	logger.Debug("KCP channel created from connection: addr=%s", conn.RemoteAddr().String())
	return channel, nil
}

// tuneSession настраивает KCP параметры для игрового трафика
func tuneSession(conn *kcp.UDPSession) {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	conn.SetWindowSize(512, 512)
	conn.SetMtu(1400)
}

// Connect устанавливает соединение с сервером
func (kc *KCPChannel) Connect(ctx context.Context, addr string) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if kc.conn != nil {
		return fmt.Errorf("already connected")
	}

	block, err := NewBlockCrypt(kc.config.Passphrase)
	if err != nil {
		return err
	}

	conn, err := kcp.DialWithOptions(addr, block, 10, 3)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	tuneSession(conn)

	kc.conn = conn
	kc.stats.Connected = true
	kc.stats.RemoteAddr = addr
	kc.stats.LastActivity = time.Now()

	kc.wg.Add(2)
	go kc.sendLoop()
	go kc.receiveLoop()

	kc.logger.Info("KCP channel connected: addr=%s", addr)
	return nil
}

// Send ставит сообщение в очередь отправки
func (kc *KCPChannel) Send(ctx context.Context, msg *protocol.GameMsg) error {
	if !kc.IsConnected() {
		return fmt.Errorf("not connected")
	}

	// Копия конверта: одно сообщение может рассылаться в несколько каналов
	clone := *msg
	clone.Sequence = atomic.AddUint32(&kc.sendSequence, 1)

	select {
	case kc.sendBuffer <- &clone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-kc.ctx.Done():
		return fmt.Errorf("channel closed")
	}
}

// Receive получает очередное сообщение
func (kc *KCPChannel) Receive(ctx context.Context) (*protocol.GameMsg, error) {
	select {
	case msg := <-kc.recvBuffer:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-kc.ctx.Done():
		return nil, fmt.Errorf("channel closed")
	}
}

// TryReceive возвращает сообщение без блокировки (для дренажа в начале кадра)
func (kc *KCPChannel) TryReceive() (*protocol.GameMsg, bool) {
	select {
	case msg := <-kc.recvBuffer:
		return msg, true
	default:
		return nil, false
	}
}

// Close закрывает канал
func (kc *KCPChannel) Close() error {
	var err error
	kc.closeOnce.Do(func() {
		kc.cancel()

		kc.mu.Lock()
		conn := kc.conn
		kc.conn = nil
		kc.stats.Connected = false
		kc.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}

		kc.wg.Wait()
		_ = kc.serializer.Close()

		kc.logger.Debug("KCP channel closed")
	})
	return err
}

// IsConnected проверяет состояние соединения
func (kc *KCPChannel) IsConnected() bool {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.conn != nil && kc.stats.Connected
}

// RemoteAddr возвращает адрес удалённого узла
func (kc *KCPChannel) RemoteAddr() string {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.stats.RemoteAddr
}

// Stats возвращает статистику соединения
func (kc *KCPChannel) Stats() ConnectionStats {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.stats
}

// OnDisconnect устанавливает обработчик отключения
func (kc *KCPChannel) OnDisconnect(handler func(error)) {
	kc.onDisconnect = handler
}

// sendLoop обрабатывает отправку сообщений
func (kc *KCPChannel) sendLoop() {
	defer kc.wg.Done()

	for {
		select {
		case msg := <-kc.sendBuffer:
			if err := kc.sendMessage(msg); err != nil {
				kc.logger.Error("Failed to send message: %v", err)
			}
		case <-kc.ctx.Done():
			return
		}
	}
}

// receiveLoop читает кадры из потока.
// Блокирующее чтение разблокируется закрытием сессии.
func (kc *KCPChannel) receiveLoop() {
	defer kc.wg.Done()

	kc.mu.RLock()
	conn := kc.conn
	kc.mu.RUnlock()
	if conn == nil {
		return
	}

	reader := bufio.NewReader(conn)

	for {
		data, err := protocol.ReadFrame(reader)
		if err != nil {
			select {
			case <-kc.ctx.Done():
				// Штатное закрытие
			default:
				kc.mu.Lock()
				kc.stats.Connected = false
				kc.mu.Unlock()
				if kc.onDisconnect != nil {
					kc.onDisconnect(err)
				}
			}
			return
		}

		msg, err := kc.serializer.DeserializeMessage(data)
		if err != nil {
			kc.logger.Error("Failed to deserialize message: %v", err)
			continue
		}

		atomic.AddUint64(&kc.stats.PacketsReceived, 1)
		atomic.AddUint64(&kc.stats.BytesReceived, uint64(len(data)))
		kc.mu.Lock()
		kc.stats.LastActivity = time.Now()
		kc.mu.Unlock()

		select {
		case kc.recvBuffer <- msg:
		default:
			kc.logger.Warn("Receive buffer full, dropping message")
		}
	}
}

// sendMessage сериализует и пишет один кадр
func (kc *KCPChannel) sendMessage(msg *protocol.GameMsg) error {
	data, err := kc.serializer.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	kc.mu.RLock()
	conn := kc.conn
	kc.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	if err := protocol.WriteFrame(conn, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	atomic.AddUint64(&kc.stats.PacketsSent, 1)
	atomic.AddUint64(&kc.stats.BytesSent, uint64(len(data))+4)
	kc.mu.Lock()
	kc.stats.LastActivity = time.Now()
	kc.mu.Unlock()

	return nil
}
