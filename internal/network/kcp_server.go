package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/protocol"
)

// ChannelServer принимает KCP соединения и раздаёт их обработчикам.
// Каждому соединению назначается транспортный идентификатор (UUID) —
// из него binder выводит network_id игрока.
type ChannelServer struct {
	addr     string
	listener *kcp.Listener
	config   *ChannelConfig

	// Клиенты
	clients   map[string]*ClientChannel
	clientsMu sync.RWMutex

	// Обработчики
	onConnect    func(connID string, channel *KCPChannel)
	onDisconnect func(connID string)
	onMessage    func(connID string, msg *protocol.GameMsg)

	// Состояние
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// ClientChannel хранит информацию о клиентском канале
type ClientChannel struct {
	ID       string
	Channel  *KCPChannel
	LastSeen time.Time
}

// NewChannelServer создаёт новый сервер каналов
func NewChannelServer(addr string, config *ChannelConfig) *ChannelServer {
	return &ChannelServer{
		addr:    addr,
		config:  config,
		clients: make(map[string]*ClientChannel),
		logger:  logging.GetNetworkLogger(),
	}
}

// SetHandlers устанавливает обработчики событий
func (cs *ChannelServer) SetHandlers(
	onConnect func(string, *KCPChannel),
	onDisconnect func(string),
	onMessage func(string, *protocol.GameMsg),
) {
	cs.onConnect = onConnect
	cs.onDisconnect = onDisconnect
	cs.onMessage = onMessage
}

// Start запускает сервер. Ошибка открытия endpoint'а фатальна для процесса.
func (cs *ChannelServer) Start() error {
	block, err := NewBlockCrypt(cs.config.Passphrase)
	if err != nil {
		return err
	}

	listener, err := kcp.ListenWithOptions(cs.addr, block, 10, 3)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cs.addr, err)
	}

	cs.listener = listener
	cs.ctx, cs.cancel = context.WithCancel(context.Background())

	cs.wg.Add(2)
	go cs.acceptLoop()
	go cs.timeoutLoop()

	cs.logger.Info("🚀 Channel server started on %s", cs.addr)
	return nil
}

// Stop останавливает сервер: закрывает listener и каждое соединение.
// Ошибки закрытия отдельных соединений логируются и не прерывают остановку.
func (cs *ChannelServer) Stop() {
	if cs.cancel != nil {
		cs.cancel()
	}

	if cs.listener != nil {
		if err := cs.listener.Close(); err != nil {
			cs.logger.Warn("Failed to close listener: %v", err)
		}
	}

	cs.wg.Wait()

	cs.clientsMu.Lock()
	clients := make([]*ClientChannel, 0, len(cs.clients))
	for _, client := range cs.clients {
		clients = append(clients, client)
	}
	cs.clients = make(map[string]*ClientChannel)
	cs.clientsMu.Unlock()

	for _, client := range clients {
		if err := client.Channel.Close(); err != nil {
			cs.logger.Warn("Failed to close connection %s: %v", client.ID, err)
		}
	}

	cs.logger.Info("🛑 Channel server stopped")
}

// Addr возвращает фактический адрес listener'а (для port=0 в тестах)
func (cs *ChannelServer) Addr() net.Addr {
	if cs.listener == nil {
		return nil
	}
	return cs.listener.Addr()
}

// acceptLoop принимает входящие соединения
func (cs *ChannelServer) acceptLoop() {
	defer cs.wg.Done()

	for {
		conn, err := cs.listener.AcceptKCP()
		if err != nil {
			select {
			case <-cs.ctx.Done():
				return // Сервер останавливается
			default:
				cs.logger.Error("Failed to accept connection: %v", err)
				continue
			}
		}

		cs.wg.Add(1)
		go cs.handleConnection(conn)
	}
}

// handleConnection обрабатывает новое соединение
func (cs *ChannelServer) handleConnection(conn *kcp.UDPSession) {
	defer cs.wg.Done()

	channel, err := NewKCPChannelFromConn(conn, cs.config, cs.logger)
	if err != nil {
		cs.logger.Error("Failed to create channel for %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	// Транспортный идентификатор соединения
	connID := uuid.New().String()

	client := &ClientChannel{
		ID:       connID,
		Channel:  channel,
		LastSeen: time.Now(),
	}

	cs.clientsMu.Lock()
	cs.clients[connID] = client
	cs.clientsMu.Unlock()

	cs.logger.Info("🔗 Client connected: %s (%s)", connID, conn.RemoteAddr())

	if cs.onConnect != nil {
		cs.onConnect(connID, channel)
	}

	cs.readLoop(client)
	cs.disconnectClient(connID)
}

// readLoop читает сообщения от клиента до закрытия канала
func (cs *ChannelServer) readLoop(client *ClientChannel) {
	for {
		msg, err := client.Channel.Receive(cs.ctx)
		if err != nil {
			return // Канал закрыт или сервер останавливается
		}

		cs.clientsMu.Lock()
		client.LastSeen = time.Now()
		cs.clientsMu.Unlock()

		if cs.onMessage != nil {
			cs.onMessage(client.ID, msg)
		}
	}
}

// timeoutLoop проверяет таймауты клиентов
func (cs *ChannelServer) timeoutLoop() {
	defer cs.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cs.ctx.Done():
			return
		case <-ticker.C:
			cs.checkTimeouts()
		}
	}
}

// checkTimeouts отключает неактивных клиентов
func (cs *ChannelServer) checkTimeouts() {
	timeout := cs.config.IdleTimeout
	if timeout <= 0 {
		return
	}
	now := time.Now()

	cs.clientsMu.RLock()
	var stale []string
	for id, client := range cs.clients {
		if now.Sub(client.LastSeen) > timeout {
			stale = append(stale, id)
		}
	}
	cs.clientsMu.RUnlock()

	for _, id := range stale {
		cs.logger.Warn("⏱️ Client %s timed out", id)
		cs.disconnectClient(id)
	}
}

// disconnectClient отключает клиента и уведомляет обработчик
func (cs *ChannelServer) disconnectClient(connID string) {
	cs.clientsMu.Lock()
	client, exists := cs.clients[connID]
	if !exists {
		cs.clientsMu.Unlock()
		return
	}
	delete(cs.clients, connID)
	cs.clientsMu.Unlock()

	if err := client.Channel.Close(); err != nil {
		cs.logger.Warn("Failed to close connection %s: %v", connID, err)
	}

	if cs.onDisconnect != nil {
		cs.onDisconnect(connID)
	}

	cs.logger.Info("👋 Client %s disconnected", connID)
}

// SendToClient отправляет сообщение одному клиенту (адресная доставка)
func (cs *ChannelServer) SendToClient(connID string, msg *protocol.GameMsg) error {
	cs.clientsMu.RLock()
	client, exists := cs.clients[connID]
	cs.clientsMu.RUnlock()

	if !exists {
		return errors.New("client not found")
	}

	return client.Channel.Send(cs.ctx, msg)
}

// Broadcast отправляет сообщение всем клиентам.
// Ошибка отправки одному клиенту не мешает остальным.
func (cs *ChannelServer) Broadcast(msg *protocol.GameMsg) {
	cs.clientsMu.RLock()
	clients := make([]*ClientChannel, 0, len(cs.clients))
	for _, client := range cs.clients {
		clients = append(clients, client)
	}
	cs.clientsMu.RUnlock()

	for _, client := range clients {
		if err := client.Channel.Send(cs.ctx, msg); err != nil {
			cs.logger.Error("Failed to send to %s: %v", client.ID, err)
		}
	}
}

// GetClientCount возвращает количество подключенных клиентов
func (cs *ChannelServer) GetClientCount() int {
	cs.clientsMu.RLock()
	defer cs.clientsMu.RUnlock()
	return len(cs.clients)
}
