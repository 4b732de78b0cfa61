package game

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/annel0/movesync/internal/config"
	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/eventbus"
	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/network"
	"github.com/annel0/movesync/internal/protocol"
	"github.com/annel0/movesync/internal/replication"
	"github.com/annel0/movesync/internal/vec"
)

// Размер очереди событий подключения/отключения между сетевыми
// горутинами и тик-циклом
const peerQueueSize = 256

// ServerOptions параметры игрового сервера.
// Нулевые значения заменяются дефолтами протокола.
type ServerOptions struct {
	Addr        string // KCP endpoint (надёжный канал)
	IntentAddr  string // UDP endpoint интентов (обычно port+1)
	TickRate    int
	MoveSpeed   float64
	Passphrase  string
	IdleTimeout time.Duration
	Bus         eventbus.EventBus
	Metrics     *ServerMetrics
}

// OptionsFromConfig собирает ServerOptions из конфигурации процесса
func OptionsFromConfig(cfg *config.Config) ServerOptions {
	port := cfg.Server.GetPort()
	return ServerOptions{
		Addr:        fmt.Sprintf(":%d", port),
		IntentAddr:  fmt.Sprintf(":%d", port+1),
		TickRate:    cfg.Sim.GetTickRate(),
		MoveSpeed:   cfg.Sim.GetMoveSpeed(),
		Passphrase:  cfg.Server.GetPassphrase(),
		IdleTimeout: time.Duration(cfg.Server.GetIdleTimeout()) * time.Second,
	}
}

// peerChange событие жизненного цикла соединения, обрабатываемое тик-циклом
type peerChange struct {
	connID    string
	connected bool
}

// binding связывает транспортное соединение с идентичностью игрока.
// Держится от подключения до отключения: одно соединение — один игрок.
type binding struct {
	networkID uint64
	entityID  entity.ID
}

// GameServer авторитативный сервер движения: принимает соединения,
// назначает идентичности, применяет интенты и рассылает диффы позиций.
// Всё состояние симуляции принадлежит тик-циклу.
type GameServer struct {
	opts ServerOptions

	registry   *entity.Registry
	producer   *replication.Producer
	channels   *network.ChannelServer
	intents    *network.IntentReceiver
	serializer *protocol.MessageSerializer

	// Привязки соединение -> идентичность. Пишет только тик-цикл.
	bindings map[string]binding

	peerQueue     chan peerChange
	nextNetworkID uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// NewGameServer создаёт сервер. Endpoint'ы открываются в Start.
func NewGameServer(opts ServerOptions) (*GameServer, error) {
	if opts.TickRate <= 0 {
		opts.TickRate = config.DefaultTickRate
	}
	if opts.MoveSpeed <= 0 {
		opts.MoveSpeed = config.DefaultMoveSpeed
	}
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf(":%d", config.DefaultPort)
	}
	if opts.IntentAddr == "" {
		opts.IntentAddr = fmt.Sprintf(":%d", config.DefaultPort+1)
	}

	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		return nil, err
	}

	registry := entity.NewRegistry()

	channelConfig := network.DefaultChannelConfig()
	channelConfig.Passphrase = opts.Passphrase
	if opts.IdleTimeout > 0 {
		channelConfig.IdleTimeout = opts.IdleTimeout
	}

	gs := &GameServer{
		opts:       opts,
		registry:   registry,
		producer:   replication.NewProducer(registry, replication.DefaultDeclaration()),
		channels:   network.NewChannelServer(opts.Addr, channelConfig),
		serializer: serializer,
		bindings:   make(map[string]binding),
		peerQueue:  make(chan peerChange, peerQueueSize),
		logger:     logging.GetServerLogger(),
	}

	gs.channels.SetHandlers(gs.onConnect, gs.onDisconnect, gs.onMessage)
	return gs, nil
}

// Registry возвращает реестр сущностей (метрики, тесты)
func (gs *GameServer) Registry() *entity.Registry {
	return gs.registry
}

// Addr возвращает фактический адрес надёжного канала
func (gs *GameServer) Addr() net.Addr {
	return gs.channels.Addr()
}

// IntentAddr возвращает фактический адрес канала интентов
func (gs *GameServer) IntentAddr() net.Addr {
	if gs.intents == nil {
		return nil
	}
	return gs.intents.Addr()
}

// Start открывает оба endpoint'а и запускает тик-цикл.
// Ошибка открытия любого endpoint'а фатальна.
func (gs *GameServer) Start() error {
	_, span := otel.Tracer("movesync/server").Start(context.Background(), "server.start")
	defer span.End()

	intents, err := network.NewIntentReceiver(gs.opts.IntentAddr)
	if err != nil {
		return fmt.Errorf("failed to open intent endpoint: %w", err)
	}
	gs.intents = intents

	if err := gs.channels.Start(); err != nil {
		_ = gs.intents.Close()
		return err
	}

	gs.ctx, gs.cancel = context.WithCancel(context.Background())
	gs.wg.Add(1)
	go gs.tickLoop()

	gs.logger.Info("🚀 Game server started: tick=%dHz speed=%.0f", gs.opts.TickRate, gs.opts.MoveSpeed)
	return nil
}

// Stop останавливает сервер: тик-цикл, затем транспорт.
// Идемпотентен для незапущенного сервера.
func (gs *GameServer) Stop() {
	if gs.cancel != nil {
		gs.cancel()
		gs.wg.Wait()
	}

	gs.channels.Stop()
	if gs.intents != nil {
		_ = gs.intents.Close()
	}
	_ = gs.serializer.Close()

	gs.logger.Info("🛑 Game server stopped")
}

// onConnect вызывается сетевой горутиной: ставим событие в очередь тик-цикла
func (gs *GameServer) onConnect(connID string, _ *network.KCPChannel) {
	select {
	case gs.peerQueue <- peerChange{connID: connID, connected: true}:
	default:
		gs.logger.Error("Peer queue full, dropping connect for %s", connID)
	}
}

// onDisconnect вызывается сетевой горутиной
func (gs *GameServer) onDisconnect(connID string) {
	select {
	case gs.peerQueue <- peerChange{connID: connID, connected: false}:
	default:
		gs.logger.Error("Peer queue full, dropping disconnect for %s", connID)
	}
}

// onMessage обрабатывает сообщения надёжного канала.
// Симуляцию не трогает: интенты приходят только по UDP.
func (gs *GameServer) onMessage(connID string, msg *protocol.GameMsg) {
	switch msg.Type {
	case protocol.MsgPing:
		var ping protocol.PingPayload
		if err := gs.serializer.DeserializePayload(msg, &ping); err != nil {
			return
		}
		pong, err := protocol.NewGameMsg(protocol.MsgPong, 0, protocol.FlagReliable, protocol.PongPayload{
			Timestamp: ping.Timestamp,
		})
		if err != nil {
			return
		}
		if err := gs.channels.SendToClient(connID, pong); err != nil {
			gs.logger.Debug("Failed to pong %s: %v", connID, err)
		}
	default:
		gs.logger.Debug("Unexpected message on reliable channel from %s: %v", connID, msg.Type)
	}
}

// tickLoop фиксированный шаг симуляции.
// Порядок внутри тика: жизненный цикл соединений -> интенты -> движение ->
// репликация. Реплика видит только пост-симуляционное состояние.
func (gs *GameServer) tickLoop() {
	defer gs.wg.Done()

	interval := time.Second / time.Duration(gs.opts.TickRate)
	dt := 1.0 / float64(gs.opts.TickRate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-gs.ctx.Done():
			return
		case <-ticker.C:
			started := time.Now()
			gs.tick(dt)
			if gs.opts.Metrics != nil {
				gs.opts.Metrics.tickDuration.Observe(time.Since(started).Seconds())
			}
		}
	}
}

// tick один шаг симуляции
func (gs *GameServer) tick(dt float64) {
	gs.drainPeerChanges()

	applied, dropped := DrainIntents(gs.registry, gs.serializer, gs.intents.Drain())

	StepMovement(gs.registry, dt, gs.opts.MoveSpeed)

	sent := gs.producer.Flush(gs.channels)

	if gs.opts.Metrics != nil {
		gs.opts.Metrics.activeConnections.Set(float64(gs.channels.GetClientCount()))
		if applied > 0 {
			gs.opts.Metrics.intentsApplied.Add(float64(applied))
		}
		if dropped > 0 {
			gs.opts.Metrics.intentsDropped.Add(float64(dropped))
		}
		if sent > 0 {
			gs.opts.Metrics.replicationUpdates.Add(float64(sent))
		}
	}
}

// drainPeerChanges обрабатывает подключения и отключения, накопленные
// с прошлого тика
func (gs *GameServer) drainPeerChanges() {
	for {
		select {
		case change := <-gs.peerQueue:
			if change.connected {
				gs.handleJoin(change.connID)
			} else {
				gs.handleLeave(change.connID)
			}
		default:
			return
		}
	}
}

// handleJoin назначает идентичность, создаёт сущность игрока и
// синхронизирует новичка с текущим миром
func (gs *GameServer) handleJoin(connID string) {
	networkID := atomic.AddUint64(&gs.nextNetworkID, 1)

	id := gs.registry.Spawn()
	gs.registry.Set(id, entity.KindPlayer, entity.Player{NetworkID: networkID})
	gs.registry.Set(id, entity.KindPosition, vec.Vec2Float{})
	gs.registry.Set(id, entity.KindMovementInput, entity.MovementInput{})

	gs.bindings[connID] = binding{networkID: networkID, entityID: id}

	// Идентичность доставляется адресно, ровно один раз за соединение
	notify, err := protocol.NewGameMsg(protocol.MsgClientID, 0, protocol.FlagReliable|protocol.FlagOrdered, protocol.ClientIDNotify{
		NetworkID: networkID,
	})
	if err != nil {
		gs.logger.Error("Failed to build client id message: %v", err)
	} else if err := gs.channels.SendToClient(connID, notify); err != nil {
		gs.logger.Warn("Failed to send client id to %s: %v", connID, err)
	}

	// Новичку — полный снимок мира (включая его сущность), остальным —
	// spawn новой. Повторный spawn у новичка идемпотентен на клиенте.
	gs.producer.SnapshotFor(gs.channels, connID)
	gs.producer.AnnounceSpawn(gs.channels, id)

	gs.logger.Info("🔗 Player joined: conn=%s network_id=%d entity=%d", connID, networkID, id)

	_ = eventbus.PublishEvent(gs.ctx, gs.opts.Bus, "server", eventbus.EventPeerConnected, eventbus.PeerEvent{
		ConnID:    connID,
		NetworkID: networkID,
	})
	_ = eventbus.PublishEvent(gs.ctx, gs.opts.Bus, "server", eventbus.EventEntitySpawned, eventbus.EntityEvent{
		EntityID:  uint64(id),
		NetworkID: networkID,
	})
}

// handleLeave удаляет сущность игрока и освобождает идентичность.
// Поздние интенты с этим network_id перестают находить сущность и дропаются.
func (gs *GameServer) handleLeave(connID string) {
	bind, exists := gs.bindings[connID]
	if !exists {
		return
	}
	delete(gs.bindings, connID)

	gs.producer.AnnounceDespawn(gs.channels, bind.entityID)
	gs.registry.Despawn(bind.entityID)

	gs.logger.Info("👋 Player left: conn=%s network_id=%d", connID, bind.networkID)

	_ = eventbus.PublishEvent(gs.ctx, gs.opts.Bus, "server", eventbus.EventEntityDespawned, eventbus.EntityEvent{
		EntityID:  uint64(bind.entityID),
		NetworkID: bind.networkID,
	})
	_ = eventbus.PublishEvent(gs.ctx, gs.opts.Bus, "server", eventbus.EventPeerDisconnected, eventbus.PeerEvent{
		ConnID:    connID,
		NetworkID: bind.networkID,
	})
}
