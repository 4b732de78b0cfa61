package game

import (
	"context"
	"fmt"
	"sync"
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

// ClientState состояние идентификации клиента
type ClientState int32

const (
	// StateUnidentified клиент подключён, но ещё не знает свой network_id
	StateUnidentified ClientState = iota
	// StateIdentified идентичность получена и больше не меняется
	StateIdentified
)

// String возвращает имя состояния
func (s ClientState) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	default:
		return "unknown"
	}
}

// Интервал keepalive на надёжном канале: интенты идут по UDP и
// не обновляют LastSeen соединения на сервере
const pingInterval = 5 * time.Second

// ClientOptions параметры клиентского процесса
type ClientOptions struct {
	Addr       string // KCP endpoint сервера
	IntentAddr string // UDP endpoint интентов сервера
	Passphrase string
	FrameRate  int
	InterpRate float64
	Input      InputSource
	Bus        eventbus.EventBus
}

// ClientOptionsFromConfig собирает ClientOptions из конфигурации
func ClientOptionsFromConfig(cfg *config.Config) ClientOptions {
	ip := cfg.Client.GetIP()
	port := cfg.Client.GetPort()
	return ClientOptions{
		Addr:       fmt.Sprintf("%s:%d", ip, port),
		IntentAddr: fmt.Sprintf("%s:%d", ip, port+1),
		Passphrase: cfg.Client.GetPassphrase(),
		FrameRate:  cfg.Client.GetFrameRate(),
		InterpRate: cfg.Client.GetInterpRate(),
	}
}

// Client клиент протокола движения: держит реплику мира, проходит
// машину состояний идентификации и отправляет интенты каждый кадр.
// Реплика и презентация мутируются только кадровым циклом.
type Client struct {
	opts ClientOptions

	registry   *entity.Registry
	consumer   *replication.Consumer
	presenter  *Presenter
	serializer *protocol.MessageSerializer

	channel *network.KCPChannel
	intents *network.IntentSender

	mu            sync.RWMutex
	state         ClientState
	networkID     uint64
	localEntity   entity.ID
	localAssigned bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// NewClient создаёт неподключённого клиента
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.FrameRate <= 0 {
		opts.FrameRate = config.DefaultFrameRate
	}
	if opts.InterpRate <= 0 {
		opts.InterpRate = config.DefaultInterpRate
	}
	if opts.Input == nil {
		opts.Input = NullInput{}
	}

	registry := entity.NewRegistry()
	consumer, err := replication.NewConsumer(registry, opts.Bus)
	if err != nil {
		return nil, err
	}

	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		_ = consumer.Close()
		return nil, err
	}

	channelConfig := network.DefaultChannelConfig()
	channelConfig.Passphrase = opts.Passphrase

	channel, err := network.NewKCPChannel(channelConfig, logging.GetClientLogger())
	if err != nil {
		_ = consumer.Close()
		_ = serializer.Close()
		return nil, err
	}

	return &Client{
		opts:       opts,
		registry:   registry,
		consumer:   consumer,
		presenter:  NewPresenter(registry, opts.InterpRate),
		serializer: serializer,
		channel:    channel,
		state:      StateUnidentified,
		logger:     logging.GetClientLogger(),
	}, nil
}

// Registry возвращает клиентский реестр-реплику
func (c *Client) Registry() *entity.Registry {
	return c.registry
}

// Presenter возвращает презентер клиента
func (c *Client) Presenter() *Presenter {
	return c.presenter
}

// State возвращает текущее состояние идентификации
func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// NetworkID возвращает назначенную идентичность (0 до идентификации)
func (c *Client) NetworkID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networkID
}

// LocalEntity возвращает локальную сущность (false до её появления)
func (c *Client) LocalEntity() (entity.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localEntity, c.localAssigned
}

// Connect устанавливает оба канала и запускает кадровый цикл
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := otel.Tracer("movesync/client").Start(ctx, "client.connect")
	defer span.End()

	if err := c.channel.Connect(ctx, c.opts.Addr); err != nil {
		return err
	}

	intents, err := network.NewIntentSender(c.opts.IntentAddr)
	if err != nil {
		_ = c.channel.Close()
		return err
	}
	c.intents = intents

	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.channel.OnDisconnect(func(err error) {
		c.logger.Warn("Connection lost: %v", err)
		c.cancel()
	})

	c.wg.Add(1)
	go c.frameLoop()

	c.logger.Info("🚀 Client connected to %s", c.opts.Addr)
	return nil
}

// Close завершает клиента: кадровый цикл, затем каналы
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}

	err := c.channel.Close()
	if c.intents != nil {
		_ = c.intents.Close()
	}
	_ = c.consumer.Close()
	_ = c.serializer.Close()

	c.logger.Info("👋 Client closed")
	return err
}

// Done возвращает канал завершения кадрового цикла
func (c *Client) Done() <-chan struct{} {
	if c.ctx == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.ctx.Done()
}

// frameLoop кадровый цикл клиента.
// Порядок кадра: входящие сообщения -> интент -> презентация.
func (c *Client) frameLoop() {
	defer c.wg.Done()

	interval := time.Second / time.Duration(c.opts.FrameRate)
	dt := 1.0 / float64(c.opts.FrameRate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-pingTicker.C:
			c.sendPing()
		case <-ticker.C:
			c.frame(dt)
		}
	}
}

// frame один кадр клиента
func (c *Client) frame(dt float64) {
	for {
		msg, ok := c.channel.TryReceive()
		if !ok {
			break
		}
		c.handleMessage(msg)
	}

	if c.State() == StateIdentified {
		c.sendIntent(c.opts.Input.Sample())
	}

	c.presenter.Update(dt)
}

// handleMessage обрабатывает одно сообщение надёжного канала
func (c *Client) handleMessage(msg *protocol.GameMsg) {
	switch msg.Type {
	case protocol.MsgClientID:
		c.handleClientID(msg)

	case protocol.MsgEntitySpawn, protocol.MsgEntityUpdate, protocol.MsgEntityDespawn:
		if err := c.consumer.Apply(c.ctx, msg); err != nil {
			c.logger.Error("Failed to apply replication message: %v", err)
			return
		}
		// Локальная сущность могла появиться раньше или позже идентичности
		c.tryBindLocal()

	case protocol.MsgPong:
		// Keepalive подтверждён, ничего не делаем

	default:
		c.logger.Debug("Unexpected message: %v", msg.Type)
	}
}

// handleClientID переводит клиента в состояние Identified.
// Повторное объявление идентичности игнорируется: переход одноразовый.
func (c *Client) handleClientID(msg *protocol.GameMsg) {
	var notify protocol.ClientIDNotify
	if err := c.serializer.DeserializePayload(msg, &notify); err != nil {
		c.logger.Error("Bad client id payload: %v", err)
		return
	}

	c.mu.Lock()
	if c.state == StateIdentified {
		c.mu.Unlock()
		c.logger.Warn("Duplicate identity announcement ignored: network_id=%d", notify.NetworkID)
		return
	}
	c.state = StateIdentified
	c.networkID = notify.NetworkID
	c.mu.Unlock()

	c.logger.Info("✅ Identified: network_id=%d", notify.NetworkID)

	_ = eventbus.PublishEvent(c.ctx, c.opts.Bus, "client", eventbus.EventLocalIdentified, eventbus.PeerEvent{
		NetworkID: notify.NetworkID,
	})

	c.tryBindLocal()
}

// tryBindLocal помечает реплику с нашим network_id маркером LocalPlayer.
// Срабатывает ровно один раз: маркер не переназначается.
func (c *Client) tryBindLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdentified || c.localAssigned {
		return
	}

	id, ok := entity.FindByNetworkID(c.registry, c.networkID)
	if !ok {
		return
	}

	c.registry.Set(id, entity.KindLocalPlayer, entity.LocalPlayer{})
	c.localEntity = id
	c.localAssigned = true

	c.logger.Info("✅ Local player bound: entity=%d network_id=%d", id, c.networkID)
}

// sendIntent отправляет датаграмму интента.
// Ошибка отправки не ретраится: следующий кадр пришлёт новый интент.
func (c *Client) sendIntent(direction vec.Vec2Float) {
	msg, err := protocol.NewGameMsg(protocol.MsgMovementIntent, c.NetworkID(), protocol.FlagUnsequenced, protocol.MovementIntent{
		Direction: direction,
	})
	if err != nil {
		c.logger.Error("Failed to build intent: %v", err)
		return
	}

	if err := c.intents.Send(msg); err != nil {
		c.logger.Debug("Intent send failed: %v", err)
	}
}

// sendPing шлёт keepalive по надёжному каналу
func (c *Client) sendPing() {
	msg, err := protocol.NewGameMsg(protocol.MsgPing, 0, protocol.FlagReliable, protocol.PingPayload{
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return
	}
	if err := c.channel.Send(c.ctx, msg); err != nil {
		c.logger.Debug("Ping failed: %v", err)
	}
}
