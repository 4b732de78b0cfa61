package network

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/protocol"
)

// Ненадёжный канал интентов: голые UDP датаграммы на port+1.
// Без ретрансмиссий, без порядка, без дедупликации — потеря датаграммы
// допустима, следующий тик её перекроет. Принадлежность датаграммы
// соединению определяется полем Sender (network_id) в конверте.

// IntentInboxSize размер входящей очереди интентов.
// Переполнение = дроп, это согласуется с семантикой канала.
const IntentInboxSize = 4096

// IntentReceiver принимает датаграммы интентов на серверной стороне
// и складывает их во входящую очередь, дренируемую в начале тика.
type IntentReceiver struct {
	conn       *net.UDPConn
	serializer *protocol.MessageSerializer
	inbox      chan *protocol.GameMsg
	dropped    uint64
	logger     *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewIntentReceiver открывает UDP endpoint. Ошибка открытия фатальна на старте.
func NewIntentReceiver(addr string) (*IntentReceiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		conn.Close()
		return nil, err
	}

	ir := &IntentReceiver{
		conn:       conn,
		serializer: serializer,
		inbox:      make(chan *protocol.GameMsg, IntentInboxSize),
		logger:     logging.GetNetworkLogger(),
		done:       make(chan struct{}),
	}

	ir.wg.Add(1)
	go ir.readLoop()

	ir.logger.Info("🚀 Intent receiver started on %s", conn.LocalAddr())
	return ir, nil
}

// Addr возвращает фактический адрес endpoint'а
func (ir *IntentReceiver) Addr() net.Addr {
	return ir.conn.LocalAddr()
}

// Drain забирает все накопленные интенты без блокировки.
// Вызывается тик-циклом перед симуляцией: снимок на начало тика.
func (ir *IntentReceiver) Drain() []*protocol.GameMsg {
	var msgs []*protocol.GameMsg
	for {
		select {
		case msg := <-ir.inbox:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// Dropped возвращает число отброшенных датаграмм
func (ir *IntentReceiver) Dropped() uint64 {
	return atomic.LoadUint64(&ir.dropped)
}

// Close закрывает endpoint
func (ir *IntentReceiver) Close() error {
	var err error
	ir.closeOnce.Do(func() {
		close(ir.done)
		err = ir.conn.Close()
		ir.wg.Wait()
		_ = ir.serializer.Close()
	})
	return err
}

// readLoop читает датаграммы до закрытия сокета
func (ir *IntentReceiver) readLoop() {
	defer ir.wg.Done()

	buffer := make([]byte, 2048)
	for {
		n, _, err := ir.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-ir.done:
				return // Штатное закрытие
			default:
				ir.logger.Error("Intent read error: %v", err)
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buffer[:n])

		msg, err := ir.serializer.DeserializeMessage(data)
		if err != nil {
			// Мусорная датаграмма — дропаем молча, канал ненадёжный
			atomic.AddUint64(&ir.dropped, 1)
			continue
		}

		select {
		case ir.inbox <- msg:
		default:
			atomic.AddUint64(&ir.dropped, 1)
		}
	}
}

// IntentSender отправляет интенты с клиентской стороны
type IntentSender struct {
	conn       *net.UDPConn
	serializer *protocol.MessageSerializer
	closeOnce  sync.Once
}

// NewIntentSender подключает UDP сокет к адресу интентов сервера
func NewIntentSender(addr string) (*IntentSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &IntentSender{conn: conn, serializer: serializer}, nil
}

// Send отправляет одну датаграмму; ошибки отправки не ретраятся
func (is *IntentSender) Send(msg *protocol.GameMsg) error {
	data, err := is.serializer.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize intent: %w", err)
	}

	if _, err := is.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send intent: %w", err)
	}
	return nil
}

// Close закрывает сокет
func (is *IntentSender) Close() error {
	var err error
	is.closeOnce.Do(func() {
		err = is.conn.Close()
		_ = is.serializer.Close()
	})
	return err
}
