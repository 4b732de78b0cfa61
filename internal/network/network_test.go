package network

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/protocol"
	"github.com/annel0/movesync/internal/vec"
)

func TestNewBlockCrypt(t *testing.T) {
	block, err := NewBlockCrypt("secret")
	require.NoError(t, err)
	assert.NotNil(t, block)

	// Пустая фраза недопустима
	_, err = NewBlockCrypt("")
	assert.Error(t, err)
}

func TestIntentChannel_Loopback(t *testing.T) {
	receiver, err := NewIntentReceiver("127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewIntentSender(receiver.Addr().String())
	require.NoError(t, err)
	defer sender.Close()

	msg, err := protocol.NewGameMsg(protocol.MsgMovementIntent, 7, protocol.FlagUnsequenced, protocol.MovementIntent{
		Direction: vec.Vec2Float{X: 1},
	})
	require.NoError(t, err)
	require.NoError(t, sender.Send(msg))

	// Дренаж неблокирующий: ждём прихода датаграммы
	var got []*protocol.GameMsg
	require.Eventually(t, func() bool {
		got = append(got, receiver.Drain()...)
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, protocol.MsgMovementIntent, got[0].Type)
	assert.Equal(t, uint64(7), got[0].Sender)
}

func TestIntentReceiver_GarbageDroppedSilently(t *testing.T) {
	receiver, err := NewIntentReceiver("127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewIntentSender(receiver.Addr().String())
	require.NoError(t, err)
	defer sender.Close()

	// Мусор прямо в сокет, мимо сериализатора
	_, err = sender.conn.Write([]byte("garbage datagram"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return receiver.Dropped() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, receiver.Drain())
}

func TestChannelServer_StartStop(t *testing.T) {
	config := DefaultChannelConfig()
	config.Passphrase = "test"

	server := NewChannelServer("127.0.0.1:0", config)
	require.NoError(t, server.Start())
	assert.NotNil(t, server.Addr())
	assert.Equal(t, 0, server.GetClientCount())
	server.Stop()
}

func TestKCPChannel_Loopback(t *testing.T) {
	config := DefaultChannelConfig()
	config.Passphrase = "test"

	server := NewChannelServer("127.0.0.1:0", config)

	received := make(chan *protocol.GameMsg, 1)
	server.SetHandlers(nil, nil, func(connID string, msg *protocol.GameMsg) {
		received <- msg
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	client, err := NewKCPChannel(config, logging.GetNetworkLogger())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := fmt.Sprintf("127.0.0.1:%d", server.Addr().(*net.UDPAddr).Port)
	require.NoError(t, client.Connect(ctx, addr))

	msg, err := protocol.NewGameMsg(protocol.MsgPing, 0, protocol.FlagReliable, protocol.PingPayload{Timestamp: 42})
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, msg))

	select {
	case got := <-received:
		assert.Equal(t, protocol.MsgPing, got.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("сообщение не дошло до сервера")
	}
}
