package game

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/eventbus"
	"github.com/annel0/movesync/internal/vec"
)

// constInput постоянное направление движения
type constInput struct {
	direction vec.Vec2Float
}

func (ci constInput) Sample() vec.Vec2Float { return ci.direction }

func startTestServer(t *testing.T) (*GameServer, string, string) {
	t.Helper()

	server, err := NewGameServer(ServerOptions{
		Addr:        "127.0.0.1:0",
		IntentAddr:  "127.0.0.1:0",
		TickRate:    64,
		MoveSpeed:   100.0,
		Passphrase:  "test-passphrase",
		IdleTimeout: 8 * time.Second,
		Bus:         eventbus.NewSyncBus(),
	})
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	kcpPort := server.Addr().(*net.UDPAddr).Port
	intentPort := server.IntentAddr().(*net.UDPAddr).Port
	return server,
		fmt.Sprintf("127.0.0.1:%d", kcpPort),
		fmt.Sprintf("127.0.0.1:%d", intentPort)
}

func connectTestClient(t *testing.T, addr, intentAddr string, input InputSource) *Client {
	t.Helper()

	client, err := NewClient(ClientOptions{
		Addr:       addr,
		IntentAddr: intentAddr,
		Passphrase: "test-passphrase",
		FrameRate:  60,
		InterpRate: 15.0,
		Input:      input,
		Bus:        eventbus.NewSyncBus(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEndToEnd_IdentifyAndMove(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback e2e")
	}

	server, addr, intentAddr := startTestServer(t)
	client := connectTestClient(t, addr, intentAddr, constInput{direction: vec.Vec2Float{X: 1}})

	// Идентичность приходит по надёжному каналу
	require.Eventually(t, func() bool {
		return client.State() == StateIdentified
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotZero(t, client.NetworkID())

	// Реплика собственной сущности появляется и помечается LocalPlayer
	require.Eventually(t, func() bool {
		_, ok := client.LocalEntity()
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	// Интенты двигают авторитативную позицию, диффы возвращаются клиенту
	localID, _ := client.LocalEntity()
	require.Eventually(t, func() bool {
		pos, ok := entity.PositionOf(client.Registry(), localID)
		return ok && pos.X > 1.0
	}, 5*time.Second, 20*time.Millisecond)

	// Авторитативная позиция на сервере тоже сдвинулась
	serverID, ok := entity.FindByNetworkID(server.Registry(), client.NetworkID())
	require.True(t, ok)
	serverPos, _ := entity.PositionOf(server.Registry(), serverID)
	assert.Greater(t, serverPos.X, 0.0)
}

func TestEndToEnd_TwoClientsSeeEachOther(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback e2e")
	}

	_, addr, intentAddr := startTestServer(t)

	first := connectTestClient(t, addr, intentAddr, constInput{})
	require.Eventually(t, func() bool {
		return first.State() == StateIdentified
	}, 5*time.Second, 20*time.Millisecond)

	second := connectTestClient(t, addr, intentAddr, constInput{direction: vec.Vec2Float{Y: 1}})
	require.Eventually(t, func() bool {
		return second.State() == StateIdentified
	}, 5*time.Second, 20*time.Millisecond)

	// Идентичности уникальны
	assert.NotEqual(t, first.NetworkID(), second.NetworkID())

	// Оба видят обе сущности: новичок через снимок, старожил через spawn
	require.Eventually(t, func() bool {
		return first.Registry().Count() == 2 && second.Registry().Count() == 2
	}, 5*time.Second, 20*time.Millisecond)

	// Движение второго видно первому
	secondID, ok := entity.FindByNetworkID(first.Registry(), second.NetworkID())
	require.True(t, ok)
	require.Eventually(t, func() bool {
		pos, ok := entity.PositionOf(first.Registry(), secondID)
		return ok && pos.Y > 0.5
	}, 5*time.Second, 20*time.Millisecond)

	// Ровно один LocalPlayer у каждого, и это разные network_id
	firstLocal, ok := first.LocalEntity()
	require.True(t, ok)
	player, _ := entity.PlayerOf(first.Registry(), firstLocal)
	assert.Equal(t, first.NetworkID(), player.NetworkID)

	locals := 0
	first.Registry().Each(entity.KindLocalPlayer, func(entity.ID, interface{}) {
		locals++
	})
	assert.Equal(t, 1, locals)
}

func TestEndToEnd_DisconnectDespawns(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback e2e, ждёт idle timeout")
	}

	_, addr, intentAddr := startTestServer(t)

	observer := connectTestClient(t, addr, intentAddr, constInput{})
	leaver := connectTestClient(t, addr, intentAddr, constInput{})

	require.Eventually(t, func() bool {
		return observer.Registry().Count() == 2
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, leaver.Close())

	// Сервер обнаруживает уход по таймауту неактивности и рассылает despawn
	require.Eventually(t, func() bool {
		return observer.Registry().Count() == 1
	}, 25*time.Second, 100*time.Millisecond)
}
