package replication

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/eventbus"
	"github.com/annel0/movesync/internal/protocol"
	"github.com/annel0/movesync/internal/vec"
)

// fakeBroadcaster собирает отправленные сообщения вместо сети
type fakeBroadcaster struct {
	broadcast []*protocol.GameMsg
	addressed map[string][]*protocol.GameMsg
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{addressed: make(map[string][]*protocol.GameMsg)}
}

func (f *fakeBroadcaster) Broadcast(msg *protocol.GameMsg) {
	f.broadcast = append(f.broadcast, msg)
}

func (f *fakeBroadcaster) SendToClient(connID string, msg *protocol.GameMsg) error {
	f.addressed[connID] = append(f.addressed[connID], msg)
	return nil
}

func spawnPlayer(r *entity.Registry, networkID uint64, pos vec.Vec2Float) entity.ID {
	id := r.Spawn()
	r.Set(id, entity.KindPlayer, entity.Player{NetworkID: networkID})
	r.Set(id, entity.KindPosition, pos)
	return id
}

func TestDeclaration(t *testing.T) {
	d := DefaultDeclaration()

	assert.True(t, d.Replicates(entity.KindPlayer))
	assert.True(t, d.Replicates(entity.KindPosition))
	assert.False(t, d.Replicates(entity.KindMovementInput))
	assert.False(t, d.Replicates(entity.KindLocalPlayer))

	class, ok := d.ClientEventClass(protocol.MsgMovementIntent)
	require.True(t, ok)
	assert.Equal(t, ClassUnreliable, class)
}

func TestProducer_FlushOnlyChanged(t *testing.T) {
	r := entity.NewRegistry()
	p := NewProducer(r, DefaultDeclaration())
	b := newFakeBroadcaster()

	a := spawnPlayer(r, 1, vec.Vec2Float{})
	spawnPlayer(r, 2, vec.Vec2Float{X: 5})

	// Первая рассылка: обе позиции ещё не отправлялись
	assert.Equal(t, 2, p.Flush(b))

	// Без изменений — тишина
	assert.Equal(t, 0, p.Flush(b))

	// Сдвинулась одна — уходит ровно одно обновление
	r.Set(a, entity.KindPosition, vec.Vec2Float{X: 1})
	assert.Equal(t, 1, p.Flush(b))
}

func TestProducer_SpawnRecordsLastSent(t *testing.T) {
	r := entity.NewRegistry()
	p := NewProducer(r, DefaultDeclaration())
	b := newFakeBroadcaster()

	id := spawnPlayer(r, 1, vec.Vec2Float{X: 3})
	p.AnnounceSpawn(b, id)
	require.Len(t, b.broadcast, 1)
	assert.Equal(t, protocol.MsgEntitySpawn, b.broadcast[0].Type)

	// Позиция уже ушла в spawn: Flush её не дублирует
	assert.Equal(t, 0, p.Flush(b))
}

func TestProducer_SnapshotAddressed(t *testing.T) {
	r := entity.NewRegistry()
	p := NewProducer(r, DefaultDeclaration())
	b := newFakeBroadcaster()

	spawnPlayer(r, 1, vec.Vec2Float{})
	spawnPlayer(r, 2, vec.Vec2Float{X: 1})

	p.SnapshotFor(b, "conn-1")

	// Снимок уходит только новичку и не попадает в broadcast
	assert.Len(t, b.addressed["conn-1"], 2)
	assert.Empty(t, b.broadcast)
}

func TestConsumer_IdempotentReplay(t *testing.T) {
	serverReg := entity.NewRegistry()
	producer := NewProducer(serverReg, DefaultDeclaration())
	b := newFakeBroadcaster()

	id := spawnPlayer(serverReg, 1, vec.Vec2Float{X: 2, Y: 3})
	producer.AnnounceSpawn(b, id)
	serverReg.Set(id, entity.KindPosition, vec.Vec2Float{X: 4, Y: 3})
	producer.Flush(b)

	clientReg := entity.NewRegistry()
	consumer, err := NewConsumer(clientReg, eventbus.NewSyncBus())
	require.NoError(t, err)
	defer consumer.Close()

	ctx := context.Background()
	apply := func() {
		for _, msg := range b.broadcast {
			require.NoError(t, consumer.Apply(ctx, msg))
		}
	}

	apply()
	require.Equal(t, 1, clientReg.Count())
	localID, ok := consumer.LocalID(uint64(id))
	require.True(t, ok)
	pos, _ := entity.PositionOf(clientReg, localID)
	assert.Equal(t, vec.Vec2Float{X: 4, Y: 3}, pos)

	// Повторное применение того же потока ничего не меняет
	apply()
	assert.Equal(t, 1, clientReg.Count())
	pos, _ = entity.PositionOf(clientReg, localID)
	assert.Equal(t, vec.Vec2Float{X: 4, Y: 3}, pos)
}

func TestConsumer_UnknownEntityIgnored(t *testing.T) {
	clientReg := entity.NewRegistry()
	consumer, err := NewConsumer(clientReg, eventbus.NewSyncBus())
	require.NoError(t, err)
	defer consumer.Close()

	ctx := context.Background()

	update, err := protocol.NewGameMsg(protocol.MsgEntityUpdate, 0, protocol.FlagReliable, protocol.EntityUpdate{
		EntityID: 999,
		Position: vec.Vec2Float{X: 1},
	})
	require.NoError(t, err)
	require.NoError(t, consumer.Apply(ctx, update))
	assert.Equal(t, 0, clientReg.Count())

	despawn, err := protocol.NewGameMsg(protocol.MsgEntityDespawn, 0, protocol.FlagReliable, protocol.EntityDespawn{
		EntityID: 999,
	})
	require.NoError(t, err)
	require.NoError(t, consumer.Apply(ctx, despawn))
}

func TestConsumer_DespawnRemovesReplica(t *testing.T) {
	clientReg := entity.NewRegistry()
	bus := eventbus.NewSyncBus()
	consumer, err := NewConsumer(clientReg, bus)
	require.NoError(t, err)
	defer consumer.Close()

	var despawned int
	_, err = bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.EventEntityDespawned}}, func(ctx context.Context, ev *eventbus.Envelope) {
		despawned++
	})
	require.NoError(t, err)

	ctx := context.Background()

	spawn, err := protocol.NewGameMsg(protocol.MsgEntitySpawn, 0, protocol.FlagReliable, protocol.EntitySpawn{
		EntityID:  5,
		NetworkID: 1,
		Position:  vec.Vec2Float{},
	})
	require.NoError(t, err)
	require.NoError(t, consumer.Apply(ctx, spawn))
	require.Equal(t, 1, clientReg.Count())

	despawn, err := protocol.NewGameMsg(protocol.MsgEntityDespawn, 0, protocol.FlagReliable, protocol.EntityDespawn{
		EntityID: 5,
	})
	require.NoError(t, err)
	require.NoError(t, consumer.Apply(ctx, despawn))

	assert.Equal(t, 0, clientReg.Count())
	assert.Equal(t, 1, despawned)

	_, ok := consumer.LocalID(5)
	assert.False(t, ok)
}
