package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/protocol"
	"github.com/annel0/movesync/internal/vec"
)

func spawnServerPlayer(r *entity.Registry, networkID uint64) entity.ID {
	id := r.Spawn()
	r.Set(id, entity.KindPlayer, entity.Player{NetworkID: networkID})
	r.Set(id, entity.KindPosition, vec.Vec2Float{})
	r.Set(id, entity.KindMovementInput, entity.MovementInput{})
	return id
}

func TestStepMovement_PositionLaw(t *testing.T) {
	r := entity.NewRegistry()
	id := spawnServerPlayer(r, 1)

	// direction=(1,0), speed=100, dt=1/64 -> сдвиг ровно 1.5625 по X
	r.Set(id, entity.KindMovementInput, entity.MovementInput{Direction: vec.Vec2Float{X: 1}})
	moved := StepMovement(r, 1.0/64.0, 100.0)

	assert.Equal(t, 1, moved)
	pos, _ := entity.PositionOf(r, id)
	assert.InDelta(t, 1.5625, pos.X, 1e-12)
	assert.Equal(t, 0.0, pos.Y)
}

func TestStepMovement_TenTicks(t *testing.T) {
	r := entity.NewRegistry()
	id := spawnServerPlayer(r, 1)
	r.Set(id, entity.KindMovementInput, entity.MovementInput{Direction: vec.Vec2Float{X: 1}})

	for i := 0; i < 10; i++ {
		StepMovement(r, 1.0/64.0, 100.0)
	}

	pos, _ := entity.PositionOf(r, id)
	assert.InDelta(t, 15.625, pos.X, 1e-9)
}

func TestStepMovement_ZeroDirectionHolds(t *testing.T) {
	r := entity.NewRegistry()
	id := spawnServerPlayer(r, 1)
	r.Set(id, entity.KindPosition, vec.Vec2Float{X: 3, Y: 4})

	moved := StepMovement(r, 1.0/64.0, 100.0)

	assert.Equal(t, 0, moved)
	pos, _ := entity.PositionOf(r, id)
	assert.Equal(t, vec.Vec2Float{X: 3, Y: 4}, pos)
}

func TestApplyIntent_Overwrites(t *testing.T) {
	r := entity.NewRegistry()
	id := spawnServerPlayer(r, 1)

	assert.True(t, ApplyIntent(r, 1, vec.Vec2Float{X: 1}))
	assert.True(t, ApplyIntent(r, 1, vec.Vec2Float{Y: -1}))

	// Интенты не аккумулируются: действует только последний
	value, _ := r.Get(id, entity.KindMovementInput)
	input := value.(entity.MovementInput)
	assert.Equal(t, vec.Vec2Float{Y: -1}, input.Direction)

	StepMovement(r, 1.0/64.0, 100.0)
	pos, _ := entity.PositionOf(r, id)
	assert.Equal(t, 0.0, pos.X)
	assert.InDelta(t, -1.5625, pos.Y, 1e-12)
}

func TestApplyIntent_UnknownSenderDropped(t *testing.T) {
	r := entity.NewRegistry()
	spawnServerPlayer(r, 1)

	assert.False(t, ApplyIntent(r, 42, vec.Vec2Float{X: 1}))
}

func TestDrainIntents_LastWinsWithinBatch(t *testing.T) {
	r := entity.NewRegistry()
	id := spawnServerPlayer(r, 1)

	serializer, err := protocol.NewMessageSerializer()
	require.NoError(t, err)
	defer serializer.Close()

	makeIntent := func(sender uint64, dir vec.Vec2Float) *protocol.GameMsg {
		msg, err := protocol.NewGameMsg(protocol.MsgMovementIntent, sender, protocol.FlagUnsequenced, protocol.MovementIntent{Direction: dir})
		require.NoError(t, err)
		return msg
	}

	applied, dropped := DrainIntents(r, serializer, []*protocol.GameMsg{
		makeIntent(1, vec.Vec2Float{X: 1}),
		makeIntent(1, vec.Vec2Float{X: -1}),
		makeIntent(99, vec.Vec2Float{Y: 1}), // Неизвестный отправитель
	})

	assert.Equal(t, 2, applied)
	assert.Equal(t, 1, dropped)

	value, _ := r.Get(id, entity.KindMovementInput)
	assert.Equal(t, vec.Vec2Float{X: -1}, value.(entity.MovementInput).Direction)
}

func TestDrainIntents_NonIntentDropped(t *testing.T) {
	r := entity.NewRegistry()
	spawnServerPlayer(r, 1)

	serializer, err := protocol.NewMessageSerializer()
	require.NoError(t, err)
	defer serializer.Close()

	ping, err := protocol.NewGameMsg(protocol.MsgPing, 1, protocol.FlagUnsequenced, protocol.PingPayload{})
	require.NoError(t, err)

	applied, dropped := DrainIntents(r, serializer, []*protocol.GameMsg{ping})
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, dropped)
}

func BenchmarkStepMovement(b *testing.B) {
	r := entity.NewRegistry()
	for i := 0; i < 100; i++ {
		id := spawnServerPlayer(r, uint64(i+1))
		r.Set(id, entity.KindMovementInput, entity.MovementInput{Direction: vec.Vec2Float{X: 1}})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		StepMovement(r, 1.0/64.0, 100.0)
	}
}

func TestDisconnectCleanliness(t *testing.T) {
	r := entity.NewRegistry()
	id := spawnServerPlayer(r, 1)
	other := spawnServerPlayer(r, 2)

	serializer, err := protocol.NewMessageSerializer()
	require.NoError(t, err)
	defer serializer.Close()

	// Игрок отключился, его сущность удалена
	r.Despawn(id)

	// Поздний интент с освободившимся network_id молча дропается,
	// остальные игроки не затронуты
	msg, err := protocol.NewGameMsg(protocol.MsgMovementIntent, 1, protocol.FlagUnsequenced, protocol.MovementIntent{Direction: vec.Vec2Float{X: 1}})
	require.NoError(t, err)

	applied, dropped := DrainIntents(r, serializer, []*protocol.GameMsg{msg})
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, dropped)

	StepMovement(r, 1.0/64.0, 100.0)
	pos, _ := entity.PositionOf(r, other)
	assert.True(t, pos.IsZero())
}
