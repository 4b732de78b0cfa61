package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/movesync/internal/vec"
)

func TestRegistry_SpawnDespawn(t *testing.T) {
	r := NewRegistry()

	id := r.Spawn()
	assert.True(t, r.Exists(id))
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.Despawn(id))
	assert.False(t, r.Exists(id))
	assert.Equal(t, 0, r.Count())

	// Повторный despawn — no-op
	assert.False(t, r.Despawn(id))
}

func TestRegistry_Components(t *testing.T) {
	r := NewRegistry()
	id := r.Spawn()

	assert.True(t, r.Set(id, KindPosition, vec.Vec2Float{X: 1, Y: 2}))
	pos, ok := PositionOf(r, id)
	require.True(t, ok)
	assert.Equal(t, vec.Vec2Float{X: 1, Y: 2}, pos)

	// Set перезаписывает существующее значение
	r.Set(id, KindPosition, vec.Vec2Float{X: 5, Y: 5})
	pos, _ = PositionOf(r, id)
	assert.Equal(t, vec.Vec2Float{X: 5, Y: 5}, pos)

	r.Remove(id, KindPosition)
	assert.False(t, r.Has(id, KindPosition))

	// Компонент несуществующей сущности не устанавливается
	assert.False(t, r.Set(ID(999), KindPosition, vec.Vec2Float{}))
}

func TestRegistry_EachAllowsMutation(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		id := r.Spawn()
		r.Set(id, KindPlayer, Player{NetworkID: uint64(i + 1)})
	}

	// fn может despawn'ить прямо во время итерации
	r.Each(KindPlayer, func(id ID, _ interface{}) {
		r.Despawn(id)
	})
	assert.Equal(t, 0, r.Count())
}

func TestFindByNetworkID(t *testing.T) {
	r := NewRegistry()

	a := r.Spawn()
	r.Set(a, KindPlayer, Player{NetworkID: 7})
	b := r.Spawn()
	r.Set(b, KindPlayer, Player{NetworkID: 8})

	id, ok := FindByNetworkID(r, 8)
	require.True(t, ok)
	assert.Equal(t, b, id)

	_, ok = FindByNetworkID(r, 99)
	assert.False(t, ok)
}
