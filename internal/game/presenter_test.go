package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/vec"
)

func TestPresenter_LazyCreation(t *testing.T) {
	r := entity.NewRegistry()
	p := NewPresenter(r, 15.0)

	id := r.Spawn()
	r.Set(id, entity.KindPlayer, entity.Player{NetworkID: 1})
	r.Set(id, entity.KindPosition, vec.Vec2Float{X: 5, Y: 5})

	p.Update(1.0 / 60.0)

	visual, ok := p.Visual(id)
	require.True(t, ok)
	// Новое представление появляется сразу в актуальной позиции
	assert.Equal(t, vec.Vec2Float{X: 5, Y: 5}, visual.Displayed)
	assert.Equal(t, "red", visual.Color())
}

func TestPresenter_LocalSnapsRemoteSmooths(t *testing.T) {
	r := entity.NewRegistry()
	p := NewPresenter(r, 15.0)

	local := r.Spawn()
	r.Set(local, entity.KindPlayer, entity.Player{NetworkID: 1})
	r.Set(local, entity.KindPosition, vec.Vec2Float{})
	r.Set(local, entity.KindLocalPlayer, entity.LocalPlayer{})

	remote := r.Spawn()
	r.Set(remote, entity.KindPlayer, entity.Player{NetworkID: 2})
	r.Set(remote, entity.KindPosition, vec.Vec2Float{})

	p.Update(1.0 / 60.0)

	// Обе реплики телепортируются
	r.Set(local, entity.KindPosition, vec.Vec2Float{X: 10})
	r.Set(remote, entity.KindPosition, vec.Vec2Float{X: 10})
	p.Update(1.0 / 60.0)

	localVisual, _ := p.Visual(local)
	remoteVisual, _ := p.Visual(remote)

	// Локальный прыгает сразу, удалённый догоняет постепенно
	assert.Equal(t, 10.0, localVisual.Displayed.X)
	assert.Greater(t, remoteVisual.Displayed.X, 0.0)
	assert.Less(t, remoteVisual.Displayed.X, 10.0)
	assert.Equal(t, "green", localVisual.Color())
	assert.Equal(t, "red", remoteVisual.Color())

	// За достаточное число кадров удалённый сходится к цели
	for i := 0; i < 600; i++ {
		p.Update(1.0 / 60.0)
	}
	remoteVisual, _ = p.Visual(remote)
	assert.InDelta(t, 10.0, remoteVisual.Displayed.X, 0.01)
}

func TestPresenter_TeardownOnDespawn(t *testing.T) {
	r := entity.NewRegistry()
	p := NewPresenter(r, 15.0)

	id := r.Spawn()
	r.Set(id, entity.KindPlayer, entity.Player{NetworkID: 1})
	r.Set(id, entity.KindPosition, vec.Vec2Float{})

	p.Update(1.0 / 60.0)
	require.Equal(t, 1, p.Count())

	r.Despawn(id)
	p.Update(1.0 / 60.0)

	assert.Equal(t, 0, p.Count())
	_, ok := p.Visual(id)
	assert.False(t, ok)
}
