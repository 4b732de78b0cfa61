package vec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec2Float_Arithmetic(t *testing.T) {
	a := Vec2Float{X: 1, Y: 2}
	b := Vec2Float{X: 3, Y: -1}

	assert.Equal(t, Vec2Float{X: 4, Y: 1}, a.Add(b))
	assert.Equal(t, Vec2Float{X: -2, Y: 3}, a.Sub(b))
	assert.Equal(t, Vec2Float{X: 2, Y: 4}, a.Mul(2))
}

func TestVec2Float_Normalized(t *testing.T) {
	v := Vec2Float{X: 3, Y: 4}
	n := v.Normalized()

	assert.InDelta(t, 1.0, n.Length(), 1e-9)
	assert.InDelta(t, 0.6, n.X, 1e-9)
	assert.InDelta(t, 0.8, n.Y, 1e-9)

	// Нулевой вектор нормализуется в нулевой, без NaN
	zero := Vec2Float{}.Normalized()
	assert.True(t, zero.IsZero())
	assert.False(t, math.IsNaN(zero.X))
}

func TestVec2Float_Lerp(t *testing.T) {
	from := Vec2Float{X: 0, Y: 0}
	to := Vec2Float{X: 10, Y: -10}

	assert.Equal(t, from, from.Lerp(to, 0))
	assert.Equal(t, to, from.Lerp(to, 1))
	assert.Equal(t, Vec2Float{X: 5, Y: -5}, from.Lerp(to, 0.5))

	// Коэффициент за пределами [0,1] зажимается
	assert.Equal(t, from, from.Lerp(to, -1))
	assert.Equal(t, to, from.Lerp(to, 2))
}

func TestVec2Float_DistanceTo(t *testing.T) {
	a := Vec2Float{X: 1, Y: 1}
	b := Vec2Float{X: 4, Y: 5}
	assert.InDelta(t, 5.0, a.DistanceTo(b), 1e-9)
}
