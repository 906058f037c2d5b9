package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi, math.Pi},
		{0.1, 0.1},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, Wrap(c.in), 1e-12, "Wrap(%v)", c.in)
	}
}

func TestMat3Det(t *testing.T) {
	assert.InDelta(t, 1.0, Identity3().Det(), 1e-12)
	assert.InDelta(t, 6.0, Diag(Vec3{1, 2, 3}).Det(), 1e-12)

	singular := Mat3{{1, 2, 3}, {2, 4, 6}, {0, 1, 0}}
	assert.InDelta(t, 0.0, singular.Det(), 1e-12)
}

func TestMat3MulVecAndTranspose(t *testing.T) {
	m := Mat3{{0, 1, 0}, {-1, 0, 0}, {0, 0, 1}}
	got := m.MulVec(Vec3{1, 2, 3})
	assert.Equal(t, Vec3{2, -1, 3}, got)
	assert.Equal(t, Vec3{1, 2, 3}, m.Transpose().MulVec(got))
}

func TestVec3Unit(t *testing.T) {
	u, err := Vec3{3, 0, 4}.Unit()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, u.Norm(), 1e-12)

	_, err = Vec3{}.Unit()
	assert.Error(t, err)
}

func TestVec3IsFinite(t *testing.T) {
	assert.True(t, Vec3{1, 2, 3}.IsFinite())
	assert.False(t, Vec3{math.NaN(), 0, 0}.IsFinite())
	assert.False(t, Vec3{0, math.Inf(-1), 0}.IsFinite())
}
