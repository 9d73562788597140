package radio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/types"
)

func newRadio(t *testing.T, mutate func(*config.Config)) *Radio {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	r, err := New(cfg, []float64{cfg.Drone.CommunicationRange, cfg.Depot.CommunicationRange}, nil)
	require.NoError(t, err)
	return r
}

func hello(src types.Addr) *types.Hello {
	return &types.Hello{Header: types.NewHeader(src, types.BroadcastAddr, 0, 1)}
}

func TestNewRejectsUnknownModel(t *testing.T) {
	cfg := config.Default()
	cfg.Channel.ErrorModel = "rayleigh"
	_, err := New(cfg, nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestGaussianFirstBucketIsOne(t *testing.T) {
	for _, rng := range []float64{1, 50, 333.3, 400, 1250} {
		probs := GaussianBuckets(rng)
		require.NotEmpty(t, probs)
		assert.Equal(t, 1.0, probs[0], "range %v", rng)
		for i := 1; i < len(probs); i++ {
			assert.Less(t, probs[i], probs[i-1], "buckets decay with distance")
		}
	}
}

func TestGaussianProbabilityScaledAndClamped(t *testing.T) {
	r := newRadio(t, func(c *config.Config) {
		c.Channel.ErrorModel = config.ErrorModelGaussian
		c.Channel.GaussianScale = 0.6
	})

	assert.InDelta(t, 0.6, r.SuccessProbability(0, 400), 1e-12)
	last := r.SuccessProbability(399, 400)
	assert.Less(t, last, 0.6)
	assert.Equal(t, last, r.SuccessProbability(10000, 400))
}

func TestListenFiltersByRangeAndAddress(t *testing.T) {
	r := newRadio(t, nil)

	r.Send(hello(2), geometry.Point{X: 0, Y: 0}, 100, 0)
	unicast := &types.Data{Header: types.NewHeader(2, 1, 0, 64)}
	unicast.DstRelay = 3
	r.Send(unicast, geometry.Point{X: 0, Y: 0}, 100, 0)

	// nothing is audible in the step it was sent
	assert.Empty(t, r.Listen(3, geometry.Point{X: 50, Y: 0}, 400, 0))

	got := r.Listen(3, geometry.Point{X: 50, Y: 0}, 400, 1)
	assert.Len(t, got, 2)

	got = r.Listen(4, geometry.Point{X: 50, Y: 0}, 400, 1)
	assert.Len(t, got, 1, "unicast for 3 is not heard by 4")

	// sender range is the limiting one
	assert.Empty(t, r.Listen(3, geometry.Point{X: 150, Y: 0}, 400, 1))

	// transmitters do not hear themselves
	assert.Empty(t, r.Listen(2, geometry.Point{X: 0, Y: 0}, 400, 1))
}

func TestListenReturnsCopies(t *testing.T) {
	r := newRadio(t, nil)
	r.Send(hello(2), geometry.Point{}, 100, 0)

	a := r.Listen(3, geometry.Point{}, 100, 1)
	b := r.Listen(4, geometry.Point{}, 100, 1)
	require.Len(t, a, 1)
	require.Len(t, b, 1)

	a[0].Head().TTL = 0
	assert.Equal(t, 1, b[0].Head().TTL)
	assert.Equal(t, 1, r.Staged()[0].Head().TTL)
}

func TestClearDiscardsDelivered(t *testing.T) {
	r := newRadio(t, nil)
	r.Send(hello(2), geometry.Point{}, 100, 0)
	r.Clear(1)
	assert.Empty(t, r.Staged())
	assert.Empty(t, r.Listen(3, geometry.Point{}, 100, 1))
}

func TestUniformZeroNeverDelivers(t *testing.T) {
	r := newRadio(t, func(c *config.Config) {
		c.Channel.ErrorModel = config.ErrorModelUniform
		c.Channel.SuccessProbability = 0
	})
	for step := 0; step < 1000; step++ {
		r.Send(hello(2), geometry.Point{}, 100, step)
		assert.Empty(t, r.Listen(3, geometry.Point{}, 100, step+1))
		r.Clear(step + 1)
	}
}

func TestUniformOneAlwaysDelivers(t *testing.T) {
	r := newRadio(t, func(c *config.Config) {
		c.Channel.ErrorModel = config.ErrorModelUniform
		c.Channel.SuccessProbability = 1
	})
	for step := 0; step < 100; step++ {
		r.Send(hello(2), geometry.Point{}, 100, step)
		assert.Len(t, r.Listen(3, geometry.Point{}, 100, step+1), 1)
		r.Clear(step + 1)
	}
}

func TestClearKeepsPendingTransmissions(t *testing.T) {
	r := newRadio(t, func(c *config.Config) { c.Routing.DeliveryDelay = 3 })
	r.Send(hello(2), geometry.Point{}, 100, 0)

	r.Clear(1)
	require.Len(t, r.Staged(), 1)
	assert.Empty(t, r.Listen(3, geometry.Point{}, 100, 2))
	assert.Len(t, r.Listen(3, geometry.Point{}, 100, 3), 1)
	r.Clear(3)
	assert.Empty(t, r.Staged())
}
