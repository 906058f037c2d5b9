package app

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asesyuk/icm20948-ekf/internal/calibration"
	"github.com/asesyuk/icm20948-ekf/internal/ekf"
	"github.com/asesyuk/icm20948-ekf/internal/frame"
	"github.com/asesyuk/icm20948-ekf/internal/fusion"
	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/gps"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
	"github.com/asesyuk/icm20948-ekf/internal/sensors"
)

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{topic, payload})
	return nil
}

// steppedSource replays the simulator at a fixed rate.
type steppedSource struct {
	sim  *sensors.SimSource
	base time.Time
	dt   float64
	n    int
	err  error
	// zeroAccel makes every sample unusable for seeding.
	zeroAccel bool
}

func (s *steppedSource) Next(ctx context.Context) (imu.Sample, error) {
	if s.err != nil {
		return imu.Sample{}, s.err
	}
	at := float64(s.n) * s.dt
	s.n++
	sample := s.sim.SampleAt(at)
	sample.Time = s.base.Add(time.Duration(math.Round(at * float64(time.Second))))
	if s.zeroAccel {
		sample.Accel = geom.Vec3{}
	}
	return sample, nil
}

func (s *steppedSource) Close() error { return nil }

func newTestProducer(t *testing.T, src imu.Source, pub Publisher) *AttitudeProducer {
	t.Helper()
	tr := frame.DefaultICM20948()
	f, err := ekf.New(ekf.DefaultConfig())
	require.NoError(t, err)
	pipe, err := fusion.New(calibration.IdentitySet(), tr, f, fusion.Options{NominalDt: 0.05})
	require.NoError(t, err)
	return NewAttitudeProducer(src, pipe, pub, "test/attitude", time.Second)
}

func newSteppedSource() *steppedSource {
	return &steppedSource{
		sim:  sensors.NewSimSource(frame.DefaultICM20948(), sensors.DefaultSimOptions()),
		base: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		dt:   0.05,
	}
}

func TestProducerPublishesEstimates(t *testing.T) {
	src := newSteppedSource()
	pub := &fakePublisher{}
	p := newTestProducer(t, src, pub)

	ticks := make(chan time.Time, 40)
	now := time.Now()
	for i := 0; i < 40; i++ {
		ticks <- now.Add(time.Duration(i) * 50 * time.Millisecond)
	}
	close(ticks)
	require.NoError(t, p.Run(context.Background(), ticks))

	require.Len(t, pub.msgs, 40)
	last := pub.msgs[len(pub.msgs)-1]
	assert.Equal(t, "test/attitude", last.topic)

	var est ekf.Estimate
	require.NoError(t, json.Unmarshal(last.payload, &est))
	truth := src.sim.Pose(39 * 0.05)
	assert.InDelta(t, truth.Roll, est.Roll, 3)
	assert.InDelta(t, truth.Pitch, est.Pitch, 3)
	assert.Equal(t, src.base.Add(1950*time.Millisecond), est.Time.UTC())
	assert.Equal(t, uint64(40), p.pipe.Stats().Cycles)
}

func TestProducerErrors(t *testing.T) {
	busErr := errors.New("bus error")
	src := newSteppedSource()
	src.err = busErr
	p := newTestProducer(t, src, &fakePublisher{})
	assert.ErrorIs(t, p.Tick(context.Background(), time.Now()), busErr)

	pubErr := errors.New("broker down")
	p = newTestProducer(t, newSteppedSource(), &fakePublisher{err: pubErr})
	err := p.Tick(context.Background(), time.Now())
	assert.ErrorIs(t, err, pubErr)
	assert.True(t, strings.Contains(err.Error(), "attitude"))
}

func TestProducerWaitsForSeed(t *testing.T) {
	src := newSteppedSource()
	src.zeroAccel = true
	pub := &fakePublisher{}
	p := newTestProducer(t, src, pub)

	require.NoError(t, p.Tick(context.Background(), time.Now()))
	assert.Empty(t, pub.msgs)
	assert.Equal(t, uint64(1), p.pipe.Stats().Errors)
}

func TestProducerStopsOnCancel(t *testing.T) {
	p := newTestProducer(t, newSteppedSource(), &fakePublisher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Run(ctx, make(chan time.Time)), context.Canceled)
}

func TestPublishFix(t *testing.T) {
	pub := &fakePublisher{}
	publishFix(pub, "test/gps")(gps.Fix{Validity: "A", Declination: 2.5, HasDeclination: true})
	require.Len(t, pub.msgs, 1)

	var f gps.Fix
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &f))
	assert.Equal(t, 2.5, f.Declination)
	assert.True(t, f.HasDeclination)
}

func TestFormatEstimate(t *testing.T) {
	line := formatEstimate(ekf.Estimate{MagSkipped: true, Flipped: true})
	assert.Contains(t, line, "ROLL=")
	assert.Contains(t, line, " M")
	assert.Contains(t, line, "FLIP")
	assert.NotContains(t, line, "DIVERGED")

	assert.Contains(t, formatFix(gps.Fix{}), "decl=n/a")
	assert.Contains(t, formatFix(gps.Fix{HasDeclination: true, Declination: -3}), "decl=-3.0°")
}
