package autoscale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/pkg/config"
)

func testConfig() config.AutoscaleConfig {
	return config.AutoscaleConfig{
		Min:             1,
		Max:             4,
		UpperRPS:        500,
		LowerRPS:        50,
		UpperP95:        500 * time.Millisecond,
		LowerP95:        100 * time.Millisecond,
		Interval:        10 * time.Second,
		SustainDuration: 30 * time.Second,
		CoolDown:        2 * time.Minute,
	}
}

func newController(workers int) (*Controller, *int) {
	count := workers
	c := New(testConfig(), nil, func() int { return count }, nil)
	return c, &count
}

func TestScaleOutRequiresSustainedLoad(t *testing.T) {
	c, _ := newController(2)
	now := time.Now()
	hot := Sample{RPS: 600, P95: 200 * time.Millisecond}

	// First breach only starts the clock
	assert.Nil(t, c.evaluate(now, hot))
	// Still inside the sustain window
	assert.Nil(t, c.evaluate(now.Add(10*time.Second), hot))

	intent := c.evaluate(now.Add(31*time.Second), hot)
	require.NotNil(t, intent)
	assert.Equal(t, DirectionOut, intent.Direction)
	assert.Equal(t, 1, intent.Delta)
}

func TestLatencyAloneTriggersScaleOut(t *testing.T) {
	c, _ := newController(2)
	now := time.Now()
	slow := Sample{RPS: 100, P95: 900 * time.Millisecond}

	assert.Nil(t, c.evaluate(now, slow))
	intent := c.evaluate(now.Add(31*time.Second), slow)
	require.NotNil(t, intent)
	assert.Equal(t, DirectionOut, intent.Direction)
}

func TestRecoveryResetsSustainClock(t *testing.T) {
	c, _ := newController(2)
	now := time.Now()
	hot := Sample{RPS: 600, P95: 200 * time.Millisecond}
	calm := Sample{RPS: 200, P95: 200 * time.Millisecond}

	assert.Nil(t, c.evaluate(now, hot))
	assert.Nil(t, c.evaluate(now.Add(20*time.Second), calm))
	// Breach clock restarted: this is a fresh first breach
	assert.Nil(t, c.evaluate(now.Add(31*time.Second), hot))
	assert.Nil(t, c.evaluate(now.Add(40*time.Second), hot))
}

func TestScaleOutClampedAtMax(t *testing.T) {
	c, _ := newController(4)
	now := time.Now()
	hot := Sample{RPS: 600, P95: 200 * time.Millisecond}

	assert.Nil(t, c.evaluate(now, hot))
	assert.Nil(t, c.evaluate(now.Add(31*time.Second), hot))
}

func TestScaleInRequiresBothUnderForCoolDown(t *testing.T) {
	c, _ := newController(3)
	now := time.Now()
	idle := Sample{RPS: 10, P95: 20 * time.Millisecond}

	assert.Nil(t, c.evaluate(now, idle))
	assert.Nil(t, c.evaluate(now.Add(time.Minute), idle))

	intent := c.evaluate(now.Add(2*time.Minute+time.Second), idle)
	require.NotNil(t, intent)
	assert.Equal(t, DirectionIn, intent.Direction)
	assert.Equal(t, -1, intent.Delta)
}

func TestScaleInNeedsBothThresholds(t *testing.T) {
	c, _ := newController(3)
	now := time.Now()
	// RPS is low but latency is not
	mixed := Sample{RPS: 10, P95: 200 * time.Millisecond}

	assert.Nil(t, c.evaluate(now, mixed))
	assert.Nil(t, c.evaluate(now.Add(3*time.Minute), mixed))
}

func TestScaleInClampedAtMin(t *testing.T) {
	c, _ := newController(1)
	now := time.Now()
	idle := Sample{RPS: 10, P95: 20 * time.Millisecond}

	assert.Nil(t, c.evaluate(now, idle))
	assert.Nil(t, c.evaluate(now.Add(3*time.Minute), idle))
}
