package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationExpiry_WindowSubtracted(t *testing.T) {
	now := epoch0
	planner := ExpiryPlanner{MinMessageWindow: time.Second, MaxHoldTime: time.Minute}
	exp, err := planner.DestinationExpiry(now, now.Add(30*time.Second), true)
	require.NoError(t, err)
	assert.Equal(t, now.Add(29*time.Second), exp)
}

func TestDestinationExpiry_MaxHoldCaps(t *testing.T) {
	now := epoch0
	planner := ExpiryPlanner{MinMessageWindow: time.Second, MaxHoldTime: 10 * time.Second}
	exp, err := planner.DestinationExpiry(now, now.Add(30*time.Second), true)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Second), exp)
}

func TestDestinationExpiry_Internal(t *testing.T) {
	now := epoch0
	src := now.Add(time.Millisecond)
	exp, err := ComputeDestinationExpiry(now, src, false, time.Second, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, src, exp)
}

func TestDestinationExpiry_AlreadyExpired(t *testing.T) {
	now := epoch0
	_, err := ComputeDestinationExpiry(now, now, true, time.Second, time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyExpired)
	_, err = ComputeDestinationExpiry(now, now.Add(-time.Second), true, time.Second, time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyExpired)
}

func TestDestinationExpiry_InsufficientTimeout(t *testing.T) {
	now := epoch0
	// candidate is src - 1s = now + 1s, leaving exactly one window: not enough
	_, err := ComputeDestinationExpiry(now, now.Add(2*time.Second), true, time.Second, time.Minute)
	assert.ErrorIs(t, err, ErrInsufficientTimeout)

	exp, err := ComputeDestinationExpiry(now, now.Add(2*time.Second+time.Millisecond), true, time.Second, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Second+time.Millisecond), exp)
}

func TestDestinationExpiry_Monotonic(t *testing.T) {
	now := epoch0
	for _, d := range []time.Duration{3 * time.Second, 10 * time.Second, 29 * time.Second, time.Hour} {
		src := now.Add(d)
		exp, err := ComputeDestinationExpiry(now, src, true, time.Second, 30*time.Second)
		require.NoError(t, err)
		assert.True(t, exp.Before(src), "outgoing expiry must precede the incoming one")
		assert.True(t, exp.After(now.Add(time.Second)))
	}
}
