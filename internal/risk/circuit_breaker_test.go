package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsAfterConsecutiveErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 3})

	assert.False(t, cb.OnError())
	assert.False(t, cb.OnError())
	cb.OnSuccess()
	assert.Equal(t, int64(0), cb.ConsecutiveErrors())

	assert.False(t, cb.OnError())
	assert.False(t, cb.OnError())
	assert.True(t, cb.OnError(), "third consecutive error trips")
	assert.False(t, cb.OnError(), "already open")
	assert.True(t, cb.Halted())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)
	assert.Equal(t, int64(1), cb.Trips())

	cb.Resume()
	assert.NoError(t, cb.Allow())
	assert.Equal(t, int64(0), cb.ConsecutiveErrors())
}

func TestCircuitBreaker_CooldownResumes(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 1, Cooldown: time.Minute})
	cb.now = func() time.Time { return now }

	assert.True(t, cb.OnError())
	assert.Error(t, cb.Allow())

	now = now.Add(59 * time.Second)
	assert.Error(t, cb.Allow())

	now = now.Add(time.Second)
	assert.NoError(t, cb.Allow())
	assert.False(t, cb.Halted())
}

func TestCircuitBreaker_DisabledAndNil(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < 10; i++ {
		assert.False(t, cb.OnError())
	}
	assert.NoError(t, cb.Allow())

	var none *CircuitBreaker
	assert.False(t, none.OnError())
	assert.NoError(t, none.Allow())
	assert.False(t, none.Halted())
	none.Halt()
	none.Resume()
}
