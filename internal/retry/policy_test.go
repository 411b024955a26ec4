package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/repocache/internal/config"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

func TestDefaultPolicyMatchesQueueDefaults(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, config.RetryBackoffLinear, p.Mode)
	assert.Equal(t, config.DefaultRetryInitialDelay, p.Initial)
	assert.Equal(t, config.DefaultRetryMaxDelay, p.Max)
	assert.Equal(t, config.DefaultMaxRetries, p.MaxRetries)
	assert.Equal(t, config.DefaultMaxRetries+1, p.Deliveries())
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name string
		got  Policy
		want Policy
	}{
		{
			name: "initial clamped to max",
			got:  NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5),
			want: Policy{Mode: config.RetryBackoffFixed, Initial: 2 * time.Second, Max: 2 * time.Second, MaxRetries: 5},
		},
		{
			name: "unknown mode keeps linear",
			got:  NewPolicy("weird", 250*time.Millisecond, 500*time.Millisecond, 1),
			want: Policy{Mode: config.RetryBackoffLinear, Initial: 250 * time.Millisecond, Max: 500 * time.Millisecond, MaxRetries: 1},
		},
		{
			name: "mixed case mode and zero retries",
			got:  NewPolicy("EXPONENTIAL", time.Second, time.Minute, 0),
			want: Policy{Mode: config.RetryBackoffExponential, Initial: time.Second, Max: time.Minute, MaxRetries: 0},
		},
		{
			name: "negative retries keep default",
			got:  NewPolicy("", 0, 0, -1),
			want: DefaultPolicy(),
		},
		{
			name: "queue section",
			got: FromQueueConfig(config.QueueConfig{
				MaxRetries:        7,
				RetryBackoff:      config.RetryBackoffExponential,
				RetryInitialDelay: 100 * time.Millisecond,
				RetryMaxDelay:     time.Second,
			}),
			want: Policy{Mode: config.RetryBackoffExponential, Initial: 100 * time.Millisecond, Max: time.Second, MaxRetries: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestDelay(t *testing.T) {
	ms := time.Millisecond
	fixed := NewPolicy(config.RetryBackoffFixed, 100*ms, 500*ms, 3)
	linear := NewPolicy(config.RetryBackoffLinear, 100*ms, 250*ms, 5)
	exp := NewPolicy(config.RetryBackoffExponential, 50*ms, 160*ms, 5)

	tests := []struct {
		name   string
		policy Policy
		n      int
		want   time.Duration
	}{
		{"fixed first", fixed, 1, 100 * ms},
		{"fixed third", fixed, 3, 100 * ms},
		{"linear first", linear, 1, 100 * ms},
		{"linear second", linear, 2, 200 * ms},
		{"linear capped", linear, 3, 250 * ms},
		{"exp first", exp, 1, 50 * ms},
		{"exp second", exp, 2, 100 * ms},
		{"exp capped", exp, 3, 160 * ms},
		{"exp overflow guarded", exp, 40, 160 * ms},
		{"zero attempt", linear, 0, 0},
		{"negative attempt", linear, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.n))
		})
	}
}

func TestShouldRetry(t *testing.T) {
	p := NewPolicy(config.RetryBackoffLinear, time.Millisecond, time.Second, 2)
	plain := errors.New("connection reset by peer")

	assert.True(t, p.ShouldRetry(plain, 0))
	assert.True(t, p.ShouldRetry(plain, 1))
	assert.False(t, p.ShouldRetry(plain, 2), "budget exhausted")
	assert.False(t, p.ShouldRetry(nil, 0))
	assert.False(t, p.ShouldRetry(ferrors.ValidationError("bad payload").Build(), 0))
	assert.True(t, p.ShouldRetry(ferrors.FileSystemError("disk busy").Build(), 0))
}
