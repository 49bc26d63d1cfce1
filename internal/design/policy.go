package design

import (
	"math"
	"math/rand"
	"time"
)

// AttemptState is threaded through the attempts of one logical call.
// The zero value is the start state.
type AttemptState struct {
	RetryCount    int
	UsingFallback bool
}

func (s AttemptState) Tier() Tier {
	if s.UsingFallback {
		return TierFallback
	}
	return TierPrimary
}

func (s AttemptState) first() bool {
	return s.RetryCount == 0 && !s.UsingFallback
}

type Action int

const (
	// ActionPropagate returns the raw provider error to the caller.
	ActionPropagate Action = iota
	ActionRetry
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFail:
		return "fail"
	default:
		return "propagate"
	}
}

// Decision is what a Policy wants done after a failed attempt.
type Decision struct {
	Action Action

	// Retry
	Next  AttemptState
	Delay time.Duration

	// Fail
	Kind             Kind
	SignalCredential bool
}

func retry(next AttemptState, delay time.Duration) Decision {
	return Decision{Action: ActionRetry, Next: next, Delay: delay}
}

func fail(kind Kind, signal bool) Decision {
	return Decision{Action: ActionFail, Kind: kind, SignalCredential: signal}
}

// Policy decides the next step from the current attempt state and the
// classification of the failure that ended it.
type Policy interface {
	Decide(state AttemptState, c Classification) Decision
}

// GeneratePolicy backs off on the primary tier, downgrades to the fallback
// tier once, then backs off there until its attempt budget runs out.
type GeneratePolicy struct {
	PrimaryRetries int
	PrimaryBase    time.Duration
	PrimaryGrowth  float64
	PrimaryJitter  time.Duration

	SwitchPause time.Duration

	FallbackAttempts int
	FallbackBase     time.Duration
	FallbackGrowth   float64
	FallbackOffset   time.Duration

	// Rand returns a value in [0,1). Defaults to math/rand.
	Rand func() float64
}

func DefaultGeneratePolicy() *GeneratePolicy {
	return &GeneratePolicy{
		PrimaryRetries:   3,
		PrimaryBase:      4000 * time.Millisecond,
		PrimaryGrowth:    1.6,
		PrimaryJitter:    2000 * time.Millisecond,
		SwitchPause:      2000 * time.Millisecond,
		FallbackAttempts: 8,
		FallbackBase:     5000 * time.Millisecond,
		FallbackGrowth:   1.5,
		FallbackOffset:   1000 * time.Millisecond,
	}
}

func (p *GeneratePolicy) Decide(state AttemptState, c Classification) Decision {
	if c.PermissionDenied && state.first() {
		return fail(KindInvalidCredential, true)
	}

	if c.Overload {
		switch {
		case !state.UsingFallback && state.RetryCount < p.PrimaryRetries:
			return retry(AttemptState{RetryCount: state.RetryCount + 1}, p.primaryDelay(state.RetryCount))
		case !state.UsingFallback:
			return retry(AttemptState{RetryCount: 0, UsingFallback: true}, p.SwitchPause)
		case state.RetryCount+1 < p.FallbackAttempts:
			return retry(AttemptState{RetryCount: state.RetryCount + 1, UsingFallback: true}, p.fallbackDelay(state.RetryCount))
		}
	}

	if c.PermissionDenied {
		return fail(KindInsufficientPrivilege, false)
	}
	if c.Overload {
		return fail(KindServiceOverloaded, false)
	}
	return Decision{Action: ActionPropagate}
}

// primaryDelay is base × growth^n plus uniform jitter.
func (p *GeneratePolicy) primaryDelay(n int) time.Duration {
	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	d := float64(p.PrimaryBase)*math.Pow(p.PrimaryGrowth, float64(n)) + random()*float64(p.PrimaryJitter)
	return time.Duration(d)
}

// fallbackDelay is base × growth^(n-3) plus a fixed offset.
func (p *GeneratePolicy) fallbackDelay(n int) time.Duration {
	d := float64(p.FallbackBase)*math.Pow(p.FallbackGrowth, float64(n-3)) + float64(p.FallbackOffset)
	return time.Duration(d)
}

// EditPolicy retries overloads on the same tier with a fixed delay.
type EditPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultEditPolicy() *EditPolicy {
	return &EditPolicy{
		MaxAttempts: 5,
		Delay:       4000 * time.Millisecond,
	}
}

func (p *EditPolicy) Decide(state AttemptState, c Classification) Decision {
	if c.PermissionDenied && state.first() {
		return fail(KindInvalidCredential, true)
	}
	if c.Overload && state.RetryCount+1 < p.MaxAttempts {
		return retry(AttemptState{RetryCount: state.RetryCount + 1, UsingFallback: state.UsingFallback}, p.Delay)
	}
	if c.PermissionDenied {
		return fail(KindInsufficientPrivilege, false)
	}
	if c.Overload {
		return fail(KindServiceOverloaded, false)
	}
	return Decision{Action: ActionPropagate}
}
