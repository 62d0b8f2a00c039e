package effect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Feed receives an effect-produced follow-up Action and hands it back
// to the store's dispatch loop.
type Feed func(ctx context.Context, a Action)

// Interpreter executes a single Effect against an Environment. It is
// capability-agnostic: retry, circuit breaking, and dead-lettering are
// applied per capability name, and all success/error translation into
// Actions is supplied by the effect itself.
//
// Interpreters are safe for concurrent use; a store runs many effects
// against one interpreter at a time.
type Interpreter struct {
	env     Environment
	retry   RetryPolicy
	breaker BreakerPolicy
	dlq     *DeadLetterQueue
	logger  *zap.Logger

	mu       sync.Mutex
	breakers map[string]*breaker
}

type InterpreterOption func(*Interpreter)

func WithRetryPolicy(p RetryPolicy) InterpreterOption {
	return func(in *Interpreter) { in.retry = p.normalized() }
}

func WithBreakerPolicy(p BreakerPolicy) InterpreterOption {
	return func(in *Interpreter) { in.breaker = p }
}

func WithLogger(logger *zap.Logger) InterpreterOption {
	return func(in *Interpreter) { in.logger = logger }
}

func NewInterpreter(env Environment, opts ...InterpreterOption) *Interpreter {
	in := &Interpreter{
		env:      env.Normalize(),
		retry:    DefaultRetryPolicy(),
		breaker:  DefaultBreakerPolicy(),
		dlq:      NewDeadLetterQueue(),
		logger:   zap.NewNop(),
		breakers: make(map[string]*breaker),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// DeadLetters exposes the queue of retry-exhausted capability effects.
func (in *Interpreter) DeadLetters() *DeadLetterQueue { return in.dlq }

// Run executes one Effect, feeding every follow-up Action it produces.
// The returned error aggregates EffectFailures for observability; a
// failed effect has already been fully handled (logged, dead-lettered,
// translated) by the time Run returns, so callers only log it.
func (in *Interpreter) Run(ctx context.Context, eff Effect, feed Feed) error {
	switch e := eff.(type) {
	case none:
		return nil

	case delayed:
		if err := in.env.Clock.Sleep(ctx, e.after); err != nil {
			return err
		}
		feed(ctx, e.action)
		return nil

	case async:
		a, err := e.fn(ctx)
		if err != nil {
			in.logger.Warn("async effect failed", zap.Error(err))
			return err
		}
		if a != nil {
			feed(ctx, a)
		}
		return nil

	case parallel:
		var wg sync.WaitGroup
		errs := make([]error, len(e.effects))
		for i, sub := range e.effects {
			wg.Add(1)
			go func(i int, sub Effect) {
				defer wg.Done()
				errs[i] = in.Run(ctx, sub, feed)
			}(i, sub)
		}
		wg.Wait()
		return multierr.Combine(errs...)

	case sequential:
		var err error
		for _, sub := range e.effects {
			err = multierr.Append(err, in.Run(ctx, sub, feed))
		}
		return err

	case capability:
		return in.runCapability(ctx, e, feed)

	default:
		// Effect is a sealed interface, so this is a bug in the code.
		panic(fmt.Sprintf("unrecognized effect variant: %T", eff))
	}
}

// Replay re-executes dead-letter entries, typically obtained from
// DeadLetters().Drain(). Entries that fail again re-enter the queue.
func (in *Interpreter) Replay(ctx context.Context, entries []DeadLetterEntry, feed Feed) error {
	var err error
	for _, e := range entries {
		if e.Effect == nil {
			continue
		}
		err = multierr.Append(err, in.Run(ctx, e.Effect, feed))
	}
	return err
}

func (in *Interpreter) runCapability(ctx context.Context, c capability, feed Feed) error {
	br := in.breakerFor(c.name)

	attempts := 0
	operation := func() (any, error) {
		if !in.admit(br) {
			return nil, backoff.Permanent(ErrCircuitOpen)
		}
		attempts++
		res, err := c.call(ctx, in.env)
		in.report(br, err)
		return res, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(in.retry.backOff()),
		backoff.WithMaxTries(uint(in.retry.MaxAttempts)),
	)

	switch {
	case err == nil:
		if c.onSuccess != nil {
			if a := c.onSuccess(res); a != nil {
				feed(ctx, a)
			}
		}
		return nil

	case errors.Is(err, ErrCircuitOpen):
		in.logger.Debug("capability short-circuited",
			zap.String("capability", c.name))
		if c.onError != nil {
			feed(ctx, c.onError(ErrCircuitOpen))
		}
		return err

	default:
		in.logger.Warn("capability retries exhausted",
			zap.String("capability", c.name),
			zap.Int("attempts", attempts),
			zap.Error(err))
		in.dlq.Append(DeadLetterEntry{
			Description: c.String(),
			Capability:  c.name,
			Err:         err,
			Attempts:    attempts,
			Recorded:    Now(),
			Effect:      c,
		})
		if c.onError != nil {
			feed(ctx, c.onError(err))
		}
		return err
	}
}

func (in *Interpreter) breakerFor(name string) *breaker {
	in.mu.Lock()
	defer in.mu.Unlock()
	br, ok := in.breakers[name]
	if !ok {
		br = newBreaker(in.breaker, in.env.Clock)
		in.breakers[name] = br
	}
	return br
}

func (in *Interpreter) admit(br *breaker) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return br.allow()
}

func (in *Interpreter) report(br *breaker, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if err != nil {
		br.failure()
	} else {
		br.success()
	}
}
