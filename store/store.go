package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/on-the-ground/restor_ive_go/effect"
	"github.com/on-the-ground/restor_ive_go/internal/broadcast"
	"github.com/on-the-ground/restor_ive_go/reducer"
)

var (
	// ErrClosed is returned once Close has begun; no further dispatches
	// are accepted.
	ErrClosed = errors.New("store: closed")
	// ErrReducerDefect marks a reducer panic. The store is poisoned:
	// the defect is returned for the offending dispatch and every one
	// after it, rather than continuing with undefined state.
	ErrReducerDefect = errors.New("store: reducer defect")
	// ErrFeedbackDepth is returned when recursive effect feedback
	// exceeds the configured bound.
	ErrFeedbackDepth = errors.New("store: max feedback depth exceeded")
	// ErrWaitTimeout means no matching Action was observed in time. The
	// initiating dispatch has still run; nothing is rolled back.
	ErrWaitTimeout = errors.New("store: wait timed out")
)

// Store owns one State value exclusively. It serializes reducer
// invocations, turns returned effects into async work, feeds
// effect-produced Actions back into itself, and broadcasts them to
// subscribers.
type Store[S any] struct {
	id     string
	reduce reducer.Func[S]
	env    effect.Environment
	interp *effect.Interpreter
	bus    *broadcast.Bus[effect.Action]
	cfg    Config
	logger *zap.Logger

	// baseCtx governs effect execution; Close cancels it once the
	// drain grace period expires.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	state    S
	closed   bool
	defect   error
	inflight sync.WaitGroup
}

type Option func(*options)

type options struct {
	cfg    Config
	logger *zap.Logger
}

func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg.normalized() }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a store around an initial state, a reducer, and an
// environment. The store lives for the process's operational lifetime;
// use Close for graceful shutdown.
func New[S any](initial S, r reducer.Func[S], env effect.Environment, opts ...Option) *Store[S] {
	o := &options{cfg: DefaultConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	env = env.Normalize()
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Store[S]{
		id:     uuid.NewString(),
		state:  initial,
		reduce: r,
		env:    env,
		interp: effect.NewInterpreter(env,
			effect.WithRetryPolicy(o.cfg.Retry),
			effect.WithBreakerPolicy(o.cfg.Breaker),
			effect.WithLogger(o.logger),
		),
		bus:     broadcast.New[effect.Action](o.cfg.BroadcastCapacity),
		cfg:     o.cfg,
		logger:  o.logger,
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	s.logger.Debug("store created", zap.String("storeId", s.id))
	return s
}

// Dispatch runs the reducer on the action inside the exclusive critical
// section, then executes the returned effects concurrently outside it.
// Effect-produced follow-up Actions are broadcast and recursively
// dispatched. Dispatch returns once the state mutation is complete; it
// does not wait for effects.
func (s *Store[S]) Dispatch(ctx context.Context, a effect.Action) error {
	return s.dispatch(ctx, a, 0)
}

func (s *Store[S]) dispatch(ctx context.Context, a effect.Action, depth int) error {
	if depth > s.cfg.MaxFeedbackDepth {
		return fmt.Errorf("%w: depth %d, action %s", ErrFeedbackDepth, depth, a.Kind())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	effects, err := s.reduceOnce(a, depth)
	if err != nil {
		return err
	}
	for _, eff := range effects {
		eff := eff
		go func() {
			defer s.inflight.Done()
			if err := s.interp.Run(s.baseCtx, eff, func(ctx context.Context, follow effect.Action) {
				s.feed(ctx, follow, depth+1)
			}); err != nil {
				s.logger.Debug("effect finished with failure",
					zap.String("storeId", s.id),
					zap.String("effect", eff.String()),
					zap.Error(err))
			}
		}()
	}
	return nil
}

// reduceOnce is the single-writer critical section: exactly one reducer
// invocation runs at a time, and the in-flight counter is bumped under
// the same lock so Close never races a late effect spawn.
func (s *Store[S]) reduceOnce(a effect.Action, depth int) (effects []effect.Effect, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defect != nil {
		return nil, s.defect
	}
	if s.closed {
		return nil, ErrClosed
	}
	defer func() {
		if r := recover(); r != nil {
			s.defect = fmt.Errorf("%w: action %s: %v", ErrReducerDefect, a.Kind(), r)
			effects = nil
			err = s.defect
			s.logger.Error("reducer panicked, store poisoned",
				zap.String("storeId", s.id),
				zap.String("action", a.Kind()),
				zap.Int("depth", depth),
				zap.Any("panic", r))
		}
	}()
	effects = s.reduce(&s.state, a, s.env)
	s.inflight.Add(len(effects))
	return effects, nil
}

// feed broadcasts an effect-produced Action and dispatches it again.
// Externally submitted Actions never pass through here, so the
// broadcast stream carries only effect-produced Actions.
func (s *Store[S]) feed(ctx context.Context, a effect.Action, depth int) {
	s.bus.Publish(a)
	if err := s.dispatch(ctx, a, depth); err != nil {
		s.logger.Error("dropping feedback action",
			zap.String("storeId", s.id),
			zap.String("action", a.Kind()),
			zap.Int("depth", depth),
			zap.Error(err))
	}
}

// DispatchAndWait subscribes to the broadcast stream, dispatches the
// action, and returns the first subsequently broadcast Action matching
// the predicate. Subscribing happens before dispatching, so an answer
// produced by a fast effect cannot be missed. A timeout cancels only
// the wait — the dispatch has already run and is never rolled back.
func (s *Store[S]) DispatchAndWait(
	ctx context.Context,
	a effect.Action,
	match func(effect.Action) bool,
	timeout time.Duration,
) (effect.Action, error) {
	sub := s.bus.Subscribe()
	defer sub.Close()

	if err := s.dispatch(ctx, a, 0); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lagged *broadcast.Lag
	for {
		got, err := sub.Recv(waitCtx)
		switch {
		case err == nil:
			if match(got) {
				return got, nil
			}
		case errors.As(err, &lagged):
			// the answer may have been among the skipped entries; keep
			// waiting for fresh ones until the timeout decides
			s.logger.Warn("wait subscriber lagged",
				zap.String("storeId", s.id),
				zap.Uint64("skipped", lagged.Count))
		case errors.Is(err, broadcast.ErrClosed):
			return nil, ErrClosed
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return nil, fmt.Errorf("%w: action %s after %s", ErrWaitTimeout, a.Kind(), timeout)
		default:
			return nil, err
		}
	}
}

// Subscribe returns an independent bounded-buffer subscription for
// long-lived observers of effect-produced Actions.
func (s *Store[S]) Subscribe() *broadcast.Subscription[effect.Action] {
	return s.bus.Subscribe()
}

// Read runs a read-only projection under the shared lock.
func (s *Store[S]) Read(f func(state *S)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f(&s.state)
}

// View projects a value out of the state under the shared lock.
func View[S, T any](s *Store[S], f func(state *S) T) T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return f(&s.state)
}

// DeadLetters exposes the interpreter's dead-letter queue.
func (s *Store[S]) DeadLetters() *effect.DeadLetterQueue {
	return s.interp.DeadLetters()
}

// Interpreter exposes the store's interpreter, e.g. to replay drained
// dead letters back into the feedback loop.
func (s *Store[S]) Interpreter() *effect.Interpreter { return s.interp }

// Close stops accepting dispatches and drains in-flight effects. If
// ctx expires before the drain completes, the store's base context is
// cancelled so cooperative effects unwind, and ctx.Err() is returned.
func (s *Store[S]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.cancel()
		<-done
	}
	s.cancel()
	s.bus.Close()
	s.logger.Debug("store closed", zap.String("storeId", s.id), zap.Error(err))
	return err
}
