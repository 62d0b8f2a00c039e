package saga_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/restor_ive_go/effect"
	"github.com/on-the-ground/restor_ive_go/saga"
	"github.com/on-the-ground/restor_ive_go/store"
)

const (
	stepStarted           saga.Step = "started"
	stepInventoryReserved saga.Step = "inventory_reserved"
	stepOrderCreated      saga.Step = "order_created"
)

type evt struct {
	kind   string
	id     string
	reason string
}

func (e evt) Kind() string { return e.kind }

// command wraps an outgoing collaborator command as an async effect so
// tests can observe emission through the feedback loop.
func command(kind, id string) effect.Effect {
	return effect.Async(func(ctx context.Context) (effect.Action, error) {
		return evt{kind: kind, id: id}, nil
	})
}

// compensatedMachine models ReserveInventory -> CreateOrder ->
// ProcessPayment with compensation for the first two steps.
func compensatedMachine() *saga.Machine {
	m := saga.NewMachine()
	fail := func(reason string) saga.Transition {
		return func(s *saga.State, _ effect.Action, env effect.Environment) []effect.Effect {
			return m.Fail(s, reason, env, command("checkout.failed", ""))
		}
	}
	m.On(stepStarted, "inventory.reserved", func(s *saga.State, a effect.Action, _ effect.Environment) []effect.Effect {
		s.Advance(stepInventoryReserved, a.(evt).id, stepInventoryReserved)
		return []effect.Effect{
			command("order.create", ""),
			saga.GuardStep(stepInventoryReserved, time.Minute),
		}
	}).
		On(stepInventoryReserved, "order.created", func(s *saga.State, a effect.Action, _ effect.Environment) []effect.Effect {
			s.Advance(stepOrderCreated, a.(evt).id, stepOrderCreated)
			return []effect.Effect{
				command("payment.process", a.(evt).id),
				saga.GuardStep(stepOrderCreated, time.Minute),
			}
		}).
		On(stepOrderCreated, "payment.processed", func(s *saga.State, _ effect.Action, _ effect.Environment) []effect.Effect {
			saga.Complete(s)
			return nil
		}).
		On(stepOrderCreated, "payment.failed", func(s *saga.State, a effect.Action, env effect.Environment) []effect.Effect {
			return m.Fail(s, a.(evt).reason, env, command("checkout.failed", ""))
		}).
		OnTimeout(stepInventoryReserved, fail("inventory step timed out")).
		OnTimeout(stepOrderCreated, fail("payment step timed out")).
		Compensate(stepOrderCreated, func(rec saga.StepRecord, _ effect.Environment) effect.Effect {
			return command("order.cancel", rec.ResourceID)
		}).
		Compensate(stepInventoryReserved, func(rec saga.StepRecord, _ effect.Environment) effect.Effect {
			return command("reservation.release", rec.ResourceID)
		})
	return m
}

type feedLog struct {
	mu    sync.Mutex
	kinds []string
	ids   map[string]string
}

func newFeedLog() *feedLog { return &feedLog{ids: make(map[string]string)} }

func (f *feedLog) feed(_ context.Context, a effect.Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := a.(evt)
	f.kinds = append(f.kinds, e.kind)
	f.ids[e.kind] = e.id
}

func TestSaga_CompensationWalksCompletedStepsInReverse(t *testing.T) {
	m := compensatedMachine()
	red := m.Reducer()
	env := effect.Environment{}.Normalize()

	s := saga.NewState(stepStarted, env.Clock.Now())
	_ = red(&s, evt{kind: "inventory.reserved", id: "rsv-1"}, env)
	_ = red(&s, evt{kind: "order.created", id: "ord-1"}, env)
	require.Equal(t, stepOrderCreated, s.Current)
	require.Len(t, s.Completed, 2)

	effects := red(&s, evt{kind: "payment.failed", reason: "card declined"}, env)
	assert.Equal(t, saga.StepFailed, s.Current)
	assert.Equal(t, "card declined", s.Reason)

	// run the emitted effects in order to observe the command sequence
	in := effect.NewInterpreter(env)
	log := newFeedLog()
	require.NoError(t, in.Run(context.Background(), effect.Sequential(effects...), log.feed))

	assert.Equal(t, []string{"order.cancel", "reservation.release", "checkout.failed"}, log.kinds)
	assert.Equal(t, "ord-1", log.ids["order.cancel"])
	assert.Equal(t, "rsv-1", log.ids["reservation.release"])
}

func TestSaga_NeverCompensatesUncompletedSteps(t *testing.T) {
	m := compensatedMachine()
	env := effect.Environment{}.Normalize()

	s := saga.NewState(stepStarted, env.Clock.Now())
	_ = m.Reducer()(&s, evt{kind: "inventory.reserved", id: "rsv-9"}, env)

	effects := m.Fail(&s, "gave up", env)
	in := effect.NewInterpreter(env)
	log := newFeedLog()
	require.NoError(t, in.Run(context.Background(), effect.Sequential(effects...), log.feed))

	assert.Equal(t, []string{"reservation.release"}, log.kinds,
		"only the completed step is compensated")
}

func TestSaga_IgnoresOutOfOrderActions(t *testing.T) {
	m := compensatedMachine()
	red := m.Reducer()
	env := effect.Environment{}.Normalize()

	s := saga.NewState(stepStarted, env.Clock.Now())
	before := s

	// valid only at stepOrderCreated, arrives at stepStarted
	effects := red(&s, evt{kind: "payment.processed"}, env)
	assert.Nil(t, effects)
	assert.Equal(t, before.Current, s.Current)
	assert.Empty(t, s.Completed)

	// duplicates are tolerated the same way
	_ = red(&s, evt{kind: "inventory.reserved", id: "rsv-1"}, env)
	dup := red(&s, evt{kind: "inventory.reserved", id: "rsv-1"}, env)
	assert.Nil(t, dup)
	assert.Len(t, s.Completed, 1)
}

func TestSaga_TerminalStatesAcceptNothing(t *testing.T) {
	m := compensatedMachine()
	red := m.Reducer()
	env := effect.Environment{}.Normalize()

	s := saga.NewState(stepStarted, env.Clock.Now())
	_ = red(&s, evt{kind: "inventory.reserved", id: "r"}, env)
	_ = red(&s, evt{kind: "order.created", id: "o"}, env)
	_ = red(&s, evt{kind: "payment.failed", reason: "nope"}, env)
	require.Equal(t, saga.StepFailed, s.Current)

	effects := red(&s, evt{kind: "payment.processed"}, env)
	assert.Nil(t, effects)
	assert.Equal(t, saga.StepFailed, s.Current)
}

func TestSaga_StaleTimeoutGuardIsIgnored(t *testing.T) {
	m := compensatedMachine()
	red := m.Reducer()
	env := effect.Environment{}.Normalize()

	s := saga.NewState(stepStarted, env.Clock.Now())
	_ = red(&s, evt{kind: "inventory.reserved", id: "r"}, env)
	_ = red(&s, evt{kind: "order.created", id: "o"}, env)
	require.Equal(t, stepOrderCreated, s.Current)

	// the guard armed for the inventory step fires after advancing
	effects := red(&s, saga.Timeout{Step: stepInventoryReserved}, env)
	assert.Nil(t, effects)
	assert.Equal(t, stepOrderCreated, s.Current)
}

func TestSaga_TimeoutGuardFailsCurrentStep(t *testing.T) {
	m := compensatedMachine()
	red := m.Reducer()
	env := effect.Environment{}.Normalize()

	s := saga.NewState(stepStarted, env.Clock.Now())
	_ = red(&s, evt{kind: "inventory.reserved", id: "rsv-1"}, env)

	effects := red(&s, saga.Timeout{Step: stepInventoryReserved}, env)
	assert.Equal(t, saga.StepFailed, s.Current)
	assert.Equal(t, "inventory step timed out", s.Reason)
	assert.NotEmpty(t, effects)
}

// Full loop: the machine mounted on a store, payment failing, both
// compensating commands observed through the broadcast stream.
func TestSaga_CheckoutOverStore(t *testing.T) {
	m := compensatedMachine()
	env := effect.Environment{}.Normalize()

	s := store.New(saga.NewState(stepStarted, env.Clock.Now()), m.Reducer(), env)
	defer func() {
		// pending minute-long timeout guards are cancelled, not drained
		closeCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = s.Close(closeCtx)
	}()

	sub := s.Subscribe()
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, s.Dispatch(ctx, evt{kind: "inventory.reserved", id: "rsv-7"}))

	// the saga emits order.create; the collaborator answers
	require.Eventually(t, func() bool {
		return store.View(s, func(st *saga.State) saga.Step { return st.Current }) == stepInventoryReserved
	}, time.Second, time.Millisecond)
	require.NoError(t, s.Dispatch(ctx, evt{kind: "order.created", id: "ord-7"}))

	require.Eventually(t, func() bool {
		return store.View(s, func(st *saga.State) saga.Step { return st.Current }) == stepOrderCreated
	}, time.Second, time.Millisecond)
	require.NoError(t, s.Dispatch(ctx, evt{kind: "payment.failed", reason: "card declined"}))

	require.Eventually(t, func() bool {
		return store.View(s, func(st *saga.State) bool { return st.Terminal() })
	}, time.Second, time.Millisecond)

	assert.Equal(t, saga.StepFailed, store.View(s, func(st *saga.State) saga.Step { return st.Current }))
	assert.Equal(t, "card declined", store.View(s, func(st *saga.State) string { return st.Reason }))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	seen := map[string]string{}
	for len(seen) < 2 {
		a, err := sub.Recv(recvCtx)
		require.NoError(t, err)
		e, ok := a.(evt)
		if !ok {
			continue
		}
		if e.kind == "order.cancel" || e.kind == "reservation.release" {
			seen[e.kind] = e.id
		}
	}
	assert.Equal(t, "ord-7", seen["order.cancel"])
	assert.Equal(t, "rsv-7", seen["reservation.release"])
}
