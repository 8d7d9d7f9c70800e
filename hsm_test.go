package qhsm_test

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/qhsm.go"
)

var (
	signals = qhsm.NewRegistry()
	A       = signals.MustRegister("A")
	B       = signals.MustRegister("B")
	C       = signals.MustRegister("C")
	D       = signals.MustRegister("D")
	E       = signals.MustRegister("E")
	F       = signals.MustRegister("F")
	G       = signals.MustRegister("G")
	H       = signals.MustRegister("H")
	I       = signals.MustRegister("I")
	Boom    = signals.MustRegister("Boom")
)

type Trace struct {
	mutex sync.Mutex
	steps []string
	off   bool
}

func (t *Trace) add(step string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.off {
		return
	}
	t.steps = append(t.steps, step)
}

// take returns the steps traced so far and resets the trace.
func (t *Trace) take() []string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	steps := t.steps
	t.steps = nil
	return steps
}

// THSM is the classic nested test machine:
//
//	top
//	└── s        (initial s1)
//	    ├── s1   (initial s11)
//	    │   ├── s11
//	    │   └── s12
//	    └── s2   (initial s21)
//	        └── s21 (initial s211)
//	            └── s211
type THSM struct {
	*qhsm.HSM
	trace  Trace
	cached bool

	s, s1, s11, s12, s2, s21, s211 *qhsm.State
}

const (
	slotG = iota
	slotC
	slotE
	slotCount
)

func newTHSM(cached bool) *THSM {
	m := &THSM{cached: cached}
	m.HSM = qhsm.NewHSM("THSM", func() *qhsm.State { return m.s }, qhsm.WithChainSlots(slotCount))
	m.s = m.state("s", qhsm.Top, func() *qhsm.State { return m.s1 }, map[qhsm.Signal]func(){
		E: func() { m.transition(m.s11, slotE) },
	})
	m.s1 = m.state("s1", m.s, func() *qhsm.State { return m.s11 }, map[qhsm.Signal]func(){
		A: func() { m.TransitionTo(m.s1) },
		B: func() { m.TransitionTo(m.s11) },
		C: func() { m.transition(m.s2, slotC) },
	})
	m.s11 = m.state("s11", m.s1, nil, map[qhsm.Signal]func(){
		D: func() { m.TransitionTo(m.s1) },
		F: func() { m.TransitionTo(m.s12) },
		G: func() { m.transition(m.s211, slotG) },
	})
	m.s12 = m.state("s12", m.s1, nil, nil)
	m.s2 = m.state("s2", m.s, func() *qhsm.State { return m.s21 }, nil)
	m.s21 = m.state("s21", m.s2, func() *qhsm.State { return m.s211 }, nil)
	m.s211 = m.state("s211", m.s21, nil, map[qhsm.Signal]func(){
		H: func() { m.TransitionTo(m.s) },
	})
	return m
}

func (m *THSM) transition(target *qhsm.State, slot int) {
	if m.cached {
		m.TransitionToCached(target, m.Slot(slot))
		return
	}
	m.TransitionTo(target)
}

func (m *THSM) state(name string, parent *qhsm.State, initial func() *qhsm.State, on map[qhsm.Signal]func()) *qhsm.State {
	return qhsm.NewState(name, parent, func(e qhsm.Event) qhsm.Result {
		switch e.Signal() {
		case qhsm.Entry:
			m.trace.add(name + ".entry")
			return qhsm.Handled()
		case qhsm.Exit:
			m.trace.add(name + ".exit")
			return qhsm.Handled()
		case qhsm.Init:
			if initial != nil {
				m.trace.add(name + ".init")
				m.InitTo(initial())
			}
			return qhsm.Handled()
		}
		if fn, ok := on[e.Signal()]; ok {
			m.trace.add(name + "." + e.Signal().Name())
			fn()
			return qhsm.Handled()
		}
		return m.Delegate(e, parent)
	})
}

func TestHSMInit(t *testing.T) {
	m := newTHSM(false)
	require.ErrorIs(t, m.Dispatch(qhsm.NewEvent(A)), qhsm.ErrNotInitialized)
	require.NoError(t, m.Init())
	require.Equal(t, []string{"s.entry", "s.init", "s1.entry", "s1.init", "s11.entry"}, m.trace.take())
	require.Equal(t, m.s11, m.State())
	for _, s := range []*qhsm.State{m.s11, m.s1, m.s, qhsm.Top} {
		require.True(t, m.IsInState(s), s.Name())
	}
	require.False(t, m.IsInState(m.s2))
	require.ErrorIs(t, m.Init(), qhsm.ErrAlreadyInitialized)
}

var transitions = []struct {
	name     string
	signal   qhsm.Signal
	expected []string
	state    string
}{
	{"sibling subtrees", G, []string{"s11.G", "s11.exit", "s1.exit", "s2.entry", "s21.entry", "s211.entry"}, "s211"},
	{"to ancestor", H, []string{"s211.H", "s211.exit", "s21.exit", "s2.exit", "s.init", "s1.entry", "s1.init", "s11.entry"}, "s11"},
	{"self", A, []string{"s1.A", "s11.exit", "s1.exit", "s1.entry", "s1.init", "s11.entry"}, "s11"},
	{"to child", B, []string{"s1.B", "s11.exit", "s11.entry"}, "s11"},
	{"to parent", D, []string{"s11.D", "s11.exit", "s1.init", "s11.entry"}, "s11"},
	{"to sibling", C, []string{"s1.C", "s11.exit", "s1.exit", "s2.entry", "s2.init", "s21.entry", "s21.init", "s211.entry"}, "s211"},
	{"from ancestor", E, []string{"s.E", "s211.exit", "s21.exit", "s2.exit", "s1.entry", "s11.entry"}, "s11"},
	{"unhandled", I, nil, "s11"},
	{"sibling subtrees again", G, []string{"s11.G", "s11.exit", "s1.exit", "s2.entry", "s21.entry", "s211.entry"}, "s211"},
	{"from ancestor again", E, []string{"s.E", "s211.exit", "s21.exit", "s2.exit", "s1.entry", "s11.entry"}, "s11"},
	{"to sibling again", C, []string{"s1.C", "s11.exit", "s1.exit", "s2.entry", "s2.init", "s21.entry", "s21.init", "s211.entry"}, "s211"},
	{"back from ancestor", E, []string{"s.E", "s211.exit", "s21.exit", "s2.exit", "s1.entry", "s11.entry"}, "s11"},
	{"to other leaf", F, []string{"s11.F", "s11.exit", "s12.entry"}, "s12"},
	{"to sibling from other leaf", C, []string{"s1.C", "s12.exit", "s1.exit", "s2.entry", "s2.init", "s21.entry", "s21.init", "s211.entry"}, "s211"},
}

func TestHSMTransitions(t *testing.T) {
	for _, cached := range []bool{false, true} {
		m := newTHSM(cached)
		require.NoError(t, m.Init())
		m.trace.take()
		for _, tt := range transitions {
			require.NoError(t, m.Dispatch(qhsm.NewEvent(tt.signal)), tt.name)
			require.Equal(t, tt.expected, m.trace.take(), "%s (cached=%t)", tt.name, cached)
			require.Equal(t, tt.state, m.State().Name(), tt.name)
		}
	}
}

func TestTransitionChain(t *testing.T) {
	m := newTHSM(true)
	require.NoError(t, m.Init())
	for i := 0; i < slotCount; i++ {
		require.False(t, m.Slot(i).Recorded())
		require.Nil(t, m.Slot(i).Steps())
	}
	require.NoError(t, m.Dispatch(qhsm.NewEvent(C)))
	chain := m.Slot(slotC)
	require.True(t, chain.Recorded())
	require.Equal(t, m.s211, chain.Target())
	steps := chain.Steps()
	require.NotEmpty(t, steps)
	last := steps[len(steps)-1]
	require.Equal(t, qhsm.Entry, last.Signal)
	require.Equal(t, m.s211, last.State)

	var names []string
	for _, step := range steps {
		names = append(names, step.State.Name()+"."+step.Signal.Name())
	}
	require.Equal(t, []string{"s1.Exit", "s2.Entry", "s2.Init", "s21.Entry", "s21.Init", "s211.Entry"}, names)
	require.False(t, m.Slot(slotG).Recorded())
}

// TestSharedTransitionChain runs machines over one hierarchy whose handlers
// carry no per-instance data, all racing to fill the same chain:
//
//	top
//	├── idle
//	└── busy
//	    └── job
//	        └── step
func TestSharedTransitionChain(t *testing.T) {
	trace := &Trace{}
	chain := qhsm.NewTransitionChain()
	var idle, busy, job, step *qhsm.State
	handler := func(name string, parent func() *qhsm.State, on qhsm.Signal, act func(m *qhsm.HSM)) qhsm.Handler {
		return func(e qhsm.Event) qhsm.Result {
			switch e.Signal() {
			case qhsm.Entry:
				trace.add(name + ".entry")
				return qhsm.Handled()
			case qhsm.Exit:
				trace.add(name + ".exit")
				return qhsm.Handled()
			case on:
				act(e.Payload().(*qhsm.HSM))
				return qhsm.Handled()
			}
			return qhsm.DelegateTo(parent())
		}
	}
	top := func() *qhsm.State { return qhsm.Top }
	idle = qhsm.NewState("idle", qhsm.Top, handler("idle", top, A, func(m *qhsm.HSM) {
		m.TransitionToCached(step, chain)
	}))
	busy = qhsm.NewState("busy", qhsm.Top, handler("busy", top, qhsm.Signal{}, nil))
	job = qhsm.NewState("job", busy, handler("job", func() *qhsm.State { return busy }, qhsm.Signal{}, nil))
	step = qhsm.NewState("step", job, handler("step", func() *qhsm.State { return job }, B, func(m *qhsm.HSM) {
		m.TransitionTo(idle)
	}))

	const machines, rounds = 8, 50
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range machines {
		m := qhsm.NewHSM("shared", func() *qhsm.State { return idle })
		require.NoError(t, m.Init())
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for range rounds {
				assert.NoError(t, m.Dispatch(qhsm.NewEvent(A, m)))
				assert.Equal(t, step, m.State())
				assert.NoError(t, m.Dispatch(qhsm.NewEvent(B, m)))
				assert.Equal(t, idle, m.State())
			}
		}()
	}
	close(start)
	wg.Wait()

	counts := make(map[string]int)
	for _, name := range trace.take() {
		counts[name]++
	}
	require.Equal(t, map[string]int{
		"idle.entry": machines * (rounds + 1),
		"idle.exit":  machines * rounds,
		"busy.entry": machines * rounds,
		"busy.exit":  machines * rounds,
		"job.entry":  machines * rounds,
		"job.exit":   machines * rounds,
		"step.entry": machines * rounds,
		"step.exit":  machines * rounds,
	}, counts)

	var names []string
	for _, s := range chain.Steps() {
		names = append(names, s.State.Name()+"."+s.Signal.Name())
	}
	require.Equal(t, []string{"idle.Exit", "busy.Entry", "job.Entry", "step.Entry"}, names)
	require.Equal(t, step, chain.Target())
}

func TestHSMDispatchFaults(t *testing.T) {
	t.Run("handler panic", func(t *testing.T) {
		var m *qhsm.HSM
		var s *qhsm.State
		s = qhsm.NewState("s", qhsm.Top, func(e qhsm.Event) qhsm.Result {
			if e.Signal() == Boom {
				panic(errors.New("boom"))
			}
			return qhsm.Handled()
		})
		m = qhsm.NewHSM("faulty", func() *qhsm.State { return s })
		require.NoError(t, m.Init())
		err := m.Dispatch(qhsm.NewEvent(Boom))
		var dispatchErr *qhsm.DispatchError
		require.True(t, errors.As(err, &dispatchErr))
		require.Equal(t, "faulty", dispatchErr.Machine)
		require.Equal(t, Boom, dispatchErr.Signal)
		require.Equal(t, "s", dispatchErr.Target)
		require.Contains(t, err.Error(), "boom")
		require.Contains(t, err.Error(), "faulty")
		require.NoError(t, m.Dispatch(qhsm.NewEvent(A)), "machine keeps working after a fault")
	})

	t.Run("transition to top", func(t *testing.T) {
		var m *qhsm.HSM
		s := qhsm.NewState("s", qhsm.Top, func(e qhsm.Event) qhsm.Result {
			if e.Signal() == A {
				m.TransitionTo(qhsm.Top)
			}
			return qhsm.Handled()
		})
		m = qhsm.NewHSM("top", func() *qhsm.State { return s })
		require.NoError(t, m.Init())
		err := m.Dispatch(qhsm.NewEvent(A))
		require.Error(t, err)
		require.True(t, errors.HasAssertionFailure(err))
	})

	t.Run("detached target", func(t *testing.T) {
		var m *qhsm.HSM
		detached := qhsm.NewState("detached", nil, nil)
		orphan := qhsm.NewState("orphan", detached, nil)
		s := qhsm.NewState("s", qhsm.Top, func(e qhsm.Event) qhsm.Result {
			if e.Signal() == A {
				m.TransitionTo(orphan)
			}
			return qhsm.Handled()
		})
		m = qhsm.NewHSM("detached", func() *qhsm.State { return s })
		require.NoError(t, m.Init())
		err := m.Dispatch(qhsm.NewEvent(A))
		require.True(t, errors.HasAssertionFailure(err))
		require.Contains(t, err.Error(), "malformed hierarchy")
	})
}

func TestHSMInitFaults(t *testing.T) {
	t.Run("initial state not under top", func(t *testing.T) {
		parent := qhsm.NewState("parent", qhsm.Top, nil)
		child := qhsm.NewState("child", parent, nil)
		m := qhsm.NewHSM("deep", func() *qhsm.State { return child })
		err := m.Init()
		require.True(t, errors.HasAssertionFailure(err))
		require.ErrorIs(t, m.Dispatch(qhsm.NewEvent(A)), qhsm.ErrNotInitialized)
	})

	t.Run("initial transition skips a level", func(t *testing.T) {
		var m *qhsm.HSM
		var s, mid, leaf *qhsm.State
		s = qhsm.NewState("s", qhsm.Top, func(e qhsm.Event) qhsm.Result {
			if e.Signal() == qhsm.Init {
				m.InitTo(leaf)
			}
			return qhsm.Handled()
		})
		mid = qhsm.NewState("mid", s, nil)
		leaf = qhsm.NewState("leaf", mid, nil)
		m = qhsm.NewHSM("skip", func() *qhsm.State { return s })
		err := m.Init()
		require.True(t, errors.HasAssertionFailure(err))
	})
}

func TestStateHierarchy(t *testing.T) {
	m := newTHSM(false)
	require.Equal(t, 4, m.s211.Depth())
	require.True(t, m.s211.IsChildOf(m.s))
	require.True(t, m.s211.IsChildOf(qhsm.Top))
	require.False(t, m.s211.IsChildOf(m.s1))
	require.False(t, m.s.IsChildOf(m.s))
	require.Nil(t, qhsm.Top.Owner())
	require.Equal(t, m.s21, m.s211.Parent())
	require.True(t, qhsm.Top.Kind().Is(qhsm.StateKind))
}

func TestDelegateResult(t *testing.T) {
	parent := qhsm.NewState("parent", qhsm.Top, nil)
	require.True(t, qhsm.Handled().IsHandled())
	r := qhsm.DelegateTo(parent)
	require.False(t, r.IsHandled())
	require.Equal(t, parent, r.Next())
}
