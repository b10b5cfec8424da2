package core

import (
	"testing"
)

func TestFiber_Transitions(t *testing.T) {
	f := newFiber(5, nil)

	steps := []struct{ from, to FiberState }{
		{FiberFree, FiberRunning},
		{FiberRunning, FiberParked},
		{FiberParked, FiberReady},
		{FiberReady, FiberRunning},
		{FiberRunning, FiberFree},
	}
	for _, step := range steps {
		f.transition(step.from, step.to)
		if f.State() != step.to {
			t.Fatalf("state after %s -> %s = %s", step.from, step.to, f.State())
		}
	}
}

func TestFiber_IllegalTransitionPanics(t *testing.T) {
	f := newFiber(5, nil)

	expectPanic(t, "fiber 5 transition running -> parked from state free", func() {
		f.transition(FiberRunning, FiberParked)
	})
	if f.State() != FiberFree {
		t.Errorf("state = %s after failed transition, want free", f.State())
	}
}

func TestFiber_DoubleEnterPanics(t *testing.T) {
	s := &Scheduler{}
	f := newFiber(1, s)
	w0 := newWorkerThread(0)
	w1 := newWorkerThread(1)

	f.enter(w0)
	expectPanic(t, "while occupied", func() {
		f.enter(w1)
	})
}

func TestFiberState_String(t *testing.T) {
	tests := map[FiberState]string{
		FiberFree:     "free",
		FiberRunning:  "running",
		FiberParked:   "parked",
		FiberReady:    "ready",
		FiberState(9): "FiberState(9)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestSpinUntil_YieldsUntilTrue(t *testing.T) {
	calls := 0
	spinUntil(2, func() bool {
		calls++
		return calls == 10
	})
	if calls != 10 {
		t.Errorf("cond called %d times, want 10", calls)
	}
}
