package store

import "testing"

func TestTransitionAllowedForwardPath(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusAssigned, true},
		{TaskStatusAssigned, TaskStatusInProgress, true},
		{TaskStatusInProgress, TaskStatusCompleted, true},
		{TaskStatusInProgress, TaskStatusFailed, true},
	}
	for _, c := range cases {
		if got := transitionAllowed(c.from, c.to); got != c.want {
			t.Errorf("transitionAllowed(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransitionAllowedRejectsBackwardAndSkips(t *testing.T) {
	cases := []struct{ from, to TaskStatus }{
		{TaskStatusAssigned, TaskStatusPending},
		{TaskStatusInProgress, TaskStatusAssigned},
		{TaskStatusCompleted, TaskStatusInProgress},
		{TaskStatusFailed, TaskStatusCompleted},
		{TaskStatusPending, TaskStatusInProgress}, // skip assigned
		{TaskStatusPending, TaskStatusCompleted},
	}
	for _, c := range cases {
		if transitionAllowed(c.from, c.to) {
			t.Errorf("transitionAllowed(%s, %s) should be false", c.from, c.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !isTerminal(TaskStatusCompleted) {
		t.Error("completed must be terminal")
	}
	if !isTerminal(TaskStatusFailed) {
		t.Error("failed must be terminal")
	}
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress} {
		if isTerminal(s) {
			t.Errorf("%s must not be terminal", s)
		}
	}
}
