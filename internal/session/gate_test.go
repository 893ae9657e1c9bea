package session

import (
	"context"
	"errors"
	"testing"
)

func TestCanEnd(t *testing.T) {
	cases := []struct {
		turns, required int
		allowed         bool
		remaining       int
	}{
		{0, 4, false, 4},
		{3, 4, false, 1},
		{4, 4, true, 0},
		{9, 4, true, 0},
		{0, 0, false, DefaultRequiredTurns},
	}
	for _, tc := range cases {
		got := CanEnd(tc.turns, tc.required)
		if got.Allowed != tc.allowed || got.Remaining != tc.remaining {
			t.Fatalf("CanEnd(%d, %d) = %+v", tc.turns, tc.required, got)
		}
	}
}

type enderFunc func(context.Context) error

func (f enderFunc) EndSession(ctx context.Context) error { return f(ctx) }

func TestOverlayLifecycle(t *testing.T) {
	var o Overlay
	if o.State().Shown {
		t.Fatalf("overlay starts hidden")
	}
	o.Show(Feedback("Good job"))
	if st := o.State(); !st.Shown || st.Content.Text != "Good job" || st.Content.IsError() {
		t.Fatalf("unexpected state %+v", st)
	}
	o.Dismiss()
	if st := o.State(); st.Shown || st.Content.Text != "" {
		t.Fatalf("dismiss should clear content: %+v", st)
	}
}

func TestOverlayFinishDismissesOnError(t *testing.T) {
	var o Overlay
	o.Show(Failure(FeedbackFailureText))
	err := o.FinishAndClose(context.Background(), enderFunc(func(context.Context) error { return errBoom }))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected ender error, got %v", err)
	}
	if o.State().Shown {
		t.Fatalf("overlay should be dismissed")
	}
}
