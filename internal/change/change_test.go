package change

import (
	"context"
	"errors"
	"testing"
)

func TestForwardSetsChangedOnEvent(t *testing.T) {
	c := New("file[/etc/hosts]", "content", "old", "new",
		func(ctx context.Context) ([]Event, error) {
			return []Event{{Kind: "content_changed", Source: "file[/etc/hosts]"}}, nil
		}, nil)

	events, err := c.Forward(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !c.Changed {
		t.Errorf("expected Changed to be true after a non-empty forward result")
	}
}

func TestForwardNoEventsLeavesChangedFalse(t *testing.T) {
	c := New("file[/etc/hosts]", "content", "old", "new",
		func(ctx context.Context) ([]Event, error) { return nil, nil }, nil)

	if _, err := c.Forward(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Changed {
		t.Errorf("Changed should remain false when forward produces no events")
	}
}

func TestForwardErrorDoesNotSetChanged(t *testing.T) {
	c := New("file[/etc/hosts]", "content", "old", "new",
		func(ctx context.Context) ([]Event, error) { return nil, errors.New("boom") }, nil)

	if _, err := c.Forward(context.Background()); err == nil {
		t.Fatalf("expected an error")
	}
	if c.Changed {
		t.Errorf("Changed must not be set when forward fails")
	}
}

func TestBackwardNilIsNoop(t *testing.T) {
	c := New("r", "p", 1, 2, nil, nil)
	events, err := c.Backward(context.Background())
	if err != nil || events != nil {
		t.Fatalf("expected nil, nil from a backward-less change, got %v, %v", events, err)
	}
}
