package runtime

import (
	"context"
	"testing"

	"github.com/squadlite/squadlite/internal/store"
)

// These exercise only the validation branches of toolDispatcher.dispatch that
// return before touching the store, so a nil *store.Store is safe.

func TestDispatchUnknownTool(t *testing.T) {
	d := newToolDispatcher(nil, &store.Agent{AgentID: "a1", Type: store.AgentTypeSpecialist})
	result, isError := d.Dispatch(context.Background(), "doesNotExist", nil)
	if !isError {
		t.Error("expected isError=true for an unknown tool name")
	}
	if result == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestDispatchReadMessageRequiresMessageID(t *testing.T) {
	d := newToolDispatcher(nil, &store.Agent{AgentID: "a1"})
	_, isError := d.Dispatch(context.Background(), "readMessage", map[string]any{})
	if !isError {
		t.Error("expected isError=true when messageId is missing")
	}
}

func TestDispatchSendMessageRequiresFields(t *testing.T) {
	d := newToolDispatcher(nil, &store.Agent{AgentID: "a1"})
	_, isError := d.Dispatch(context.Background(), "sendMessage", map[string]any{"toAgentId": "a2"})
	if !isError {
		t.Error("expected isError=true when content and type are missing")
	}
}

func TestDispatchSpawnSpecialistRejectsNonDirector(t *testing.T) {
	d := newToolDispatcher(nil, &store.Agent{AgentID: "a1", Type: store.AgentTypeSpecialist})
	result, isError := d.Dispatch(context.Background(), "spawnSpecialist", map[string]any{"specialization": "researcher"})
	if !isError {
		t.Error("expected isError=true: only directors may spawn specialists")
	}
	if result == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestDispatchSpawnSpecialistRequiresSpecialization(t *testing.T) {
	d := newToolDispatcher(nil, &store.Agent{AgentID: "a1", Type: store.AgentTypeDirector})
	_, isError := d.Dispatch(context.Background(), "spawnSpecialist", map[string]any{})
	if !isError {
		t.Error("expected isError=true when specialization is missing")
	}
}

func TestDispatchCheckpointRequiresGoalNextActionPhase(t *testing.T) {
	d := newToolDispatcher(nil, &store.Agent{AgentID: "a1"})
	_, isError := d.Dispatch(context.Background(), "checkpoint", map[string]any{"goal": "g"})
	if !isError {
		t.Error("expected isError=true when nextAction and phase are missing")
	}
}

func TestToStringSliceConvertsStringElements(t *testing.T) {
	in := []any{"a", "b", 3, "c"}
	out := toStringSlice(in)
	want := []string{"a", "b", "c"}
	if len(out) != len(want) {
		t.Fatalf("expected %d strings, got %d: %v", len(want), len(out), out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %q, want %q", i, out[i], want[i])
		}
	}
}

func TestToStringSliceNonArrayReturnsNil(t *testing.T) {
	if out := toStringSlice("not an array"); out != nil {
		t.Errorf("expected nil for non-array input, got %v", out)
	}
}
