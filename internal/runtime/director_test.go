package runtime

import (
	"strings"
	"testing"

	"github.com/squadlite/squadlite/internal/store"
)

func TestParseDecompositionWellFormedJSON(t *testing.T) {
	text := `{"subtasks":[{"title":"Find docs","description":"search for docs","specialization":"researcher"},` +
		`{"title":"Summarize","description":"write it up","specialization":"writer"}]}`

	plan, err := parseDecomposition(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(plan.Subtasks))
	}
	if plan.Subtasks[0].Title != "Find docs" || plan.Subtasks[0].Specialization != "researcher" {
		t.Errorf("unexpected first subtask: %+v", plan.Subtasks[0])
	}
	if plan.Subtasks[1].Title != "Summarize" || plan.Subtasks[1].Specialization != "writer" {
		t.Errorf("unexpected second subtask: %+v", plan.Subtasks[1])
	}
}

func TestParseDecompositionJSONWrappedInProse(t *testing.T) {
	text := "Sure, here is the plan:\n" +
		`{"subtasks":[{"title":"Do it","description":"do the thing","specialization":"general"}]}` +
		"\nLet me know if that works."

	plan, err := parseDecomposition(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Subtasks) != 1 || plan.Subtasks[0].Title != "Do it" {
		t.Errorf("unexpected plan: %+v", plan)
	}
}

func TestParseDecompositionUnstructuredProseFails(t *testing.T) {
	_, err := parseDecomposition("I think we should just figure this out as we go, no JSON here.")
	if err == nil {
		t.Fatal("expected parse error for prose with no JSON object")
	}
}

func TestParseDecompositionEmptySubtasksFails(t *testing.T) {
	_, err := parseDecomposition(`{"subtasks":[]}`)
	if err == nil {
		t.Fatal("expected error when decomposition produces zero subtasks")
	}
}

func TestParseDecompositionMalformedJSONFails(t *testing.T) {
	_, err := parseDecomposition(`{"subtasks": [{"title": "oops",}`)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestSubtaskTitles(t *testing.T) {
	subs := []subtask{{Title: "A"}, {Title: "B"}}
	titles := subtaskTitles(subs)
	if len(titles) != 2 || titles[0] != "A" || titles[1] != "B" {
		t.Errorf("unexpected titles: %v", titles)
	}
}

func TestAggregateResultsSkipsIncompleteSubtasks(t *testing.T) {
	subtasks := []subtask{{Title: "Find docs"}, {Title: "Summarize"}, {Title: "Never finished"}}
	successResult := "found the docs"
	results := []specialistResult{
		{agentID: "a1", task: &store.Task{Status: store.TaskStatusCompleted, Result: &successResult}},
		{agentID: "a2", task: nil},
		{agentID: "a3", task: &store.Task{Status: store.TaskStatusFailed}},
	}

	out := aggregateResults(subtasks, results)
	if !strings.Contains(out, "## Find docs") || !strings.Contains(out, "found the docs") {
		t.Errorf("expected aggregated output to include the completed subtask, got: %s", out)
	}
	if strings.Contains(out, "## Summarize") {
		t.Error("aggregated output should not include a heading for a nil-task result")
	}
	if strings.Contains(out, "## Never finished") {
		t.Error("aggregated output should not include a heading for a failed subtask")
	}
}
