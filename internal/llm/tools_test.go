package llm

import "testing"

func TestCatalogueHasTenTools(t *testing.T) {
	tools := Catalogue()
	if len(tools) != 10 {
		t.Fatalf("expected 10 tools per the coordination plane's tool catalogue, got %d", len(tools))
	}
}

func TestCatalogueToolNames(t *testing.T) {
	want := []string{
		"checkInbox", "readMessage", "sendMessage", "checkpoint",
		"createTask", "assignTask", "completeTask", "getTaskStatus",
		"listAgents", "spawnSpecialist",
	}
	tools := Catalogue()
	got := make([]string, 0, len(tools))
	for _, tu := range tools {
		if tu.OfTool == nil {
			t.Fatal("expected every catalogue entry to wrap a ToolParam")
		}
		got = append(got, tu.OfTool.Name)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tool names, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("tool[%d] = %q, want %q", i, got[i], name)
		}
	}
}

func TestCatalogueRequiredFields(t *testing.T) {
	tools := Catalogue()
	byName := make(map[string][]string)
	for _, tu := range tools {
		byName[tu.OfTool.Name] = tu.OfTool.InputSchema.Required
	}

	cases := map[string][]string{
		"readMessage":     {"messageId"},
		"sendMessage":     {"toAgentId", "content", "type"},
		"checkpoint":      {"goal", "nextAction", "phase"},
		"createTask":      {"title", "description"},
		"assignTask":      {"taskId", "agentId"},
		"completeTask":    {"taskId", "result"},
		"getTaskStatus":   {"taskId"},
		"spawnSpecialist": {"specialization"},
	}
	for name, want := range cases {
		got, ok := byName[name]
		if !ok {
			t.Errorf("tool %q missing from catalogue", name)
			continue
		}
		if len(got) != len(want) {
			t.Errorf("tool %q required = %v, want %v", name, got, want)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("tool %q required[%d] = %q, want %q", name, i, got[i], want[i])
			}
		}
	}
}
