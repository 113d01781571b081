package runtime

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/squadlite/squadlite/internal/common/config"
	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/llm"
	"github.com/squadlite/squadlite/internal/store"
)

// mockRuntimeStore implements Store for testing
type mockRuntimeStore struct {
	agents  map[string]*store.Agent
	tasks   map[string]*store.Task
	counter int

	// onAssign runs after an assignment lands, standing in for the
	// change-stream path that would run the assignee's process.
	onAssign func(t *store.Task)

	// Track calls for verification
	statusCalls  []store.AgentStatus
	checkpoints  []*store.Checkpoint
	sentMessages []*store.Message
	tokenAdds    []struct{ in, out int64 }
}

func newMockRuntimeStore() *mockRuntimeStore {
	return &mockRuntimeStore{
		agents: make(map[string]*store.Agent),
		tasks:  make(map[string]*store.Task),
	}
}

func (m *mockRuntimeStore) GetAgent(_ context.Context, agentID string) (*store.Agent, error) {
	if a, ok := m.agents[agentID]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("agent not found: %s", agentID)
}

func (m *mockRuntimeStore) RegisterAgent(_ context.Context, agentID string, agentType store.AgentType, specialization *store.Specialization, parentID *string) (*store.Agent, error) {
	if agentID == "" {
		m.counter++
		agentID = fmt.Sprintf("spec-%d", m.counter)
	}
	a := &store.Agent{
		AgentID:        agentID,
		Type:           agentType,
		Specialization: specialization,
		Status:         store.AgentStatusIdle,
		ParentID:       parentID,
		CreatedAt:      time.Now().UTC(),
	}
	m.agents[agentID] = a
	return a, nil
}

func (m *mockRuntimeStore) ListAgentsByTypeStatus(_ context.Context, _ store.AgentType, _ []store.AgentStatus) ([]*store.Agent, error) {
	return nil, nil
}

func (m *mockRuntimeStore) GetOrCreateSession(_ context.Context, _ string) (string, error) {
	return "session-test-1", nil
}

func (m *mockRuntimeStore) UpdateAgentStatus(_ context.Context, _ string, status store.AgentStatus, _ *string) error {
	m.statusCalls = append(m.statusCalls, status)
	return nil
}

func (m *mockRuntimeStore) AddTokens(_ context.Context, _ string, inputTokens, outputTokens int64) error {
	m.tokenAdds = append(m.tokenAdds, struct{ in, out int64 }{inputTokens, outputTokens})
	return nil
}

func (m *mockRuntimeStore) GetTask(_ context.Context, taskID string) (*store.Task, error) {
	if t, ok := m.tasks[taskID]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("task not found: %s", taskID)
}

func (m *mockRuntimeStore) CreateTask(_ context.Context, title, description string, parentTaskID *string) (*store.Task, error) {
	m.counter++
	t := &store.Task{
		TaskID:       fmt.Sprintf("task-%d", m.counter),
		ParentTaskID: parentTaskID,
		Title:        title,
		Description:  description,
		Status:       store.TaskStatusPending,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	m.tasks[t.TaskID] = t
	return t, nil
}

func (m *mockRuntimeStore) AssignTask(_ context.Context, taskID, agentID string) (*store.Task, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	t.AssignedTo = &agentID
	t.Status = store.TaskStatusAssigned
	if a, ok := m.agents[agentID]; ok {
		a.TaskID = &t.TaskID
	}
	if m.onAssign != nil {
		m.onAssign(t)
	}
	return t, nil
}

func (m *mockRuntimeStore) CompleteTask(_ context.Context, taskID, result string) (*store.Task, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	t.Status = store.TaskStatusCompleted
	t.Result = &result
	return t, nil
}

func (m *mockRuntimeStore) GetAgentTasks(_ context.Context, agentID string) ([]*store.Task, error) {
	var out []*store.Task
	for _, t := range m.tasks {
		if t.AssignedTo != nil && *t.AssignedTo == agentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRuntimeStore) SendMessage(_ context.Context, fromAgent, toAgent, content string, msgType store.MessageType, threadID string, priority store.MessagePriority) (*store.Message, error) {
	msg := &store.Message{
		MessageID: fmt.Sprintf("msg-%d", len(m.sentMessages)+1),
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Content:   content,
		Type:      msgType,
		ThreadID:  threadID,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	m.sentMessages = append(m.sentMessages, msg)
	return msg, nil
}

func (m *mockRuntimeStore) CheckInboxPreviews(_ context.Context, _ string, _ int) ([]*store.MessagePreview, error) {
	return nil, nil
}

func (m *mockRuntimeStore) ReadMessage(_ context.Context, messageID string) (*store.Message, error) {
	return nil, fmt.Errorf("message not found: %s", messageID)
}

func (m *mockRuntimeStore) CreateCheckpoint(_ context.Context, agentID string, summary store.CheckpointSummary, resume store.ResumePointer, tokensUsed int64) (*store.Checkpoint, error) {
	cp := &store.Checkpoint{
		CheckpointID:  fmt.Sprintf("cp-%d", len(m.checkpoints)+1),
		AgentID:       agentID,
		Summary:       summary,
		ResumePointer: resume,
		TokensUsed:    tokensUsed,
		CreatedAt:     time.Now().UTC(),
	}
	m.checkpoints = append(m.checkpoints, cp)
	return cp, nil
}

// mockLLM implements LLM for testing
type mockLLM struct {
	callOnceFunc func(call int, systemPrompt, userPrompt string) (llm.TextResult, error)
	runFunc      func(systemPrompt, userPrompt string, onEvent llm.EventFunc) (llm.Result, error)

	callOnceCalls   int
	callOncePrompts []string
}

func (m *mockLLM) CallOnce(_ context.Context, systemPrompt, userPrompt string) (llm.TextResult, error) {
	m.callOnceCalls++
	m.callOncePrompts = append(m.callOncePrompts, userPrompt)
	if m.callOnceFunc != nil {
		return m.callOnceFunc(m.callOnceCalls, systemPrompt, userPrompt)
	}
	return llm.TextResult{Text: "ok"}, nil
}

func (m *mockLLM) Run(_ context.Context, _, _ string, _ llm.Dispatcher, onEvent llm.EventFunc) (llm.Result, error) {
	if m.runFunc != nil {
		return m.runFunc("", "", onEvent)
	}
	return llm.Result{FinalText: "done", StopReason: "end_turn", Turns: 1}, nil
}

func newTestRunner(st Store, client LLM) *Runner {
	return NewRunner(st, client, config.RuntimeConfig{DirectorWaitTimeout: 500 * time.Millisecond}, logger.NewNop())
}

func seedDirector(st *mockRuntimeStore) *store.Agent {
	rootID := "task-root"
	st.tasks[rootID] = &store.Task{
		TaskID:      rootID,
		Title:       "Research MongoDB agent coordination patterns",
		Description: "survey the coordination approaches and write them up",
		Status:      store.TaskStatusInProgress,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	dir := &store.Agent{
		AgentID:   "dir-1",
		Type:      store.AgentTypeDirector,
		Status:    store.AgentStatusIdle,
		TaskID:    &rootID,
		CreatedAt: time.Now().UTC(),
	}
	st.agents[dir.AgentID] = dir
	return dir
}

func checkpointPhases(cps []*store.Checkpoint) []string {
	var phases []string
	for _, cp := range cps {
		phases = append(phases, cp.ResumePointer.Phase)
	}
	return phases
}

func TestDirectorLoopSpawnsAssignsAndAggregates(t *testing.T) {
	st := newMockRuntimeStore()
	seedDirector(st)

	// Assignment immediately completes the subtask, standing in for the
	// watcher-launched specialist, so the wait loop returns on its first
	// pass.
	st.onAssign = func(task *store.Task) {
		result := "result for " + task.Title
		task.Status = store.TaskStatusCompleted
		task.Result = &result
	}

	ml := &mockLLM{
		callOnceFunc: func(call int, _, _ string) (llm.TextResult, error) {
			if call == 1 {
				return llm.TextResult{
					Text: `{"subtasks":[` +
						`{"title":"Find docs","description":"search for docs","specialization":"researcher"},` +
						`{"title":"Summarize","description":"write it up","specialization":"writer"}]}`,
					InputTokens:  100,
					OutputTokens: 40,
				}, nil
			}
			return llm.TextResult{Text: "executive summary", InputTokens: 200, OutputTokens: 80}, nil
		},
	}

	if err := newTestRunner(st, ml).Run(context.Background(), "dir-1", nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var specialists []*store.Agent
	for _, a := range st.agents {
		if a.Type == store.AgentTypeSpecialist {
			specialists = append(specialists, a)
		}
	}
	if len(specialists) != 2 {
		t.Fatalf("expected 2 specialists spawned, got %d", len(specialists))
	}
	for _, s := range specialists {
		if s.ParentID == nil || *s.ParentID != "dir-1" {
			t.Errorf("specialist %s parentId = %v, want dir-1", s.AgentID, s.ParentID)
		}
		if s.TaskID == nil {
			t.Errorf("specialist %s taskId never stamped by AssignTask", s.AgentID)
		}
	}

	if len(st.sentMessages) != 2 {
		t.Fatalf("expected 2 task messages to specialists, got %d", len(st.sentMessages))
	}
	for _, msg := range st.sentMessages {
		if msg.Type != store.MessageTypeTask {
			t.Errorf("message type = %s, want task", msg.Type)
		}
	}

	phases := checkpointPhases(st.checkpoints)
	want := []string{"spawning", "waiting", "complete"}
	if len(phases) != len(want) {
		t.Fatalf("checkpoint phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("checkpoint[%d] phase = %q, want %q", i, phases[i], want[i])
		}
	}

	if ml.callOnceCalls != 2 {
		t.Fatalf("expected decompose + summarize calls, got %d", ml.callOnceCalls)
	}
	summarizePrompt := ml.callOncePrompts[1]
	if !strings.Contains(summarizePrompt, "## Find docs") || !strings.Contains(summarizePrompt, "## Summarize") {
		t.Errorf("summarize prompt missing aggregated subtask headings:\n%s", summarizePrompt)
	}

	if len(st.tokenAdds) != 2 {
		t.Errorf("expected token usage persisted for both LLM calls, got %d", len(st.tokenAdds))
	}
	if len(st.statusCalls) != 2 || st.statusCalls[0] != store.AgentStatusWorking || st.statusCalls[1] != store.AgentStatusCompleted {
		t.Errorf("agent status calls = %v, want [working completed]", st.statusCalls)
	}
}

func TestDirectorLoopParseFailureFallsBackToSingleGeneralSubtask(t *testing.T) {
	st := newMockRuntimeStore()
	seedDirector(st)
	st.onAssign = func(task *store.Task) {
		result := "done"
		task.Status = store.TaskStatusCompleted
		task.Result = &result
	}

	ml := &mockLLM{
		callOnceFunc: func(call int, _, _ string) (llm.TextResult, error) {
			if call == 1 {
				return llm.TextResult{Text: "I think we should just wing it, no JSON here."}, nil
			}
			return llm.TextResult{Text: "summary"}, nil
		},
	}

	if err := newTestRunner(st, ml).Run(context.Background(), "dir-1", nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var specialists []*store.Agent
	for _, a := range st.agents {
		if a.Type == store.AgentTypeSpecialist {
			specialists = append(specialists, a)
		}
	}
	if len(specialists) != 1 {
		t.Fatalf("expected exactly 1 fallback specialist, got %d", len(specialists))
	}
	if specialists[0].Specialization == nil || *specialists[0].Specialization != store.SpecializationGeneral {
		t.Errorf("fallback specialization = %v, want general", specialists[0].Specialization)
	}
	task, err := st.GetTask(context.Background(), *specialists[0].TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "Complete task" {
		t.Errorf("fallback task title = %q, want \"Complete task\"", task.Title)
	}
}

func TestSpecialistLoopPersistsTokensPerTurnAndReportsToParent(t *testing.T) {
	st := newMockRuntimeStore()
	parent := "dir-1"
	taskID := "task-1"
	spec := store.SpecializationResearcher
	st.tasks[taskID] = &store.Task{
		TaskID:      taskID,
		Title:       "Find docs",
		Description: "search for docs",
		Status:      store.TaskStatusInProgress,
		AssignedTo:  strPtr("spec-1"),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	st.agents["spec-1"] = &store.Agent{
		AgentID:        "spec-1",
		Type:           store.AgentTypeSpecialist,
		Specialization: &spec,
		Status:         store.AgentStatusIdle,
		ParentID:       &parent,
		TaskID:         &taskID,
		CreatedAt:      time.Now().UTC(),
	}

	ml := &mockLLM{
		runFunc: func(_, _ string, onEvent llm.EventFunc) (llm.Result, error) {
			onEvent(llm.Event{Kind: llm.EventTurnDone, StopReason: "tool_use", InputTokens: 10, OutputTokens: 5})
			onEvent(llm.Event{Kind: llm.EventTurnDone, StopReason: "end_turn", InputTokens: 20, OutputTokens: 8})
			return llm.Result{FinalText: "the answer", StopReason: "end_turn", InputTokens: 30, OutputTokens: 13, Turns: 2}, nil
		},
	}

	if err := newTestRunner(st, ml).Run(context.Background(), "spec-1", nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(st.tokenAdds) != 2 {
		t.Fatalf("expected one AddTokens per turn, got %d", len(st.tokenAdds))
	}
	if st.tokenAdds[0].in != 10 || st.tokenAdds[0].out != 5 || st.tokenAdds[1].in != 20 || st.tokenAdds[1].out != 8 {
		t.Errorf("per-turn token adds = %v, want the per-turn deltas", st.tokenAdds)
	}

	if len(st.checkpoints) != 1 || st.checkpoints[0].ResumePointer.Phase != "complete" {
		t.Fatalf("checkpoints = %v, want one with phase complete", checkpointPhases(st.checkpoints))
	}
	if st.checkpoints[0].TokensUsed != 43 {
		t.Errorf("checkpoint tokensUsed = %d, want 43", st.checkpoints[0].TokensUsed)
	}

	if len(st.sentMessages) != 1 {
		t.Fatalf("expected one result message to the parent, got %d", len(st.sentMessages))
	}
	msg := st.sentMessages[0]
	if msg.ToAgent != parent || msg.Type != store.MessageTypeResult || msg.Content != "the answer" {
		t.Errorf("result message = %+v, want the final text sent to dir-1", msg)
	}

	if len(st.statusCalls) != 2 || st.statusCalls[0] != store.AgentStatusWorking || st.statusCalls[1] != store.AgentStatusCompleted {
		t.Errorf("agent status calls = %v, want [working completed]", st.statusCalls)
	}
}

func strPtr(s string) *string { return &s }
