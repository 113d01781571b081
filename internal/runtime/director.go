package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/llm"
	"github.com/squadlite/squadlite/internal/store"
)

const (
	directorWaitPollInterval = 2 * time.Second
	directorWaitTimeout      = 120 * time.Second
)

type subtask struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Specialization string `json:"specialization"`
}

type decomposition struct {
	Subtasks []subtask `json:"subtasks"`
}

// runDirector implements the director orchestration loop: decompose via
// the LLM, spawn and assign a specialist per subtask, wait for completion,
// aggregate results, and summarize.
func (r *Runner) runDirector(ctx context.Context, agent *store.Agent, task *store.Task, onEvent llm.EventFunc) error {
	if task == nil {
		return fmt.Errorf("runtime: director %s has no assigned task", agent.AgentID)
	}
	log := r.logger.WithFields(zap.String("agent_id", agent.AgentID), zap.String("task_id", task.TaskID))

	// 1. Decompose
	plan, tokensIn, tokensOut, err := r.decompose(ctx, task)
	if err != nil {
		return err
	}
	if err := r.store.AddTokens(ctx, agent.AgentID, tokensIn, tokensOut); err != nil {
		log.Warn("failed to persist decompose token usage", zap.Error(err))
	}
	if _, err := r.store.CreateCheckpoint(ctx, agent.AgentID,
		store.CheckpointSummary{Goal: task.Title, Pending: subtaskTitles(plan.Subtasks)},
		store.ResumePointer{NextAction: "spawn specialists", Phase: "spawning"},
		tokensIn+tokensOut,
	); err != nil {
		log.Warn("failed to write spawning checkpoint", zap.Error(err))
	}

	// 2. Spawn + assign
	spawnedIDs, err := r.spawnSpecialists(ctx, agent.AgentID, plan.Subtasks)
	if err != nil {
		return err
	}
	if _, err := r.store.CreateCheckpoint(ctx, agent.AgentID,
		store.CheckpointSummary{Goal: task.Title, Completed: []string{"spawned " + strings.Join(spawnedIDs, ", ")}},
		store.ResumePointer{NextAction: "wait for specialists", Phase: "waiting"},
		0,
	); err != nil {
		log.Warn("failed to write waiting checkpoint", zap.Error(err))
	}

	// 3. Wait
	results, err := r.waitForSpecialists(ctx, spawnedIDs)
	if err != nil {
		return err
	}

	// 4. Aggregate
	aggregated := aggregateResults(plan.Subtasks, results)

	// 5. Summarize
	summary, sIn, sOut, err := r.summarize(ctx, task, aggregated)
	if err != nil {
		return err
	}
	if err := r.store.AddTokens(ctx, agent.AgentID, sIn, sOut); err != nil {
		log.Warn("failed to persist summarize token usage", zap.Error(err))
	}

	// 6. Emit sentinel-wrapped output, final checkpoint
	fmt.Println("=== DIRECTOR OUTPUT ===")
	if aggregated != "" {
		fmt.Println(aggregated)
	}
	fmt.Println(summary)
	fmt.Println("=== END OUTPUT ===")

	if _, err := r.store.CreateCheckpoint(ctx, agent.AgentID,
		store.CheckpointSummary{Goal: task.Title, Completed: []string{"director run complete"}},
		store.ResumePointer{NextAction: "none", Phase: "complete"},
		tokensIn+tokensOut+sIn+sOut,
	); err != nil {
		log.Warn("failed to write complete checkpoint", zap.Error(err))
	}

	return nil
}

func (r *Runner) decompose(ctx context.Context, task *store.Task) (decomposition, int64, int64, error) {
	system := "You decompose a task into subtasks. Respond with JSON only, no prose, in the form " +
		`{"subtasks":[{"title":"...","description":"...","specialization":"researcher|writer|analyst|general"}]}.`

	out, err := r.llm.CallOnce(ctx, system, task.Title+"\n\n"+task.Description)
	if err != nil {
		return decomposition{}, 0, 0, err
	}

	plan, parseErr := parseDecomposition(out.Text)
	if parseErr != nil {
		plan = decomposition{Subtasks: []subtask{{Title: "Complete task", Description: task.Description, Specialization: "general"}}}
	}
	return plan, out.InputTokens, out.OutputTokens, nil
}

// parseDecomposition unmarshals the span of text from the first '{' to the
// last '}', recovering from the model wrapping JSON in prose.
func parseDecomposition(text string) (decomposition, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return decomposition{}, fmt.Errorf("runtime: no JSON object found in decomposition output")
	}
	var plan decomposition
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil {
		return decomposition{}, err
	}
	if len(plan.Subtasks) == 0 {
		return decomposition{}, fmt.Errorf("runtime: decomposition produced no subtasks")
	}
	return plan, nil
}

func subtaskTitles(subtasks []subtask) []string {
	titles := make([]string, 0, len(subtasks))
	for _, s := range subtasks {
		titles = append(titles, s.Title)
	}
	return titles
}

func (r *Runner) spawnSpecialists(ctx context.Context, directorID string, subtasks []subtask) ([]string, error) {
	ids := make([]string, 0, len(subtasks))
	for _, st := range subtasks {
		spec := store.Specialization(st.Specialization)
		specialist, err := r.store.RegisterAgent(ctx, "", store.AgentTypeSpecialist, &spec, &directorID)
		if err != nil {
			return nil, fmt.Errorf("runtime: spawn specialist: %w", err)
		}

		newTask, err := r.store.CreateTask(ctx, st.Title, st.Description, nil)
		if err != nil {
			return nil, fmt.Errorf("runtime: create subtask: %w", err)
		}
		if _, err := r.store.AssignTask(ctx, newTask.TaskID, specialist.AgentID); err != nil {
			return nil, fmt.Errorf("runtime: assign subtask: %w", err)
		}
		if _, err := r.store.SendMessage(ctx, directorID, specialist.AgentID, st.Title+"\n\n"+st.Description, store.MessageTypeTask, "", store.PriorityNormal); err != nil {
			return nil, fmt.Errorf("runtime: notify specialist: %w", err)
		}

		ids = append(ids, specialist.AgentID)
	}
	return ids, nil
}

type specialistResult struct {
	agentID string
	task    *store.Task
}

// waitForSpecialists polls every spawned specialist's task until every one
// is terminal or the configured timeout elapses; partial completion on
// timeout is acceptable per the orchestration contract.
func (r *Runner) waitForSpecialists(ctx context.Context, specialistIDs []string) ([]specialistResult, error) {
	deadline := time.Now().Add(r.waitTimeout)
	results := make(map[string]*store.Task, len(specialistIDs))

	for {
		allTerminal := true
		for _, id := range specialistIDs {
			if _, done := results[id]; done {
				continue
			}
			tasks, err := r.store.GetAgentTasks(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("runtime: poll specialist task: %w", err)
			}
			if len(tasks) == 0 {
				allTerminal = false
				continue
			}
			t := tasks[0]
			if t.Status == store.TaskStatusCompleted || t.Status == store.TaskStatusFailed {
				results[id] = t
			} else {
				allTerminal = false
			}
		}

		if allTerminal || time.Now().After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(directorWaitPollInterval):
		}
	}

	out := make([]specialistResult, 0, len(specialistIDs))
	for _, id := range specialistIDs {
		out = append(out, specialistResult{agentID: id, task: results[id]})
	}
	return out, nil
}

func aggregateResults(subtasks []subtask, results []specialistResult) string {
	var b strings.Builder
	for i, res := range results {
		title := "Subtask"
		if i < len(subtasks) {
			title = subtasks[i].Title
		}
		if res.task == nil || res.task.Status != store.TaskStatusCompleted || res.task.Result == nil {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", title, *res.task.Result)
	}
	return b.String()
}

func (r *Runner) summarize(ctx context.Context, task *store.Task, aggregated string) (string, int64, int64, error) {
	system := "You write a concise executive summary of completed subtask results for the original task."
	user := fmt.Sprintf("Original task:\n%s\n%s\n\nSubtask results:\n%s", task.Title, task.Description, aggregated)

	out, err := r.llm.CallOnce(ctx, system, user)
	if err != nil {
		return "", 0, 0, err
	}
	return out.Text, out.InputTokens, out.OutputTokens, nil
}
