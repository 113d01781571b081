package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/squadlite/squadlite/internal/common/errors"
)

// allowedTaskTransitions is the task status DAG: pending -> assigned ->
// in_progress -> {completed, failed}. No backward transitions.
var allowedTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusAssigned},
	TaskStatusAssigned:   {TaskStatusInProgress},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusCompleted:  {},
	TaskStatusFailed:     {},
}

func isTerminal(s TaskStatus) bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CreateTask inserts a new pending task, optionally as a subtask of
// parentTaskID.
func (s *Store) CreateTask(ctx context.Context, title, description string, parentTaskID *string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		TaskID:       uuid.New().String(),
		ParentTaskID: parentTaskID,
		Title:        title,
		Description:  description,
		Status:       TaskStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.tasks.InsertOne(ctx, task); err != nil {
		return nil, fmt.Errorf("store: create task: %w", err)
	}
	return task, nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	err := s.tasks.FindOne(ctx, bson.D{{Key: "taskId", Value: taskID}}).Decode(&task)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NotFound("task", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	return &task, nil
}

// AssignTask transitions a pending task to assigned, setting the task's
// assignedTo and, symmetrically, the assignee's taskId so readers of the
// agent record see the assignment immediately.
func (s *Store) AssignTask(ctx context.Context, taskID, agentID string) (*Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != TaskStatusPending {
		return nil, errors.TransitionViolation(fmt.Sprintf("task %s: cannot assign from status %s", taskID, task.Status))
	}

	now := time.Now().UTC()
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "assignedTo", Value: agentID},
		{Key: "status", Value: TaskStatusAssigned},
		{Key: "updatedAt", Value: now},
	}}}
	if _, err := s.tasks.UpdateOne(ctx, bson.D{{Key: "taskId", Value: taskID}}, update); err != nil {
		return nil, fmt.Errorf("store: assign task: %w", err)
	}

	if _, err := s.agents.UpdateOne(ctx,
		bson.D{{Key: "agentId", Value: agentID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "taskId", Value: taskID},
			{Key: "lastHeartbeat", Value: now},
		}}},
	); err != nil {
		return nil, fmt.Errorf("store: assign task to agent: %w", err)
	}

	task.AssignedTo = &agentID
	task.Status = TaskStatusAssigned
	task.UpdatedAt = now
	return task, nil
}

// UpdateStatus enforces the allowed-transitions DAG before writing
// newStatus, optionally attaching a terminal result.
func (s *Store) UpdateStatus(ctx context.Context, taskID string, newStatus TaskStatus, result *string) (*Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if isTerminal(task.Status) {
		return nil, errors.TransitionViolation(fmt.Sprintf("task %s: already terminal (%s)", taskID, task.Status))
	}
	if !transitionAllowed(task.Status, newStatus) {
		return nil, errors.TransitionViolation(fmt.Sprintf("task %s: illegal transition %s -> %s", taskID, task.Status, newStatus))
	}

	now := time.Now().UTC()
	setFields := bson.D{{Key: "status", Value: newStatus}, {Key: "updatedAt", Value: now}}
	if result != nil {
		setFields = append(setFields, bson.E{Key: "result", Value: *result})
	}

	if _, err := s.tasks.UpdateOne(ctx,
		bson.D{{Key: "taskId", Value: taskID}},
		bson.D{{Key: "$set", Value: setFields}},
	); err != nil {
		return nil, fmt.Errorf("store: update task status: %w", err)
	}

	task.Status = newStatus
	task.UpdatedAt = now
	task.Result = result
	return task, nil
}

func transitionAllowed(from, to TaskStatus) bool {
	for _, candidate := range allowedTaskTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CompleteTask transitions any non-terminal task straight to completed
// with result attached, regardless of its current non-terminal status.
func (s *Store) CompleteTask(ctx context.Context, taskID, result string) (*Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if isTerminal(task.Status) {
		return nil, errors.TransitionViolation(fmt.Sprintf("task %s: already terminal (%s)", taskID, task.Status))
	}

	now := time.Now().UTC()
	if _, err := s.tasks.UpdateOne(ctx,
		bson.D{{Key: "taskId", Value: taskID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: TaskStatusCompleted},
			{Key: "result", Value: result},
			{Key: "updatedAt", Value: now},
		}}},
	); err != nil {
		return nil, fmt.Errorf("store: complete task: %w", err)
	}

	task.Status = TaskStatusCompleted
	task.Result = &result
	task.UpdatedAt = now
	return task, nil
}

// GetAgentTasks returns every task assigned to agentID.
func (s *Store) GetAgentTasks(ctx context.Context, agentID string) ([]*Task, error) {
	cur, err := s.tasks.Find(ctx, bson.D{{Key: "assignedTo", Value: agentID}})
	if err != nil {
		return nil, fmt.Errorf("store: get agent tasks: %w", err)
	}
	defer cur.Close(ctx)

	var tasks []*Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("store: decode agent tasks: %w", err)
	}
	return tasks, nil
}

// ListTasksByStatus returns tasks whose status is one of the given set,
// oldest first. It does not filter on assignedTo.
func (s *Store) ListTasksByStatus(ctx context.Context, statuses ...TaskStatus) ([]*Task, error) {
	cur, err := s.tasks.Find(ctx,
		bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: statuses}}}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks by status: %w", err)
	}
	defer cur.Close(ctx)

	var tasks []*Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("store: decode tasks: %w", err)
	}
	return tasks, nil
}

// ListAllTasks returns every task, newest first — used by the REST listing
// endpoint.
func (s *Store) ListAllTasks(ctx context.Context) ([]*Task, error) {
	cur, err := s.tasks.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("store: list all tasks: %w", err)
	}
	defer cur.Close(ctx)

	var tasks []*Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("store: decode tasks: %w", err)
	}
	return tasks, nil
}
