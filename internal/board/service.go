package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrValidation indicates a rejected task payload.
var ErrValidation = errors.New("board: validation failed")

var validStatuses = map[string]struct{}{
	StatusTodo:       {},
	StatusInProgress: {},
	StatusDone:       {},
}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	ListTasks(ctx context.Context, userID int64, status string) ([]Task, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	CreateTask(ctx context.Context, task Task) (Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status string) (Task, error)
}

// Service implements the board's task operations. Authorization happens in
// the gateway middleware before any of these run; the service only enforces
// payload and state rules.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the board service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListTasks returns the caller's visible tasks, optionally filtered by
// status.
func (s *Service) ListTasks(ctx context.Context, userID int64, status string) ([]Task, error) {
	if status != "" {
		if _, ok := validStatuses[status]; !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
	}
	return s.repo.ListTasks(ctx, userID, status)
}

// GetTask returns one card.
func (s *Service) GetTask(ctx context.Context, id int64) (Task, error) {
	return s.repo.GetTask(ctx, id)
}

// CreateTask validates and persists a new card. New cards always start in
// the todo column.
func (s *Service) CreateTask(ctx context.Context, task Task) (Task, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return Task{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if task.TeamID <= 0 {
		return Task{}, fmt.Errorf("%w: team required", ErrValidation)
	}
	task.Status = StatusTodo
	return s.repo.CreateTask(ctx, task)
}

// MoveTask transitions a card to a new column.
func (s *Service) MoveTask(ctx context.Context, id int64, status string) (Task, error) {
	if _, ok := validStatuses[status]; !ok {
		return Task{}, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if _, err := s.repo.GetTask(ctx, id); err != nil {
		return Task{}, err
	}
	return s.repo.UpdateTaskStatus(ctx, id, status)
}
