package sync

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// TaskManifestSync is the asynq task type for periodic reconciliation.
const TaskManifestSync = "sync:manifest"

// NewManifestSyncTask constructs the periodic reconciliation task. The task
// carries no payload; the reconciler always reads the manifest from disk.
func NewManifestSyncTask() *asynq.Task {
	return asynq.NewTask(TaskManifestSync, nil)
}

// TaskHandler adapts a Reconciler to an asynq handler.
type TaskHandler struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(reconciler *Reconciler, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{reconciler: reconciler, logger: logger}
}

// Handle runs one reconciliation. Errors are returned so asynq applies its
// own retry policy on top of the reconciler's short in-process retries.
func (h *TaskHandler) Handle(ctx context.Context, _ *asynq.Task) error {
	result, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("scheduled manifest sync failed", slog.Any("error", err))
		}
		return err
	}
	if result.Skipped && h.logger != nil {
		h.logger.Debug("scheduled manifest sync skipped, manifest unchanged")
	}
	return nil
}
