// Package board implements the nup-kan task board, the first client system
// behind the auth gateway. Identity is mirrored from the registry; the board
// never stores credentials of its own.
package board

import "time"

// Task statuses follow the board's column layout.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task is one card on the board.
type Task struct {
	ID          int64      `json:"id"`
	TeamID      int64      `json:"teamId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	AssigneeID  *int64     `json:"assigneeId,omitempty"`
	CreatedBy   int64      `json:"createdBy"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Team is a group of users sharing a board.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
