package adapter

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// TaskAdapter handles phone call and voicemail steps. These channels
// only surface a task for the rep, so the step completes as soon as it
// executes.
type TaskAdapter struct {
	Logger *log.Logger
}

func NewTaskAdapter(logger *log.Logger) *TaskAdapter {
	return &TaskAdapter{Logger: logger}
}

func (a *TaskAdapter) Execute(ctx context.Context, req Request) (Result, error) {
	a.Logger.Printf("Created %s task for contact %d (step %d)", req.Step.Channel, req.Contact.ID, req.Step.ID)
	return Result{MessageID: uuid.New().String(), Completed: true}, nil
}
