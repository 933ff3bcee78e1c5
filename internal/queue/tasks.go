package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/printflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeProcessPrint = "print:process"

type ProcessPrintPayload struct {
	JobID       string              `json:"job_id"`
	UserID      string              `json:"user_id,omitempty"`
	WebhookURL  string              `json:"webhook_url,omitempty"`
	SourceKey   string              `json:"source_key"`
	Crop        *domain.CropRegion  `json:"crop,omitempty"`
	Options     domain.PrintOptions `json:"options"`
	RequestedAt time.Time           `json:"requested_at"`
}

func NewProcessPrintTask(payload ProcessPrintPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.JobID) == "" {
		return nil, errors.New("job_id is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal print payload: %w", err)
	}
	return asynq.NewTask(TypeProcessPrint, body), nil
}

func ParseProcessPrintPayload(task *asynq.Task) (ProcessPrintPayload, error) {
	var payload ProcessPrintPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessPrintPayload{}, fmt.Errorf("unmarshal print payload: %w", err)
	}
	if strings.TrimSpace(payload.JobID) == "" || strings.TrimSpace(payload.SourceKey) == "" {
		return ProcessPrintPayload{}, errors.New("print payload is missing job_id or source_key")
	}
	return payload, nil
}
