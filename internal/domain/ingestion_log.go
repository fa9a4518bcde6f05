package domain

import (
	"time"

	"github.com/google/uuid"
)

// IngestionLogEntry captures a skipped roll call or ballot during a run.
type IngestionLogEntry struct {
	ID           uuid.UUID `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	Year         int       `json:"year"`
	RollCall     int       `json:"roll_call"`
	Stage        Stage     `json:"stage"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewIngestionLogEntry builds an entry for err raised while handling rollCall.
func NewIngestionLogEntry(runID uuid.UUID, year, rollCall int, stage Stage, err error) IngestionLogEntry {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return IngestionLogEntry{
		ID:           uuid.New(),
		RunID:        runID,
		Year:         year,
		RollCall:     rollCall,
		Stage:        stage,
		ErrorMessage: message,
		CreatedAt:    time.Now(),
	}
}
