package push

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

// DecodeJobUpdate extracts the JobUpdate payload from an event.
func DecodeJobUpdate(ev Event) (model.JobUpdate, error) {
	if len(ev.Arguments) == 0 {
		return model.JobUpdate{}, fmt.Errorf("%s event without arguments", ev.Target)
	}
	var update model.JobUpdate
	if err := json.Unmarshal(ev.Arguments[0], &update); err != nil {
		return model.JobUpdate{}, fmt.Errorf("invalid %s payload: %w", ev.Target, err)
	}
	return update, nil
}

// JobUpdates adapts fn into a Handler for JobUpdate events. Malformed
// payloads are logged to logger (slog.Default when nil) and dropped.
func JobUpdates(logger *slog.Logger, fn func(model.JobUpdate)) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev Event) {
		update, err := DecodeJobUpdate(ev)
		if err != nil {
			logger.Warn("Dropping job update", "target", ev.Target, "error", err)
			return
		}
		fn(update)
	}
}
