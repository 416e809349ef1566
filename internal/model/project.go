// Package model defines the core domain models used throughout the application.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProjectStatus is the backend-reported lifecycle state of an uploaded project.
type ProjectStatus string

// Project status constants.
const (
	StatusQueued            ProjectStatus = "Queued"
	StatusProcessing        ProjectStatus = "Processing"
	StatusReadyForMapping   ProjectStatus = "Ready for Mapping"
	StatusMappingInProgress ProjectStatus = "Mapping in Progress"
	StatusAnalysisComplete  ProjectStatus = "Analysis Complete"
	StatusFailed            ProjectStatus = "Failed"

	// statusCompletedLegacy is still emitted by older backend builds.
	statusCompletedLegacy ProjectStatus = "Completed"
)

// NormalizeStatus maps wire aliases onto the canonical status values.
func NormalizeStatus(s string) ProjectStatus {
	status := ProjectStatus(strings.TrimSpace(s))
	if status == statusCompletedLegacy {
		return StatusAnalysisComplete
	}
	return status
}

// String returns the string representation of ProjectStatus.
func (s ProjectStatus) String() string {
	return string(s)
}

// IsFailed reports whether the status is a failure. The backend appends the
// failure reason to the status, e.g. "Failed: invalid header row".
func (s ProjectStatus) IsFailed() bool {
	return strings.HasPrefix(string(s), string(StatusFailed))
}

// FailureReason returns the reason suffix of a failed status, if any.
func (s ProjectStatus) FailureReason() string {
	if !s.IsFailed() {
		return ""
	}
	reason := strings.TrimPrefix(string(s), string(StatusFailed))
	return strings.TrimSpace(strings.TrimLeft(reason, ":- "))
}

// NeedsMapping reports whether the project waits for user account mappings.
func (s ProjectStatus) NeedsMapping() bool {
	return s == StatusReadyForMapping || s == StatusMappingInProgress
}

// IsInFlight reports whether the backend is still working on the project.
func (s ProjectStatus) IsInFlight() bool {
	return s == StatusQueued || s == StatusProcessing
}

// IsTerminal reports whether the project reached a final state.
func (s ProjectStatus) IsTerminal() bool {
	return s == StatusAnalysisComplete || s.IsFailed()
}

// UnmarshalJSON normalizes legacy status values on decode.
func (s *ProjectStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid project status: %w", err)
	}
	*s = NormalizeStatus(raw)
	return nil
}

// Project represents one uploaded trial balance and its analysis lifecycle.
type Project struct {
	UploadedAt       Timestamp     `json:"uploadedAt"`
	OriginalFileName string        `json:"originalFileName"`
	Status           ProjectStatus `json:"status"`
	ID               int64         `json:"id"`
}

// FindProject returns the project with the given id.
func FindProject(projects []Project, id int64) (Project, bool) {
	for _, p := range projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

// Timestamp decodes the backend's timestamps, which may omit the zone offset.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
