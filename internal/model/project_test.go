package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectStatus_Predicates(t *testing.T) {
	tests := []struct {
		status       ProjectStatus
		needsMapping bool
		inFlight     bool
		terminal     bool
		failed       bool
	}{
		{status: StatusQueued, inFlight: true},
		{status: StatusProcessing, inFlight: true},
		{status: StatusReadyForMapping, needsMapping: true},
		{status: StatusMappingInProgress, needsMapping: true},
		{status: StatusAnalysisComplete, terminal: true},
		{status: StatusFailed, terminal: true, failed: true},
		{status: "Failed: invalid header row", terminal: true, failed: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.needsMapping, tt.status.NeedsMapping())
			assert.Equal(t, tt.inFlight, tt.status.IsInFlight())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.failed, tt.status.IsFailed())
		})
	}
}

func TestProjectStatus_FailureReason(t *testing.T) {
	assert.Equal(t, "invalid header row", ProjectStatus("Failed: invalid header row").FailureReason())
	assert.Equal(t, "", StatusFailed.FailureReason())
	assert.Equal(t, "", StatusProcessing.FailureReason())
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, StatusAnalysisComplete, NormalizeStatus("Completed"))
	assert.Equal(t, StatusAnalysisComplete, NormalizeStatus(" Analysis Complete "))
	assert.Equal(t, StatusQueued, NormalizeStatus("Queued"))
}

func TestProject_UnmarshalJSON(t *testing.T) {
	payload := `[
		{"id": 42, "originalFileName": "Q1.csv", "uploadedAt": "2025-03-01T10:15:00.1234567", "status": "Ready for Mapping"},
		{"id": 7, "originalFileName": "Q4.csv", "uploadedAt": "2024-12-31T08:00:00Z", "status": "Completed"}
	]`

	var projects []Project
	require.NoError(t, json.Unmarshal([]byte(payload), &projects))
	require.Len(t, projects, 2)

	assert.Equal(t, int64(42), projects[0].ID)
	assert.Equal(t, StatusReadyForMapping, projects[0].Status)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 15, 0, 123456700, time.UTC), projects[0].UploadedAt.Time)
	assert.Equal(t, StatusAnalysisComplete, projects[1].Status)

	p, ok := FindProject(projects, 7)
	require.True(t, ok)
	assert.Equal(t, "Q4.csv", p.OriginalFileName)

	_, ok = FindProject(projects, 99)
	assert.False(t, ok)
}

func TestTimestamp_Invalid(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
	assert.True(t, ts.IsZero())
}
