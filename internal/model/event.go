package model

// JobUpdateEvent is the name of the hub event carrying job status changes.
const JobUpdateEvent = "JobUpdate"

// JobUpdate is a status change pushed by the backend for one job. The job id
// equals the project id.
type JobUpdate struct {
	Error  string        `json:"error,omitempty"`
	Status ProjectStatus `json:"status"`
	JobID  int64         `json:"jobId"`
}

// QueuedJob is the backend's acknowledgement that an analysis was queued.
type QueuedJob struct {
	Status ProjectStatus `json:"status"`
	JobID  int64         `json:"jobId"`
}
