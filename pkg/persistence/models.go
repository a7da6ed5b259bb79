package persistence

import "time"

// Job status constants.
const (
	JobStatusRunning          = "running"
	JobStatusDeployed         = "deployed"
	JobStatusValidationFailed = "validation_failed"
	JobStatusError            = "error"
)

// Stage record status constants.
const (
	RecordStatusInProgress = "in_progress"
	RecordStatusSuccess    = "success"
	RecordStatusError      = "error"
)

// Job represents one pipeline run.
type Job struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ID           string    `json:"id"`
	Request      string    `json:"request"`
	Status       string    `json:"status"`
	FailureStage string    `json:"failure_stage,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// StageRecord is the audit trail for one stage invocation. The input half is
// written before the collaborator is called; the output half is filled in on
// completion, so an interrupted run still shows what was sent.
type StageRecord struct {
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ID             string     `json:"id"`
	JobID          string     `json:"job_id"`
	Stage          string     `json:"stage"`
	CollaboratorID string     `json:"collaborator_id"`
	Model          string     `json:"model"`
	Status         string     `json:"status"`
	InputText      string     `json:"input_text"`
	OutputText     string     `json:"output_text,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ArtifactURI    string     `json:"artifact_uri,omitempty"`
	InputTokens    int        `json:"input_tokens"`
	OutputTokens   int        `json:"output_tokens"`
	Attempts       int        `json:"attempts"`
}

// RecordToken identifies an open stage record awaiting its output half.
type RecordToken struct {
	RecordID string
}
