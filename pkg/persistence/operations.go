package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autoninja/pkg/utils"
)

// ErrNotFound is returned when a job or record does not exist.
var ErrNotFound = errors.New("not found")

// Store provides the database operations used by the pipeline and the HTTP
// handlers.
type Store struct {
	db     *sql.DB
	tokens *utils.TokenCounter
}

// NewStore creates a Store over an open database. A nil token counter falls
// back to length-based token estimates.
func NewStore(db *sql.DB, tokens *utils.TokenCounter) *Store {
	return &Store{db: db, tokens: tokens}
}

// DB exposes the underlying connection for subsystems that share it, like the
// throttle lease store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertJob records a new pipeline run in the running state. An existing id
// is reset to running with its failure fields cleared: re-submitting a job
// restarts every stage, and the earlier stage records stay as audit history.
func (s *Store) InsertJob(ctx context.Context, jobID, request string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        jobID,
		Request:   request,
		Status:    JobStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, request, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			request = excluded.request,
			status = excluded.status,
			failure_stage = NULL,
			error_message = NULL,
			updated_at = excluded.updated_at`,
		job.ID, job.Request, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job %s: %w", jobID, err)
	}
	return job, nil
}

// UpdateJobStatus moves a job to a terminal or intermediate status.
// failureStage and errMsg may be empty for successful transitions.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID, status, failureStage, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, failure_stage = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, nullable(failureStage), nullable(errMsg), time.Now().UTC(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	var failureStage, errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, request, status, failure_stage, error_message, created_at, updated_at
		 FROM jobs WHERE id = ?`, jobID,
	).Scan(&job.ID, &job.Request, &job.Status, &failureStage, &errMsg, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	job.FailureStage = failureStage.String
	job.ErrorMessage = errMsg.String
	return &job, nil
}

// LogStageInput writes the input half of a stage record before the
// collaborator is invoked. The returned token is used to complete the record.
func (s *Store) LogStageInput(ctx context.Context, jobID, stage, collaboratorID, model, inputText string) (RecordToken, error) {
	recordID := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_records
			(id, job_id, stage, collaborator_id, model, status, input_text, input_tokens, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordID, jobID, stage, collaboratorID, model,
		RecordStatusInProgress, inputText, s.tokens.CountTokens(inputText), time.Now().UTC(),
	)
	if err != nil {
		return RecordToken{}, fmt.Errorf("failed to log stage input for job %s stage %s: %w", jobID, stage, err)
	}
	return RecordToken{RecordID: recordID}, nil
}

// LogStageOutput completes a stage record with the collaborator's response.
func (s *Store) LogStageOutput(ctx context.Context, token RecordToken, outputText string, attempts int, artifactURI string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_records
		 SET status = ?, output_text = ?, output_tokens = ?, attempts = ?, artifact_uri = ?, completed_at = ?
		 WHERE id = ?`,
		RecordStatusSuccess, outputText, s.tokens.CountTokens(outputText),
		attempts, nullable(artifactURI), time.Now().UTC(), token.RecordID,
	)
	if err != nil {
		return fmt.Errorf("failed to log stage output for record %s: %w", token.RecordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stage record %s: %w", token.RecordID, ErrNotFound)
	}
	return nil
}

// LogStageError completes a stage record with a failure.
func (s *Store) LogStageError(ctx context.Context, token RecordToken, stageErr error, attempts int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_records
		 SET status = ?, error_message = ?, attempts = ?, completed_at = ?
		 WHERE id = ?`,
		RecordStatusError, stageErr.Error(), attempts, time.Now().UTC(), token.RecordID,
	)
	if err != nil {
		return fmt.Errorf("failed to log stage error for record %s: %w", token.RecordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stage record %s: %w", token.RecordID, ErrNotFound)
	}
	return nil
}

// GetStageRecords returns all stage records for a job ordered by start time.
func (s *Store) GetStageRecords(ctx context.Context, jobID string) ([]*StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, stage, collaborator_id, model, status, input_text, input_tokens,
		        output_text, output_tokens, attempts, error_message, artifact_uri,
		        started_at, completed_at
		 FROM stage_records WHERE job_id = ? ORDER BY started_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage records for job %s: %w", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []*StageRecord
	for rows.Next() {
		var rec StageRecord
		var outputText, errMsg, artifactURI sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.Stage, &rec.CollaboratorID, &rec.Model, &rec.Status,
			&rec.InputText, &rec.InputTokens, &outputText, &rec.OutputTokens,
			&rec.Attempts, &errMsg, &artifactURI, &rec.StartedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stage record: %w", err)
		}
		rec.OutputText = outputText.String
		rec.ErrorMessage = errMsg.String
		rec.ArtifactURI = artifactURI.String
		if completedAt.Valid {
			t := completedAt.Time
			rec.CompletedAt = &t
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stage records: %w", err)
	}
	return records, nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
