package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autoninja/pkg/collab"
	"autoninja/pkg/collab/collaberrors"
	"autoninja/pkg/config"
	"autoninja/pkg/invoker"
	"autoninja/pkg/persistence"
	"autoninja/pkg/throttle"
)

type testEnv struct {
	pipeline *Pipeline
	store    *persistence.Store
	mocks    map[string]*collab.MockCollaborator
}

// newTestEnv wires a pipeline with mocks for all five roles, a zero-interval
// throttle, and a real SQLite store in a temp dir. overrides replaces the
// default mock per collaborator id.
func newTestEnv(t *testing.T, overrides map[string]*collab.MockCollaborator) *testEnv {
	t.Helper()

	db, err := persistence.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := persistence.NewStore(db, nil)

	mocks := make(map[string]*collab.MockCollaborator, 5)
	var collaborators []collab.Collaborator
	for _, id := range config.CollaboratorIDs() {
		mock, ok := overrides[id]
		if !ok {
			mock = collab.NewMockCollaborator(id)
		}
		mocks[id] = mock
		collaborators = append(collaborators, mock)
	}

	th := throttle.New(throttle.NewMemoryLeaseStore(), 0, "test")
	inv := invoker.New(th, config.DefaultMaxRetries, time.Millisecond,
		invoker.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		invoker.WithJitter(func() time.Duration { return 0 }),
	)

	return &testEnv{
		pipeline: New(collab.NewRegistry(collaborators...), inv, store, nil, false),
		store:    store,
		mocks:    mocks,
	}
}

func TestRunDeploysWhenValidationPasses(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.pipeline.Run(context.Background(), "I would like a friend agent", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Job.Status != persistence.JobStatusDeployed {
		t.Errorf("job status = %q, want deployed", result.Job.Status)
	}
	if len(result.Outputs) != 5 {
		t.Errorf("outputs = %d, want 5", len(result.Outputs))
	}
	if result.Verdict == nil || !result.Verdict.IsValid {
		t.Errorf("verdict = %+v", result.Verdict)
	}
	if env.mocks[config.CollabDeploymentManager].InvocationCount() != 1 {
		t.Error("deployment manager not invoked")
	}

	job, err := env.store.GetJob(context.Background(), result.Job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != persistence.JobStatusDeployed {
		t.Errorf("persisted status = %q", job.Status)
	}

	records, err := env.store.GetStageRecords(context.Background(), result.Job.ID)
	if err != nil {
		t.Fatalf("GetStageRecords failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("stage records = %d, want 5", len(records))
	}
	for i, stage := range Stages() {
		if records[i].Stage != stage {
			t.Errorf("record %d stage = %q, want %q", i, records[i].Stage, stage)
		}
		if records[i].Status != persistence.RecordStatusSuccess {
			t.Errorf("record %s status = %q", stage, records[i].Status)
		}
	}
}

func TestRunStopsWhenValidationFails(t *testing.T) {
	rejection := "```json\n{\"is_valid\": false, \"score\": 3, \"risk_level\": \"high\", \"issues\": [\"no error handling\"], \"recommendations\": []}\n```"
	env := newTestEnv(t, map[string]*collab.MockCollaborator{
		config.CollabQualityValidator: collab.NewMockCollaborator(
			config.CollabQualityValidator, collab.MockResponse{Text: rejection}),
	})

	result, err := env.pipeline.Run(context.Background(), "build a test agent", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Job.Status != persistence.JobStatusValidationFailed {
		t.Errorf("job status = %q, want validation_failed", result.Job.Status)
	}
	if len(result.Outputs) != 4 {
		t.Errorf("outputs = %d, want 4 (no deployment)", len(result.Outputs))
	}
	if result.Verdict == nil || result.Verdict.IsValid {
		t.Errorf("verdict = %+v", result.Verdict)
	}
	if result.Verdict.RiskLevel != "high" {
		t.Errorf("risk level = %q, want high", result.Verdict.RiskLevel)
	}
	if env.mocks[config.CollabDeploymentManager].InvocationCount() != 0 {
		t.Error("deployment manager must not run after a failed validation")
	}

	job, _ := env.store.GetJob(context.Background(), result.Job.ID)
	if job.Status != persistence.JobStatusValidationFailed {
		t.Errorf("persisted status = %q", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "no error handling") {
		t.Errorf("validation issues not recorded: %q", job.ErrorMessage)
	}
}

func TestRunStageInputComposition(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.pipeline.Run(context.Background(), "build a test agent", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Architecture sees the requirements document.
	archInput := env.mocks[config.CollabSolutionArchitect].Invocations[0]
	if !strings.Contains(archInput, result.Outputs[StageRequirements]) {
		t.Error("architecture input missing requirements document")
	}

	// Validation sees code and architecture, not the raw user request.
	valInput := env.mocks[config.CollabQualityValidator].Invocations[0]
	if !strings.Contains(valInput, result.Outputs[StageCode]) {
		t.Error("validation input missing code document")
	}
	if !strings.Contains(valInput, result.Outputs[StageArchitecture]) {
		t.Error("validation input missing architecture document")
	}

	// Deployment sees every upstream document plus the passed marker.
	depInput := env.mocks[config.CollabDeploymentManager].Invocations[0]
	for _, stage := range []string{StageRequirements, StageArchitecture, StageCode, StageValidation} {
		if !strings.Contains(depInput, result.Outputs[stage]) {
			t.Errorf("deployment input missing %s document", stage)
		}
	}
	if !strings.Contains(depInput, "VALIDATION STATUS: PASSED") {
		t.Error("deployment input missing validation marker")
	}
}

func TestRunStageOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.pipeline.Run(context.Background(), "build a test agent", ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, id := range config.CollaboratorIDs() {
		if env.mocks[id].InvocationCount() != 1 {
			t.Errorf("collaborator %s invoked %d times, want 1", id, env.mocks[id].InvocationCount())
		}
	}
}

func TestRunFailsJobOnRetryExhaustion(t *testing.T) {
	env := newTestEnv(t, map[string]*collab.MockCollaborator{
		config.CollabCodeGenerator: collab.NewMockCollaborator(
			config.CollabCodeGenerator).ThrottledTimes(100),
	})

	result, err := env.pipeline.Run(context.Background(), "build a test agent", "")
	if !collaberrors.Is(err, collaberrors.ErrorTypeRetryExhausted) {
		t.Fatalf("err = %v, want retry_exhausted", err)
	}
	if result.Job.Status != persistence.JobStatusError {
		t.Errorf("job status = %q, want error", result.Job.Status)
	}
	if result.Job.FailureStage != StageCode {
		t.Errorf("failure stage = %q, want CODE", result.Job.FailureStage)
	}

	job, _ := env.store.GetJob(context.Background(), result.Job.ID)
	if job.Status != persistence.JobStatusError || job.FailureStage != StageCode {
		t.Errorf("persisted job = %+v", job)
	}

	records, _ := env.store.GetStageRecords(context.Background(), result.Job.ID)
	last := records[len(records)-1]
	if last.Stage != StageCode || last.Status != persistence.RecordStatusError {
		t.Errorf("last record = %s/%s", last.Stage, last.Status)
	}
	if last.Attempts != config.DefaultMaxRetries {
		t.Errorf("attempts = %d, want %d", last.Attempts, config.DefaultMaxRetries)
	}

	// Downstream stages never ran.
	if env.mocks[config.CollabQualityValidator].InvocationCount() != 0 {
		t.Error("validator must not run after a failed code stage")
	}
}

func TestRunFailsJobOnUnusableValidationOutput(t *testing.T) {
	env := newTestEnv(t, map[string]*collab.MockCollaborator{
		config.CollabQualityValidator: collab.NewMockCollaborator(
			config.CollabQualityValidator,
			collab.MockResponse{Text: "```json\n[1, 2, 3]\n```"}),
	})

	result, err := env.pipeline.Run(context.Background(), "build a test agent", "")
	if err == nil {
		t.Fatal("array verdict should fail the run")
	}
	if result.Job.Status != persistence.JobStatusError {
		t.Errorf("job status = %q", result.Job.Status)
	}
	if result.Job.FailureStage != StageValidation {
		t.Errorf("failure stage = %q", result.Job.FailureStage)
	}
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.pipeline.Run(context.Background(), "   ", ""); err == nil {
		t.Fatal("empty request should be rejected")
	}
}

func TestRunRetriedStageStillSucceeds(t *testing.T) {
	env := newTestEnv(t, map[string]*collab.MockCollaborator{
		config.CollabRequirementsAnalyst: collab.NewMockCollaborator(
			config.CollabRequirementsAnalyst).ThrottledTimes(2),
	})

	result, err := env.pipeline.Run(context.Background(), "build a test agent", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Job.Status != persistence.JobStatusDeployed {
		t.Errorf("job status = %q", result.Job.Status)
	}

	records, _ := env.store.GetStageRecords(context.Background(), result.Job.ID)
	if records[0].Stage != StageRequirements || records[0].Attempts != 3 {
		t.Errorf("requirements record attempts = %d, want 3", records[0].Attempts)
	}
}

func TestRunHonorsProvidedJobID(t *testing.T) {
	env := newTestEnv(t, nil)
	const jobID = "job-custom-20250101-120000"

	result, err := env.pipeline.Run(context.Background(), "build a test agent", jobID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Job.ID != jobID {
		t.Errorf("job id = %q, want %q", result.Job.ID, jobID)
	}

	// Re-submitting the same id restarts every stage; earlier records remain
	// as audit history.
	if _, err := env.pipeline.Run(context.Background(), "build a test agent", jobID); err != nil {
		t.Fatalf("re-run failed: %v", err)
	}
	records, err := env.store.GetStageRecords(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetStageRecords failed: %v", err)
	}
	if len(records) != 10 {
		t.Errorf("stage records after re-run = %d, want 10", len(records))
	}
	job, _ := env.store.GetJob(context.Background(), jobID)
	if job.Status != persistence.JobStatusDeployed {
		t.Errorf("persisted status = %q", job.Status)
	}
}

func TestRunRejectsMalformedJobID(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.pipeline.Run(context.Background(), "build a test agent", "Not A Job Name"); err == nil {
		t.Fatal("malformed job id should be rejected")
	}
}

// hookedCollaborator runs a callback before delegating, so tests can break
// things mid-stage.
type hookedCollaborator struct {
	collab.Collaborator
	before func()
}

func (h *hookedCollaborator) Invoke(ctx context.Context, jobID, inputText string) (<-chan collab.StreamChunk, error) {
	h.before()
	return h.Collaborator.Invoke(ctx, jobID, inputText)
}

func TestRunKeepsStageResultWhenOutputAuditFails(t *testing.T) {
	db, err := persistence.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := persistence.NewStore(db, nil)

	// The deployment collaborator succeeds, but its in-progress audit row
	// vanishes before the output write lands.
	var collaborators []collab.Collaborator
	for _, id := range config.CollaboratorIDs() {
		var c collab.Collaborator = collab.NewMockCollaborator(id)
		if id == config.CollabDeploymentManager {
			c = &hookedCollaborator{Collaborator: c, before: func() {
				if _, err := db.Exec(`DELETE FROM stage_records WHERE stage = 'DEPLOYMENT'`); err != nil {
					t.Errorf("failed to drop deployment record: %v", err)
				}
			}}
		}
		collaborators = append(collaborators, c)
	}

	th := throttle.New(throttle.NewMemoryLeaseStore(), 0, "test")
	inv := invoker.New(th, config.DefaultMaxRetries, time.Millisecond,
		invoker.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	p := New(collab.NewRegistry(collaborators...), inv, store, nil, false)

	result, err := p.Run(context.Background(), "build a test agent", "")
	if err != nil {
		t.Fatalf("losing the output audit write must not fail the run: %v", err)
	}
	if result.Job.Status != persistence.JobStatusDeployed {
		t.Errorf("job status = %q, want deployed", result.Job.Status)
	}
	if len(result.Outputs) != 5 {
		t.Errorf("outputs = %d, want 5", len(result.Outputs))
	}

	job, _ := store.GetJob(context.Background(), result.Job.ID)
	if job.Status != persistence.JobStatusDeployed {
		t.Errorf("persisted status = %q", job.Status)
	}
}
