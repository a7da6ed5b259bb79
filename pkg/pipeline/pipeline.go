// Package pipeline runs the five-stage agent generation flow: requirements,
// architecture, code, validation, deployment. Every stage invocation is
// audited to the persistence store before and after the collaborator call,
// and deployment is gated on the validator's verdict.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"autoninja/pkg/artifacts"
	"autoninja/pkg/collab"
	"autoninja/pkg/collab/collaberrors"
	"autoninja/pkg/config"
	"autoninja/pkg/invoker"
	"autoninja/pkg/logx"
	"autoninja/pkg/metrics"
	"autoninja/pkg/persistence"
	"autoninja/pkg/throttle"
	"autoninja/pkg/utils"
)

// Stage names, in execution order.
const (
	StageRequirements = "REQUIREMENTS"
	StageArchitecture = "ARCHITECTURE"
	StageCode         = "CODE"
	StageValidation   = "VALIDATION"
	StageDeployment   = "DEPLOYMENT"
)

// Stages returns the pipeline stages in execution order.
func Stages() []string {
	return []string{StageRequirements, StageArchitecture, StageCode, StageValidation, StageDeployment}
}

// stageCollaborators maps each stage to the collaborator role that serves it.
//
//nolint:gochecknoglobals // Fixed stage wiring
var stageCollaborators = map[string]string{
	StageRequirements: config.CollabRequirementsAnalyst,
	StageArchitecture: config.CollabSolutionArchitect,
	StageCode:         config.CollabCodeGenerator,
	StageValidation:   config.CollabQualityValidator,
	StageDeployment:   config.CollabDeploymentManager,
}

// ValidationVerdict is the structured verdict the quality validator returns.
// The gate keys on IsValid only; the rest is recorded for the caller.
type ValidationVerdict struct {
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	RiskLevel       string   `json:"risk_level"`
	Score           float64  `json:"score"`
	IsValid         bool     `json:"is_valid"`
}

// Result summarizes a completed pipeline run.
type Result struct {
	// Outputs holds the recovered JSON document per completed stage.
	Outputs map[string]string
	// Verdict is the validation outcome, nil if the run failed before
	// validation completed.
	Verdict *ValidationVerdict
	Job     *persistence.Job
}

// Pipeline orchestrates jobs through the five stages.
type Pipeline struct {
	registry  *collab.Registry
	invoker   *invoker.Invoker
	store     *persistence.Store
	artifacts artifacts.Store
	logger    *logx.Logger
	// perCollaboratorScope throttles each collaborator independently instead
	// of sharing one global slot.
	perCollaboratorScope bool
}

// New creates a pipeline.
func New(registry *collab.Registry, inv *invoker.Invoker, store *persistence.Store, artifactStore artifacts.Store, perCollaboratorScope bool) *Pipeline {
	return &Pipeline{
		registry:             registry,
		invoker:              inv,
		store:                store,
		artifacts:            artifactStore,
		logger:               logx.NewLogger("pipeline"),
		perCollaboratorScope: perCollaboratorScope,
	}
}

// Run executes a full pipeline for a user request. jobID may be empty, in
// which case one is generated from the request; re-submitting an existing id
// restarts every stage. The returned Result is non-nil whenever a job record
// was created, even on failure; the error reports why a run stopped short of
// deployment.
func (p *Pipeline) Run(ctx context.Context, request, jobID string) (*Result, error) {
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("request must not be empty")
	}
	if jobID == "" {
		jobID = utils.GenerateJobName(request)
	} else if !utils.IsValidJobName(jobID) {
		return nil, fmt.Errorf("invalid job id %q: want job-{keyword}-{YYYYMMDD-HHMMSS}", jobID)
	}

	job, err := p.store.InsertJob(ctx, jobID, request)
	if err != nil {
		return nil, err
	}
	p.logger.Info("job %s: starting pipeline", jobID)

	result := &Result{
		Job:     job,
		Outputs: make(map[string]string, len(Stages())),
	}

	for _, stage := range Stages() {
		output, err := p.runStage(ctx, job, stage, request, result.Outputs)
		if err != nil {
			p.failJob(ctx, job, stage, err)
			return result, err
		}
		result.Outputs[stage] = output

		if stage == StageValidation {
			verdict, err := parseVerdict(output)
			if err != nil {
				p.failJob(ctx, job, stage, err)
				return result, err
			}
			result.Verdict = verdict
			if !verdict.IsValid {
				p.logger.Info("job %s: validation rejected the build (%d issues), skipping deployment",
					jobID, len(verdict.Issues))
				if err := p.store.UpdateJobStatus(ctx, jobID, persistence.JobStatusValidationFailed,
					StageValidation, strings.Join(verdict.Issues, "; ")); err != nil {
					p.logger.Error("job %s: failed to record validation failure: %v", jobID, err)
				}
				job.Status = persistence.JobStatusValidationFailed
				metrics.RecordJobCompletion(persistence.JobStatusValidationFailed)
				return result, nil
			}
		}
	}

	if err := p.store.UpdateJobStatus(ctx, jobID, persistence.JobStatusDeployed, "", ""); err != nil {
		return result, err
	}
	job.Status = persistence.JobStatusDeployed
	metrics.RecordJobCompletion(persistence.JobStatusDeployed)
	p.logger.Info("job %s: deployed", jobID)
	return result, nil
}

// runStage runs one stage end to end: audit the input, invoke the
// collaborator through the throttle and retry budget, materialize the output
// document, audit the outcome.
func (p *Pipeline) runStage(ctx context.Context, job *persistence.Job, stage, request string, outputs map[string]string) (string, error) {
	collaboratorID := stageCollaborators[stage]
	c, err := p.registry.Get(collaboratorID)
	if err != nil {
		return "", err
	}

	input := composeInput(stage, request, outputs)
	scope := throttle.DefaultScope
	if p.perCollaboratorScope {
		scope = collaboratorID
	}

	token, err := p.store.LogStageInput(ctx, job.ID, stage, collaboratorID, c.ModelName(), input)
	if err != nil {
		return "", err
	}
	metrics.RecordStageTokens(stage, "input", utils.CountTokensSimple(input))

	started := time.Now()
	res, err := p.invoker.Invoke(ctx, c, job.ID, scope, input)
	metrics.RecordStageDuration(stage, time.Since(started))
	if err != nil {
		metrics.RecordStageInvocation(stage, collaboratorID, persistence.RecordStatusError)
		if logErr := p.store.LogStageError(ctx, token, err, attemptsFromError(err)); logErr != nil {
			p.logger.Error("job %s: failed to record %s error: %v", job.ID, stage, logErr)
		}
		return "", err
	}

	artifactURI := ""
	if p.artifacts != nil {
		uri, putErr := p.artifacts.Put(ctx, job.ID, stage, "output.json",
			[]byte(res.Raw), "application/json")
		if putErr != nil {
			// The audit record still carries the full output text.
			p.logger.Warn("job %s: failed to store %s artifact: %v", job.ID, stage, putErr)
		} else {
			artifactURI = uri
		}
	}

	if err := p.store.LogStageOutput(ctx, token, res.ResponseText, res.Attempts, artifactURI); err != nil {
		// The collaborator already produced a correct result; losing the audit
		// write must not discard it.
		p.logger.Warn("job %s: failed to record %s output: %v", job.ID, stage, err)
	}
	metrics.RecordStageInvocation(stage, collaboratorID, persistence.RecordStatusSuccess)
	metrics.RecordStageTokens(stage, "output", utils.CountTokensSimple(res.ResponseText))
	p.logger.Info("job %s: %s completed in %d attempt(s)", job.ID, stage, res.Attempts)

	return res.Raw, nil
}

func (p *Pipeline) failJob(ctx context.Context, job *persistence.Job, stage string, cause error) {
	p.logger.Error("job %s: %s failed: %v", job.ID, stage, cause)
	if err := p.store.UpdateJobStatus(ctx, job.ID, persistence.JobStatusError, stage, cause.Error()); err != nil {
		p.logger.Error("job %s: failed to record error status: %v", job.ID, err)
	}
	job.Status = persistence.JobStatusError
	job.FailureStage = stage
	metrics.RecordJobCompletion(persistence.JobStatusError)
}

// composeInput builds the input document for a stage from the user request
// and the upstream stage outputs.
func composeInput(stage, request string, outputs map[string]string) string {
	switch stage {
	case StageRequirements:
		return request
	case StageArchitecture:
		return section("REQUIREMENTS DOCUMENT", outputs[StageRequirements])
	case StageCode:
		return section("REQUIREMENTS DOCUMENT", outputs[StageRequirements]) + "\n\n" +
			section("ARCHITECTURE DOCUMENT", outputs[StageArchitecture])
	case StageValidation:
		return section("CODE DOCUMENT", outputs[StageCode]) + "\n\n" +
			section("ARCHITECTURE DOCUMENT", outputs[StageArchitecture])
	case StageDeployment:
		return section("REQUIREMENTS DOCUMENT", outputs[StageRequirements]) + "\n\n" +
			section("ARCHITECTURE DOCUMENT", outputs[StageArchitecture]) + "\n\n" +
			section("CODE DOCUMENT", outputs[StageCode]) + "\n\n" +
			section("VALIDATION DOCUMENT", outputs[StageValidation]) + "\n\n" +
			"VALIDATION STATUS: PASSED"
	default:
		return request
	}
}

func section(title, body string) string {
	return title + ":\n" + body
}

func parseVerdict(raw string) (*ValidationVerdict, error) {
	var verdict ValidationVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("validation output is not a usable verdict: %w", err)
	}
	return &verdict, nil
}

// attemptsFromError reports how many attempts a failed invocation made.
// Only retry exhaustion spans multiple attempts; every other failure class
// aborts on its first and only attempt.
func attemptsFromError(err error) int {
	var cerr *collaberrors.Error
	if errors.As(err, &cerr) && cerr.Type == collaberrors.ErrorTypeRetryExhausted && cerr.Attempts > 0 {
		return cerr.Attempts
	}
	return 1
}
