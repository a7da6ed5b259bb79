package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// StageUsage aggregates invocation counts for one pipeline stage.
type StageUsage struct {
	Stage        string `json:"stage"`
	Invocations  int64  `json:"invocations"`
	Failures     int64  `json:"failures"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// QueryService aggregates pipeline usage from a Prometheus server scraping
// the supervisor's /metrics endpoint.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetStageUsage aggregates invocation and token counters for a stage.
func (q *QueryService) GetStageUsage(ctx context.Context, stage string) (*StageUsage, error) {
	usage := &StageUsage{Stage: stage}

	queries := []struct {
		dest  *int64
		query string
	}{
		{&usage.Invocations, fmt.Sprintf(`sum(autoninja_stage_invocations_total{stage=%q})`, stage)},
		{&usage.Failures, fmt.Sprintf(`sum(autoninja_stage_invocations_total{stage=%q, status="error"})`, stage)},
		{&usage.InputTokens, fmt.Sprintf(`sum(autoninja_stage_tokens_total{stage=%q, type="input"})`, stage)},
		{&usage.OutputTokens, fmt.Sprintf(`sum(autoninja_stage_tokens_total{stage=%q, type="output"})`, stage)},
	}

	for _, item := range queries {
		result, _, err := q.queryAPI.Query(ctx, item.query, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", item.query, err)
		}
		if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
			*item.dest = int64(vector[0].Value)
		}
	}

	return usage, nil
}

// GetThrottleSaturation returns the mean throttle wait over the last hour for
// a scope, in seconds. Zero when no waits were recorded.
func (q *QueryService) GetThrottleSaturation(ctx context.Context, scope string) (float64, error) {
	query := fmt.Sprintf(
		`sum(rate(autoninja_throttle_wait_seconds_sum{scope=%q}[1h])) / sum(rate(autoninja_throttle_wait_seconds_count{scope=%q}[1h]))`,
		scope, scope,
	)
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query throttle saturation: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
