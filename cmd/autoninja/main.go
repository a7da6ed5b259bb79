// Command autoninja runs the agent generation supervisor: an HTTP service
// that drives user requests through the requirements, architecture, code,
// validation, and deployment collaborators.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoninja/internal/httpapi"
	"autoninja/pkg/artifacts"
	"autoninja/pkg/collab"
	"autoninja/pkg/config"
	"autoninja/pkg/invoker"
	"autoninja/pkg/logx"
	"autoninja/pkg/metrics"
	"autoninja/pkg/persistence"
	"autoninja/pkg/pipeline"
	"autoninja/pkg/throttle"
	"autoninja/pkg/utils"
	"autoninja/pkg/version"
)

func main() {
	if err := run(); err != nil {
		logx.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to config file (YAML)")
		request    = flag.String("request", "", "run a single job for this request and exit")
		jobID      = flag.String("job-id", "", "optional job id for -request (re-submitting restarts the job)")
		listenAddr = flag.String("listen", "", "override HTTP listen address")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *debug {
		logx.SetDebug(true)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	db, err := persistence.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tokens, err := utils.NewTokenCounter()
	if err != nil {
		logx.Warnf("token counter unavailable, using length estimates: %v", err)
	}
	store := persistence.NewStore(db, tokens)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	caller, _ := os.Hostname()
	if caller == "" {
		caller = "autoninja"
	}
	th := throttle.New(persistence.NewLeaseStore(db), cfg.Throttle.MinInterval.Std(), caller)
	inv := invoker.New(th, cfg.Retry.MaxRetries, cfg.Retry.BaseDelay.Std())

	artifactStore, err := buildArtifactStore(cfg)
	if err != nil {
		return err
	}

	p := pipeline.New(registry, inv, store, artifactStore, cfg.Throttle.PerCollaborator)

	var usage *metrics.QueryService
	if cfg.Metrics.PrometheusURL != "" {
		usage, err = metrics.NewQueryService(cfg.Metrics.PrometheusURL)
		if err != nil {
			return err
		}
	}

	if *request != "" {
		return runOnce(p, *request, *jobID)
	}
	return serve(p, store, usage, cfg.Server.ListenAddr)
}

// runOnce executes a single pipeline job and prints the result to stdout.
func runOnce(p *pipeline.Pipeline, request, jobID string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, runErr := p.Run(ctx, request, jobID)
	if result == nil {
		return runErr
	}

	out := map[string]any{
		"job":     result.Job,
		"verdict": result.Verdict,
		"outputs": result.Outputs,
	}
	if runErr != nil {
		out["error"] = runErr.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return runErr
}

func serve(p *pipeline.Pipeline, store *persistence.Store, usage *metrics.QueryService, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(p, store, usage).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logx.Infof("autoninja %s listening on %s", version.String(), addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Infof("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// buildRegistry constructs the five collaborators from config.
func buildRegistry(cfg *config.Config) (*collab.Registry, error) {
	registry := collab.NewRegistry()
	for _, id := range config.CollaboratorIDs() {
		cc := cfg.Collaborators[id]
		switch cc.Provider {
		case config.ProviderAnthropic:
			key := cc.APIKey()
			if key == "" {
				return nil, fmt.Errorf("collaborator %s: environment variable %s is not set", id, cc.APIKeyEnv)
			}
			registry.Register(collab.NewAnthropicCollaborator(id, key, cc.Model))
		case config.ProviderOpenAI:
			key := cc.APIKey()
			if key == "" {
				return nil, fmt.Errorf("collaborator %s: environment variable %s is not set", id, cc.APIKeyEnv)
			}
			registry.Register(collab.NewOpenAICollaborator(id, key, cc.Model))
		case config.ProviderMock:
			registry.Register(collab.NewMockCollaborator(id))
		default:
			return nil, fmt.Errorf("collaborator %s: unknown provider %q", id, cc.Provider)
		}
	}
	return registry, nil
}

func buildArtifactStore(cfg *config.Config) (artifacts.Store, error) {
	if cfg.Artifacts.Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := artifacts.NewMinIOStore(ctx, cfg.Artifacts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object store: %w", err)
		}
		return store, nil
	}
	return artifacts.NewLocalStore(cfg.Artifacts.LocalDir), nil
}
