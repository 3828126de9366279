package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/config"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/credentials"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/database"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/idorenum/pkg/scanners/idor"
	"github.com/CodeMonkeyCybersecurity/idorenum/pkg/shutdown"
	"github.com/CodeMonkeyCybersecurity/idorenum/pkg/types"
)

const shutdownTimeout = 5 * time.Second

// runEnumeration wires the enumerator from cfg and runs it. It only returns on a fatal error or cancellation.
func runEnumeration(ctx context.Context, cfg *config.Config, log *logger.Logger, stdin io.Reader, stdout io.Writer) (err error) {
	cookie, err := credentials.FromConfig(cfg.Session)
	if err != nil {
		return err
	}
	headers, err := cookie.Headers()
	if err != nil {
		return err
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:        cfg.HTTP.Timeout,
		UserAgent:      cfg.HTTP.UserAgent,
		DefaultHeaders: headers,
		Instrument:     cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to create request client: %w", err)
	}

	handler := shutdown.NewHandler(log)
	handler.RegisterShutdownFunc(func() error {
		_ = log.Sync()
		return nil
	})
	defer func() {
		if shutdownErr := handler.ShutdownWithTimeout(shutdownTimeout); shutdownErr != nil {
			log.Warnw("Cleanup did not finish", "error", shutdownErr)
		}
	}()

	tel, err := telemetry.New(ctx, cfg.Telemetry, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	handler.RegisterShutdownFunc(tel.Close)

	runID := uuid.NewString()
	runLog := log.WithRunID(runID).WithTarget(cfg.Target.Endpoint)

	var recorder idor.ProbeRecorder
	if cfg.Recorder.Enabled() {
		store, openErr := database.NewStore(ctx, cfg.Recorder, runLog)
		if openErr != nil {
			return fmt.Errorf("failed to open probe store: %w", openErr)
		}
		handler.RegisterShutdownFunc(store.Close)

		now := time.Now()
		run := &types.Run{
			ID:        runID,
			Endpoint:  cfg.Target.Endpoint,
			Selector:  cfg.Target.Selector,
			Status:    types.RunStatusRunning,
			StartedAt: now,
			UpdatedAt: now,
		}
		if cookie != nil {
			run.CookieName = cookie.Name
		}
		if saveErr := store.SaveRun(ctx, run); saveErr != nil {
			return fmt.Errorf("failed to record run: %w", saveErr)
		}

		// Runs before the deferred shutdown closes the store.
		defer func() {
			status := types.RunStatusFailed
			if errors.Is(err, context.Canceled) {
				status = types.RunStatusStopped
			}
			// ctx may already be cancelled here
			updateCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if updateErr := store.UpdateRunStatus(updateCtx, runID, status); updateErr != nil {
				runLog.Warnw("Failed to update run status", "error", updateErr, "status", status)
			}
		}()
		recorder = store
	}

	gate := idor.NewLineGate(stdin)
	handler.RegisterShutdownFunc(gate.Close)

	enumerator := idor.NewEnumerator(idor.EnumeratorConfig{
		Endpoint: cfg.Target.Endpoint,
		Selector: cfg.Target.Selector,
		RunID:    runID,
	}, idor.Dependencies{
		Client:  client,
		Gate:    gate,
		Output:  stdout,
		Logger:  runLog,
		Limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
		}),
		Recorder:  recorder,
		Telemetry: tel,
	})

	return enumerator.Run(ctx)
}
