package idor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/core"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/idorenum/pkg/types"
)

// EnumeratorConfig contains enumeration parameters
type EnumeratorConfig struct {
	Endpoint   string // base URL; the index is appended verbatim
	Selector   string // carried for logs and records only
	StartIndex int64  // defaults to 1
	RunID      string
}

// ProbeRecorder persists each probe. Optional.
type ProbeRecorder interface {
	SaveProbe(ctx context.Context, probe *types.Probe) error
}

// Dependencies wires the enumerator to its collaborators. Client, Gate and Output are required.
type Dependencies struct {
	Client    *http.Client
	Gate      Gate
	Output    io.Writer
	Logger    *logger.Logger
	Limiter   *ratelimit.Limiter
	Recorder  ProbeRecorder
	Telemetry core.Telemetry
}

// Enumerator walks sequential numeric IDs one at a time: request, print, wait for the operator, repeat.
type Enumerator struct {
	client    *http.Client
	config    EnumeratorConfig
	gate      Gate
	out       io.Writer
	logger    *logger.Logger
	limiter   *ratelimit.Limiter
	recorder  ProbeRecorder
	telemetry core.Telemetry
	tracker   *AccessTracker
}

func NewEnumerator(config EnumeratorConfig, deps Dependencies) *Enumerator {
	if config.StartIndex == 0 {
		config.StartIndex = 1
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(ratelimit.Disabled())
	}

	return &Enumerator{
		client:    deps.Client,
		config:    config,
		gate:      deps.Gate,
		out:       deps.Output,
		logger:    deps.Logger.WithComponent("enumerator"),
		limiter:   deps.Limiter,
		recorder:  deps.Recorder,
		telemetry: deps.Telemetry,
		tracker:   NewAccessTracker(),
	}
}

// BuildURL appends the decimal index to endpoint with no separator and no escaping.
func BuildURL(endpoint string, index int64) string {
	return endpoint + strconv.FormatInt(index, 10)
}

// Run enumerates until an error occurs or ctx is cancelled. It never returns nil.
func (e *Enumerator) Run(ctx context.Context) (err error) {
	e.logger.Infow("Starting enumeration",
		"endpoint", e.config.Endpoint,
		"selector", e.config.Selector,
		"start_index", e.config.StartIndex,
		"run_id", e.config.RunID,
	)
	defer func() {
		fields := []interface{}{"distinct_bodies", e.tracker.Distinct(), "error", err}
		if last := e.tracker.Last(); last != nil {
			fields = append(fields, "last_index", last.Index, "last_status", last.StatusCode)
		}
		e.logger.Infow("Enumeration stopped", fields...)
	}()

	for index := e.config.StartIndex; ; index++ {
		if _, err := e.Probe(ctx, index); err != nil {
			return err
		}

		if err := e.gate.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("enumeration interrupted at index %d: %w", index, ctxErr)
			}
			return fmt.Errorf("%w: %w", ErrOperatorInput, err)
		}
	}
}

// Probe requests a single index, prints the pretty JSON and returns what was observed.
func (e *Enumerator) Probe(ctx context.Context, index int64) (probe *types.Probe, err error) {
	url := BuildURL(e.config.Endpoint, index)

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to request: %s: %w", url, err)
	}

	start := time.Now()
	ctx, span := e.logger.StartOperation(ctx, "idor.probe", "index", index, "url", url)
	span.SetAttributes(
		attribute.Int64("idor.index", index),
		attribute.String("url.full", url),
	)
	defer func() {
		e.logger.FinishOperation(ctx, span, "idor.probe", start, err, "index", index)
	}()

	statusCode, contentType, body, err := e.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	e.logger.LogHTTPRequest(ctx, http.MethodGet, url, statusCode, time.Since(start), "index", index)
	span.SetAttributes(attribute.Int("http.response.status_code", statusCode))

	pretty, err := Prettify(body)
	if err != nil {
		if errors.Is(err, ErrInvalidJSON) {
			if hint := describeNonJSON(contentType, body); hint != "" {
				err = fmt.Errorf("%w (%s)", err, hint)
			}
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return nil, err
	}

	if err := WriteResult(e.out, url, pretty); err != nil {
		return nil, fmt.Errorf("failed to write results: %w", err)
	}

	probe = e.observe(ctx, span, index, url, statusCode, body)

	if e.recorder != nil {
		if err := e.recorder.SaveProbe(ctx, probe); err != nil {
			return nil, fmt.Errorf("failed to record probe: %w", err)
		}
	}

	return probe, nil
}

func (e *Enumerator) fetch(ctx context.Context, url string) (int, string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to request: %s: %w", url, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to request: %s: %w", url, err)
	}
	defer httpclient.CloseBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, resp.Header.Get("Content-Type"), body, nil
}

// observe fingerprints a valid JSON body and flags repeats of earlier indexes.
func (e *Enumerator) observe(ctx context.Context, span trace.Span, index int64, url string, statusCode int, body []byte) *types.Probe {
	var compact bytes.Buffer
	// body already parsed, Compact cannot fail here
	_ = json.Compact(&compact, body)

	fingerprint := Fingerprint(compact.Bytes())
	probe := &types.Probe{
		RunID:       e.config.RunID,
		Index:       index,
		URL:         url,
		StatusCode:  statusCode,
		Fingerprint: fingerprint,
		Body:        json.RawMessage(compact.Bytes()),
		CreatedAt:   time.Now().UTC(),
	}

	if first, dup := e.tracker.Record(index, statusCode, fingerprint); dup {
		probe.DuplicateOf = &first
		e.logger.Infow("Response identical to earlier index",
			"index", index,
			"duplicate_of", first,
			"fingerprint", fingerprint,
		)
	}
	span.SetAttributes(
		attribute.String("idor.fingerprint", fingerprint),
		attribute.Bool("idor.duplicate", probe.IsDuplicate()),
	)

	if e.telemetry != nil {
		e.telemetry.RecordProbe(ctx, statusCode, probe.IsDuplicate())
	}

	return probe
}
