package guardrail

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
	"github.com/trailofbits/mcp-context-protector/internal/domain/sanitize"
	"github.com/trailofbits/mcp-context-protector/internal/telemetry"
)

var tracer = otel.Tracer(telemetry.TracerName)

// defaultScanTimeout bounds how long a single provider Scan call may run
// before the pipeline treats it as suspicious(reason="guardrail_timeout").
const defaultScanTimeout = 5 * time.Second

// QuarantineStore is the subset of the outbound quarantine-store port this
// pipeline needs, kept narrow so tests can substitute an in-memory fake
// without importing the adapter package.
type QuarantineStore interface {
	Append(entry QuarantineEntry) error
}

// Pipeline is the response guardrail + quarantine component described in
// spec.md §4.5: sanitize, optionally scan, optionally quarantine.
type Pipeline struct {
	provider    Provider // nil means "no provider configured"
	store       QuarantineStore
	sanitizer   *sanitize.Sanitizer
	ansiMode    sanitize.Mode
	scanTimeout time.Duration
	logger      *slog.Logger
	metrics     *telemetry.Metrics // nil means metrics disabled
}

// NewPipeline constructs a Pipeline. provider may be nil (no scanning).
func NewPipeline(provider Provider, store QuarantineStore, ansiMode sanitize.Mode, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		provider:    provider,
		store:       store,
		sanitizer:   sanitize.New(),
		ansiMode:    ansiMode,
		scanTimeout: defaultScanTimeout,
		logger:      logger,
	}
}

// SetScanTimeout overrides the default per-scan timeout, e.g. from CLI/config.
func (p *Pipeline) SetScanTimeout(d time.Duration) {
	if d > 0 {
		p.scanTimeout = d
	}
}

// SetMetrics attaches a telemetry.Metrics sink. Process is a no-op toward
// metrics until this is called, so tests may omit it entirely.
func (p *Pipeline) SetMetrics(m *telemetry.Metrics) {
	p.metrics = m
}

// ANSIMode reports the sanitize.Mode this pipeline was configured with, so
// other host-bound text (e.g. the façade's tools/list descriptions) can be
// sanitized identically rather than silently defaulting to Strip.
func (p *Pipeline) ANSIMode() sanitize.Mode {
	return p.ansiMode
}

// Result is what the façade does with a processed tool response.
type Result struct {
	// Text is the text to return to the host: either the sanitized
	// original (clean / no provider) or a quarantine notice.
	Text string
	// Quarantined is true if the response was replaced with a quarantine
	// notice.
	Quarantined bool
	// QuarantineID is set iff Quarantined.
	QuarantineID string
}

// Process runs the pipeline over one tool response's text content.
func (p *Pipeline) Process(ctx context.Context, identity config.Identity, toolName string, requestArgs json.RawMessage, responseText string, rawResponse json.RawMessage) (Result, error) {
	ctx, span := tracer.Start(ctx, "guardrail.Process", trace.WithAttributes(
		attribute.String("mcp.tool_name", toolName),
		attribute.String("mcp.server_kind", string(identity.Kind)),
	))
	defer span.End()

	sanitized := p.sanitizer.Sanitize(responseText, p.ansiMode)

	if p.provider == nil {
		p.recordVerdict("no_provider")
		return Result{Text: sanitized}, nil
	}

	scanStart := time.Now()
	verdict, err := p.scanWithTimeout(ctx, requestArgs, sanitized)
	if p.metrics != nil {
		p.metrics.GuardrailDuration.Observe(time.Since(scanStart).Seconds())
	}
	if err != nil {
		p.logger.Warn("guardrail provider error, treating as suspicious", "tool", toolName, "error", err)
		verdict = SuspiciousVerdict(providerNameOrUnknown(p.provider), "guardrail_error", map[string]any{"error": err.Error()})
	}

	if verdict.Clean {
		p.recordVerdict("clean")
		span.SetAttributes(attribute.Bool("guardrail.clean", true))
		return Result{Text: sanitized}, nil
	}
	if verdict.Reason == "guardrail_timeout" {
		p.recordVerdict("timeout")
	} else {
		p.recordVerdict("suspicious")
	}
	span.SetAttributes(
		attribute.Bool("guardrail.clean", false),
		attribute.String("guardrail.reason", verdict.Reason),
	)

	id, err := GenerateQuarantineID()
	if err != nil {
		return Result{}, err
	}

	entry := QuarantineEntry{
		ID:               id,
		ServerIdentity:   identity,
		ToolName:         toolName,
		RequestArgs:      requestArgs,
		Response:         rawResponse,
		GuardrailVerdict: verdict,
		CreatedAt:        time.Now().UTC(),
		Released:         false,
	}
	if err := p.store.Append(entry); err != nil {
		return Result{}, err
	}
	if p.metrics != nil {
		p.metrics.QuarantineDepth.Inc()
	}

	p.logger.Info("quarantined suspicious tool response", "tool", toolName, "quarantine_id", id, "reason", verdict.Reason)

	return Result{
		Text:         QuarantineNotice(id, verdict.Reason),
		Quarantined:  true,
		QuarantineID: id,
	}, nil
}

func (p *Pipeline) scanWithTimeout(ctx context.Context, requestArgs json.RawMessage, text string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, p.scanTimeout)
	defer cancel()

	var args map[string]interface{}
	if len(requestArgs) > 0 {
		_ = json.Unmarshal(requestArgs, &args)
	}

	type scanOutcome struct {
		verdict Verdict
		err     error
	}
	ch := make(chan scanOutcome, 1)
	go func() {
		v, err := p.provider.Scan(ctx, args, text)
		ch <- scanOutcome{v, err}
	}()

	select {
	case out := <-ch:
		return out.verdict, out.err
	case <-ctx.Done():
		return SuspiciousVerdict(providerNameOrUnknown(p.provider), "guardrail_timeout", nil), nil
	}
}

func (p *Pipeline) recordVerdict(result string) {
	if p.metrics != nil {
		p.metrics.GuardrailVerdicts.WithLabelValues(result).Inc()
	}
}

func providerNameOrUnknown(p Provider) string {
	if p == nil {
		return "unknown"
	}
	return p.Name()
}
