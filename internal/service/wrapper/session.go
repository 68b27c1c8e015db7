package wrapper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trailofbits/mcp-context-protector/internal/domain/approval"
	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
	"github.com/trailofbits/mcp-context-protector/internal/domain/facade"
	"github.com/trailofbits/mcp-context-protector/internal/domain/guardrail"
	"github.com/trailofbits/mcp-context-protector/internal/port/outbound"
	"github.com/trailofbits/mcp-context-protector/internal/telemetry"
	"github.com/trailofbits/mcp-context-protector/pkg/mcpwire"
)

var tracer = otel.Tracer(telemetry.TracerName)

// scannerInitialBufSize and scannerMaxBufSize bound the line scanners used
// on both the host and downstream legs, matching the teacher's
// ProxyService.copyMessages buffer sizing.
const (
	scannerInitialBufSize = 256 * 1024
	scannerMaxBufSize     = 1024 * 1024
)

// listChangedDebounce coalesces bursts of notifications/tools/list_changed
// into a single re-evaluation, per SPEC_FULL.md §4.7.
const listChangedDebounce = 200 * time.Millisecond

// Session owns one wrapper/downstream connection's lifetime: the initial
// handshake and snapshot fetch, the façade dispatch loop, and debounced
// re-evaluation when the downstream announces its tool surface changed.
// It generalizes the teacher's ProxyService.Run, which blindly copies
// bytes between two pipes, into a service that synchronously round-trips
// approved requests through a single downstream connection via Correlator.
type Session struct {
	identity   config.Identity
	client     outbound.MCPClient
	approvals  outbound.ApprovalStore
	quarantine outbound.QuarantineStore
	pipeline   *guardrail.Pipeline
	logger     *slog.Logger

	mu         sync.RWMutex
	snapshot   config.Snapshot
	evaluation approval.Evaluation

	correlator *Correlator
	facade     *facade.Server

	hostMu  sync.Mutex
	hostOut io.Writer

	refreshCh chan struct{}
	nextID    int64

	metrics *telemetry.Metrics // nil means metrics disabled
}

// SetMetrics attaches a telemetry.Metrics sink, propagating it to the
// façade and guardrail pipeline this session owns. Must be called before
// Run to take effect on the pipeline (the façade is rebuilt in Run, so it
// is reattached there too).
func (s *Session) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
	if s.pipeline != nil {
		s.pipeline.SetMetrics(m)
	}
}

// NewSession constructs a Session bound to one downstream identity.
// pipeline may be nil (no guardrail scanning configured).
func NewSession(identity config.Identity, client outbound.MCPClient, approvals outbound.ApprovalStore, quarantine outbound.QuarantineStore, pipeline *guardrail.Pipeline, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		identity:   identity,
		client:     client,
		approvals:  approvals,
		quarantine: quarantine,
		pipeline:   pipeline,
		logger:     logger,
		refreshCh:  make(chan struct{}, 1),
	}
	s.facade = facade.NewServer(s.State, nil, quarantine, pipeline)
	return s
}

// State returns the current snapshot/evaluation pair for the façade to
// dispatch against.
func (s *Session) State() facade.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return facade.State{Identity: s.identity, Snapshot: s.snapshot, Evaluation: s.evaluation}
}

func (s *Session) nextRequestID() string {
	return fmt.Sprintf("wrapper-internal-%d", atomic.AddInt64(&s.nextID, 1))
}

// Run starts the downstream connection, performs the initial handshake and
// snapshot evaluation, then pumps host requests through the façade until
// ctx is cancelled or the host or downstream connection ends.
func (s *Session) Run(ctx context.Context, hostIn io.Reader, hostOut io.Writer) error {
	s.hostOut = hostOut

	downIn, downOut, err := s.client.Start(ctx)
	if err != nil {
		return fmt.Errorf("start downstream connection: %w", err)
	}
	defer func() { _ = s.client.Close() }()

	var writeMu sync.Mutex
	s.correlator = NewCorrelator(func(b []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err := downIn.Write(b)
		return err
	})
	s.facade = facade.NewServer(s.State, s.correlator, s.quarantine, s.pipeline)
	if s.metrics != nil {
		s.facade.SetMetrics(s.metrics)
	}
	if s.pipeline != nil {
		s.facade.SetANSIMode(s.pipeline.ANSIMode())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readDownstream(ctx, downOut)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.debounceRefresh(ctx)
	}()

	if err := s.handshake(ctx); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("downstream handshake: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = downIn.Close() }()
		if err := s.pumpHost(ctx, hostIn); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("host pump: %w", err)
			}
		}
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case err := <-errCh:
		cancel()
		<-done
		return err
	}

	s.correlator.Abort()
	return ctx.Err()
}

// handshake performs the downstream initialize/tools-list round trips
// needed to build the first Snapshot, loads any existing approval record,
// and evaluates it.
func (s *Session) handshake(ctx context.Context) error {
	initRaw, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      s.nextRequestID(),
		"method":  "initialize",
		"params": map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"capabilities":    map[string]interface{}{},
			"clientInfo":      map[string]interface{}{"name": facade.ServerName, "version": facade.ServerVersion},
		},
	})
	initResp, err := s.correlator.Forward(ctx, initRaw)
	if err != nil {
		return fmt.Errorf("downstream initialize: %w", err)
	}
	var initResult struct {
		Result struct {
			Instructions *string `json:"instructions"`
		} `json:"result"`
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(initResp, &initResult); err != nil {
		return fmt.Errorf("decode downstream initialize response: %w", err)
	}
	if initResult.Error != nil {
		return fmt.Errorf("downstream initialize returned an error: %s", initResult.Error)
	}

	notifyRaw, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	})
	if err := s.writeDownstream(notifyRaw); err != nil {
		return fmt.Errorf("downstream notifications/initialized: %w", err)
	}

	tools, err := s.fetchTools(ctx)
	if err != nil {
		return err
	}

	snapshot := config.NewSnapshot(initResult.Result.Instructions, tools)
	return s.applySnapshot(ctx, snapshot)
}

func (s *Session) writeDownstream(raw []byte) error {
	framed := append(append([]byte{}, raw...), '\n')
	return s.correlator.write(framed)
}

func (s *Session) fetchTools(ctx context.Context) ([]config.ToolSpec, error) {
	listRaw, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      s.nextRequestID(),
		"method":  "tools/list",
	})
	resp, err := s.correlator.Forward(ctx, listRaw)
	if err != nil {
		return nil, fmt.Errorf("downstream tools/list: %w", err)
	}
	var listResult struct {
		Result struct {
			Tools []struct {
				Name        string      `json:"name"`
				Description string      `json:"description"`
				InputSchema interface{} `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
		Error json.RawMessage `json:"error"`
	}
	dec := json.NewDecoder(bytes.NewReader(resp))
	dec.UseNumber()
	if err := dec.Decode(&listResult); err != nil {
		return nil, fmt.Errorf("decode downstream tools/list response: %w", err)
	}
	if listResult.Error != nil {
		return nil, fmt.Errorf("downstream tools/list returned an error: %s", listResult.Error)
	}
	tools := make([]config.ToolSpec, 0, len(listResult.Result.Tools))
	for _, t := range listResult.Result.Tools {
		tools = append(tools, config.ToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return tools, nil
}

// applySnapshot loads the persisted approval record (if any), evaluates
// the new snapshot against it, and swaps both into place under the
// session lock.
func (s *Session) applySnapshot(ctx context.Context, snapshot config.Snapshot) error {
	_, span := tracer.Start(ctx, "approval.Evaluate", trace.WithAttributes(
		attribute.String("mcp.server_kind", string(s.identity.Kind)),
		attribute.String("mcp.server_locator", s.identity.Locator),
	))
	defer span.End()

	record, _, err := s.approvals.Load(s.identity)
	if err != nil {
		// Fail closed: an unreadable store leaves no record, so nothing is approved.
		s.logger.Warn("approval store unreadable, treating server as unknown", "error", err)
		record = nil
	}
	eval := approval.Evaluate(record, snapshot)
	span.SetAttributes(attribute.String("mcp.overall_state", string(eval.OverallState)))

	s.mu.Lock()
	s.snapshot = snapshot
	s.evaluation = eval
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.EvaluationsTotal.WithLabelValues(string(eval.OverallState)).Inc()
	}

	s.logger.Info("evaluated downstream configuration",
		"identity_kind", s.identity.Kind, "identity_locator", s.identity.Locator,
		"overall_state", eval.OverallState)
	return nil
}

// readDownstream reads newline-delimited frames from the downstream
// connection, routing responses to the Correlator and handling the one
// server-initiated notification the wrapper needs to react to.
func (s *Session) readDownstream(ctx context.Context, downOut io.Reader) {
	scanner := bufio.NewScanner(downOut)
	buf := make([]byte, 0, scannerInitialBufSize)
	scanner.Buffer(buf, scannerMaxBufSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		cp := append([]byte(nil), raw...)

		if s.correlator.Dispatch(cp) {
			continue
		}

		var env struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(cp, &env); err != nil {
			continue
		}
		if env.Method == "notifications/tools/list_changed" {
			select {
			case s.refreshCh <- struct{}{}:
			default:
			}
		}
	}
	s.correlator.Abort()
}

// debounceRefresh coalesces bursts of refresh requests into a single
// re-fetch/re-evaluate/notify cycle per listChangedDebounce window.
func (s *Session) debounceRefresh(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.refreshCh:
		}

		timer := time.NewTimer(listChangedDebounce)
	drain:
		for {
			select {
			case <-s.refreshCh:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(listChangedDebounce)
			case <-timer.C:
				break drain
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		tools, err := s.fetchTools(ctx)
		if err != nil {
			s.logger.Warn("failed to refresh downstream tool list", "error", err)
			continue
		}
		s.mu.RLock()
		instructions := s.snapshot.Instructions
		s.mu.RUnlock()

		if err := s.applySnapshot(ctx, config.NewSnapshot(instructions, tools)); err != nil {
			s.logger.Warn("failed to apply refreshed snapshot", "error", err)
			continue
		}

		notice, _ := json.Marshal(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "notifications/tools/list_changed",
		})
		if err := s.writeHost(notice); err != nil {
			s.logger.Warn("failed to notify host of tool list change", "error", err)
		}
	}
}

func (s *Session) writeHost(raw []byte) error {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	if _, err := s.hostOut.Write(raw); err != nil {
		return err
	}
	_, err := s.hostOut.Write([]byte("\n"))
	return err
}

// pumpHost reads newline-delimited host requests, dispatches each through
// the façade, and writes the result back to the host.
func (s *Session) pumpHost(ctx context.Context, hostIn io.Reader) error {
	scanner := bufio.NewScanner(hostIn)
	buf := make([]byte, 0, scannerInitialBufSize)
	scanner.Buffer(buf, scannerMaxBufSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		cp := append([]byte(nil), raw...)

		msg := mcpwire.Wrap(cp, mcpwire.HostToDownstream)
		resp := s.facade.Intercept(ctx, msg)

		if err := s.writeHost(resp); err != nil {
			return fmt.Errorf("write host response: %w", err)
		}
	}
	return scanner.Err()
}
