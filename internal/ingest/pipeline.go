// Package ingest is the per-request state machine: it resolves schema
// and processor, runs the optional processor stages, parses the body by
// content type, enforces size limits, builds outbound headers, produces
// messages, and assembles the client response.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ncubeanalytics/ingest/internal/apperror"
	"github.com/ncubeanalytics/ingest/internal/config"
	"github.com/ncubeanalytics/ingest/internal/logctx"
	"github.com/ncubeanalytics/ingest/internal/metrics"
	"github.com/ncubeanalytics/ingest/internal/processor"
	"github.com/ncubeanalytics/ingest/internal/producer"
	"github.com/ncubeanalytics/ingest/internal/schema"
	"github.com/ncubeanalytics/ingest/internal/tenant"
)

// Version is the build-time package version string attached as the
// ingest-version header when a schema's forward_ingest_version is set.
// Override at link time with -ldflags "-X ...ingest.Version=...".
var Version = "dev"

const (
	deliveryBufferSize   = 512
	defaultMaxConcurrent = 256
	readChunkSize        = 32 * 1024
)

// Future resolves once a produced message's delivery outcome is known.
type Future interface {
	Wait(ctx context.Context) error
}

// ProducerPool is the subset of the broker-producer pool the pipeline
// depends on.
type ProducerPool interface {
	Send(ctx context.Context, producerName, topic, key string, headers []kgo.RecordHeader, payload []byte) (Future, error)
}

// PoolAdapter adapts *producer.Pool to ProducerPool; *producer.Future
// already satisfies Future, but Go's lack of covariant returns means the
// concrete pool can't satisfy the interface directly.
type PoolAdapter struct {
	Pool *producer.Pool
}

func (a PoolAdapter) Send(ctx context.Context, producerName, topic, key string, headers []kgo.RecordHeader, payload []byte) (Future, error) {
	return a.Pool.Send(ctx, producerName, topic, key, headers, payload)
}

// ProcessorHandle is the subset of *processor.Handle the pipeline relies
// on.
type ProcessorHandle interface {
	ImplementsHead() bool
	Process(url, method string, headers processor.HeaderView, body []byte) (*processor.Response, error)
	ProcessHead(url, method string, headers processor.HeaderView) (*processor.Response, error)
	CallablePath() string
}

// ProcessorResolver is the subset of *processor.Registry the pipeline
// relies on.
type ProcessorResolver interface {
	Resolve(schemaID, method string) (ProcessorHandle, bool)
}

// RegistryAdapter adapts *processor.Registry to ProcessorResolver; the
// same covariant-return mismatch as PoolAdapter applies, since
// Registry.Resolve's declared return type is the concrete *Handle.
type RegistryAdapter struct {
	Registry *processor.Registry
}

func (a RegistryAdapter) Resolve(schemaID, method string) (ProcessorHandle, bool) {
	return a.Registry.Resolve(schemaID, method)
}

// Pipeline implements httpserver.PipelineHandler.
type Pipeline struct {
	table      *schema.Table
	processors ProcessorResolver
	pool       ProducerPool
	headers    config.HeaderNames
	tenantCfg  config.TenantConfig

	maxConcurrent int
}

// New builds a Pipeline over the given resolved schema table, processor
// registry, and producer pool.
func New(table *schema.Table, processors ProcessorResolver, pool ProducerPool, headers config.HeaderNames, tenantCfg config.TenantConfig) *Pipeline {
	return &Pipeline{
		table:         table,
		processors:    processors,
		pool:          pool,
		headers:       headers,
		tenantCfg:     tenantCfg,
		maxConcurrent: defaultMaxConcurrent,
	}
}

// ServeIngest runs the full per-request state machine for one request
// already routed to schemaID.
func (p *Pipeline) ServeIngest(w http.ResponseWriter, r *http.Request, schemaID string) {
	cfg := p.table.Resolve(schemaID)
	method := r.Method

	tenantID := tenant.Resolve(p.tenantCfg, r)
	log := logctx.WithSchema(schemaID)

	handle, hasProcessor := p.processors.Resolve(schemaID, method)
	allowed := methodAllowed(cfg.AllowedMethods, method)
	if !allowed && !hasProcessor {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	headerView := processor.NewHeaderView(r.Header)
	var procResp *processor.Response
	procForwardDecided := false

	// Step 2 — processor head stage.
	if hasProcessor && handle.ImplementsHead() {
		resp, err := handle.ProcessHead(r.URL.String(), method, headerView)
		if err != nil {
			log.Error("processor head stage failed", "error", err, "tenant", tenantID)
			metrics.Get().RecordProcessorError(schemaID, handle.CallablePath())
			p.writeError(w, apperror.Wrap(err, apperror.CodeProcessor, "processor head stage failed"))
			return
		}
		if resp != nil {
			procResp = resp
			if !resp.Forward {
				p.finalize(w, cfg, procResp, nil)
				return
			}
			procForwardDecided = true
		}
	}

	// Step 3 — bounded body pre-read.
	prefix, rest, overflowed, readErr := prefixRead(r.Body, cfg.MaxEventSizeBytes)
	if readErr != nil {
		log.Error("reading request body failed", "error", readErr, "tenant", tenantID)
		metrics.Get().RecordEventRejected(schemaID, "io_error")
		p.writeError(w, apperror.Wrap(readErr, apperror.CodeIO, "reading request body"))
		return
	}

	// Step 4 — processor body stage.
	if hasProcessor {
		resp, err := handle.Process(r.URL.String(), method, headerView, prefix)
		if err != nil {
			log.Error("processor body stage failed", "error", err, "tenant", tenantID)
			metrics.Get().RecordProcessorError(schemaID, handle.CallablePath())
			p.writeError(w, apperror.Wrap(err, apperror.CodeProcessor, "processor body stage failed"))
			return
		}
		if resp != nil {
			procResp = mergeProcessorResponse(procResp, resp)
			if !resp.Forward {
				p.finalize(w, cfg, procResp, nil)
				return
			}
			procForwardDecided = true
		}
	}

	if !allowed && !procForwardDecided {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Step 5 — forward.
	report, contentType, err := p.forward(r.Context(), r, schemaID, cfg, prefix, rest, overflowed)
	if err != nil {
		log.Warn("forwarding failed", "error", err, "tenant", tenantID)
	}

	p.finalize(w, cfg, procResp, &forwardOutcome{report: report, contentType: contentType, err: err})
}

func (p *Pipeline) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperror.ToHTTPStatus(err))
}

// forwardOutcome carries the result of Step 5 into response assembly.
type forwardOutcome struct {
	report      *Report
	contentType ContentType
	err         error
}

// finalize implements Step 6: response assembly.
func (p *Pipeline) finalize(w http.ResponseWriter, cfg *config.SchemaConfig, procResp *processor.Response, outcome *forwardOutcome) {
	status := cfg.ResponseStatus
	if outcome != nil && outcome.err != nil {
		status = apperror.ToHTTPStatus(outcome.err)
	}

	hasProcessorBody := procResp != nil && procResp.Body != nil
	var body []byte
	if hasProcessorBody {
		body = procResp.Body
	} else if outcome != nil && outcome.report != nil {
		outcome.report.IngestedContentType = outcome.contentType.String()
		if encoded, err := json.Marshal(outcome.report); err == nil {
			body = encoded
		}
	}

	contentTypeSet := false
	if procResp != nil {
		for _, h := range procResp.Headers {
			w.Header().Add(h.Name, h.Value)
			if strings.EqualFold(h.Name, "Content-Type") {
				contentTypeSet = true
			}
		}
	}
	if !hasProcessorBody && !contentTypeSet {
		w.Header().Set("Content-Type", "application/json")
	}

	if procResp != nil && procResp.Status != nil {
		status = *procResp.Status
	}

	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// mergeProcessorResponse overlays the body-stage response b onto the
// head-stage response a; b's set fields win, absent fields keep a's.
func mergeProcessorResponse(a, b *processor.Response) *processor.Response {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	merged := *a
	merged.Forward = b.Forward
	if b.Status != nil {
		merged.Status = b.Status
	}
	if len(b.Headers) > 0 {
		merged.Headers = append(append([]processor.HeaderPair{}, a.Headers...), b.Headers...)
	}
	if b.Body != nil {
		merged.Body = b.Body
	}
	return &merged
}

func methodAllowed(allowed []string, method string) bool {
	method = strings.ToUpper(method)
	for _, m := range allowed {
		if m == method {
			return true
		}
	}
	return false
}

// prefixRead reads up to maxLen+1 bytes from r, capping the returned
// prefix at maxLen. When more data follows, overflowed is true and rest
// is a reader that replays the one byte already consumed plus whatever
// remains of r; otherwise rest is nil (r is exhausted).
func prefixRead(r io.Reader, maxLen int64) (prefix []byte, rest io.Reader, overflowed bool, err error) {
	limit := maxLen + 1
	initialCap := limit
	if initialCap > readChunkSize {
		initialCap = readChunkSize
	}
	buf := make([]byte, 0, initialCap)
	chunk := make([]byte, readChunkSize)

	for int64(len(buf)) < limit {
		want := chunk
		if remaining := limit - int64(len(buf)); remaining < int64(len(want)) {
			want = chunk[:remaining]
		}
		n, rerr := r.Read(want)
		if n > 0 {
			buf = append(buf, want[:n]...)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, nil, false, rerr
		}
	}

	if int64(len(buf)) <= maxLen {
		return buf, nil, false, nil
	}
	return buf[:maxLen], io.MultiReader(bytes.NewReader(buf[maxLen:]), r), true, nil
}

// forward implements Step 5: content-type resolution, header
// construction, and content-type-specific parsing and production.
func (p *Pipeline) forward(ctx context.Context, r *http.Request, schemaID string, cfg *config.SchemaConfig, prefix []byte, rest io.Reader, overflowed bool) (*Report, ContentType, error) {
	fromHeader := cfg.ContentTypeFromHeader != nil && *cfg.ContentTypeFromHeader
	contentType := ResolveContentType(fromHeader, r.Header.Get("Content-Type"), cfg.ContentType)
	headers := p.buildHeaders(r, schemaID, cfg)

	if contentType == ContentTypeJSONLines {
		report, err := p.forwardJSONLines(ctx, schemaID, cfg, headers, prefix, rest)
		return report, contentType, err
	}

	report, err := p.forwardSingle(ctx, schemaID, cfg, headers, prefix, overflowed, contentType == ContentTypeJSON)
	return report, contentType, err
}

// forwardSingle implements the JSON and Binary cases: exactly one
// message, the whole (already bounded) body as payload.
func (p *Pipeline) forwardSingle(ctx context.Context, schemaID string, cfg *config.SchemaConfig, headers []kgo.RecordHeader, prefix []byte, overflowed, trimAndValidateUTF8 bool) (*Report, error) {
	zero := &Report{IngestedSchemaID: schemaID}
	m := metrics.Get()

	if overflowed {
		m.RecordEventRejected(schemaID, "payload_too_large")
		return zero, apperror.New(apperror.CodePayloadTooLarge, "request body exceeds max_event_size_bytes")
	}

	payload := prefix
	if trimAndValidateUTF8 {
		payload = bytes.Trim(payload, " \t\r\n")
		if !utf8.Valid(payload) {
			m.RecordEventRejected(schemaID, "invalid_utf8")
			return zero, apperror.New(apperror.CodeBadRequest, "request body is not valid UTF-8")
		}
	}

	start := time.Now()
	future, err := p.pool.Send(ctx, cfg.ProducerName, cfg.DestinationTopic, "", headers, payload)
	if err != nil {
		m.RecordProducerSend(cfg.ProducerName, cfg.DestinationTopic, "send_error", time.Since(start))
		return zero, apperror.Wrap(err, apperror.CodeBroker, "producer send failed")
	}
	if err := future.Wait(ctx); err != nil {
		m.RecordProducerSend(cfg.ProducerName, cfg.DestinationTopic, "delivery_error", time.Since(start))
		return zero, apperror.Wrap(err, apperror.CodeBroker, "broker delivery failed")
	}
	m.RecordProducerSend(cfg.ProducerName, cfg.DestinationTopic, "ok", time.Since(start))
	m.RecordEventIngested(schemaID, len(payload))

	return &Report{IngestedCount: 1, IngestedBytes: int64(len(payload)), IngestedSchemaID: schemaID}, nil
}

type deliveryResult struct {
	bytes int64
	err   error
}

// forwardJSONLines implements the JSON-lines case: the Reading/Draining
// state machine described in §4.4 — one produce task per line, a
// concurrent delivery-collector, first-error-wins, in-flight deliveries
// allowed to finish after a read error.
func (p *Pipeline) forwardJSONLines(ctx context.Context, schemaID string, cfg *config.SchemaConfig, headers []kgo.RecordHeader, prefix []byte, rest io.Reader) (*Report, error) {
	scanner := newLineScanner(int(cfg.MaxEventSizeBytes))
	deliveries := make(chan deliveryResult, deliveryBufferSize)
	sem := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup
	m := metrics.Get()

	dispatch := func(payload []byte) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			timer := metrics.NewTimer(m.ProducerSendDuration, cfg.ProducerName, cfg.DestinationTopic)
			future, err := p.pool.Send(ctx, cfg.ProducerName, cfg.DestinationTopic, "", headers, payload)
			if err != nil {
				timer.ObserveDuration()
				m.ProducerSendTotal.WithLabelValues(cfg.ProducerName, cfg.DestinationTopic, "send_error").Inc()
				deliveries <- deliveryResult{err: err}
				return
			}
			if err := future.Wait(ctx); err != nil {
				timer.ObserveDuration()
				m.ProducerSendTotal.WithLabelValues(cfg.ProducerName, cfg.DestinationTopic, "delivery_error").Inc()
				deliveries <- deliveryResult{err: err}
				return
			}
			timer.ObserveDuration()
			m.ProducerSendTotal.WithLabelValues(cfg.ProducerName, cfg.DestinationTopic, "ok").Inc()
			m.RecordEventIngested(schemaID, len(payload))
			deliveries <- deliveryResult{bytes: int64(len(payload))}
		}()
	}

	dispatchLine := func(line []byte) {
		trimmed := bytes.Trim(line, " \t\r\n")
		if len(trimmed) == 0 {
			return
		}
		dispatch(trimmed)
	}

	var readErr error
	lines, ferr := scanner.Feed(prefix)
	for _, l := range lines {
		dispatchLine(l)
	}
	if ferr != nil {
		readErr = ferr
	}

	if readErr == nil && rest != nil {
		buf := make([]byte, readChunkSize)
		for {
			n, rerr := rest.Read(buf)
			if n > 0 {
				lines, ferr := scanner.Feed(buf[:n])
				for _, l := range lines {
					dispatchLine(l)
				}
				if ferr != nil {
					readErr = ferr
					break
				}
			}
			if rerr != nil {
				if rerr != io.EOF {
					readErr = apperror.Wrap(rerr, apperror.CodeIO, "reading request body")
				}
				break
			}
		}
	}

	if readErr == nil {
		if tail := scanner.Flush(); len(tail) > 0 {
			dispatchLine(tail)
		}
	}

	go func() {
		wg.Wait()
		close(deliveries)
	}()

	var count, totalBytes int64
	var firstErr error
	for d := range deliveries {
		if d.err != nil {
			if firstErr == nil {
				firstErr = apperror.Wrap(d.err, apperror.CodeBroker, "broker delivery failed")
			}
			continue
		}
		count++
		totalBytes += d.bytes
	}

	if firstErr == nil && readErr != nil {
		firstErr = readErr
		reason := "io_error"
		if apperror.Code(readErr) == apperror.CodePayloadTooLarge {
			reason = "payload_too_large"
		}
		m.RecordEventRejected(schemaID, reason)
	}

	return &Report{IngestedCount: count, IngestedBytes: totalBytes, IngestedSchemaID: schemaID}, firstErr
}

// buildHeaders constructs the outbound metadata header list per §4.4
// step 5.
func (p *Pipeline) buildHeaders(r *http.Request, schemaID string, cfg *config.SchemaConfig) []kgo.RecordHeader {
	var out []kgo.RecordHeader
	names := p.headers

	if names.SchemaID != "" {
		out = append(out, kgo.RecordHeader{Key: names.SchemaID, Value: []byte(schemaID)})
	}
	if names.IP != "" {
		out = append(out, kgo.RecordHeader{Key: names.IP, Value: []byte(remoteIP(r))})
	}
	if cfg.ForwardIngestVersion != nil && *cfg.ForwardIngestVersion && names.IngestVersion != "" {
		out = append(out, kgo.RecordHeader{Key: names.IngestVersion, Value: []byte(Version)})
	}
	if cfg.ForwardURL && names.URL != "" {
		out = append(out, kgo.RecordHeader{Key: names.URL, Value: []byte(r.URL.String())})
	}
	if cfg.ForwardMethod && names.Method != "" {
		out = append(out, kgo.RecordHeader{Key: names.Method, Value: []byte(r.Method)})
	}
	if cfg.ForwardHTTPHeaders {
		prefix := names.HTTPHeaderPrefix
		for name, values := range r.Header {
			for _, v := range values {
				out = append(out, kgo.RecordHeader{Key: prefix + name, Value: []byte(v)})
			}
		}
	}

	return out
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
