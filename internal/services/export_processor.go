package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"travelai/internal/amqp"
	"travelai/internal/core"
	"travelai/internal/log"
)

// SummaryExporter writes a session summary to an external sink.
type SummaryExporter interface {
	ExportSummary(ctx context.Context, summary core.SessionSummary) error
}

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often pending summaries are flushed (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of sessions exported per cycle (default: 10)
	BatchSize int

	// MaxRetries is how many failed exports a summary gets before it is
	// dropped (default: 3). A newer summary for the session starts over.
	MaxRetries int
}

func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval: time.Minute,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

type pendingExport struct {
	summary  core.SessionSummary
	version  uint64
	attempts int
}

// ExportProcessor collects the latest summary of every touched session and
// exports them on a timer, so a burst of edits costs one write per session.
type ExportProcessor struct {
	exporter SummaryExporter
	config   ExportProcessorConfig
	logger   *log.Logger

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	stopping bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*pendingExport
	order     []string
	seq       uint64
}

func NewExportProcessor(exporter SummaryExporter, config ExportProcessorConfig, logger *log.Logger) *ExportProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportProcessor{
		exporter: exporter,
		config:   config,
		logger:   logger.WithComponent(log.ComponentExport),
		pending:  make(map[string]*pendingExport),
	}
}

// HandleEvent queues the summary carried by a recompute event. Other event
// types are ignored.
func (p *ExportProcessor) HandleEvent(ctx context.Context, evt *amqp.SettlementEvent) error {
	if evt.Type != amqp.EventSettlementRecomputed {
		return nil
	}
	if evt.Summary == nil {
		p.logger.DebugContext(ctx, "Recompute event without summary",
			log.FieldSessionID, evt.SessionID)
		return nil
	}
	p.Enqueue(*evt.Summary)
	return nil
}

// Enqueue records summary as the latest state of its session.
func (p *ExportProcessor) Enqueue(summary core.SessionSummary) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.seq++
	if _, ok := p.pending[summary.SessionID]; !ok {
		p.order = append(p.order, summary.SessionID)
	}
	p.pending[summary.SessionID] = &pendingExport{summary: summary, version: p.seq}
}

// Pending is the number of sessions waiting to be exported.
func (p *ExportProcessor) Pending() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return len(p.pending)
}

// Start begins the export loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopping = false
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop stops the loop, waits for it and flushes whatever is still pending.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	// A Stop that timed out already closed stopCh; later calls only wait.
	if !p.stopping {
		p.stopping = true
		close(p.stopCh)
	}
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.stopping = false
	p.mu.Unlock()

	for p.Pending() > 0 && ctx.Err() == nil {
		if p.processBatch(ctx) == 0 {
			break
		}
	}
	p.logger.InfoContext(ctx, "Export processor stopped", "pending", p.Pending())
	return nil
}

func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

// processBatch exports up to BatchSize sessions in the order they were
// first touched and returns how many it attempted.
func (p *ExportProcessor) processBatch(ctx context.Context) int {
	p.pendingMu.Lock()
	n := min(len(p.order), p.config.BatchSize)
	batch := make([]pendingExport, 0, n)
	for _, id := range p.order[:n] {
		batch = append(batch, *p.pending[id])
	}
	p.pendingMu.Unlock()

	for _, item := range batch {
		err := p.exporter.ExportSummary(ctx, item.summary)
		p.settle(ctx, item, err)
	}
	return len(batch)
}

func (p *ExportProcessor) settle(ctx context.Context, item pendingExport, exportErr error) {
	sessionID := item.summary.SessionID

	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	current, ok := p.pending[sessionID]
	if !ok {
		return
	}
	// A newer summary arrived while exporting; keep it queued.
	if current.version != item.version {
		return
	}

	if exportErr == nil {
		p.remove(sessionID)
		p.logger.InfoContext(ctx, "Exported session summary",
			log.FieldSessionID, sessionID,
			log.FieldOperation, log.OpExport)
		return
	}

	current.attempts++
	if current.attempts >= p.config.MaxRetries {
		p.remove(sessionID)
		log.NewStructuredLogger(p.logger).LogError(ctx, "Summary export failed permanently", exportErr,
			log.ComponentExport, log.OpExport, log.NewFields().WithSession(sessionID))
		return
	}
	p.logger.WarnContext(ctx, "Summary export failed, will retry",
		log.FieldSessionID, sessionID,
		"attempt", current.attempts,
		log.FieldError, exportErr)
	// Retry after the sessions that have not been tried yet.
	p.moveToBack(sessionID)
}

func (p *ExportProcessor) remove(sessionID string) {
	delete(p.pending, sessionID)
	for i, id := range p.order {
		if id == sessionID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

func (p *ExportProcessor) moveToBack(sessionID string) {
	for i, id := range p.order {
		if id == sessionID {
			p.order = append(append(p.order[:i], p.order[i+1:]...), sessionID)
			return
		}
	}
}
