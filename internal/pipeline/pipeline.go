package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"certpipe/internal/broker"
	"certpipe/internal/config"
	"certpipe/internal/constants"
	"certpipe/internal/filtering"
	"certpipe/internal/listing"
	"certpipe/internal/logger"
	pkgerrors "certpipe/pkg/errors"
	"certpipe/pkg/logging"
	"certpipe/pkg/metrics"
	"certpipe/pkg/models"
)

const serviceName = "pipeline"

// Pipeline outcomes recorded per message.
const (
	OutcomeFiltered   = "filtered"
	OutcomeDuplicate  = "duplicate"
	OutcomeNoListings = "no_listings"
	OutcomePersisted  = "persisted"
	OutcomeError      = "error"
	OutcomePanic      = "panic"
)

type Filter interface {
	Filter(ctx context.Context, msg models.ChatMessage) filtering.Verdict
}

type Deduper interface {
	IsUnique(ctx context.Context, rawContent string) (bool, error)
}

type Enricher interface {
	Enrich(ctx context.Context, msg models.ChatMessage) models.EnrichedContext
}

type Extractor interface {
	ExtractListings(ctx context.Context, content string) ([]models.ExtractedListing, error)
	SplitCertificates(ctx context.Context, certificatesRaw string) ([]string, error)
}

type ListingStore interface {
	Store(ctx context.Context, l *listing.TradeListing) error
}

type Archiver interface {
	Insert(ctx context.Context, msg models.ChatMessage) error
}

type queued struct {
	msg        models.ChatMessage
	enqueuedAt time.Time
}

// Pipeline pulls normalized messages through filtering, archiving,
// deduplication, enrichment, extraction, and persistence. Submit feeds a
// bounded queue; a fixed worker pool drains it.
type Pipeline struct {
	cfg       config.PipelineConfig
	queue     chan queued
	filter    Filter
	deduper   Deduper
	enricher  Enricher
	extractor Extractor
	assembler *listing.Assembler
	store     ListingStore
	archiver  Archiver
	producer  broker.Producer
	topics    config.KafkaConfig
	logger    logger.Logger
}

func New(
	cfg config.PipelineConfig,
	filter Filter,
	deduper Deduper,
	enricher Enricher,
	extractor Extractor,
	assembler *listing.Assembler,
	store ListingStore,
	archiver Archiver,
	producer broker.Producer,
	topics config.KafkaConfig,
	log logger.Logger,
) *Pipeline {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = constants.DefaultQueueCapacity
	}
	if cfg.Workers <= 0 {
		cfg.Workers = constants.DefaultWorkerCount
	}
	if cfg.ShutdownGracePeriod <= 0 {
		cfg.ShutdownGracePeriod = constants.DefaultShutdownGrace
	}

	return &Pipeline{
		cfg:       cfg,
		queue:     make(chan queued, capacity),
		filter:    filter,
		deduper:   deduper,
		enricher:  enricher,
		extractor: extractor,
		assembler: assembler,
		store:     store,
		archiver:  archiver,
		producer:  producer,
		topics:    topics,
		logger:    log,
	}
}

// Submit enqueues one message. It blocks while the queue is full so that
// backpressure reaches the gateway stream instead of dropping silently.
func (p *Pipeline) Submit(ctx context.Context, msg models.ChatMessage) error {
	select {
	case p.queue <- queued{msg: msg, enqueuedAt: time.Now()}:
		metrics.SetMessageQueueSize(serviceName, len(p.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and the
// remaining queue is drained or the grace period expires.
func (p *Pipeline) Run(ctx context.Context) error {
	g := new(errgroup.Group)

	for i := 0; i < p.cfg.Workers; i++ {
		workerID := i
		g.Go(func() error {
			p.worker(ctx, workerID)
			return nil
		})
	}

	return g.Wait()
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	for {
		select {
		case item := <-p.queue:
			procCtx, cancel := p.messageContext(ctx)
			p.dequeue(procCtx, item)
			cancel()
		case <-ctx.Done():
			p.drain(id)
			return
		}
	}
}

// messageContext shields the message being processed from run context
// cancellation. Once shutdown starts the in-flight message keeps a usable
// context for the grace period, so its remaining stage calls, including
// the final persistence write, can complete before forced termination.
func (p *Pipeline) messageContext(run context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-run.Done():
		}

		timer := time.NewTimer(p.cfg.ShutdownGracePeriod)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// drain processes what is still queued after shutdown began, bounded by the
// grace period.
func (p *Pipeline) drain(id int) {
	graceCtx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownGracePeriod)
	defer cancel()

	for {
		select {
		case item := <-p.queue:
			p.dequeue(graceCtx, item)
		case <-graceCtx.Done():
			if remaining := len(p.queue); remaining > 0 {
				p.logger.Warnw("Shutdown grace period expired with messages still queued",
					"worker", id,
					"remaining", remaining,
				)
			}
			return
		default:
			return
		}
	}
}

func (p *Pipeline) dequeue(ctx context.Context, item queued) {
	metrics.ObserveMessageQueueWaitDuration(serviceName, time.Since(item.enqueuedAt))
	metrics.SetMessageQueueSize(serviceName, len(p.queue))

	ctx = logging.WithServiceName(ctx, serviceName)
	ctx = logging.WithMessageID(ctx, item.msg.MessageID)
	ctx = logging.WithGroupID(ctx, item.msg.SourceID)

	outcome := p.process(ctx, item.msg)
	metrics.PipelineMessagesTotal.WithLabelValues(outcome).Inc()
}

// process runs one message through every stage. A panic in any stage is
// contained to that message.
func (p *Pipeline) process(ctx context.Context, msg models.ChatMessage) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			err := pkgerrors.RecoverPanic(r)
			p.logger.ErrorwCtx(ctx, "Recovered panic while processing message", "error", err)
			p.publishDropped(ctx, msg, "panic")
			outcome = OutcomePanic
		}
	}()

	verdict := p.runFilter(ctx, msg)
	if !verdict.Accepted {
		p.logger.DebugwCtx(ctx, "Message filtered out", "reason", verdict.Reason)
		return OutcomeFiltered
	}

	p.runArchive(ctx, msg)

	unique, err := p.runDedup(ctx, msg)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Deduplication failed", "error", err)
		p.publishDropped(ctx, msg, "dedup_error")
		return OutcomeError
	}
	if !unique {
		return OutcomeDuplicate
	}

	enriched := p.runEnrich(ctx, msg)

	extracted, err := p.runExtract(ctx, msg)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Extraction failed", "error", err)
		p.publishDropped(ctx, msg, "extraction_error")
		return OutcomeError
	}
	if len(extracted) == 0 {
		return OutcomeNoListings
	}

	persisted := p.runPersist(ctx, msg, enriched, extracted)
	if persisted == 0 {
		p.publishDropped(ctx, msg, "persist_error")
		return OutcomeError
	}

	return OutcomePersisted
}

func (p *Pipeline) runFilter(ctx context.Context, msg models.ChatMessage) filtering.Verdict {
	ctx = logging.WithStage(ctx, "filter")
	start := time.Now()
	verdict := p.filter.Filter(ctx, msg)
	metrics.ObserveStageDuration("filter", resultLabel(verdict.Accepted), time.Since(start))
	return verdict
}

// runArchive is best-effort: archive loss never blocks extraction.
func (p *Pipeline) runArchive(ctx context.Context, msg models.ChatMessage) {
	if p.archiver == nil {
		return
	}

	ctx = logging.WithStage(ctx, "archive")
	start := time.Now()
	err := p.archiver.Insert(ctx, msg)
	metrics.ObserveStageDuration("archive", statusLabel(err), time.Since(start))
	if err != nil {
		p.logger.WarnwCtx(ctx, "Failed to archive message", "error", err)
	}
}

func (p *Pipeline) runDedup(ctx context.Context, msg models.ChatMessage) (bool, error) {
	ctx = logging.WithStage(ctx, "dedup")
	start := time.Now()
	unique, err := p.deduper.IsUnique(ctx, msg.RawContent)
	metrics.ObserveStageDuration("dedup", statusLabel(err), time.Since(start))
	return unique, err
}

func (p *Pipeline) runEnrich(ctx context.Context, msg models.ChatMessage) models.EnrichedContext {
	ctx = logging.WithStage(ctx, "enrich")
	start := time.Now()
	enriched := p.enricher.Enrich(ctx, msg)
	metrics.ObserveStageDuration("enrich", "success", time.Since(start))
	return enriched
}

func (p *Pipeline) runExtract(ctx context.Context, msg models.ChatMessage) ([]models.ExtractedListing, error) {
	ctx = logging.WithStage(ctx, "extract")
	start := time.Now()
	extracted, err := p.extractor.ExtractListings(ctx, msg.RawContent)
	metrics.ObserveStageDuration("extract", statusLabel(err), time.Since(start))
	return extracted, err
}

// runPersist stores every listing the model produced and returns how many
// made it to storage. A duplicate row counts as handled, not failed.
func (p *Pipeline) runPersist(ctx context.Context, msg models.ChatMessage, enriched models.EnrichedContext, extracted []models.ExtractedListing) int {
	ctx = logging.WithStage(ctx, "persist")
	start := time.Now()
	persisted := 0

	for _, ex := range extracted {
		splitCerts, err := p.extractor.SplitCertificates(ctx, ex.CertificatesRaw)
		if err != nil {
			p.logger.WarnwCtx(ctx, "Certificate split failed, storing unsplit", "error", err)
			splitCerts = nil
		}

		l, err := p.assembler.Assemble(msg, enriched, ex, splitCerts)
		if err != nil {
			p.logger.WarnwCtx(ctx, "Listing rejected at assembly", "error", err)
			continue
		}

		if err := p.store.Store(ctx, &l); err != nil {
			if pkgerrors.IsConflict(err) {
				metrics.ListingsPersistedTotal.WithLabelValues("duplicate").Inc()
				persisted++
				continue
			}
			metrics.ListingsPersistedTotal.WithLabelValues("error").Inc()
			p.logger.ErrorwCtx(ctx, "Failed to store listing", "error", err)
			continue
		}

		metrics.ListingsPersistedTotal.WithLabelValues("success").Inc()
		persisted++
		p.publishListing(ctx, l)
	}

	metrics.ObserveStageDuration("persist", resultLabel(persisted > 0), time.Since(start))
	return persisted
}

func (p *Pipeline) publishListing(ctx context.Context, l listing.TradeListing) {
	if p.producer == nil || p.topics.ListingsTopic == "" {
		return
	}

	envelope := models.Envelope{
		ID:        l.ID,
		Kind:      "listing",
		Timestamp: time.Now().UTC(),
		Payload: map[string]interface{}{
			"listing": l,
		},
	}

	if err := p.producer.Publish(ctx, p.topics.ListingsTopic, envelope); err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to publish listing",
			"error", err,
			"listing_id", l.ID,
			"topic", p.topics.ListingsTopic,
		)
	}
}

func (p *Pipeline) publishDropped(ctx context.Context, msg models.ChatMessage, reason string) {
	if p.producer == nil || p.topics.DLQTopic == "" {
		return
	}

	envelope := models.Envelope{
		ID:        msg.MessageID,
		Kind:      "dropped",
		Timestamp: time.Now().UTC(),
		Payload: map[string]interface{}{
			"reason":  reason,
			"message": msg,
		},
	}

	if err := p.producer.Publish(ctx, p.topics.DLQTopic, envelope); err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to publish to DLQ",
			"error", err,
			"topic", p.topics.DLQTopic,
		)
		return
	}

	metrics.DLQMessagesTotal.WithLabelValues(serviceName, p.topics.DLQTopic, reason).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "rejected"
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
