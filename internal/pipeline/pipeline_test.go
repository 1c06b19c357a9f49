package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpipe/internal/config"
	"certpipe/internal/filtering"
	"certpipe/internal/listing"
	"certpipe/internal/logger"
	pkgerrors "certpipe/pkg/errors"
	"certpipe/pkg/logging"
	"certpipe/pkg/models"
)

type stubFilter struct {
	verdict filtering.Verdict
}

func (s stubFilter) Filter(ctx context.Context, msg models.ChatMessage) filtering.Verdict {
	return s.verdict
}

type stubDeduper struct {
	mu     sync.Mutex
	seen   map[string]bool
	err    error
	unique bool
	track  bool
}

func (s *stubDeduper) IsUnique(ctx context.Context, rawContent string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if !s.track {
		return s.unique, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[rawContent] {
		return false, nil
	}
	s.seen[rawContent] = true
	return true, nil
}

type stubEnricher struct {
	ctx models.EnrichedContext
}

func (s stubEnricher) Enrich(ctx context.Context, msg models.ChatMessage) models.EnrichedContext {
	return s.ctx
}

type stubExtractor struct {
	listings   []models.ExtractedListing
	extractErr error
	splits     []string
	splitErr   error
	panics     bool
}

func (s *stubExtractor) ExtractListings(ctx context.Context, content string) ([]models.ExtractedListing, error) {
	if s.panics {
		panic("model client state corrupted")
	}
	return s.listings, s.extractErr
}

func (s *stubExtractor) SplitCertificates(ctx context.Context, raw string) ([]string, error) {
	return s.splits, s.splitErr
}

type recordingStore struct {
	mu     sync.Mutex
	stored []listing.TradeListing
	err    error
}

func (r *recordingStore) Store(ctx context.Context, l *listing.TradeListing) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, *l)
	return nil
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stored)
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []models.ChatMessage
	err      error
}

func (r *recordingArchiver) Insert(ctx context.Context, msg models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived = append(r.archived, msg)
	return r.err
}

type recordingProducer struct {
	mu        sync.Mutex
	published map[string][]models.Envelope
}

func (r *recordingProducer) Publish(ctx context.Context, topic string, msg models.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.published == nil {
		r.published = make(map[string][]models.Envelope)
	}
	r.published[topic] = append(r.published[topic], msg)
	return nil
}

func (r *recordingProducer) Close() error { return nil }

func (r *recordingProducer) topicCount(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published[topic])
}

type fixture struct {
	filter    stubFilter
	deduper   *stubDeduper
	enricher  stubEnricher
	extractor *stubExtractor
	store     *recordingStore
	archiver  *recordingArchiver
	producer  *recordingProducer
}

func newFixture() *fixture {
	return &fixture{
		filter:  stubFilter{verdict: filtering.Verdict{Accepted: true}},
		deduper: &stubDeduper{unique: true},
		extractor: &stubExtractor{
			listings: []models.ExtractedListing{{DealType: "出", CertificatesRaw: "一级建造师"}},
			splits:   []string{"一级建造师"},
		},
		store:    &recordingStore{},
		archiver: &recordingArchiver{},
		producer: &recordingProducer{},
	}
}

func (f *fixture) pipeline(cfg config.PipelineConfig) *Pipeline {
	topics := config.KafkaConfig{ListingsTopic: "listings", DLQTopic: "listings-dlq"}
	return New(cfg, f.filter, f.deduper, f.enricher, f.extractor,
		listing.NewAssembler(cfg.StrictAssemblyChecks), f.store, f.archiver, f.producer, topics, logger.NopLogger())
}

func groupMessage(id, content string) models.ChatMessage {
	return models.ChatMessage{
		MessageID:   id,
		SourceKind:  models.SourceGroupChat,
		SourceID:    "20852660xxx@chatroom",
		SenderID:    "wxid_sender01",
		ContentKind: models.ContentText,
		RawContent:  content,
		ReceivedAt:  time.Now(),
	}
}

func TestProcessPersistsAndPublishes(t *testing.T) {
	f := newFixture()
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "出一级建造师 广州"))

	assert.Equal(t, OutcomePersisted, outcome)
	require.Equal(t, 1, f.store.count())
	assert.Equal(t, []string{"一级建造师"}, f.store.stored[0].SplitCertificates)
	assert.Equal(t, 1, f.producer.topicCount("listings"))
	assert.Len(t, f.archiver.archived, 1)
}

func TestProcessFilteredMessageStopsEarly(t *testing.T) {
	f := newFixture()
	f.filter = stubFilter{verdict: filtering.Verdict{Accepted: false, Reason: filtering.ReasonNotGroup}}
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "hello"))

	assert.Equal(t, OutcomeFiltered, outcome)
	assert.Equal(t, 0, f.store.count())
	assert.Empty(t, f.archiver.archived)
}

func TestProcessDuplicateSkipsExtraction(t *testing.T) {
	f := newFixture()
	f.deduper = &stubDeduper{track: true}
	p := f.pipeline(config.PipelineConfig{})

	msg := groupMessage("1", "出一级建造师 广州")
	assert.Equal(t, OutcomePersisted, p.process(context.Background(), msg))
	assert.Equal(t, OutcomeDuplicate, p.process(context.Background(), msg))

	assert.Equal(t, 1, f.store.count())
	// both copies still reach the archive
	assert.Len(t, f.archiver.archived, 2)
}

func TestProcessExtractionErrorGoesToDLQ(t *testing.T) {
	f := newFixture()
	f.extractor = &stubExtractor{extractErr: pkgerrors.ErrServiceUnavailable}
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "出一级建造师"))

	assert.Equal(t, OutcomeError, outcome)
	require.Equal(t, 1, f.producer.topicCount("listings-dlq"))
	env := f.producer.published["listings-dlq"][0]
	assert.Equal(t, "dropped", env.Kind)
	assert.Equal(t, "extraction_error", env.Payload["reason"])
}

func TestProcessNoListings(t *testing.T) {
	f := newFixture()
	f.extractor = &stubExtractor{}
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "大家早上好"))

	assert.Equal(t, OutcomeNoListings, outcome)
	assert.Equal(t, 0, f.store.count())
	assert.Equal(t, 0, f.producer.topicCount("listings-dlq"))
}

func TestProcessStoreConflictCountsAsHandled(t *testing.T) {
	f := newFixture()
	f.store.err = pkgerrors.ErrConflict
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "出一级建造师"))

	assert.Equal(t, OutcomePersisted, outcome)
	assert.Equal(t, 0, f.producer.topicCount("listings-dlq"))
}

func TestProcessStoreErrorGoesToDLQ(t *testing.T) {
	f := newFixture()
	f.store.err = pkgerrors.ErrInternal
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "出一级建造师"))

	assert.Equal(t, OutcomeError, outcome)
	assert.Equal(t, 1, f.producer.topicCount("listings-dlq"))
}

func TestProcessSplitFailureStoresUnsplit(t *testing.T) {
	f := newFixture()
	f.extractor.splits = nil
	f.extractor.splitErr = pkgerrors.ErrServiceUnavailable
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "出一级建造师"))

	assert.Equal(t, OutcomePersisted, outcome)
	require.Equal(t, 1, f.store.count())
	assert.Empty(t, f.store.stored[0].SplitCertificates)
	assert.Equal(t, "一级建造师", f.store.stored[0].CertificatesRaw)
}

func TestProcessPanicIsContained(t *testing.T) {
	f := newFixture()
	f.extractor = &stubExtractor{panics: true}
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "出一级建造师"))

	assert.Equal(t, OutcomePanic, outcome)
	require.Equal(t, 1, f.producer.topicCount("listings-dlq"))
	assert.Equal(t, "panic", f.producer.published["listings-dlq"][0].Payload["reason"])
}

func TestProcessArchiveFailureDoesNotBlock(t *testing.T) {
	f := newFixture()
	f.archiver.err = pkgerrors.ErrServiceUnavailable
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "出一级建造师"))

	assert.Equal(t, OutcomePersisted, outcome)
	assert.Equal(t, 1, f.store.count())
}

func TestMultipleListingsFromOneMessage(t *testing.T) {
	f := newFixture()
	f.extractor.listings = []models.ExtractedListing{
		{DealType: "出", CertificatesRaw: "一级建造师", OriginalInfo: "出一级建造师"},
		{DealType: "聘", CertificatesRaw: "造价工程师", OriginalInfo: "聘造价工程师"},
	}
	p := f.pipeline(config.PipelineConfig{})

	outcome := p.process(context.Background(), groupMessage("1", "出一级建造师\n聘造价工程师"))

	assert.Equal(t, OutcomePersisted, outcome)
	require.Equal(t, 2, f.store.count())
	assert.Equal(t, "出一级建造师", f.store.stored[0].OriginalText)
	assert.Equal(t, "聘造价工程师", f.store.stored[1].OriginalText)
	assert.Equal(t, 2, f.producer.topicCount("listings"))
}

func TestSubmitAndRunProcessesAllMessages(t *testing.T) {
	f := newFixture()
	f.deduper = &stubDeduper{track: true}
	p := f.pipeline(config.PipelineConfig{
		QueueCapacity:       16,
		Workers:             3,
		ShutdownGracePeriod: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(context.Background(), groupMessage(string(rune('a'+i)), "出证书 "+string(rune('a'+i)))))
	}

	require.Eventually(t, func() bool { return f.store.count() == 10 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

// ctxCapturingFilter records what the worker's context carries when a
// stage runs.
type ctxCapturingFilter struct {
	messageID string
	groupID   string
	stage     string
	service   string
}

func (c *ctxCapturingFilter) Filter(ctx context.Context, msg models.ChatMessage) filtering.Verdict {
	c.messageID = logging.GetMessageID(ctx)
	c.groupID = logging.GetGroupID(ctx)
	c.stage = logging.GetStage(ctx)
	c.service = logging.GetServiceName(ctx)
	return filtering.Verdict{Accepted: false, Reason: filtering.ReasonNotGroup}
}

func TestWorkerContextCarriesMessageFields(t *testing.T) {
	f := newFixture()
	filter := &ctxCapturingFilter{}
	topics := config.KafkaConfig{ListingsTopic: "listings", DLQTopic: "listings-dlq"}
	p := New(config.PipelineConfig{}, filter, f.deduper, f.enricher, f.extractor,
		listing.NewAssembler(false), f.store, f.archiver, f.producer, topics, logger.NopLogger())

	p.dequeue(context.Background(), queued{msg: groupMessage("77", "出一级建造师"), enqueuedAt: time.Now()})

	assert.Equal(t, "77", filter.messageID)
	assert.Equal(t, "20852660xxx@chatroom", filter.groupID)
	assert.Equal(t, "filter", filter.stage)
	assert.Equal(t, "pipeline", filter.service)
}

// gateFilter parks the worker inside the filter stage until released, so
// a test can cancel the run context while a message is in flight.
type gateFilter struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateFilter) Filter(ctx context.Context, msg models.ChatMessage) filtering.Verdict {
	g.entered <- struct{}{}
	<-g.release
	return filtering.Verdict{Accepted: true}
}

// ctxDeduper fails on a dead context the way the real dedup service does.
type ctxDeduper struct{}

func (ctxDeduper) IsUnique(ctx context.Context, rawContent string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

func TestShutdownLetsInFlightMessageFinish(t *testing.T) {
	f := newFixture()
	filter := &gateFilter{entered: make(chan struct{}), release: make(chan struct{})}
	topics := config.KafkaConfig{ListingsTopic: "listings", DLQTopic: "listings-dlq"}
	p := New(config.PipelineConfig{
		QueueCapacity:       4,
		Workers:             1,
		ShutdownGracePeriod: 2 * time.Second,
	}, filter, ctxDeduper{}, f.enricher, f.extractor,
		listing.NewAssembler(false), f.store, f.archiver, f.producer, topics, logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Submit(context.Background(), groupMessage("1", "出一级建造师 广州")))

	// cancel while the worker is parked inside the filter stage
	<-filter.entered
	cancel()
	close(filter.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not stop")
	}

	require.Equal(t, 1, f.store.count())
	assert.Equal(t, 0, f.producer.topicCount("listings-dlq"))
}

func TestRunDrainsQueueOnShutdown(t *testing.T) {
	f := newFixture()
	f.deduper = &stubDeduper{track: true}
	p := f.pipeline(config.PipelineConfig{
		QueueCapacity:       32,
		Workers:             1,
		ShutdownGracePeriod: 2 * time.Second,
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), groupMessage(string(rune('a'+i)), "出证书 "+string(rune('a'+i)))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // workers go straight to drain

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 5, f.store.count())
}

func TestSubmitRespectsContext(t *testing.T) {
	f := newFixture()
	p := f.pipeline(config.PipelineConfig{QueueCapacity: 1, Workers: 1})

	require.NoError(t, p.Submit(context.Background(), groupMessage("1", "x")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, groupMessage("2", "y"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
