// Package medication provides the application-level service that turns raw
// OCR text from a medication label into a structured medication record.
// This package serves as the interface between CLI/HTTP handlers and domain logic.
package medication

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/pillchecker/medlabel/internal/domain/medication"
	"github.com/pillchecker/medlabel/internal/infrastructure/cache"
	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/logging"
	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/prometheus"
	"github.com/pillchecker/medlabel/pkg/errors"
)

// EntitySource recognizes medical entities in free text.  The production
// implementation is the HTTP NER client; tests substitute a stub.
type EntitySource interface {
	ExtractEntities(ctx context.Context, text string) ([]medication.RawEntity, error)
}

// Service orchestrates the full structuring pipeline.
type Service interface {
	// Process structures the given label text.  It never fails outward:
	// when entity recognition is unavailable the result degrades to what
	// the text-only extractors can derive.
	Process(ctx context.Context, rawText string) *medication.StructuredMedication

	// SetConfidenceThreshold changes the linking threshold at runtime,
	// e.g. on a configuration reload. Values outside (0, 1] are ignored.
	SetConfidenceThreshold(threshold float64)
}

// Config holds the pipeline tunables the service needs.
type Config struct {
	ConfidenceThreshold float64
	TitleMaxLength      int
	CacheTTL            time.Duration
}

type service struct {
	source  EntitySource
	cfg     Config
	logger  logging.Logger
	cache   cache.Cache
	metrics *prometheus.PipelineMetrics

	// threshold holds the current confidence threshold as float64 bits so
	// a reload can change it while Process runs concurrently.
	threshold atomic.Uint64
}

// Option customises a Service.
type Option func(*service)

// WithCache reuses previously extracted entities for identical label text.
func WithCache(c cache.Cache) Option {
	return func(s *service) { s.cache = c }
}

// WithMetrics records pipeline runs, NER outcomes, and cache activity.
func WithMetrics(m *prometheus.PipelineMetrics) Option {
	return func(s *service) { s.metrics = m }
}

// NewService builds a Service around the given entity source.  Zero-value
// config fields fall back to the pipeline defaults.
func NewService(source EntitySource, cfg Config, logger logging.Logger, opts ...Option) Service {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = medication.DefaultConfidenceThreshold
	}
	if cfg.TitleMaxLength == 0 {
		cfg.TitleMaxLength = medication.DefaultTitleMaxLength
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &service{
		source: source,
		cfg:    cfg,
		logger: logger.Named("medication"),
	}
	s.threshold.Store(math.Float64bits(cfg.ConfidenceThreshold))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) SetConfidenceThreshold(threshold float64) {
	if threshold <= 0 || threshold > 1 {
		return
	}
	s.threshold.Store(math.Float64bits(threshold))
}

func (s *service) confidenceThreshold() float64 {
	return math.Float64frombits(s.threshold.Load())
}

func (s *service) Process(ctx context.Context, rawText string) *medication.StructuredMedication {
	start := time.Now()

	raw, degraded := s.recognize(ctx, rawText)
	s.metrics.AddEntitiesExtracted(len(raw))

	linked, stats := medication.LinkEntitiesStats(raw, s.confidenceThreshold())
	s.metrics.AddEntitiesDropped(prometheus.DropReasonLowConfidence, stats.LowConfidence)
	s.metrics.AddEntitiesDropped(prometheus.DropReasonUnlinkable, stats.Unlinkable)

	record := &medication.StructuredMedication{
		Title:               medication.ExtractTitle(rawText, linked, s.cfg.TitleMaxLength),
		ActiveIngredients:   medication.FormatActiveIngredients(linked),
		Dosage:              medication.ExtractDosage(rawText),
		PrescriptionDetails: medication.ExtractPrescriptionDetails(rawText, linked),
	}

	outcome := prometheus.OutcomeOK
	if degraded {
		outcome = prometheus.OutcomeDegraded
	}
	s.metrics.ObserveRun(outcome, time.Since(start))
	s.logger.Debug("processed medication label",
		logging.Int("raw_entities", len(raw)),
		logging.Int("linked_entities", len(linked)),
		logging.Bool("degraded", degraded),
		logging.Duration("elapsed", time.Since(start)),
	)
	return record
}

// recognize fetches entities for the text, consulting the cache when one is
// configured.  A recognition failure is logged and reported as degraded; the
// pipeline continues with no entities.
func (s *service) recognize(ctx context.Context, rawText string) (entities []medication.RawEntity, degraded bool) {
	nerStart := time.Now()
	err := s.cachedExtract(ctx, rawText, &entities)
	if err != nil {
		s.metrics.ObserveNERRequest(string(errors.GetCode(err)), time.Since(nerStart))
		s.logger.Warn("entity recognition failed, continuing without entities",
			logging.String("error_code", string(errors.GetCode(err))),
			logging.Err(err),
		)
		return nil, true
	}
	s.metrics.ObserveNERRequest(string(errors.CodeOK), time.Since(nerStart))
	return entities, false
}

func (s *service) cachedExtract(ctx context.Context, rawText string, dest *[]medication.RawEntity) error {
	if s.cache == nil {
		raw, err := s.source.ExtractEntities(ctx, rawText)
		if err != nil {
			return err
		}
		*dest = raw
		return nil
	}

	key := "entities:" + cache.NormalizeKey(rawText)
	hit := true
	err := s.cache.GetOrSet(ctx, key, dest, s.cfg.CacheTTL, func(ctx context.Context) (interface{}, error) {
		hit = false
		return s.source.ExtractEntities(ctx, rawText)
	})
	if err != nil {
		return err
	}
	if hit {
		s.metrics.IncCacheHit()
	} else {
		s.metrics.IncCacheMiss()
	}
	return nil
}
