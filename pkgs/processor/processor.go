// Package processor is the single synchronous entry point that turns a raw
// RedStone payload into aggregated per-feed values: decode, trust-filter,
// validate, aggregate, tracking stats and structured logs across the run.
package processor

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"github.com/powerloom/redstone-processor/pkgs/consensus"
	"github.com/powerloom/redstone-processor/pkgs/crypto"
	"github.com/powerloom/redstone-processor/pkgs/identity"
	"github.com/powerloom/redstone-processor/pkgs/metrics"
	"github.com/powerloom/redstone-processor/pkgs/protocol"
	"github.com/powerloom/redstone-processor/pkgs/wire"
)

// Config bundles everything a single Process call needs: the trust set
// packages are filtered against, the freshness/quorum rules validation
// enforces, and the block timestamp the freshness window is measured
// against.
type Config struct {
	Trust            *identity.TrustSet
	Consensus        consensus.Config
	BlockTimestampMs uint64
}

// ErrorKind classifies a ProcessorError for callers that branch on failure
// category (e.g. an HTTP adapter picking a status code) without string
// matching.
type ErrorKind string

const (
	KindDecode     ErrorKind = "decode"
	KindValidation ErrorKind = "validation"
)

// ProcessorError wraps a pipeline failure with the stage it occurred in.
type ProcessorError struct {
	Kind  ErrorKind
	Cause error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *ProcessorError) Unwrap() error {
	return e.Cause
}

// Code returns a stable numeric error code for wire-level callers (an API
// client that wants to branch on error family without string matching).
// Families are offset by a thousand per stage, with a fixed sub-offset
// per underlying cause.
func (e *ProcessorError) Code() uint16 {
	base := uint16(1000)
	if e.Kind == KindValidation {
		base = 2000
	}

	switch e.Cause.(type) {
	case wire.ErrInsufficientBytes:
		return base + 1
	case wire.ErrSizeNotSupported:
		return base + 2
	case wire.ErrNonEmptyRemainder:
		return base + 3
	case protocol.ErrWrongMarker:
		return base + 10
	case protocol.ErrInvalidPayloadLength:
		return base + 11
	case protocol.ErrSignerNotRecoverable:
		return base + 12
	case crypto.ErrBadSignatureLength:
		return base + 20
	case crypto.ErrBadRecoveryByte:
		return base + 21
	case consensus.ErrTimestampOutOfRange:
		return base + 30
	case consensus.ErrInsufficientSignerCount:
		return base + 31
	default:
		return base
	}
}

// Result is the outcome of a successful Process call: the aggregated
// median for each of Config.Consensus.Feeds, the minimum timestamp seen
// across trusted packages, and the opaque metadata bytes carried by the
// payload.
type Result struct {
	// Feeds is Config.Consensus.Feeds, echoed back so Values can be read
	// positionally in request order.
	Feeds  []protocol.FeedID
	Values map[protocol.FeedID]*uint256.Int

	MinTimestamp uint64
	Metadata     []byte
}

// Stats tracks cumulative pipeline outcomes across calls to a Processor.
type Stats struct {
	TotalProcessed  uint64
	SuccessfulCount uint64
	FailedCount     uint64
	LastProcessedAt time.Time
}

// Processor runs the decode/filter/validate/aggregate pipeline and
// accumulates Stats across calls. The zero value is not usable; build one
// with New.
type Processor struct {
	recoverer protocol.Recoverer
	metrics   *metrics.Recorder
	history   *metrics.Collector

	mu    sync.Mutex
	stats Stats
}

// New builds a Processor. recoverer supplies signer recovery (typically
// identity.DefaultCachingRecoverer); rec and history may each be nil, in
// which case the corresponding metrics are not recorded. rec serves the
// Prometheus scrape endpoint; history, if set, additionally records
// per-feed time series queryable through a Collector.
func New(recoverer protocol.Recoverer, rec *metrics.Recorder, history *metrics.Collector) *Processor {
	return &Processor{recoverer: recoverer, metrics: rec, history: history}
}

// Process decodes payload, drops packages from untrusted signers,
// validates timestamp freshness and per-feed signer quorum, and
// aggregates each feed's surviving values to a single median.
func (p *Processor) Process(cfg Config, payload []byte) (*Result, error) {
	start := time.Now()

	packages, metadata, err := protocol.DecodePayload(payload, p.recoverer)
	if err != nil {
		p.finish(false, start)
		p.metrics.ObserveDecode(false, time.Since(start))
		p.record(metrics.PipelineEvent{Type: metrics.EventPayloadRejected})
		log.WithError(err).Warn("redstone payload decode failed")
		return nil, &ProcessorError{Kind: KindDecode, Cause: err}
	}
	p.metrics.ObserveDecode(true, time.Since(start))
	p.record(metrics.PipelineEvent{Type: metrics.EventPayloadDecoded, Duration: time.Since(start)})

	trusted := consensus.TrustedPackages(packages, cfg.Trust)

	validateStart := time.Now()
	if err := consensus.ValidateTimestamps(trusted, cfg.BlockTimestampMs, cfg.Consensus); err != nil {
		p.finish(false, start)
		p.metrics.ObserveValidate(false, time.Since(validateStart))
		p.record(metrics.PipelineEvent{Type: metrics.EventPayloadRejected})
		log.WithError(err).Warn("redstone payload timestamp validation failed")
		return nil, &ProcessorError{Kind: KindValidation, Cause: err}
	}

	values := consensus.BuildFeedValues(trusted, cfg.Trust)
	if err := consensus.CheckQuorum(values, cfg.Consensus); err != nil {
		p.finish(false, start)
		p.metrics.ObserveValidate(false, time.Since(validateStart))
		p.record(metrics.PipelineEvent{Type: metrics.EventPayloadRejected})
		log.WithError(err).Warn("redstone payload quorum check failed")
		return nil, &ProcessorError{Kind: KindValidation, Cause: err}
	}
	p.metrics.ObserveValidate(true, time.Since(validateStart))

	minTimestamp, _ := consensus.MinTimestamp(trusted)

	feeds := cfg.Consensus.Feeds
	aggregated := consensus.Aggregate(values, feeds)
	valuesByFeed := make(map[protocol.FeedID]*uint256.Int, len(feeds))
	for i, feed := range feeds {
		valuesByFeed[feed] = aggregated[i]
		p.record(metrics.PipelineEvent{
			Type:   metrics.EventFeedAggregated,
			FeedID: feed.Hex(),
			Count:  len(values[feed]),
		})
	}

	p.finish(true, start)
	log.WithFields(log.Fields{
		"packages": len(packages),
		"trusted":  len(trusted),
		"feeds":    len(feeds),
		"elapsed":  time.Since(start),
	}).Debug("redstone payload processed")

	return &Result{
		Feeds:        feeds,
		Values:       valuesByFeed,
		MinTimestamp: minTimestamp,
		Metadata:     metadata,
	}, nil
}

// Stats returns a snapshot of cumulative pipeline outcomes.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Processor) record(event metrics.PipelineEvent) {
	if p.history == nil {
		return
	}
	p.history.Record(event)
}

func (p *Processor) finish(success bool, start time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.TotalProcessed++
	if success {
		p.stats.SuccessfulCount++
	} else {
		p.stats.FailedCount++
	}
	p.stats.LastProcessedAt = time.Now()
}
