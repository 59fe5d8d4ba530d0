package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"context"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// PipelineEventType enumerates the stages of the decode/validate/aggregate
// pipeline a Collector can turn into time-series metrics.
type PipelineEventType string

const (
	EventPayloadDecoded      PipelineEventType = "payload_decoded"
	EventPayloadRejected     PipelineEventType = "payload_rejected"
	EventFeedAggregated      PipelineEventType = "feed_aggregated"
	EventSubmissionDuplicate PipelineEventType = "submission_duplicate"
)

// PipelineEvent is a single pipeline occurrence fed to a Collector.
// FeedID, Duration and Count are optional, depending on Type.
type PipelineEvent struct {
	Type     PipelineEventType
	FeedID   string
	Duration time.Duration
	Count    int // e.g. surviving signer count for EventFeedAggregated
}

// Collector manages metric collection, aggregation, and Redis-backed
// history for the processor pipeline: a buffered event channel paired
// with a periodic registry export to Writer, carrying the
// decode/validate/aggregate pipeline's own event vocabulary.
type Collector struct {
	registry *Registry
	writer   *Writer
	config   *CollectorConfig

	eventChan chan PipelineEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventsCollected *Counter
	eventsDropped   *Counter
	collectionErrors *Counter
}

// NewCollector creates a new metrics collector.
func NewCollector(config *CollectorConfig) (*Collector, error) {
	if config == nil {
		config = DefaultCollectorConfig()
	}

	registry := NewRegistry(config)
	writer, err := NewWriter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create writer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		registry:  registry,
		writer:    writer,
		config:    config,
		eventChan: make(chan PipelineEvent, 1000),
		ctx:       ctx,
		cancel:    cancel,
	}

	metric1, _ := registry.Register(MetricConfig{
		Name: "metrics.collected.total",
		Type: MetricTypeCounter,
		Help: "Total metric exports written to the history store",
	})
	c.eventsCollected = metric1.(*Counter)

	metric2, _ := registry.Register(MetricConfig{
		Name: "metrics.dropped.total",
		Type: MetricTypeCounter,
		Help: "Total pipeline events dropped (channel full)",
	})
	c.eventsDropped = metric2.(*Counter)

	metric3, _ := registry.Register(MetricConfig{
		Name: "metrics.errors.total",
		Type: MetricTypeCounter,
		Help: "Total collection errors",
	})
	c.collectionErrors = metric3.(*Counter)

	return c, nil
}

// Start starts the collector's background goroutines.
func (c *Collector) Start() error {
	if err := c.writer.Start(); err != nil {
		return fmt.Errorf("failed to start writer: %w", err)
	}

	c.wg.Add(1)
	go c.collectLoop()

	c.wg.Add(1)
	go c.processEvents()

	c.wg.Add(1)
	go c.aggregationLoop()

	log.Info("metrics collector started")
	return nil
}

// Stop stops the collector's goroutines, then stops the writer. Events
// still queued in the event channel are discarded.
func (c *Collector) Stop() error {
	log.Info("stopping metrics collector")

	c.cancel()
	c.wg.Wait()

	if err := c.writer.Stop(); err != nil {
		return fmt.Errorf("failed to stop writer: %w", err)
	}

	log.Info("metrics collector stopped")
	return nil
}

// RegisterMetric registers a new metric.
func (c *Collector) RegisterMetric(config MetricConfig) (Metric, error) {
	return c.registry.Register(config)
}

// GetMetric retrieves a metric.
func (c *Collector) GetMetric(name string, labels Labels) Metric {
	return c.registry.Get(name, labels)
}

// GetOrCreateMetric gets or creates a metric.
func (c *Collector) GetOrCreateMetric(config MetricConfig) Metric {
	return c.registry.GetOrCreate(config)
}

// Record queues a pipeline event for metric updates. Never blocks: if the
// channel is full the event is dropped and counted.
func (c *Collector) Record(event PipelineEvent) {
	select {
	case c.eventChan <- event:
	default:
		c.eventsDropped.Inc()
		log.Warn("pipeline event channel full, dropping event")
	}
}

// collectLoop periodically exports the registry to the writer.
func (c *Collector) collectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	metrics := c.registry.Export()

	batch := make([]MetricExport, 0, c.config.BatchSize)
	for _, m := range metrics {
		batch = append(batch, m)

		if len(batch) >= c.config.BatchSize {
			if err := c.writer.WriteBatch(batch); err != nil {
				log.Errorf("failed to write metric batch: %v", err)
				c.collectionErrors.Inc()
			} else {
				c.eventsCollected.Add(float64(len(batch)))
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := c.writer.WriteBatch(batch); err != nil {
			log.Errorf("failed to write final metric batch: %v", err)
			c.collectionErrors.Inc()
		} else {
			c.eventsCollected.Add(float64(len(batch)))
		}
	}
}

func (c *Collector) processEvents() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case event := <-c.eventChan:
			c.updateMetricsFromEvent(event)
		}
	}
}

// updateMetricsFromEvent turns one pipeline event into metric updates.
func (c *Collector) updateMetricsFromEvent(event PipelineEvent) {
	labels := Labels{}
	if event.FeedID != "" {
		labels["feed"] = event.FeedID
	}

	switch event.Type {
	case EventPayloadDecoded:
		c.IncrementCounter("payload.decoded.count", labels)
		c.MarkRate("payload.decoded.rate", labels)
		if event.Duration > 0 {
			c.ObserveHistogram("payload.decode.duration", event.Duration.Seconds(), labels)
		}

	case EventPayloadRejected:
		c.IncrementCounter("payload.rejected.count", labels)

	case EventFeedAggregated:
		c.IncrementCounter("feed.aggregated.count", labels)
		if event.Count > 0 {
			c.SetGauge("feed.signer.count", float64(event.Count), labels)
		}
		if event.Duration > 0 {
			c.ObserveHistogram("feed.aggregate.duration", event.Duration.Seconds(), labels)
		}

	case EventSubmissionDuplicate:
		c.IncrementCounter("submission.duplicate.count", labels)
	}
}

func (c *Collector) aggregationLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.aggregateMetrics()
		}
	}
}

func (c *Collector) aggregateMetrics() {
	windows := []time.Duration{
		time.Minute,
		5 * time.Minute,
		15 * time.Minute,
		time.Hour,
	}

	now := time.Now()
	for _, window := range windows {
		since := now.Add(-window)

		for _, metric := range c.registry.List() {
			points := metric.Points(since)
			if len(points) == 0 {
				continue
			}

			agg := c.computeAggregations(points)

			aggMetric := AggregatedMetric{
				Name: metric.Name(),
				Window: TimeWindow{
					Start:    since,
					End:      now,
					Duration: window,
				},
				Labels:     metric.Labels(),
				Aggregates: agg,
				Count:      len(points),
			}

			if err := c.writer.WriteAggregated(aggMetric); err != nil {
				log.Errorf("failed to write aggregated metric: %v", err)
				c.collectionErrors.Inc()
			}
		}
	}
}

func (c *Collector) computeAggregations(points []MetricPoint) map[AggregationType]float64 {
	if len(points) == 0 {
		return nil
	}

	values := make([]float64, len(points))
	sum := 0.0
	for i, p := range points {
		values[i] = p.Value
		sum += p.Value
	}

	sort.Float64s(values)

	agg := make(map[AggregationType]float64)
	agg[AggSum] = sum
	agg[AggAvg] = sum / float64(len(values))
	agg[AggMin] = values[0]
	agg[AggMax] = values[len(values)-1]
	agg[AggCount] = float64(len(values))

	agg[AggP50] = percentile(values, 0.5)
	agg[AggP90] = percentile(values, 0.9)
	agg[AggP95] = percentile(values, 0.95)
	agg[AggP99] = percentile(values, 0.99)

	return agg
}

// Query performs a metric history query.
func (c *Collector) Query(query MetricQuery) (*MetricQueryResult, error) {
	return c.writer.Query(query)
}

// Export exports all current metrics.
func (c *Collector) Export() []MetricExport {
	return c.registry.Export()
}

// GetRegistry returns the metric registry.
func (c *Collector) GetRegistry() *Registry {
	return c.registry
}

// DefaultCollectorConfig returns default collector configuration.
func DefaultCollectorConfig() *CollectorConfig {
	return &CollectorConfig{
		CollectionInterval: 10 * time.Second,
		BatchSize:          100,
		FlushInterval:      100 * time.Millisecond,
		RetentionPeriod:    24 * time.Hour,
		StreamMaxLen:       100000,
		StreamKey:          "metrics:stream",
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// IncrementCounter increments a counter metric.
func (c *Collector) IncrementCounter(name string, labels Labels) {
	metric := c.GetOrCreateMetric(MetricConfig{
		Name:   name,
		Type:   MetricTypeCounter,
		Labels: labels,
	})
	if counter, ok := metric.(*Counter); ok {
		counter.Inc()
	}
}

// SetGauge sets a gauge metric value.
func (c *Collector) SetGauge(name string, value float64, labels Labels) {
	metric := c.GetOrCreateMetric(MetricConfig{
		Name:   name,
		Type:   MetricTypeGauge,
		Labels: labels,
	})
	if gauge, ok := metric.(*Gauge); ok {
		gauge.Set(value)
	}
}

// ObserveHistogram records a histogram observation.
func (c *Collector) ObserveHistogram(name string, value float64, labels Labels) {
	metric := c.GetOrCreateMetric(MetricConfig{
		Name:   name,
		Type:   MetricTypeHistogram,
		Labels: labels,
	})
	if hist, ok := metric.(*Histogram); ok {
		hist.Observe(value)
	}
}

// MarkRate marks an event for rate calculation.
func (c *Collector) MarkRate(name string, labels Labels) {
	metric := c.GetOrCreateMetric(MetricConfig{
		Name:   name,
		Type:   MetricTypeRate,
		Labels: labels,
		Window: time.Minute,
	})
	if rate, ok := metric.(*Rate); ok {
		rate.Mark()
	}
}
