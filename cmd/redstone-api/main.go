// Command redstone-api serves the decode/validate/aggregate pipeline over
// HTTP: POST a raw RedStone payload, get back aggregated per-feed values.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/powerloom/redstone-processor/config"
	"github.com/powerloom/redstone-processor/pkgs/consensus"
	"github.com/powerloom/redstone-processor/pkgs/deduplication"
	"github.com/powerloom/redstone-processor/pkgs/identity"
	"github.com/powerloom/redstone-processor/pkgs/metrics"
	"github.com/powerloom/redstone-processor/pkgs/processor"
	"github.com/powerloom/redstone-processor/pkgs/protocol"
	pkgsredis "github.com/powerloom/redstone-processor/pkgs/redis"
)

type server struct {
	proc      *processor.Processor
	trust     *identity.TrustSet
	dedup     *deduplication.Guard
	history   *metrics.Collector
	cfg       *config.Settings
	consensus consensus.Config
}

type processRequest struct {
	PayloadHex       string   `json:"payload_hex" binding:"required"`
	Feeds            []string `json:"feeds" binding:"required"`
	BlockTimestampMs uint64   `json:"block_timestamp_ms" binding:"required"`
}

type processResponse struct {
	Feeds        []string `json:"feeds"`
	Values       []string `json:"values"`
	MinTimestamp uint64   `json:"min_timestamp_ms"`
	Metadata     string   `json:"metadata_hex,omitempty"`
}

func (s *server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := hex.DecodeString(req.PayloadHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid payload_hex: %v", err)})
		return
	}

	feeds := make([]protocol.FeedID, len(req.Feeds))
	for i, feedHex := range req.Feeds {
		feed, err := protocol.FeedIDFromHex(feedHex)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		feeds[i] = feed
	}

	if s.dedup != nil {
		key := deduplication.KeyForPayload(payload)
		isNew, err := s.dedup.CheckAndMark(c.Request.Context(), key)
		if err != nil {
			log.WithError(err).Warn("submission dedup check failed, processing anyway")
		} else if !isNew {
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate submission"})
			return
		}
	}

	consCfg := s.consensus
	consCfg.Feeds = feeds

	result, err := s.proc.Process(processor.Config{
		Trust:            s.trust,
		BlockTimestampMs: req.BlockTimestampMs,
		Consensus:        consCfg,
	}, payload)
	if err != nil {
		resp := gin.H{"error": err.Error()}
		var perr *processor.ProcessorError
		if errors.As(err, &perr) {
			resp["kind"] = perr.Kind
			resp["code"] = perr.Code()
		}
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}

	feedHexes := make([]string, len(result.Feeds))
	values := make([]string, len(result.Feeds))
	for i, feed := range result.Feeds {
		feedHexes[i] = feed.Hex()
		if v := result.Values[feed]; v != nil {
			values[i] = v.String()
		}
	}

	c.JSON(http.StatusOK, processResponse{
		Feeds:        feedHexes,
		Values:       values,
		MinTimestamp: result.MinTimestamp,
		Metadata:     hex.EncodeToString(result.Metadata),
	})
}

func (s *server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.proc.Stats())
}

// handleHistory queries the Redis-backed metric history a deployment can
// enable alongside the Prometheus scrape endpoint. Unavailable unless
// Redis is configured.
func (s *server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics history not enabled"})
		return
	}

	query := metrics.MetricQuery{Names: c.QueryArray("name")}
	if since := c.Query("since_ms"); since != "" {
		ms, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid since_ms: %v", err)})
			return
		}
		query.Since = time.UnixMilli(ms)
	}
	if until := c.Query("until_ms"); until != "" {
		ms, err := strconv.ParseInt(until, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid until_ms: %v", err)})
			return
		}
		query.Until = time.UnixMilli(ms)
	}

	result, err := s.history.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func main() {
	if err := config.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.SettingsObj

	recoverer := identity.DefaultCachingRecoverer(cfg.RecoveryCacheSize)
	identCfg := identity.Config{
		TrustedSigners: cfg.TrustedAddresses(),
		PerFeedSigners: cfg.PerFeedAddresses(),
	}
	consCfg := consensusConfigFrom(cfg)

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.NewRecorder(prometheus.DefaultRegisterer)
	}

	var dedup *deduplication.Guard
	var history *metrics.Collector
	if cfg.RedisEnabled {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		guard, err := deduplication.NewGuard(redisClient, 4096, cfg.RedisCacheTTL)
		if err != nil {
			log.WithError(err).Warn("submission dedup guard disabled")
		} else {
			dedup = guard
		}

		kb := pkgsredis.NewKeyBuilder(cfg.RedisKeyNamespace)
		loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		loadedIdent, loadedCons, err := pkgsredis.LoadTrustConfig(loadCtx, redisClient, kb, nil)
		cancel()
		if err != nil {
			log.WithError(err).Warn("redis trust config load failed, falling back to env-derived config")
		} else {
			if len(loadedIdent.TrustedSigners) > 0 {
				identCfg = loadedIdent
			}
			consCfg = mergeConsensusConfig(consCfg, loadedCons)
		}

		collector, err := metrics.NewCollector(&metrics.CollectorConfig{
			RedisAddr:          fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
			RedisPassword:      cfg.RedisPassword,
			RedisDB:            cfg.RedisDB,
			RedisKeyPrefix:     cfg.RedisKeyNamespace + ":metrics",
			CollectionInterval: 10 * time.Second,
			BatchSize:          256,
			FlushInterval:      5 * time.Second,
			RetentionPeriod:    24 * time.Hour,
			StreamMaxLen:       10000,
			StreamKey:          cfg.RedisKeyNamespace + ":metrics:stream",
		})
		if err != nil {
			log.WithError(err).Warn("metric history collector disabled")
		} else if err := collector.Start(); err != nil {
			log.WithError(err).Warn("metric history collector failed to start")
		} else {
			history = collector
		}
	}

	trust := identity.NewTrustSet(identCfg)
	proc := processor.New(recoverer, rec, history)
	srv := &server{proc: proc, trust: trust, dedup: dedup, history: history, cfg: cfg, consensus: consCfg}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	v1 := router.Group("/v1")
	{
		v1.POST("/process", srv.handleProcess)
		v1.GET("/stats", srv.handleStats)
		v1.GET("/history", srv.handleHistory)
	}
	router.GET("/healthz", srv.handleHealthz)

	if cfg.MetricsEnabled {
		metricsRouter := http.NewServeMux()
		metricsRouter.Handle("/metrics", promhttp.Handler())
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			log.WithField("addr", addr).Info("starting metrics server")
			if err := http.ListenAndServe(addr, metricsRouter); err != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler: router,
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("starting redstone-api")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("api server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down redstone-api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("failed to gracefully shut down http server")
	}
	if history != nil {
		if err := history.Stop(); err != nil {
			log.WithError(err).Warn("metric history collector stop failed")
		}
	}
	log.Info("redstone-api stopped")
}

func consensusConfigFrom(cfg *config.Settings) consensus.Config {
	return consensus.Config{
		MaxTimestampDelayMs: cfg.MaxTimestampDelayMs,
		MaxTimestampAheadMs: cfg.MaxTimestampAheadMs,
		MinSignersPerFeed:   cfg.MinSignersPerFeed,
	}
}

// mergeConsensusConfig overlays the non-zero fields of overrides onto base,
// the way a Redis-published config snapshot refines but does not have to
// fully replace the env-derived default.
func mergeConsensusConfig(base, overrides consensus.Config) consensus.Config {
	if overrides.MaxTimestampDelayMs != 0 {
		base.MaxTimestampDelayMs = overrides.MaxTimestampDelayMs
	}
	if overrides.MaxTimestampAheadMs != 0 {
		base.MaxTimestampAheadMs = overrides.MaxTimestampAheadMs
	}
	if overrides.MinSignersPerFeed != 0 {
		base.MinSignersPerFeed = overrides.MinSignersPerFeed
	}
	return base
}
