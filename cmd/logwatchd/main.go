// Command logwatchd runs the full log-observability backend: ingestion,
// the partitioned full-text index, pipeline search, the alarm engine,
// cluster membership/sharding, real-time fan-out, and retention/archival.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r3elabs/logwatch/alarms"
	"github.com/r3elabs/logwatch/cluster/coordinator"
	"github.com/r3elabs/logwatch/cluster/membership"
	"github.com/r3elabs/logwatch/cluster/peerclient"
	"github.com/r3elabs/logwatch/cluster/router"
	"github.com/r3elabs/logwatch/health"
	"github.com/r3elabs/logwatch/index"
	"github.com/r3elabs/logwatch/infrastructure/config"
	"github.com/r3elabs/logwatch/infrastructure/configstore"
	"github.com/r3elabs/logwatch/infrastructure/httputil"
	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/infrastructure/metrics"
	"github.com/r3elabs/logwatch/infrastructure/middleware"
	"github.com/r3elabs/logwatch/ingest/buffer"
	"github.com/r3elabs/logwatch/ingest/sources/dirscan"
	"github.com/r3elabs/logwatch/ingest/sources/syslog"
	"github.com/r3elabs/logwatch/query"
	"github.com/r3elabs/logwatch/realtime"
	"github.com/r3elabs/logwatch/recordmodel"
	"github.com/r3elabs/logwatch/redaction"
	"github.com/r3elabs/logwatch/retention"
	"github.com/r3elabs/logwatch/searchcache"
)

func main() {
	cfg, err := config.LoadServerConfig(os.Getenv("LOGWATCH_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("logwatchd", cfg.LogLevel, cfg.LogFormat)
	m := metrics.New("logwatchd")
	svcCfg := config.LoadServicesConfigOrDefault()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := searchcache.New(searchcache.Config{
		MaxSize:      cfg.SearchCache.MaxSize,
		ExpirationMs: cfg.SearchCache.ExpirationMs,
	})
	var indexCache index.Cache = cache
	if cfg.SearchCache.Distributed && cfg.Redis.Addr != "" {
		mirror := searchcache.NewRedisMirror(cache, searchcache.RedisConfig{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB}, logger)
		defer mirror.Close()
		indexCache = mirror
	}

	realtimeRegistry := realtime.New(logger)
	defer realtimeRegistry.Stop()

	cfgStore, err := configstore.Open(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Warn(ctx, "configuration database unavailable, alarms/retention config will not persist", map[string]interface{}{"error": err.Error()})
	}

	var archiveMetaStore retention.MetadataStore
	if cfgStore != nil {
		archiveMetaStore = retention.NewPostgresMetadataStore(cfgStore)
	}
	archiver := retention.NewArchiver(retention.ArchiveConfig{
		Directory:          cfg.Archive.Directory,
		CompressionLevel:   cfg.Archive.CompressionLevel,
		AutoArchiveEnabled: cfg.Archive.AutoArchiveEnabled,
		RetentionDays:      cfg.Archive.RetentionDays,
	}, archiveMetaStore, logger)

	idx, err := index.New(index.Config{
		Partitioned: cfg.Partitioning.Type != "",
		BucketType:  recordmodel.BucketDaily,
		MaxActive:   cfg.Partitioning.MaxActivePartitions,
		BasePath:    cfg.Partitioning.BaseDir,
	}, logger, indexCache, realtimeRegistry, archiver)
	if err != nil {
		log.Fatalf("open index: %v", err)
	}

	redactor := redaction.New()
	redactor.Refresh(redaction.DefaultSensitiveKeys(), redaction.DefaultValuePatterns())

	buf := buffer.New(buffer.Config{
		MaxSize:         cfg.Buffer.MaxSize,
		FlushIntervalMs: cfg.Buffer.FlushIntervalMs,
	}, idx, logger).WithRedactor(redactor)
	buf.Start(ctx)
	defer buf.Stop()

	coord := coordinator.New(coordinator.Config{
		Enabled:    cfg.HorizontalScaling.Enabled,
		InstanceID: cfg.HorizontalScaling.InstanceID,
	})

	peers := peerclient.New(logger)

	shardRouter := router.New(router.Config{
		Enabled:        cfg.Sharding.Enabled,
		LocalNodeID:    cfg.Sharding.LocalNodeID,
		LocalNodeURL:   cfg.Sharding.LocalNodeURL,
		Type:           router.ShardingType(cfg.Sharding.Type),
		NumberOfShards: cfg.Sharding.NumberOfShards,
	}, idx, peers, indexCache, logger)

	memb := membership.New(membership.Config{
		Enabled:               cfg.HighAvailability.Enabled && svcCfg.IsEnabled("cluster-agent"),
		NodeID:                cfg.HighAvailability.NodeID,
		NodeURL:                cfg.HighAvailability.NodeURL,
		HeartbeatIntervalMs:   cfg.HighAvailability.HeartbeatIntervalMs,
		HeartbeatTimeoutMs:    cfg.HighAvailability.HeartbeatTimeoutMs,
		LeaderCheckIntervalMs: cfg.HighAvailability.LeaderCheckIntervalMs,
	}, logger, peers, shardRouter)
	memb.Start(ctx)
	defer memb.Stop()

	var (
		alarmStore   *alarms.PostgresStore
		engineStore  alarms.Store
		healthAlarms health.AlarmStore
	)
	if cfgStore != nil {
		alarmStore = alarms.NewPostgresStore(cfgStore)
		engineStore = alarmStore
		healthAlarms = alarmStore
	}
	alarmEngine := alarms.New(engineStore, countingSearcher{idx}, noopSender{logger}, logger)
	if alarmStore != nil && svcCfg.IsEnabled("alarms") {
		if err := alarmEngine.Start(ctx); err != nil {
			logger.Warn(ctx, "alarm engine did not start", map[string]interface{}{"error": err.Error()})
		}
		defer alarmEngine.Stop()
	}

	healthSampler := health.New(health.DefaultThresholds(), healthAlarms, m, logger)
	if err := healthSampler.Start(ctx); err != nil {
		logger.Warn(ctx, "health sampler did not start", map[string]interface{}{"error": err.Error()})
	}
	defer healthSampler.Stop()

	if cfgStore != nil {
		retentionStore := retention.NewPostgresPolicyStore(cfgStore)
		retentionScheduler := retention.New(retentionStore, idx, retention.StaticSourceLister(nil), logger)
		if err := retentionScheduler.Start(ctx); err != nil {
			logger.Warn(ctx, "retention scheduler did not start", map[string]interface{}{"error": err.Error()})
		}
		defer retentionScheduler.Stop()
	}

	archiveCleanup := retention.NewCleanupScheduler(archiver, cfg.Archive.RetentionDays)
	if err := archiveCleanup.Start(ctx); err != nil {
		logger.Warn(ctx, "archive cleanup scheduler did not start", map[string]interface{}{"error": err.Error()})
	}
	defer archiveCleanup.Stop()

	if svcCfg.IsEnabled("ingest") {
		startIngestSources(ctx, buf, coord, logger)
	}

	httpRouter := buildRouter(cfg, logger, m, idx, shardRouter, memb, alarmStore, realtimeRegistry, svcCfg)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           httpRouter,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(server, 30*time.Second)
	shutdown.OnShutdown(func() {
		buf.Flush(context.Background())
		buf.Stop()
		memb.Stop()
		healthSampler.Stop()
		if alarmStore != nil {
			alarmEngine.Stop()
		}
		cancel()
	})
	shutdown.ListenForSignals()

	go func() {
		logger.Info(ctx, "logwatchd listening", map[string]interface{}{"port": cfg.Port})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown.Wait()
}

// countingSearcher adapts index.Manager's Search to alarms.Searcher's
// count-only contract (§4.7).
type countingSearcher struct {
	idx *index.Manager
}

func (s countingSearcher) Count(ctx context.Context, q string, startTime, endTime int64) (int, error) {
	records, err := s.idx.Search(ctx, q, false, startTime, endTime)
	return len(records), err
}

// noopSender is the default alarms.Sender until real channel integrations
// (Slack/email/webhook/PagerDuty/Opsgenie credentials) are configured; it
// logs the rendered message instead of delivering it.
type noopSender struct {
	logger *logging.Logger
}

func (s noopSender) Send(ctx context.Context, channel alarms.Channel, message string) bool {
	if s.logger != nil {
		s.logger.Info(ctx, "alarm notification", map[string]interface{}{"channel": string(channel), "message": message})
	}
	return true
}

func startIngestSources(ctx context.Context, sink *buffer.Buffer, coord *coordinator.Coordinator, logger *logging.Logger) {
	dirSources := parseDirSources(os.Getenv("LOGWATCH_DIRSCAN_SOURCES"))
	if len(dirSources) > 0 {
		scanner := dirscan.New(dirSources, 5*time.Second, sink, coord, logger)
		scanner.Start(ctx)
	}

	for _, sc := range parseSyslogSources(os.Getenv("LOGWATCH_SYSLOG_SOURCES")) {
		listener := syslog.New(sc, sink, logger)
		if err := listener.Start(ctx); err != nil {
			logger.Warn(ctx, "syslog listener failed to start", map[string]interface{}{"source": sc.SourceID, "error": err.Error()})
		}
	}
}

// parseDirSources reads "id=directory,id2=directory2" from the environment.
// Kept deliberately simple; operators needing a richer shape point
// LOGWATCH_CONFIG at a YAML file instead.
func parseDirSources(raw string) []dirscan.SourceConfig {
	var out []dirscan.SourceConfig
	for _, entry := range config.SplitAndTrimCSV(raw) {
		id, dir, ok := strings.Cut(entry, "=")
		if !ok || id == "" || dir == "" {
			continue
		}
		out = append(out, dirscan.SourceConfig{ID: id, Directory: dir})
	}
	return out
}

// parseSyslogSources reads "id=proto:port,id2=proto:port2" from the
// environment, e.g. "app=udp:5514,app-tcp=tcp:5515".
func parseSyslogSources(raw string) []syslog.SourceConfig {
	var out []syslog.SourceConfig
	for _, entry := range config.SplitAndTrimCSV(raw) {
		id, addr, ok := strings.Cut(entry, "=")
		if !ok || id == "" {
			continue
		}
		protocol, portStr, ok := strings.Cut(addr, ":")
		if !ok {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		out = append(out, syslog.SourceConfig{SourceID: id, Protocol: protocol, Port: port})
	}
	return out
}

func buildRouter(
	cfg *config.ServerConfig,
	logger *logging.Logger,
	m *metrics.Metrics,
	idx *index.Manager,
	shardRouter *router.Router,
	memb *membership.Membership,
	alarmStore *alarms.PostgresStore,
	rt *realtime.Registry,
	svcCfg *config.ServicesConfig,
) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	r.Use(middleware.MetricsMiddleware("logwatchd", m))
	r.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	r.Use(middleware.NewBodyLimitMiddleware(0).Handler)
	r.Use(middleware.NewTimeoutMiddleware(30 * time.Second).Handler)
	r.Use(middleware.NewCORSMiddleware(nil).Handler)
	r.Use(middleware.NewRateLimiter(50, 100, logger).Handler)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", middleware.LivenessHandler()).Methods(http.MethodGet)

	clusterRoutes := r.PathPrefix("/api/cluster").Subrouter()
	clusterValidation := middleware.NewValidationMiddleware(middleware.ValidationConfig{
		AllowedMethods: []string{http.MethodPost},
		ContentTypes:   []string{"application/json"},
	})
	clusterRoutes.Use(clusterValidation.Handler)
	clusterRoutes.HandleFunc("/heartbeat", heartbeatHandler(memb)).Methods(http.MethodPost)
	clusterRoutes.HandleFunc("/leader-change", leaderChangeHandler(memb)).Methods(http.MethodPost)
	clusterRoutes.HandleFunc("/node-leaving", nodeLeavingHandler(memb)).Methods(http.MethodPost)

	r.HandleFunc("/api/logs/search", searchHandler(idx, shardRouter)).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/query", pipelineQueryHandler(idx)).Methods(http.MethodGet)

	if svcCfg.IsEnabled("realtime") {
		r.HandleFunc("/api/realtime/logs", rt.SubscribeLogsHandler(snapshotSearcher{idx})).Methods(http.MethodGet)
		r.HandleFunc("/api/realtime/widgets", rt.SubscribeWidgetHandler(nil)).Methods(http.MethodGet)
	}

	return r
}

// snapshotSearcher adapts index.Manager into realtime.LogSearcher, the
// best-effort initial snapshot pushed on subscribe (§4.10).
type snapshotSearcher struct {
	idx *index.Manager
}

func (s snapshotSearcher) Search(q string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error) {
	return s.idx.Search(context.Background(), q, isRegex, startTime, endTime)
}

func heartbeatHandler(memb *membership.Membership) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			NodeID    string `json:"nodeId"`
			Timestamp int64  `json:"timestamp"`
			IsLeader  bool   `json:"isLeader"`
		}
		if !httputil.DecodeJSON(w, r, &body) {
			return
		}
		memb.OnHeartbeat(r.Context(), body.NodeID, body.Timestamp, body.IsLeader)
		w.WriteHeader(http.StatusNoContent)
	}
}

func leaderChangeHandler(memb *membership.Membership) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var state membership.State
		if !httputil.DecodeJSON(w, r, &state) {
			return
		}
		for id, n := range state.Nodes {
			memb.OnHeartbeat(r.Context(), id, n.LastHeartbeat, id == state.LeaderID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func nodeLeavingHandler(memb *membership.Membership) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			NodeID string `json:"nodeId"`
		}
		if !httputil.DecodeJSON(w, r, &body) {
			return
		}
		memb.OnNodeLeaving(r.Context(), body.NodeID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func searchHandler(idx *index.Manager, shardRouter *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := httputil.QueryString(r, "query", "")
		isRegex := httputil.QueryBool(r, "isRegex", false)
		startTime := httputil.QueryInt64(r, "startTime", 0)
		endTime := httputil.QueryInt64(r, "endTime", 0)
		isShardRequest := httputil.QueryBool(r, "isShardRequest", false)

		var (
			records []*recordmodel.LogRecord
			err     error
		)
		if isShardRequest {
			records, err = idx.Search(r.Context(), q, isRegex, startTime, endTime)
		} else {
			records, err = shardRouter.Search(r.Context(), q, isRegex, startTime, endTime)
		}
		if err != nil {
			httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, "SEARCH_FAILED", err.Error(), nil)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, records)
	}
}

func pipelineQueryHandler(idx *index.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipelineQuery := httputil.QueryString(r, "q", "")
		startTime := httputil.QueryInt64(r, "startTime", 0)
		endTime := httputil.QueryInt64(r, "endTime", 0)

		result := query.Execute(r.Context(), idx, pipelineQuery, startTime, endTime)
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}
