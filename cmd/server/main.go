package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/contentmirror/contentmirror/internal/catalog"
	"github.com/contentmirror/contentmirror/internal/cfg"
	"github.com/contentmirror/contentmirror/internal/cval"
	"github.com/contentmirror/contentmirror/internal/event"
	"github.com/contentmirror/contentmirror/internal/health"
	"github.com/contentmirror/contentmirror/internal/httpserver"
	"github.com/contentmirror/contentmirror/internal/log"
	"github.com/contentmirror/contentmirror/internal/metrics"
	"github.com/contentmirror/contentmirror/internal/mirrorhttp"
	"github.com/contentmirror/contentmirror/internal/opshttp"
	"github.com/contentmirror/contentmirror/internal/otelx"
	"github.com/contentmirror/contentmirror/internal/prof"
	"github.com/contentmirror/contentmirror/internal/profiles"
	"github.com/contentmirror/contentmirror/internal/provider"
	"github.com/contentmirror/contentmirror/internal/ratelimit"
	"github.com/contentmirror/contentmirror/internal/resourceset"
	"github.com/contentmirror/contentmirror/internal/seedassets"
	"github.com/contentmirror/contentmirror/internal/storage"
	"github.com/contentmirror/contentmirror/internal/storage/redisstore"
	"github.com/contentmirror/contentmirror/internal/storage/s3store"
	v "github.com/contentmirror/contentmirror/internal/version"
)

const appName = "contentmirror"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "MIRROR_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             appName,
		Version:         v.Version,
		Commit:          v.Commit,
		BuildId:         v.BuildId,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"storage_backend", conf.StorageBackend,
		"profile_path", conf.ProfilePath,
		"profile_ssm_param", conf.ProfileSSMParam,
		"catalog_version", conf.CatalogVersion,
		"external_base", conf.ExternalBase,
		"seed_file", conf.SeedFile,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we only write to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", &vi)

	// AWS clients are only needed for the s3 backend and SSM-sourced
	// profiles; load the shared config lazily so memory/redis deploys
	// run without credentials.
	var awsLoaded bool
	var s3Client *s3.Client
	var ssmClient *ssm.Client
	loadAWS := func() error {
		if awsLoaded {
			return nil
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return err
		}
		s3Client = s3.NewFromConfig(awsCfg)
		ssmClient = ssm.NewFromConfig(awsCfg)
		awsLoaded = true
		return nil
	}

	// Catalog persistence backend
	var store storage.Store
	switch conf.StorageBackend {
	case "redis":
		rs, err := redisstore.New(ctx, redisstore.Options{
			Addr:      conf.RedisAddr,
			DB:        conf.RedisDB,
			KeyPrefix: conf.RedisKeyPrefix,
		})
		if err != nil {
			L.Error(ctx, err, "redis connect failed", "redis_addr", conf.RedisAddr)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
	case "s3":
		if err := loadAWS(); err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		ss, err := s3store.New(s3store.Options{
			Bucket: conf.S3Bucket,
			Prefix: conf.S3Prefix,
			Client: s3Client,
		})
		if err != nil {
			L.Error(ctx, err, "s3 store init failed", "s3_bucket", conf.S3Bucket)
			os.Exit(1)
		}
		store = ss
	default:
		store = storage.NewMem()
	}
	m.SetStorageBackend(conf.StorageBackend)

	// Resolve the active profile: SSM beats file beats built-in.
	prf := profiles.Default()
	switch {
	case conf.ProfileSSMParam != "":
		if err := loadAWS(); err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		prf, err = profiles.FetchFromSSM(ctx, ssmClient, conf.ProfileSSMParam)
		if err != nil {
			L.Error(ctx, err, "profile fetch from SSM failed", "param", conf.ProfileSSMParam)
			os.Exit(1)
		}
	case conf.ProfilePath != "":
		prf, err = profiles.Load(conf.ProfilePath)
		if err != nil {
			L.Error(ctx, err, "profile load failed", "path", conf.ProfilePath)
			os.Exit(1)
		}
	}
	m.SetProfile(prf.Name)
	L.Info(ctx, "profile resolved", "profile", prf.Name, "exclude_keys", strings.Join(prf.ExcludeKeys, ","))

	sink := metricsSink{m: m}

	cat, err := catalog.New(ctx, catalog.Options{
		Profile: prf.Name,
		Version: catalogVersionNumber(conf.CatalogVersion),
		Storage: store,
		Events:  sink,
		Logger:  L,
	})
	if err != nil {
		L.Error(ctx, err, "catalog init failed")
		os.Exit(1)
	}
	m.SetCatalogEntries(cat.Len())
	if cat.Len() > 0 {
		L.Info(ctx, "catalog restored from storage", "entries", cat.Len())
	}

	resources := provider.NewStatic()
	set := &resourceset.Set{
		Profile:   prf,
		Resources: resources,
		Catalog:   cat,
		Base:      strings.TrimRight(conf.ExternalBase, "/"),
	}

	// Resource-set source: S3 object beats local file beats the
	// embedded default (which only applies to an empty catalog).
	var source resourceset.Source
	switch {
	case conf.SeedS3Key != "":
		if err := loadAWS(); err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		source = resourceset.S3Source{Client: s3Client, Bucket: conf.S3Bucket, Key: conf.SeedS3Key}
	case conf.SeedFile != "":
		source = resourceset.FileSource{Path: conf.SeedFile}
	}

	var sourceHash string
	if source != nil {
		doc, hash, err := source.Fetch(ctx)
		if err != nil {
			L.Error(ctx, err, "resource-set fetch failed")
			os.Exit(1)
		}
		applied, removed, err := set.Apply(ctx, doc)
		if err != nil {
			L.Error(ctx, err, "resource-set apply failed")
			os.Exit(1)
		}
		sourceHash = hash
		L.Info(ctx, "resource set loaded", "applied", applied, "removed", removed, "hash", hash)
	} else if cat.Len() == 0 {
		doc, err := cval.FromJSON(seedassets.SeedDoc())
		if err != nil {
			L.Error(ctx, err, "embedded seed decode failed")
			os.Exit(1)
		}
		applied, _, err := set.Apply(ctx, doc)
		if err != nil {
			L.Error(ctx, err, "embedded seed apply failed")
			os.Exit(1)
		}
		L.Info(ctx, "loaded embedded seed resources", "applied", applied)
	}
	m.SetCatalogEntries(cat.Len())

	// Advisory: restored catalog entries may point at resources this
	// process no longer holds, or identities computed under a different
	// profile. Findings are logged, never corrected automatically.
	if inc := cat.Validate(ctx, resources, prf.ExcludeKeys); len(inc) > 0 {
		for _, i := range inc {
			L.Warn(ctx, "catalog inconsistency", "rid", i.RID, "kind", string(i.Kind), "detail", i.Detail)
		}
	}

	if source != nil && conf.SeedPoll > 0 {
		watcher := resourceset.NewWatcher(resourceset.WatcherOptions{
			Logger:       L,
			Source:       source,
			Set:          set,
			PollInterval: conf.SeedPoll,
			InitialHash:  sourceHash,
			OnSwap: func(hash string, applied, removed int) {
				m.SetCatalogEntries(cat.Len())
			},
		})
		go watcher.Run(ctx)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// Readiness requires the shutdown gate open and the persistence
	// backend answering.
	readiness := health.All(
		gate.Probe(),
		health.CheckFunc(func(ctx context.Context) error {
			if _, err := store.Has(ctx, "catalog"); err != nil {
				return fmt.Errorf("catalog: storage unavailable: %w", err)
			}
			return nil
		}),
	)

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateRPS, conf.RateBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
		}),
		// only log the first time an ip is denied each cleanup cycle
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
	)

	api := mirrorhttp.New(mirrorhttp.Options{
		Logger:       L,
		Metrics:      m,
		Events:       sink,
		Profile:      prf,
		Catalog:      cat,
		Resources:    resources,
		ExternalBase: conf.ExternalBase,
	})

	apiHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    api.Routes,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		MirrorInfo:   mirrorInfo{profile: prf.Name, version: conf.CatalogVersion},
		MaxBodyBytes: conf.MaxBodyBytes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		os.Exit(1)
	}
	defer func() { _ = apiHTTPStop(context.Background()) }()

	// Admin/ops listener for metrics, health checks and pprof. The
	// listener rejects public peers in middleware in case the security
	// group is ever misconfigured.
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer drains us before we close
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	L.Info(context.Background(), "sleeping 60s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(60 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := apiHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "api http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

// mirrorInfo feeds the X-Mirror-Profile / X-Catalog-Version response
// headers.
type mirrorInfo struct {
	profile string
	version string
}

func (i mirrorInfo) ProfileName() string    { return i.profile }
func (i mirrorInfo) CatalogVersion() string { return i.version }

// metricsSink translates catalog events into counters.
type metricsSink struct {
	m *metrics.ServerMetrics
}

func (s metricsSink) Notify(name string, args ...any) {
	switch name {
	case event.CatalogUpserted:
		s.m.IncCatalogOp("upsert")
	case event.CatalogRemoved:
		s.m.IncCatalogOp("remove")
	case event.CatalogPurged:
		s.m.IncCatalogOp("purge")
	}
}

func (s metricsSink) Filter(_ string, value any, _ ...any) any { return value }

// catalogVersionNumber maps the configured tag ("v1") onto the numeric
// schema version in catalog documents.
func catalogVersionNumber(tag string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(tag, "v"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when we run under type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
