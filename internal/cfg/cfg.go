package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/contentmirror/contentmirror/internal/log"
)

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string
	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64
	StorageBackend  string
	RedisAddr       string
	RedisDB         int
	RedisKeyPrefix  string
	S3Bucket        string
	S3Prefix        string
	ProfilePath     string
	ProfileSSMParam string
	CatalogVersion  string
	ExternalBase    string
	SeedFile        string
	SeedS3Key       string
	SeedPoll        time.Duration
	RateRPS         float64
	RateBurst       int
	MaxBodyBytes    int64
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.StringVar(&c.StorageBackend, "storage-backend", "memory", "catalog persistence backend (memory|redis|s3)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "localhost:6379", "redis host:port for the redis storage backend")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")
	fs.StringVar(&c.RedisKeyPrefix, "redis-key-prefix", "mirror:", "key prefix for the redis storage backend")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "s3 bucket name for the s3 storage backend")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "mirror/catalog", "s3 key prefix for the s3 storage backend")
	fs.StringVar(&c.ProfilePath, "profile-path", "", "path to a profile YAML file (empty = built-in default profile)")
	fs.StringVar(&c.ProfileSSMParam, "profile-ssm-param", "", "ssm parameter holding the profile YAML (overrides -profile-path)")
	fs.StringVar(&c.CatalogVersion, "catalog-version", "v1", "version string reported in the catalog document")
	fs.StringVar(&c.ExternalBase, "external-base", "http://localhost:8080", "absolute URL prefix written into catalog hr/mr links")
	fs.StringVar(&c.SeedFile, "seed-file", "", "path to a JSON file of seed resources (rid -> content)")
	fs.StringVar(&c.SeedS3Key, "seed-s3-key", "", "s3 object key of the resource-set document (uses -s3-bucket, overrides -seed-file)")
	fs.DurationVar(&c.SeedPoll, "seed-poll", 0, "poll interval for re-fetching the resource-set source (0 = disabled)")
	fs.Float64Var(&c.RateRPS, "rate-rps", 50, "per-client request rate limit (requests/second)")
	fs.IntVar(&c.RateBurst, "rate-burst", 100, "per-client request burst size")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 1<<20, "maximum accepted request body size in bytes")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Storage backend
	switch c.StorageBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR required when STORAGE_BACKEND=redis"))
		} else if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
		if c.RedisDB < 0 {
			errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0 (got %d)", c.RedisDB))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("S3_BUCKET required when STORAGE_BACKEND=s3"))
		}
		if c.S3Prefix == "" {
			errs = append(errs, fmt.Errorf("S3_PREFIX required when STORAGE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORAGE_BACKEND %q (must be memory|redis|s3)", c.StorageBackend))
	}

	if c.CatalogVersion == "" {
		errs = append(errs, fmt.Errorf("CATALOG_VERSION must not be empty"))
	}

	if c.ExternalBase != "" {
		if u, err := url.Parse(c.ExternalBase); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("EXTERNAL_BASE must be a URL (got %q)", c.ExternalBase))
		}
	}

	if c.SeedS3Key != "" && c.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("S3_BUCKET required when SEED_S3_KEY is set"))
	}
	if c.SeedPoll < 0 {
		errs = append(errs, fmt.Errorf("SEED_POLL must be >= 0 (got %s)", c.SeedPoll))
	}

	// Rate limiting
	if c.RateRPS <= 0 {
		errs = append(errs, fmt.Errorf("RATE_RPS must be > 0 (got %g)", c.RateRPS))
	}
	if c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_BURST must be >= 1 (got %d)", c.RateBurst))
	}

	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be >= 1 (got %d)", c.MaxBodyBytes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
