package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/compose"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/token"
)

type Config struct {
	BaseDir     string // Repository root the default paths hang off (default: cwd)
	KeyDir      string // JWT key directory (default: <base>/devtools/jwt)
	DockerDir   string // Compose files directory (default: <base>/devtools/docker)
	HistoryFile string // Issuance history database (default: <base>/devtools/devtools.db)

	Issuer    string        // iss claim (default: dbaccess-api)
	Audience  []string      // aud claim (default: dbaccess-client)
	Subjects  []string      // Allowed test users (default: alice,bob,charlie)
	TokenTTL  time.Duration // Lifetime of valid tokens (default: 5m)
	KeyPolicy string        // auto or require (default: auto)

	ComposeCmd   string        // Compose invocation (default: docker-compose)
	DockerCmd    string        // Docker CLI (default: docker)
	Settle       time.Duration // Wait after compose up before probing (default: 2s)
	PollAttempts int           // Readiness probes per container (default: 10)
	PollInterval time.Duration // Delay between probes (default: 500ms)

	PrometheusPassword string        // Optional: hashed for the local dev env panel
	HistoryRetention   time.Duration // history prune cutoff age (default: 30 days)

	Env       string // Environment (dev, ci) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	base := os.Getenv("DEVTOOLS_BASE_DIR")
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		} else {
			base = "."
		}
	}

	cfg := Config{
		BaseDir:     base,
		KeyDir:      getEnvOrDefault("DEVTOOLS_KEY_DIR", filepath.Join(base, "devtools", "jwt")),
		DockerDir:   getEnvOrDefault("DEVTOOLS_DOCKER_DIR", filepath.Join(base, "devtools", "docker")),
		HistoryFile: getEnvOrDefault("DEVTOOLS_HISTORY_FILE", filepath.Join(base, "devtools", "devtools.db")),

		Issuer:    getEnvOrDefault("DEVTOOLS_ISSUER", token.DefaultIssuer),
		Audience:  getEnvListOrDefault("DEVTOOLS_AUDIENCE", []string{token.DefaultAudience}),
		Subjects:  getEnvListOrDefault("DEVTOOLS_SUBJECTS", token.DefaultSubjects),
		TokenTTL:  getEnvMinutesOrDefault("DEVTOOLS_TOKEN_TTL", token.DefaultTTL),
		KeyPolicy: getEnvOrDefault("DEVTOOLS_KEY_POLICY", string(token.KeyPolicyAuto)),

		ComposeCmd:   getEnvOrDefault("DEVTOOLS_COMPOSE_CMD", "docker-compose"),
		DockerCmd:    getEnvOrDefault("DEVTOOLS_DOCKER_CMD", "docker"),
		Settle:       getEnvDurationOrDefault("DEVTOOLS_COMPOSE_SETTLE", 2*time.Second),
		PollAttempts: getEnvIntOrDefault("DEVTOOLS_POLL_ATTEMPTS", 10),
		PollInterval: getEnvDurationOrDefault("DEVTOOLS_POLL_INTERVAL", 500*time.Millisecond),

		PrometheusPassword: os.Getenv("DEVTOOLS_PROMETHEUS_PASSWORD"),
		HistoryRetention:   getEnvMinutesOrDefault("DEVTOOLS_HISTORY_RETENTION", 30*24*time.Hour),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	return cfg
}

// TokenConfig is the issuer/verifier view of the config.
func (c Config) TokenConfig() (token.Config, error) {
	policy, err := token.ParseKeyPolicy(c.KeyPolicy)
	if err != nil {
		return token.Config{}, err
	}
	tc := token.Config{
		Issuer:    c.Issuer,
		Audience:  c.Audience,
		Subjects:  c.Subjects,
		TTL:       c.TokenTTL,
		KeyPolicy: policy,
	}
	return tc, tc.Validate()
}

// ComposeOptions is the compose controller view of the config.
func (c Config) ComposeOptions() compose.Options {
	opts := compose.DefaultOptions()
	opts.ComposeCmd = compose.ParseComposeCmd(c.ComposeCmd)
	opts.DockerCmd = c.DockerCmd
	opts.Settle = c.Settle
	opts.PollAttempts = c.PollAttempts
	opts.PollInterval = c.PollInterval
	return opts
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}

// getEnvMinutesOrDefault is getEnvDurationOrDefault that also reads a plain
// integer as minutes. Only the TTL and retention keys use it.
func getEnvMinutesOrDefault(key string, defaultValue time.Duration) time.Duration {
	if minutes, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return getEnvDurationOrDefault(key, defaultValue)
}

// getEnvListOrDefault reads a comma separated list, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}

// Rebase moves the config onto another base dir. Paths still at their
// defaults under the old base follow it; explicitly set paths stay put.
func (c Config) Rebase(base string) Config {
	follow := func(current string, elems ...string) string {
		if current == filepath.Join(append([]string{c.BaseDir}, elems...)...) {
			return filepath.Join(append([]string{base}, elems...)...)
		}
		return current
	}
	c.KeyDir = follow(c.KeyDir, "devtools", "jwt")
	c.DockerDir = follow(c.DockerDir, "devtools", "docker")
	c.HistoryFile = follow(c.HistoryFile, "devtools", "devtools.db")
	c.BaseDir = base
	return c
}
