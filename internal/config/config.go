package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading worker.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	QueueKey string

	DockerHost       string
	SandboxMemoryMB  int64
	SandboxNanoCPUs  int64
	SandboxTimeout   time.Duration
	SandboxSlack     time.Duration
	RunnerImages     map[string]string
	ArtifactRoot     string
	FixtureRoot      string
	HostArtifactRoot string
	HostFixtureRoot  string
	KeepFixtures     bool
	FailureBackoff   time.Duration
}

// HTTPAddress returns the address the health/metrics server listens on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and an
// optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JUEZ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "juez-grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "9090")
	v.SetDefault("queue.key", "queue:submissions")
	v.SetDefault("sandbox.memory_mb", 512)
	v.SetDefault("sandbox.cpus", 0.5)
	v.SetDefault("sandbox.timeout_ms", 0)
	v.SetDefault("sandbox.slack_ms", 10000)
	v.SetDefault("artifact.root", "/var/lib/juez/submissions")
	v.SetDefault("fixture.root", "/var/lib/juez/fixtures")
	v.SetDefault("fixture.keep", false)
	v.SetDefault("worker.failure_backoff_ms", 500)
	v.SetDefault("runner.image.python", "juez/runner-python:latest")
	v.SetDefault("runner.image.javascript", "juez/runner-node:latest")
	v.SetDefault("runner.image.cpp", "juez/runner-cpp:latest")
	v.SetDefault("runner.image.java", "juez/runner-java:latest")

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		QueueKey:    v.GetString("queue.key"),
		DockerHost:  v.GetString("docker_host"),

		SandboxMemoryMB: v.GetInt64("sandbox.memory_mb"),
		SandboxNanoCPUs: int64(v.GetFloat64("sandbox.cpus") * 1e9),
		SandboxTimeout:  time.Duration(v.GetInt64("sandbox.timeout_ms")) * time.Millisecond,
		SandboxSlack:    time.Duration(v.GetInt64("sandbox.slack_ms")) * time.Millisecond,

		RunnerImages: map[string]string{
			"python":     v.GetString("runner.image.python"),
			"javascript": v.GetString("runner.image.javascript"),
			"cpp":        v.GetString("runner.image.cpp"),
			"java":       v.GetString("runner.image.java"),
		},

		ArtifactRoot:     v.GetString("artifact.root"),
		FixtureRoot:      v.GetString("fixture.root"),
		HostArtifactRoot: v.GetString("artifact.host_root"),
		HostFixtureRoot:  v.GetString("fixture.host_root"),
		KeepFixtures:     v.GetBool("fixture.keep"),
		FailureBackoff:   time.Duration(v.GetInt64("worker.failure_backoff_ms")) * time.Millisecond,
	}

	if cfg.SandboxMemoryMB <= 0 {
		cfg.SandboxMemoryMB = 512
	}

	if cfg.SandboxNanoCPUs <= 0 {
		cfg.SandboxNanoCPUs = 5e8
	}

	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = 500 * time.Millisecond
	}

	return cfg, nil
}
