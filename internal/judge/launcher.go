package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/juezlab/grader/internal/artifact"
	"github.com/juezlab/grader/internal/protocol"
	dockerexec "github.com/juezlab/grader/pkg/docker"
)

// Sandbox mount targets fixed by the runner protocol.
const (
	codeMountTarget    = "/code"
	fixtureMountTarget = "/tests"
)

// LaunchRequest describes one sandbox invocation.
type LaunchRequest struct {
	Language      Language
	CodeDir       string
	SourceFile    string
	FixtureDir    string
	TimeLimitMs   int64
	MemoryLimitMB int64
	NumCases      int
}

// Launcher starts an isolated run of the submission against its staged
// fixtures and interprets the runner's wire output. Launch never returns
// a grading failure as an error; infrastructure problems come back as an
// ERROR verdict so the worker can record them uniformly.
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) (protocol.Result, error)
}

// LauncherConfig groups sandbox launch settings.
type LauncherConfig struct {
	Images       map[string]string
	NanoCPUs     int64
	StartupSlack time.Duration
}

// NewDockerLauncher constructs a launcher backed by the Docker sandbox
// executor.
func NewDockerLauncher(exec dockerexec.Executor, mapper artifact.PathMapper, cfg LauncherConfig, logger zerolog.Logger) Launcher {
	if cfg.StartupSlack <= 0 {
		cfg.StartupSlack = 10 * time.Second
	}
	return &dockerLauncher{
		exec:   exec,
		mapper: mapper,
		cfg:    cfg,
		logger: logger.With().Str("component", "sandbox_launcher").Logger(),
	}
}

type dockerLauncher struct {
	exec   dockerexec.Executor
	mapper artifact.PathMapper
	cfg    LauncherConfig
	logger zerolog.Logger
}

func (l *dockerLauncher) Launch(ctx context.Context, req LaunchRequest) (protocol.Result, error) {
	image, ok := l.cfg.Images[req.Language.String()]
	if !ok || image == "" {
		return protocol.Result{}, fmt.Errorf("no runner image configured for language %s: %w", req.Language, ErrUnsupportedLanguage)
	}

	payload, err := json.Marshal(protocol.Payload{
		SourceFile:  codeMountTarget + "/" + req.SourceFile,
		TimeLimitMs: req.TimeLimitMs,
	})
	if err != nil {
		return protocol.Result{}, fmt.Errorf("marshal runner payload: %w", err)
	}

	// The ceiling covers every case running to its limit plus container
	// startup; it must never undercut the challenge's own time limit.
	cases := req.NumCases
	if cases < 1 {
		cases = 1
	}
	ceiling := time.Duration(req.TimeLimitMs)*time.Millisecond*time.Duration(cases) + l.cfg.StartupSlack

	execReq := dockerexec.ExecutionRequest{
		Image:         image,
		Stdin:         payload,
		Timeout:       ceiling,
		MemoryLimitMB: req.MemoryLimitMB,
		NanoCPUs:      l.cfg.NanoCPUs,
		Mounts: []dockerexec.BindMount{
			{HostPath: l.mapper.HostPath(req.CodeDir), Target: codeMountTarget, ReadOnly: true},
			{HostPath: l.mapper.HostPath(req.FixtureDir), Target: fixtureMountTarget, ReadOnly: true},
		},
	}

	result, execErr := l.exec.Run(ctx, execReq)
	if execErr != nil {
		// The invocation mechanism itself failed; this is an ERROR
		// verdict, never a silent "no submission".
		l.logger.Error().Err(execErr).Str("image", image).Msg("sandbox invocation failed")
		return protocol.Result{
			Status: protocol.StatusError,
			Stderr: execErr.Error(),
		}, nil
	}

	if result.TimedOut {
		return protocol.Result{
			Status: protocol.StatusTimeLimit,
			Stderr: fmt.Sprintf("sandbox wall-clock ceiling of %s exceeded", ceiling),
		}, nil
	}

	var verdict protocol.Result
	if err := json.Unmarshal([]byte(result.Stdout), &verdict); err != nil || verdict.Status == "" {
		// A nonzero exit with parseable output is a verdict from the
		// runner; without one it is an infrastructure failure. Keep the
		// raw output for postmortem.
		l.logger.Error().
			Int("exit_code", result.ExitCode).
			Str("stdout", truncate(result.Stdout, 2048)).
			Str("stderr", truncate(result.Stderr, 2048)).
			Msg("runner produced no parseable verdict")
		return protocol.Result{
			Status: protocol.StatusError,
			Stderr: strings.TrimSpace(result.Stderr + "\n" + result.Stdout),
		}, nil
	}

	return verdict, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
