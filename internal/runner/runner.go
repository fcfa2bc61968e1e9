package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/juezlab/grader/internal/protocol"
)

const (
	defaultCompileTimeout = 30 * time.Second
	defaultMaxOutputBytes = 10 * 1024 * 1024
)

// Runner executes a program under test against every fixture in the
// mounted fixture directory and produces the aggregate verdict. It runs
// inside the sandbox; everything it touches is already isolated.
type Runner struct {
	profile        Profile
	fixtureDir     string
	workDir        string
	compileTimeout time.Duration
	maxOutput      int
}

// New constructs a runner for a language profile. workDir receives build
// products and must be writable.
func New(profile Profile, fixtureDir, workDir string) *Runner {
	return &Runner{
		profile:        profile,
		fixtureDir:     fixtureDir,
		workDir:        workDir,
		compileTimeout: defaultCompileTimeout,
		maxOutput:      defaultMaxOutputBytes,
	}
}

// Execute grades the payload's source file: optional compile check
// first, then every fixture in index order. The result is emitted by
// the caller exactly once.
func (r *Runner) Execute(ctx context.Context, payload protocol.Payload) protocol.Result {
	limit := time.Duration(payload.TimeLimitMs) * time.Millisecond
	if limit <= 0 {
		limit = 1500 * time.Millisecond
	}

	if r.profile.Compile != nil {
		if stderr, err := r.compile(ctx, payload.SourceFile); err != nil {
			return protocol.Result{
				Status:      protocol.StatusCompilationError,
				TimeMsTotal: 0,
				Cases:       []protocol.CaseResult{},
				Stderr:      stderr,
			}
		}
	}

	fixtures, err := discoverFixtures(r.fixtureDir)
	if err != nil {
		return protocol.Result{
			Status: protocol.StatusError,
			Cases:  []protocol.CaseResult{},
			Stderr: err.Error(),
		}
	}

	cases := make([]protocol.CaseResult, 0, len(fixtures))
	var totalTime int64
	for _, fx := range fixtures {
		result := r.runCase(ctx, payload.SourceFile, fx, limit)
		totalTime += result.TimeMs
		cases = append(cases, result)
	}

	return protocol.Result{
		Status:      protocol.Aggregate(cases),
		TimeMsTotal: totalTime,
		Cases:       cases,
	}
}

func (r *Runner) compile(ctx context.Context, src string) (string, error) {
	args := r.profile.Compile(src, r.workDir)

	cctx, cancel := context.WithTimeout(ctx, r.compileTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, args[0], args[1:]...)
	stderr := newCappedBuffer(r.maxOutput)
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return msg, err
	}
	return "", nil
}

func (r *Runner) runCase(ctx context.Context, src string, fx fixture, limit time.Duration) protocol.CaseResult {
	result := protocol.CaseResult{CaseID: fx.Index}

	args := r.profile.Run(src, r.workDir)

	cctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	input, err := os.Open(fx.InputPath)
	if err != nil {
		result.Status = protocol.CaseRuntimeError
		result.Stderr = err.Error()
		return result
	}
	defer input.Close()

	cmd := exec.CommandContext(cctx, args[0], args[1:]...)
	cmd.Stdin = input
	stdout := newCappedBuffer(r.maxOutput)
	stderr := newCappedBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if cctx.Err() == context.DeadlineExceeded {
		result.Status = protocol.CaseTLE
		result.TimeMs = limit.Milliseconds()
		return result
	}

	result.TimeMs = elapsed

	if runErr != nil {
		// Covers both a failed spawn and a nonzero exit; the message
		// prefers the program's own stderr.
		result.Status = protocol.CaseRuntimeError
		result.Stderr = strings.TrimSpace(stderr.String())
		if result.Stderr == "" {
			result.Stderr = runErr.Error()
		}
		return result
	}

	expected, flag := readExpected(fx.OutputPath)
	actual := strings.TrimSpace(stdout.String())

	if actual == expected {
		result.Status = protocol.CaseOK
		result.Stderr = flag
		return result
	}

	result.Status = protocol.CaseWrongAnswer
	result.Stderr = strings.TrimSpace(fmt.Sprintf("%sexpected %q, got %q", flag, expected, actual))
	return result
}

// readExpected loads and trims the expected output. A missing file is a
// caller error: the comparison proceeds against the empty string, but
// the anomaly is flagged on the case rather than swallowed.
func readExpected(path string) (string, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Sprintf("expected output file missing: %s\n", filepath.Base(path))
		}
		return "", fmt.Sprintf("expected output unreadable: %v\n", err)
	}
	return strings.TrimSpace(string(data)), ""
}

type fixture struct {
	Index      int
	InputPath  string
	OutputPath string
}

var fixtureIndex = regexp.MustCompile(`input(\d+)\.in$`)

// discoverFixtures finds input<N>.in files and pairs each with its
// output<N>.out, sorted by numeric index.
func discoverFixtures(dir string) ([]fixture, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "input*.in"))
	if err != nil {
		return nil, fmt.Errorf("scan fixture dir: %w", err)
	}

	fixtures := make([]fixture, 0, len(matches))
	for _, m := range matches {
		sub := fixtureIndex.FindStringSubmatch(m)
		if sub == nil {
			continue
		}
		idx, err := strconv.Atoi(sub[1])
		if err != nil {
			continue
		}
		fixtures = append(fixtures, fixture{
			Index:      idx,
			InputPath:  m,
			OutputPath: filepath.Join(dir, fmt.Sprintf("output%d.out", idx)),
		})
	}

	sort.Slice(fixtures, func(i, j int) bool { return fixtures[i].Index < fixtures[j].Index })
	return fixtures, nil
}
