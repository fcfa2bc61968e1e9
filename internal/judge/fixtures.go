package judge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/juezlab/grader/internal/models"
)

// ErrNoTestCases indicates a challenge cannot be graded because it has
// no fixtures. Grading must fail loudly rather than score 0% or 100%.
var ErrNoTestCases = errors.New("challenge has no test cases")

// Stager materializes a challenge's test cases into a submission-scoped
// temporary directory laid out the way the sandbox mounts it: input1.in,
// output1.out, input2.in, ... with 1-based indexes.
type Stager struct {
	root   string
	keep   bool
	logger zerolog.Logger
}

// NewStager constructs a stager rooted at dir. keep disables cleanup for
// debugging; it must be an explicit choice, never the default.
func NewStager(root string, keep bool, logger zerolog.Logger) (*Stager, error) {
	if root == "" {
		return nil, fmt.Errorf("fixture root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create fixture root: %w", err)
	}
	return &Stager{
		root:   root,
		keep:   keep,
		logger: logger.With().Str("component", "fixture_stager").Logger(),
	}, nil
}

// Stage writes the fixture files for one submission and returns the
// directory plus a cleanup func. The cleanup func is always non-nil and
// safe to call on every terminating path; when staging fails midway the
// partial directory has already been removed.
func (s *Stager) Stage(submissionID string, cases []models.TestCase) (string, func(), error) {
	if len(cases) == 0 {
		return "", func() {}, ErrNoTestCases
	}

	dir := filepath.Join(s.root, fmt.Sprintf("sub-%s", submissionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("create fixture dir: %w", err)
	}

	cleanup := func() {
		if s.keep {
			s.logger.Warn().Str("dir", dir).Msg("keeping fixture dir for debugging")
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Error().Err(err).Str("dir", dir).Msg("fixture cleanup failed")
		}
	}

	for i, tc := range cases {
		idx := i + 1
		inPath := filepath.Join(dir, fmt.Sprintf("input%d.in", idx))
		outPath := filepath.Join(dir, fmt.Sprintf("output%d.out", idx))

		if err := os.WriteFile(inPath, []byte(tc.Input), 0o644); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("write fixture input %d: %w", idx, err)
		}
		if err := os.WriteFile(outPath, []byte(tc.ExpectedOutput), 0o644); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("write fixture output %d: %w", idx, err)
		}
	}

	return dir, cleanup, nil
}
