package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrArtifactNotFound indicates no code assets exist for a handle.
var ErrArtifactNotFound = errors.New("artifact not found")

// Handle is an id-addressed reference to a submission's code assets.
// The ingestion path returns it and the worker resolves it; neither side
// assumes where the files physically live.
type Handle struct {
	SubmissionID string `json:"submission_id"`
	SourceFile   string `json:"source_file"`
}

// Store owns the hand-off of submission code between ingestion and the
// grading worker.
type Store interface {
	Put(ctx context.Context, submissionID, fileName string, contents []byte) (Handle, error)
	Resolve(ctx context.Context, h Handle) (string, error)
	Remove(ctx context.Context, h Handle) error
}

// NewFSStore constructs a filesystem-backed store rooted at dir. Each
// submission gets its own subdirectory containing a single source file.
func NewFSStore(root string) (Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &fsStore{root: root}, nil
}

type fsStore struct {
	root string
}

func (s *fsStore) Put(ctx context.Context, submissionID, fileName string, contents []byte) (Handle, error) {
	if submissionID == "" {
		return Handle{}, fmt.Errorf("submission id must not be empty")
	}
	if fileName == "" || fileName != filepath.Base(fileName) {
		return Handle{}, fmt.Errorf("invalid source file name %q", fileName)
	}

	dir := filepath.Join(s.root, submissionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("create artifact dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, fileName), contents, 0o600); err != nil {
		return Handle{}, fmt.Errorf("write source: %w", err)
	}

	return Handle{SubmissionID: submissionID, SourceFile: fileName}, nil
}

// Resolve returns the directory containing the handle's code assets.
func (s *fsStore) Resolve(ctx context.Context, h Handle) (string, error) {
	dir := filepath.Join(s.root, h.SubmissionID)
	if _, err := os.Stat(filepath.Join(dir, h.SourceFile)); err != nil {
		if os.IsNotExist(err) {
			return "", ErrArtifactNotFound
		}
		return "", err
	}
	return dir, nil
}

func (s *fsStore) Remove(ctx context.Context, h Handle) error {
	return os.RemoveAll(filepath.Join(s.root, h.SubmissionID))
}

// PathMapper translates worker-visible paths into paths the container
// runtime can bind mount. When the worker itself runs inside a container
// over the host's Docker socket, the two differ.
type PathMapper interface {
	HostPath(workerPath string) string
}

// IdentityMapper is the default mapper for workers running directly on
// the Docker host.
type IdentityMapper struct{}

// HostPath returns the path unchanged.
func (IdentityMapper) HostPath(workerPath string) string { return workerPath }

// PrefixMapper rewrites a worker-side path prefix to its host-side
// equivalent.
type PrefixMapper struct {
	WorkerPrefix string
	HostPrefix   string
}

// HostPath substitutes the configured prefix. Paths outside the prefix
// are returned unchanged.
func (m PrefixMapper) HostPath(workerPath string) string {
	if m.WorkerPrefix == "" || !strings.HasPrefix(workerPath, m.WorkerPrefix) {
		return workerPath
	}
	return m.HostPrefix + strings.TrimPrefix(workerPath, m.WorkerPrefix)
}

// NewPathMapper picks the identity mapper unless a host prefix is
// configured for the worker prefix.
func NewPathMapper(workerPrefix, hostPrefix string) PathMapper {
	if hostPrefix == "" || workerPrefix == "" {
		return IdentityMapper{}
	}
	return PrefixMapper{WorkerPrefix: workerPrefix, HostPrefix: hostPrefix}
}
