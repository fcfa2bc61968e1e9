package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStorePutAndResolve(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := store.Put(ctx, "sub-1", "main.py", []byte("print('hi')\n"))
	require.NoError(t, err)
	require.Equal(t, "sub-1", handle.SubmissionID)
	require.Equal(t, "main.py", handle.SourceFile)

	dir, err := store.Resolve(ctx, handle)
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	require.Equal(t, "print('hi')\n", string(contents))
}

func TestFSStoreResolveMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Resolve(context.Background(), Handle{SubmissionID: "ghost", SourceFile: "main.py"})
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestFSStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "sub-1", "../escape.py", []byte("x"))
	require.Error(t, err)
}

func TestFSStoreRemove(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := store.Put(ctx, "sub-2", "Main.java", []byte("class Main {}"))
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, handle))

	_, err = store.Resolve(ctx, handle)
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestPrefixMapper(t *testing.T) {
	mapper := NewPathMapper("/var/lib/juez", "/mnt/host/juez")
	require.Equal(t, "/mnt/host/juez/fixtures/sub-1", mapper.HostPath("/var/lib/juez/fixtures/sub-1"))
	require.Equal(t, "/elsewhere", mapper.HostPath("/elsewhere"))

	identity := NewPathMapper("/var/lib/juez", "")
	require.Equal(t, "/var/lib/juez/x", identity.HostPath("/var/lib/juez/x"))
}
