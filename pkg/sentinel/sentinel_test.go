package sentinel

import (
	"context"
	"crypto/sha256"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testfile")
	content := []byte("hello world")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256(content), got)
}

func TestHashFileDifferentContent(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "file1")
	path2 := filepath.Join(dir, "file2")
	require.NoError(t, os.WriteFile(path1, []byte("content A"), 0o644))
	require.NoError(t, os.WriteFile(path2, []byte("content B"), 0o644))

	hash1, err := HashFile(path1)
	require.NoError(t, err)
	hash2, err := HashFile(path2)
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash2)
}

func TestHashFileNotFound(t *testing.T) {
	_, err := HashFile("/nonexistent/file/path")
	assert.Error(t, err)
}

func TestNew_MissingBinary(t *testing.T) {
	_, err := New(Config{BinaryPath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestRun_StopsChildOnCancel(t *testing.T) {
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}
	s, err := New(Config{
		BinaryPath:     sleepPath,
		Args:           []string{"30"},
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(GracePeriod + 5*time.Second):
		t.Fatal("sentinel did not exit after cancel")
	}
}
