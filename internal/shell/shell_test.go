package shell

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunsCommandAndCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	sh := New(dir, nil)
	stdout, stderr, err := sh.Exec(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
	assert.Equal(t, "", stderr)
}

func TestExecPersistsCwdAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(dir+"/sub", 0o755))
	sh := New(dir, nil)

	_, _, err := sh.Exec(context.Background(), "cd sub")
	require.NoError(t, err)
	assert.Equal(t, dir+"/sub", sh.Dir())

	stdout, _, err := sh.Exec(context.Background(), "pwd")
	require.NoError(t, err)
	assert.Equal(t, dir+"/sub\n", stdout)
}

func TestExecClampsCdOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	sh := New(dir, nil)
	_, stderr, err := sh.Exec(context.Background(), "cd ..")
	require.NoError(t, err)
	assert.Contains(t, stderr, "cd rejected")
	assert.Equal(t, dir, sh.Dir())
}

func TestExecBlocksBannedCommand(t *testing.T) {
	dir := t.TempDir()
	sh := New(dir, DefaultBlockFuncs())
	_, _, err := sh.Exec(context.Background(), "curl http://example.com")
	assert.Error(t, err)
}

func TestExitCodeFromFailedCommand(t *testing.T) {
	dir := t.TempDir()
	sh := New(dir, nil)
	_, _, err := sh.Exec(context.Background(), "exit 3")
	assert.Equal(t, 3, ExitCode(err))
}
