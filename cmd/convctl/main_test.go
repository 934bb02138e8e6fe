package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportListSearchBackup(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "conversations.db")
	base := []string{"--db", db, "--export-dir", filepath.Join(dir, "exports")}

	doc := filepath.Join(dir, "import.json")
	require.NoError(t, os.WriteFile(doc, []byte(`[
		{"metadata": {"id": "abc", "title": "Greetings"},
		 "messages": [{"role": "user", "content": "Hello"}, {"role": "assistant", "content": "Hi there"}]}
	]`), 0o644))

	var out bytes.Buffer
	require.NoError(t, run(append(base, "import", doc), &out))
	assert.Contains(t, out.String(), "imported 1 conversations")

	out.Reset()
	require.NoError(t, run(append(base, "list"), &out))
	assert.Contains(t, out.String(), "Greetings")

	out.Reset()
	require.NoError(t, run(append(base, "search", "there"), &out))
	assert.Contains(t, out.String(), "abc")

	out.Reset()
	require.NoError(t, run(append(base, "--format", "csv", "export", "abc"), &out))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out.String()), ".csv"))

	out.Reset()
	require.NoError(t, run(append(base, "backup"), &out))
	backup := strings.TrimSpace(out.String())
	assert.FileExists(t, backup)

	require.NoError(t, run(append(base, "delete", "abc"), &out))

	out.Reset()
	require.NoError(t, run(append(base, "restore", backup), &out))

	out.Reset()
	require.NoError(t, run(append(base, "show", "abc"), &out))
	assert.Contains(t, out.String(), "Hi there")
}

func TestRunRejectsBadInvocations(t *testing.T) {
	db := filepath.Join(t.TempDir(), "conversations.db")
	var out bytes.Buffer

	assert.Error(t, run([]string{"--db", db}, &out))
	assert.Error(t, run([]string{"--db", db, "frobnicate"}, &out))
	assert.Error(t, run([]string{"--db", db, "show"}, &out))
	assert.Error(t, run([]string{"--db", db, "show", "missing"}, &out))
	assert.Error(t, run([]string{"--db", db, "--format", "xml", "export", "missing"}, &out))
}

func TestReadCommandsNeedExistingDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "typo.db")
	var out bytes.Buffer

	for _, cmd := range [][]string{{"list"}, {"search", "x"}, {"show", "abc"}, {"export", "abc"}, {"backups"}} {
		err := run(append([]string{"--db", db}, cmd...), &out)
		require.Error(t, err, cmd[0])
		assert.Contains(t, err.Error(), "does not exist")
	}
	assert.NoFileExists(t, db)
}
