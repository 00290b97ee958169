package categorize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbase/internal/hashutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCategorize_NewFileIsAdd(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "new.md", "hello")
	res := Categorize(context.Background(), []string{p}, map[string]KnownFile{}, false)
	assert.Equal(t, []string{p}, res.Add)
	assert.Empty(t, res.Update)
	assert.Empty(t, res.Skip)
}

func TestCategorize_UnchangedFileIsSkip(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "same.md", "hello")
	hash, err := hashutil.HashFile(context.Background(), p)
	require.NoError(t, err)

	res := Categorize(context.Background(), []string{p}, map[string]KnownFile{p: {FilePath: p, ContentHash: hash}}, false)
	assert.Equal(t, []string{p}, res.Skip)
	assert.Empty(t, res.Add)
	assert.Empty(t, res.Update)
}

func TestCategorize_ChangedFileIsUpdate(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "changed.md", "new content")
	res := Categorize(context.Background(), []string{p}, map[string]KnownFile{p: {FilePath: p, ContentHash: "stalehash"}}, false)
	assert.Equal(t, []string{p}, res.Update)
}

func TestCategorize_MissingFromDiscoveredIsDeleteWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "present.md", "hi")
	gone := filepath.Join(dir, "gone.md")

	res := Categorize(context.Background(), []string{p}, map[string]KnownFile{
		p:    {FilePath: p, ContentHash: mustHash(t, p)},
		gone: {FilePath: gone, ContentHash: "whatever"},
	}, true)
	assert.Equal(t, []string{gone}, res.Delete)
}

func TestCategorize_DeleteOmittedWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "present.md", "hi")
	gone := filepath.Join(dir, "gone.md")

	res := Categorize(context.Background(), []string{p}, map[string]KnownFile{
		p:    {FilePath: p, ContentHash: mustHash(t, p)},
		gone: {FilePath: gone, ContentHash: "whatever"},
	}, false)
	assert.Empty(t, res.Delete)
}

func TestCategorize_UnreadableFileIsErrorNotFatal(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist.md")
	res := Categorize(context.Background(), []string{missing}, map[string]KnownFile{missing: {FilePath: missing, ContentHash: "x"}}, false)
	require.Contains(t, res.Errors, missing)
	assert.Empty(t, res.Skip)
	assert.Empty(t, res.Update)
	assert.Empty(t, res.Add)
}

func TestCategorize_IdempotentOnRerun(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "stable.md", "stable content")
	hash := mustHash(t, p)
	known := map[string]KnownFile{p: {FilePath: p, ContentHash: hash}}

	first := Categorize(context.Background(), []string{p}, known, false)
	second := Categorize(context.Background(), []string{p}, known, false)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{p}, second.Skip)
}

func TestForceUpdate_TreatsUnchangedAsUpdate(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.md", "hello")
	res := ForceUpdate([]string{p}, map[string]KnownFile{p: {FilePath: p, ContentHash: mustHash(t, p)}}, false)
	assert.Equal(t, []string{p}, res.Update)
	assert.Empty(t, res.Skip)
}

func mustHash(t *testing.T, path string) string {
	t.Helper()
	h, err := hashutil.HashFile(context.Background(), path)
	require.NoError(t, err)
	return h
}
