package hashutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbase/internal/kberrors"
)

const emptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestHashContent_Deterministic(t *testing.T) {
	a := HashContent([]byte("hello world"))
	b := HashContent([]byte("hello world"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashContent_Empty(t *testing.T) {
	assert.Equal(t, emptyDigest, HashContent(nil))
	assert.Equal(t, emptyDigest, HashContent([]byte{}))
}

func TestHashContent_DifferentInputsDiffer(t *testing.T) {
	assert.NotEqual(t, HashContent([]byte("a")), HashContent([]byte("b")))
}

func TestHashFile_MatchesHashContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	content := []byte("test content for hashing")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := HashFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, HashContent(content), got)
}

func TestHashFile_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got, err := HashFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, emptyDigest, got)
}

func TestHashFile_LargerThanBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "large.bin")
	content := make([]byte, bufferSize*3+17)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := HashFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, HashContent(content), got)
}

func TestHashFile_Nonexistent(t *testing.T) {
	_, err := HashFile(context.Background(), "/nonexistent/path/file.txt")
	require.Error(t, err)
	var fileErr *kberrors.FileIO
	require.ErrorAs(t, err, &fileErr)
}

func TestVerifyHashFormat(t *testing.T) {
	valid := HashContent([]byte("anything"))
	normalized, err := VerifyHashFormat(valid)
	require.NoError(t, err)
	assert.Equal(t, valid, normalized)

	upper, err := VerifyHashFormat(
		"0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF",
	)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", upper)
}

func TestVerifyHashFormat_InvalidLength(t *testing.T) {
	_, err := VerifyHashFormat("abc123")
	require.Error(t, err)
	var v *kberrors.Validation
	require.ErrorAs(t, err, &v)
}

func TestVerifyHashFormat_InvalidCharacters(t *testing.T) {
	invalid := ""
	for i := 0; i < 64; i++ {
		invalid += "g"
	}
	_, err := VerifyHashFormat(invalid)
	require.Error(t, err)
}
