package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/db"
	"github.com/loomhq/loom/internal/providers"
	"github.com/loomhq/loom/pkg/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	handle, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })

	svc, err := NewService(handle, t.TempDir(), nil)
	require.NoError(t, err)
	return svc
}

var scope = models.ArtifactScope{ProjectID: "proj1", SessionID: "sess1"}

func TestSaveAutoIncrementsVersions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i, content := range []string{"one", "two", "three"} {
		meta, err := svc.Save(ctx, "report.md", scope, "text/markdown", []byte(content))
		require.NoError(t, err)
		assert.Equal(t, i+1, meta.Version)
	}

	meta, data, err := svc.Load(ctx, "report.md", scope, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Version)
	assert.Equal(t, "three", string(data))

	v1 := 1
	_, data, err = svc.Load(ctx, "report.md", scope, &v1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestVersionsDescendingAndContiguous(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c", "d"} {
		_, err := svc.Save(ctx, "notes.txt", scope, "text/plain", []byte(content))
		require.NoError(t, err)
	}

	versions, err := svc.Versions(ctx, "notes.txt", scope)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	for i, v := range versions {
		assert.Equal(t, 4-i, v.Version)
	}
}

func TestChecksumAndSizeMatchBytes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	data := []byte("checksum me")
	meta, err := svc.Save(ctx, "blob.bin", scope, "application/octet-stream", data)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), meta.SizeBytes)
	assert.Len(t, meta.Checksum, 64)
}

func TestBlobPathIsDeterministic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	meta, err := svc.Save(ctx, "weird name!.md", scope, "text/markdown", []byte("x"))
	require.NoError(t, err)

	versions, err := svc.Versions(ctx, "weird name!.md", scope)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t,
		filepath.Join(svc.root, "proj1", "weird_name_.md", "v1.md"),
		versions[0].StoragePath)
	assert.Equal(t, 1, meta.Version)
}

func TestContentTypeExtensionFallback(t *testing.T) {
	assert.Equal(t, "md", extensionFor("text/markdown"))
	assert.Equal(t, "json", extensionFor("application/json"))
	assert.Equal(t, "bin", extensionFor("application/x-whatever"))
}

func TestListScopeWildcards(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "a.md", models.ArtifactScope{ProjectID: "p", SessionID: "s1"}, "text/markdown", []byte("a"))
	require.NoError(t, err)
	_, err = svc.Save(ctx, "b.md", models.ArtifactScope{ProjectID: "p", SessionID: "s2"}, "text/markdown", []byte("b"))
	require.NoError(t, err)

	// Empty session acts as a wildcard.
	all, err := svc.List(ctx, models.ArtifactScope{ProjectID: "p"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := svc.List(ctx, models.ArtifactScope{ProjectID: "p", SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "a.md", only[0].Name)
}

func TestDeleteRemovesMetadataAndBlobs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "gone.md", scope, "text/markdown", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "gone.md", scope))

	_, _, err = svc.Load(ctx, "gone.md", scope, nil)
	require.Error(t, err)
	assert.Equal(t, providers.KindNotFound, providers.KindOf(err))

	_, statErr := os.Stat(svc.blobPath(scope, "gone.md", 1, "text/markdown"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadMissingVersionIsNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "one.md", scope, "text/markdown", []byte("x"))
	require.NoError(t, err)

	v9 := 9
	_, _, err = svc.Load(ctx, "one.md", scope, &v9)
	require.Error(t, err)
	assert.Equal(t, providers.KindNotFound, providers.KindOf(err))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "plain-name_1.md", SanitizeName("plain-name_1.md"))
	assert.Equal(t, "a_b_c", SanitizeName("a b/c"))
}
