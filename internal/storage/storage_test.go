package storage

import (
	"context"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blobNamePattern = regexp.MustCompile(`^[A-Z0-9]{32}\.[A-Za-z0-9]+$`)

func TestNewBlobName(t *testing.T) {
	name, err := NewBlobName("photo.PNG")
	require.NoError(t, err)
	assert.Regexp(t, blobNamePattern, name)
	assert.True(t, strings.HasSuffix(name, ".PNG"))

	name, err = NewBlobName("../../secret/report.final.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".pdf"))
	assert.NotContains(t, name, "report")

	other, err := NewBlobName("photo.PNG")
	require.NoError(t, err)
	assert.NotEqual(t, name, other)
}

func TestNewBlobNameMissingExtension(t *testing.T) {
	for _, filename := range []string{"README", ".bashrc", "trailing.", "", "??"} {
		_, err := NewBlobName(filename)
		assert.ErrorIs(t, err, ErrMissingExtension, "filename %q", filename)
	}
}

func TestNewBlobNameExtensionTooLong(t *testing.T) {
	name, err := NewBlobName("a." + strings.Repeat("x", MaxExtensionLength))
	require.NoError(t, err)
	assert.Len(t, name, NameLength+1+MaxExtensionLength)

	_, err = NewBlobName("a." + strings.Repeat("x", MaxExtensionLength+1))
	assert.ErrorIs(t, err, ErrExtensionTooLong)
}

func TestNameFromReference(t *testing.T) {
	assert.Equal(t, "ABC.png", NameFromReference("ABC.png"))
	assert.Equal(t, "ABC.png", NameFromReference("https://acct.blob.core.windows.net/images/ABC.png"))
	assert.Equal(t, "ABC.png", NameFromReference("memory://images/ABC.png"))
}

func TestResolveURL(t *testing.T) {
	g := NewMemoryGateway("https://cdn.example.com/images/")
	assert.Equal(t, "https://cdn.example.com/images/ABC.png", ResolveURL(g, "ABC.png"))
	assert.Equal(t, "https://other/x.png", ResolveURL(g, "https://other/x.png"))
	assert.Equal(t, "", ResolveURL(g, ""))
}

func TestDetectContentType(t *testing.T) {
	t.Run("declared wins", func(t *testing.T) {
		r, ct, err := DetectContentType(strings.NewReader("data"), "image/png", "png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", ct)
		b, _ := io.ReadAll(r)
		assert.Equal(t, "data", string(b))
	})

	t.Run("sniffed and replayed", func(t *testing.T) {
		png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16)
		r, ct, err := DetectContentType(strings.NewReader(png), "", "bin")
		require.NoError(t, err)
		assert.Equal(t, "image/png", ct)
		b, _ := io.ReadAll(r)
		assert.Equal(t, png, string(b))
	})

	t.Run("extension fallback", func(t *testing.T) {
		_, ct, err := DetectContentType(strings.NewReader(""), "application/octet-stream", "JPG")
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", ct)
	})
}

func TestMemoryGateway(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGateway("memory://images")

	ref, err := g.Upload(ctx, "A.png", strings.NewReader("one"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "memory://images/A.png", ref)
	assert.Equal(t, "A.png", NameFromReference(ref))

	// overwrite, not append
	_, err = g.Upload(ctx, "A.png", strings.NewReader("two"), "image/png")
	require.NoError(t, err)
	blob, ok := g.Get("A.png")
	require.True(t, ok)
	assert.Equal(t, "two", string(blob.Data))
	assert.Equal(t, "image/png", blob.ContentType)
	assert.Equal(t, 1, g.Len())

	require.NoError(t, g.Delete(ctx, "A.png"))
	require.NoError(t, g.Delete(ctx, "A.png"), "deleting a missing blob succeeds")
	require.NoError(t, g.Delete(ctx, "never-existed.png"))
	assert.Equal(t, 0, g.Len())
}
