// Package storage is the object-storage gateway used for post attachments.
//
// Blobs live in one flat container and are addressed by generated names. The gateway
// knows nothing about posts; keeping Post.ImagePath and the stored blobs consistent is
// the caller's job.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"CMS_Blog/internal/pkg"

	"github.com/gabriel-vasile/mimetype"
)

// NameLength is the length of the random part of a generated blob name.
const NameLength = 32

// MaxExtensionLength keeps the stored reference within the image_path column.
const MaxExtensionLength = 16

// sniffLen bounds how much of an upload is buffered for content sniffing.
const sniffLen = 3072

var (
	ErrMissingExtension = errors.New("filename has no extension")
	ErrExtensionTooLong = errors.New("filename extension too long")
)

// Gateway uploads and deletes named blobs.
type Gateway interface {
	// Upload writes or overwrites the blob and returns its retrievable reference.
	Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// URL is the public URL for a blob name.
	URL(name string) string
}

// NewBlobName returns a fresh random name carrying the sanitized extension of filename.
// The extension keeps its original case.
func NewBlobName(filename string) (string, error) {
	ext := pkg.SplitExt(pkg.SanitizeFilename(filename))
	if ext == "" {
		return "", ErrMissingExtension
	}
	if len(ext) > MaxExtensionLength {
		return "", ErrExtensionTooLong
	}
	id, err := pkg.RandName(NameLength)
	if err != nil {
		return "", fmt.Errorf("generate blob name: %w", err)
	}
	return id + "." + ext, nil
}

// NameFromReference extracts the blob name from a stored reference, which is either a
// bare name or an absolute URL whose last path segment is the name.
func NameFromReference(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ref
	}
	return path.Base(u.Path)
}

// ResolveURL returns a browser-usable URL for a stored reference.
func ResolveURL(g Gateway, ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		return ref
	}
	return g.URL(ref)
}

// DetectContentType keeps the declared type when it is meaningful, otherwise sniffs the
// first bytes of r. The returned reader replays the sniffed bytes.
func DetectContentType(r io.Reader, declared, ext string) (io.Reader, string, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return r, declared, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	replay := io.MultiReader(bytes.NewReader(head), r)

	if n > 0 {
		if m := mimetype.Detect(head); m != nil && m.String() != "application/octet-stream" {
			return replay, m.String(), nil
		}
	}
	if byExt := mime.TypeByExtension("." + strings.ToLower(ext)); byExt != "" {
		return replay, byExt, nil
	}
	return replay, "application/octet-stream", nil
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(name)
}
