// Package assets stores the images uploaded during an editing session.
//
// A store is append-only: every upload gets a fresh generated name and an
// existing asset is never overwritten. Each asset carries the BLAKE3
// digest of its bytes, which is checked again whenever the bytes are read
// back for an export.
package assets

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/zeebo/blake3"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/tsawler/deckform/opc"
)

// DefaultMaxBytes is the upload size limit when Options leaves it zero.
const DefaultMaxBytes = 20 << 20

var (
	// ErrNotFound indicates no asset has the requested name.
	ErrNotFound = errors.New("asset not found")
	// ErrExists indicates an import would overwrite a different asset.
	ErrExists = errors.New("asset already exists")
	// ErrTooLarge indicates an upload exceeds the size limit.
	ErrTooLarge = errors.New("asset too large")
	// ErrNotImage indicates the upload is not a decodable image.
	ErrNotImage = errors.New("not a supported image")
	// ErrCorrupt indicates stored bytes no longer match their digest.
	ErrCorrupt = errors.New("asset digest mismatch")
)

// Asset describes one stored upload.
type Asset struct {
	Name         string    `json:"filename"`
	OriginalName string    `json:"original_filename"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Digest       string    `json:"blake3"`
	CreatedAt    time.Time `json:"last_modified"`
}

// URLPath returns the path under which a session serves the asset.
func (a Asset) URLPath(sessionID string) string {
	return "/api/project/" + sessionID + "/image/" + a.Name
}

// Store is an append-only asset store.
type Store interface {
	// Put validates data as an image and stores it under a new name.
	Put(ctx context.Context, originalName string, data []byte) (Asset, error)
	// Import stores an asset under its recorded name, as when restoring a
	// snapshot. Importing identical bytes again is a no-op.
	Import(ctx context.Context, a Asset, data []byte) error
	// Open returns an asset's bytes after checking its digest.
	Open(name string) ([]byte, Asset, error)
	// List returns every asset in upload order.
	List() ([]Asset, error)
	// ReadAsset is Open without the metadata.
	ReadAsset(name string) ([]byte, error)
}

// Options configures a store.
type Options struct {
	// MaxBytes limits the size of one upload. Zero means DefaultMaxBytes.
	MaxBytes int64

	// Now returns the upload time. Nil means time.Now.
	Now func() time.Time
}

func (o Options) maxBytes() int64 {
	if o.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return o.MaxBytes
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Digest returns the hex BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Probe decodes the header of an image and returns its media type and
// pixel size.
func Probe(data []byte) (contentType string, width, height int, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	contentType = opc.MediaContentType(format)
	if contentType == "" {
		return "", 0, 0, fmt.Errorf("%w: %s", ErrNotImage, format)
	}
	return contentType, cfg.Width, cfg.Height, nil
}

// extensions gives the extension used when an upload's own extension does
// not match its content.
var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
	"image/webp": ".webp",
}

// describe validates an upload and fills everything but the name.
func describe(originalName string, data []byte, opts Options) (Asset, error) {
	if int64(len(data)) > opts.maxBytes() {
		return Asset{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), opts.maxBytes())
	}
	ct, w, h, err := Probe(data)
	if err != nil {
		return Asset{}, err
	}
	return Asset{
		OriginalName: originalName,
		Size:         int64(len(data)),
		ContentType:  ct,
		Width:        w,
		Height:       h,
		Digest:       Digest(data),
		CreatedAt:    opts.now().UTC(),
	}, nil
}

// GenerateName returns uploaded_{unix}_{base}{ext} for an upload, adding
// a counter when taken reports the name as used.
func GenerateName(at time.Time, originalName, contentType string, taken func(string) bool) string {
	base := path.Base(strings.ReplaceAll(originalName, `\`, "/"))
	ext := path.Ext(base)
	stem := sanitize(strings.TrimSuffix(base, ext))
	if opc.MediaContentType(ext) != contentType {
		ext = extensions[contentType]
	}
	ext = strings.ToLower(ext)

	name := fmt.Sprintf("uploaded_%d_%s%s", at.Unix(), stem, ext)
	for i := 2; taken(name); i++ {
		name = fmt.Sprintf("uploaded_%d_%s_%d%s", at.Unix(), stem, i, ext)
	}
	return name
}

func sanitize(stem string) string {
	var sb strings.Builder
	for _, r := range stem {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ', r == '.':
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "image"
	}
	return sb.String()
}

// validName reports whether name is a plain file name an import may use.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func checkImport(a Asset, data []byte) error {
	if !validName(a.Name) {
		return fmt.Errorf("invalid asset name %q", a.Name)
	}
	if Digest(data) != a.Digest {
		return fmt.Errorf("%w: %s", ErrCorrupt, a.Name)
	}
	return nil
}
