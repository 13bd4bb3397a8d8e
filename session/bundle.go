package session

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/tsawler/deckform/assets"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/overlay"
)

// Bundle entry names.
const (
	manifestEntry  = "manifest.json"
	containerEntry = "container.pptx"
	overlaysEntry  = "overlays.json"
	assetIndex     = "assets.json"
	assetPrefix    = "assets/"
)

const bundleVersion = 1

// maxBundleEntry bounds the size of one entry read back from a bundle.
const maxBundleEntry = 1 << 30

// ErrInvalidBundle indicates a bundle that cannot be restored.
var ErrInvalidBundle = errors.New("invalid session bundle")

// Manifest describes a bundle. It is the first entry of the archive.
type Manifest struct {
	Version         int       `json:"version"`
	SessionID       string    `json:"session_id"`
	ContainerDigest string    `json:"container_blake3"`
	CreatedAt       time.Time `json:"created_at"`
	Overlays        int       `json:"overlays"`
	Assets          int       `json:"assets"`
}

// bundle is a decoded snapshot.
type bundle struct {
	manifest  Manifest
	container []byte
	overlays  []overlay.Overlay
	index     []assets.Asset
	files     map[string][]byte
}

// Bundle writes a snapshot of the session to w: a tar archive, xz
// compressed, holding the container, the stored overlays and every
// uploaded image.
func (s *Session) Bundle(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	all, err := s.overlays.All(ctx)
	if err != nil {
		return err
	}
	list, err := s.assets.List()
	if err != nil {
		return err
	}

	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)

	manifest := Manifest{
		Version:         bundleVersion,
		SessionID:       s.id,
		ContainerDigest: s.digest,
		CreatedAt:       s.now().UTC(),
		Overlays:        len(all),
		Assets:          len(list),
	}
	if err := writeJSON(tw, manifestEntry, manifest); err != nil {
		return err
	}
	if err := writeToTar(tw, containerEntry, s.container); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	if err := writeJSON(tw, overlaysEntry, all); err != nil {
		return err
	}
	if err := writeJSON(tw, assetIndex, list); err != nil {
		return err
	}
	for _, a := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, _, err := s.assets.Open(a.Name)
		if err != nil {
			return err
		}
		if err := writeToTar(tw, assetPrefix+a.Name, data); err != nil {
			return fmt.Errorf("failed to write asset %s: %w", a.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := xw.Close(); err != nil {
		return fmt.Errorf("failed to close xz writer: %w", err)
	}
	s.log.Info("bundle written", "overlays", len(all), "assets", len(list))
	return nil
}

// RestoreBundle replaces the session's overlays with those of a bundle
// taken from a session on the same container, and imports the bundle's
// images. The archive is checked in full before anything is changed.
func (s *Session) RestoreBundle(ctx context.Context, r io.Reader) ([]model.Warning, error) {
	b, err := readBundle(r)
	if err != nil {
		return nil, err
	}
	if b.manifest.ContainerDigest != s.digest {
		return nil, fmt.Errorf("%w: bundle is for container %s, session has %s", ErrInvalidBundle, b.manifest.ContainerDigest, s.digest)
	}
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.restore(ctx, b)
}

// OpenBundle starts a session from a bundle.
func (m *Manager) OpenBundle(ctx context.Context, r io.Reader) (*Session, []model.Warning, error) {
	b, err := readBundle(r)
	if err != nil {
		return nil, nil, err
	}
	s, warnings, err := m.Open(ctx, b.container)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	restored, err := s.restore(ctx, b)
	s.mu.Unlock()
	if err != nil {
		m.Close(s.ID())
		return nil, nil, err
	}
	return s, append(warnings, restored...), nil
}

// restore imports assets, then loads overlays. Callers hold s.mu.
// Overlays that fail validation are dropped and reported.
func (s *Session) restore(ctx context.Context, b *bundle) ([]model.Warning, error) {
	var (
		warnings []model.Warning
		keep     []overlay.Overlay
	)
	for _, o := range b.overlays {
		if err := overlay.Validate(o); err != nil {
			warnings = append(warnings, model.WarningFromError(err))
			continue
		}
		keep = append(keep, o)
	}

	for _, a := range b.index {
		if _, ok := b.files[a.Name]; !ok {
			return warnings, fmt.Errorf("%w: asset %s listed but missing", ErrInvalidBundle, a.Name)
		}
	}
	for _, a := range b.index {
		if err := s.assets.Import(ctx, a, b.files[a.Name]); err != nil {
			return warnings, fmt.Errorf("restoring asset %s: %w", a.Name, err)
		}
	}
	if err := overlay.Load(ctx, s.overlays, keep); err != nil {
		return warnings, fmt.Errorf("restoring overlays: %w", err)
	}
	s.log.Info("bundle restored", "from", b.manifest.SessionID, "overlays", len(keep), "assets", len(b.index))
	return warnings, nil
}

func readBundle(r io.Reader) (*bundle, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	tr := tar.NewReader(xr)

	b := &bundle{files: make(map[string][]byte)}
	var haveManifest, haveContainer bool
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read tar header: %v", ErrInvalidBundle, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(header.Name)
		if strings.HasPrefix(name, "..") || path.IsAbs(name) {
			continue
		}
		if header.Size > maxBundleEntry {
			return nil, fmt.Errorf("%w: entry %s is too large", ErrInvalidBundle, name)
		}
		data, err := io.ReadAll(io.LimitReader(tr, header.Size))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidBundle, name, err)
		}

		switch {
		case name == manifestEntry:
			if err := json.Unmarshal(data, &b.manifest); err != nil {
				return nil, fmt.Errorf("%w: manifest: %v", ErrInvalidBundle, err)
			}
			haveManifest = true
		case name == containerEntry:
			b.container = data
			haveContainer = true
		case name == overlaysEntry:
			if err := json.Unmarshal(data, &b.overlays); err != nil {
				return nil, fmt.Errorf("%w: overlays: %v", ErrInvalidBundle, err)
			}
		case name == assetIndex:
			if err := json.Unmarshal(data, &b.index); err != nil {
				return nil, fmt.Errorf("%w: asset index: %v", ErrInvalidBundle, err)
			}
		case strings.HasPrefix(name, assetPrefix):
			b.files[strings.TrimPrefix(name, assetPrefix)] = data
		}
	}

	switch {
	case !haveManifest:
		return nil, fmt.Errorf("%w: archive does not contain %s", ErrInvalidBundle, manifestEntry)
	case b.manifest.Version != bundleVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidBundle, b.manifest.Version)
	case !haveContainer:
		return nil, fmt.Errorf("%w: archive does not contain %s", ErrInvalidBundle, containerEntry)
	case assets.Digest(b.container) != b.manifest.ContainerDigest:
		return nil, fmt.Errorf("%w: container digest mismatch", ErrInvalidBundle)
	}
	return b, nil
}

func writeJSON(tw *tar.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", name, err)
	}
	if err := writeToTar(tw, name, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// writeToTar writes a file to the tar archive.
func writeToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
