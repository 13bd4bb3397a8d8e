// Package session ties a presentation to its pending edits.
//
// A Session owns one canonical document, the overlay store holding the
// edits made against it and the asset store holding uploaded images. Every
// operation on a session is serialized by the session's lock; different
// sessions run independently.
//
//	m := session.NewManager(session.DefaultConfig())
//	s, warnings, err := m.Open(ctx, data)
//	if err != nil {
//		return err
//	}
//	defer m.Close(s.ID())
//	stats, _, err := s.Save(ctx, payload)
//	out, warnings, err := s.Export(ctx)
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsawler/deckform/assets"
	"github.com/tsawler/deckform/extract"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/overlay"
	"github.com/tsawler/deckform/reconcile"
)

// Overlay store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

var (
	// ErrNotFound indicates no open session has the requested id.
	ErrNotFound = errors.New("session not found")
	// ErrClosed indicates the session was closed.
	ErrClosed = errors.New("session closed")
)

// Config configures a Manager and every session it opens.
type Config struct {
	// Logger receives session events. Nil discards.
	Logger *slog.Logger

	// DataDir holds one directory per session with its overlay database
	// and uploaded images. Empty keeps all session state in memory.
	DataDir string

	// OverlayBackend selects the overlay store: BackendMemory or
	// BackendSQLite. SQLite needs a DataDir.
	OverlayBackend string

	// MaxUploadBytes limits a single image upload. Zero means
	// assets.DefaultMaxBytes.
	MaxUploadBytes int64

	// RecognizePictureText runs Recognizer over pictures at extraction.
	RecognizePictureText bool
	Recognizer           extract.Recognizer

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{OverlayBackend: BackendMemory, MaxUploadBytes: assets.DefaultMaxBytes}
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c Config) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// canonical is an extracted document shared by every session opened on
// the same container bytes.
type canonical struct {
	doc      *model.Document
	index    *model.Index
	warnings []model.Warning
	refs     int
}

// Manager holds open sessions by id.
type Manager struct {
	cfg      Config
	log      *slog.Logger
	mu       sync.Mutex
	sessions map[string]*Session
	opening  map[string]struct{} // ids reserved by an open in progress
	docs     map[string]*canonical
}

// NewManager returns a manager with no open sessions.
func NewManager(cfg Config) *Manager {
	if cfg.OverlayBackend == "" {
		cfg.OverlayBackend = BackendMemory
	}
	return &Manager{
		cfg:      cfg,
		log:      cfg.logger(),
		sessions: make(map[string]*Session),
		opening:  make(map[string]struct{}),
		docs:     make(map[string]*canonical),
	}
}

// Open starts a session on a container. The returned warnings are those
// of extraction; an unreadable container is an error.
func (m *Manager) Open(ctx context.Context, container []byte) (*Session, []model.Warning, error) {
	return m.open(ctx, uuid.NewString(), container)
}

// Resume reopens a session that was closed, picking up the overlays and
// images kept under DataDir for id. The container must be the one the
// session was opened on.
func (m *Manager) Resume(ctx context.Context, id string, container []byte) (*Session, []model.Warning, error) {
	if m.cfg.DataDir == "" {
		return nil, nil, fmt.Errorf("resuming session %s: no data directory configured", id)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, nil, fmt.Errorf("resuming session: invalid id %q: %w", id, err)
	}
	dir := filepath.Join(m.cfg.DataDir, u.String())
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.open(ctx, u.String(), container)
}

func (m *Manager) open(ctx context.Context, id string, container []byte) (*Session, []model.Warning, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := m.reserve(id); err != nil {
		return nil, nil, err
	}

	digest := assets.Digest(container)
	c, err := m.acquire(digest, container)
	if err != nil {
		m.unreserve(id)
		return nil, nil, err
	}

	overlays, store, closers, err := m.stores(id)
	if err != nil {
		m.release(digest)
		m.unreserve(id)
		return nil, nil, err
	}

	s := &Session{
		id:        id,
		log:       m.log.With("session", id),
		now:       m.cfg.now,
		container: container,
		digest:    digest,
		doc:       c.doc,
		index:     c.index,
		overlays:  overlays,
		assets:    store,
		closers:   closers,
	}

	m.mu.Lock()
	delete(m.opening, id)
	m.sessions[id] = s
	m.mu.Unlock()

	s.log.Info("session opened", "slides", c.doc.SlideCount(), "shapes", c.index.Len(), "warnings", len(c.warnings))
	return s, append([]model.Warning(nil), c.warnings...), nil
}

// reserve claims id for an open in progress. It fails while the id is
// open or being opened.
func (m *Manager) reserve(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, open := m.sessions[id]
	_, opening := m.opening[id]
	if open || opening {
		return fmt.Errorf("session %s is already open", id)
	}
	m.opening[id] = struct{}{}
	return nil
}

func (m *Manager) unreserve(id string) {
	m.mu.Lock()
	delete(m.opening, id)
	m.mu.Unlock()
}

// acquire returns the canonical document for a container, extracting it
// on first use.
func (m *Manager) acquire(digest string, container []byte) (*canonical, error) {
	m.mu.Lock()
	if c, ok := m.docs[digest]; ok {
		c.refs++
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	opts := extract.DefaultOptions()
	opts.Logger = m.log
	opts.RecognizePictureText = m.cfg.RecognizePictureText
	opts.Recognizer = m.cfg.Recognizer
	doc, warnings, err := extract.Extract(container, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another session may have extracted the same bytes meanwhile.
	if c, ok := m.docs[digest]; ok {
		c.refs++
		return c, nil
	}
	c := &canonical{doc: doc, index: doc.Index(), warnings: warnings, refs: 1}
	m.docs[digest] = c
	return c, nil
}

func (m *Manager) release(digest string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.docs[digest]; ok {
		if c.refs--; c.refs <= 0 {
			delete(m.docs, digest)
		}
	}
}

// stores opens the overlay and asset stores for a session.
func (m *Manager) stores(id string) (overlay.Store, assets.Store, []io.Closer, error) {
	aopts := assets.Options{MaxBytes: m.cfg.MaxUploadBytes, Now: m.cfg.Now}

	if m.cfg.DataDir == "" {
		if m.cfg.OverlayBackend == BackendSQLite {
			return nil, nil, nil, fmt.Errorf("overlay backend %q requires a data directory", BackendSQLite)
		}
		return overlay.NewMemoryStore(), assets.NewMemStore(aopts), nil, nil
	}

	dir := filepath.Join(m.cfg.DataDir, id)
	images, err := assets.OpenDir(filepath.Join(dir, "images"), aopts)
	if err != nil {
		return nil, nil, nil, err
	}

	switch m.cfg.OverlayBackend {
	case BackendMemory:
		return overlay.NewMemoryStore(), images, nil, nil
	case BackendSQLite:
		db, err := overlay.OpenSQLite(filepath.Join(dir, "overlays.db"), id)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, images, []io.Closer{db}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown overlay backend %q", m.cfg.OverlayBackend)
	}
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// IDs returns the ids of every open session, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes a session and releases its stores. Data kept under
// DataDir stays for Resume.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err := s.close()
	m.release(s.digest)
	s.log.Info("session closed")
	return err
}

// Session is one document under edit.
type Session struct {
	id  string
	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	closed    bool
	container []byte
	digest    string
	doc       *model.Document // shared; never mutated
	index     *model.Index
	overlays  overlay.Store
	assets    assets.Store
	closers   []io.Closer
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Digest returns the BLAKE3 digest of the session's container.
func (s *Session) Digest() string {
	return s.digest
}

// Assets returns the session's asset store.
func (s *Session) Assets() assets.Store {
	return s.assets
}

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (s *Session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Document returns a copy of the canonical document, as extracted.
func (s *Session) Document() *model.Document {
	return s.doc.Clone()
}

// Effective returns the document as the editor should see it: the
// canonical model with every stored overlay applied.
func (s *Session) Effective(ctx context.Context) (*model.Document, []model.Warning, error) {
	if err := s.lock(); err != nil {
		return nil, nil, err
	}
	defer s.mu.Unlock()

	all, err := s.overlays.All(ctx)
	if err != nil {
		return nil, nil, err
	}
	doc, warnings := reconcile.Apply(s.doc, all, reconcile.Options{Logger: s.log})
	return doc, warnings, nil
}

// Overlays returns every stored overlay ordered by shape id, then kind.
func (s *Session) Overlays(ctx context.Context) ([]overlay.Overlay, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.overlays.All(ctx)
}

// GetChanges returns the stored text and table overlays in the bulk wire
// form accepted by Save.
func (s *Session) GetChanges(ctx context.Context) ([]byte, error) {
	all, err := s.Overlays(ctx)
	if err != nil {
		return nil, err
	}
	return overlay.EncodeChanges(all)
}

// Export writes every stored overlay into a copy of the container.
//
// ctx is consulted before reading the overlays and again before writing;
// once writing starts it runs to completion.
func (s *Session) Export(ctx context.Context) ([]byte, []model.Warning, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := s.lock(); err != nil {
		return nil, nil, err
	}
	defer s.mu.Unlock()

	all, err := s.overlays.All(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := s.now()
	out, warnings, err := reconcile.Materialize(s.container, s.doc, all, reconcile.Options{Logger: s.log, Assets: s.assets})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("exported",
		"overlays", len(all),
		"warnings", len(warnings),
		"bytes", len(out),
		"elapsed", s.now().Sub(start))
	return out, warnings, nil
}

// UploadImage stores an image for later use by an image overlay. The
// asset's URLPath(s.ID()) is where an editor fetches it back.
func (s *Session) UploadImage(ctx context.Context, originalName string, data []byte) (assets.Asset, error) {
	if err := s.lock(); err != nil {
		return assets.Asset{}, err
	}
	defer s.mu.Unlock()

	a, err := s.assets.Put(ctx, originalName, data)
	if err != nil {
		return assets.Asset{}, fmt.Errorf("uploading %s: %w", originalName, err)
	}
	s.log.Info("image uploaded", "filename", a.Name, "size", a.Size, "content_type", a.ContentType)
	return a, nil
}

// GetImageChanges returns the stored image overlays as a shape id to
// payload map.
func (s *Session) GetImageChanges(ctx context.Context) ([]byte, error) {
	all, err := s.Overlays(ctx)
	if err != nil {
		return nil, err
	}
	return overlay.EncodeImageChanges(all)
}

// SaveImageChanges merges a shape id to payload map into the stored image
// overlays. Shapes the payload names are replaced; others are kept. An
// entry with neither image_ref nor image_url removes the shape's image
// overlay. Invalid entries are skipped and reported.
func (s *Session) SaveImageChanges(ctx context.Context, payload []byte) ([]model.Warning, error) {
	changes, err := overlay.DecodeImageChanges(payload)
	if err != nil {
		return nil, err
	}
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var warnings []model.Warning
	for _, o := range changes {
		if o.Image.ImageRef == "" && o.Image.ImageURL == "" {
			if err := s.overlays.Delete(ctx, o.ShapeID, overlay.KindImage); err != nil {
				return warnings, err
			}
			continue
		}
		if err := overlay.Validate(o); err != nil {
			warnings = append(warnings, model.WarningFromError(err))
			continue
		}
		if err := s.overlays.Put(ctx, o); err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// SaveStats summarizes a Save.
type SaveStats struct {
	ShapesSuccess   int `json:"shapes_success"`
	ShapesFailed    int `json:"shapes_failed"`
	ParagraphsSaved int `json:"paragraphs_saved"`
	RunsSaved       int `json:"runs_saved"`
	TablesSaved     int `json:"tables_saved"`
}

// Save stores a bulk change payload: a JSON object from shape id to that
// shape's text and table edits. Entries that cannot be decoded or
// validated count as failed and are reported as warnings; the rest are
// stored.
func (s *Session) Save(ctx context.Context, payload []byte) (SaveStats, []model.Warning, error) {
	overlays, bad, err := overlay.DecodeChanges(payload)
	if err != nil {
		return SaveStats{}, nil, err
	}
	stats, warnings, err := s.SaveOverlays(ctx, overlays)
	stats.ShapesFailed += len(bad)
	for _, e := range bad {
		warnings = append(warnings, model.WarningFromError(e))
	}
	return stats, warnings, err
}

// SaveOverlays stores overlays, replacing the entries of the same shape
// and kind. A shape counts as saved only if all of its overlays are valid.
//
// Table cells keep the original text recorded by their first edit; a cell
// edited for the first time records the canonical cell text.
func (s *Session) SaveOverlays(ctx context.Context, overlays []overlay.Overlay) (SaveStats, []model.Warning, error) {
	var (
		stats    SaveStats
		warnings []model.Warning
	)
	if err := ctx.Err(); err != nil {
		return stats, nil, err
	}
	if err := s.lock(); err != nil {
		return stats, nil, err
	}
	defer s.mu.Unlock()

	groups := make(map[string][]overlay.Overlay)
	for _, o := range overlays {
		groups[o.ShapeID] = append(groups[o.ShapeID], o.Clone())
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		batch := groups[id]
		if err := validShapeID(id); err != nil {
			stats.ShapesFailed++
			warnings = append(warnings, model.WarningFromError(err))
			continue
		}
		if err := validateAll(batch); err != nil {
			stats.ShapesFailed++
			warnings = append(warnings, model.WarningFromError(err))
			continue
		}

		for i := range batch {
			o := &batch[i]
			switch o.Kind {
			case overlay.KindText:
				stats.ParagraphsSaved += len(o.Text.Paragraphs)
				for _, p := range o.Text.Paragraphs {
					stats.RunsSaved += len(p.Runs)
				}
			case overlay.KindTable:
				if err := s.captureOriginal(ctx, o); err != nil {
					return stats, warnings, err
				}
				stats.TablesSaved++
			}
			if err := s.overlays.Put(ctx, *o); err != nil {
				return stats, warnings, err
			}
		}
		stats.ShapesSuccess++
	}

	s.log.Debug("changes saved",
		"shapes_success", stats.ShapesSuccess,
		"shapes_failed", stats.ShapesFailed,
		"paragraphs", stats.ParagraphsSaved,
		"runs", stats.RunsSaved,
		"tables", stats.TablesSaved)
	return stats, warnings, nil
}

// captureOriginal fills each cell's OriginalText: the value stored by an
// earlier edit wins, then the value the editor sent, then the canonical
// cell text.
func (s *Session) captureOriginal(ctx context.Context, o *overlay.Overlay) error {
	prev, _, err := s.overlays.Get(ctx, o.ShapeID)
	if err != nil {
		return err
	}
	var stored map[string]overlay.CellEdit
	if p := prev.Get(overlay.KindTable); p != nil {
		stored = p.Table.Cells
	}
	var canon *model.Table
	if sh := s.index.Shape(o.ShapeID); sh != nil {
		canon = sh.Table
	}

	for key, c := range o.Table.Cells {
		if sc, ok := stored[key]; ok && sc.OriginalText != nil {
			orig := *sc.OriginalText
			c.OriginalText = &orig
		} else if c.OriginalText == nil && canon != nil {
			if cell := canon.Cell(c.Row, c.Col); cell != nil && !cell.Synthetic {
				orig := cell.Text
				c.OriginalText = &orig
			}
		}
		o.Table.Cells[key] = c
	}
	return nil
}

// validShapeID checks the slide_{i}_shape_{n} form. Group children extend
// it with further segments.
func validShapeID(id string) error {
	parts := strings.Split(id, "_")
	if len(parts) < 4 || parts[0] != "slide" || parts[2] != "shape" ||
		!isIndex(parts[1]) || !isIndex(parts[3]) {
		return &model.MalformedOverlayError{ShapeID: id, Reason: "invalid shape id format"}
	}
	return nil
}

func isIndex(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && strconv.Itoa(n) == s
}

func validateAll(batch []overlay.Overlay) error {
	for _, o := range batch {
		if err := overlay.Validate(o); err != nil {
			return err
		}
	}
	return nil
}
