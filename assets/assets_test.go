package assets

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 3, 2), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("gif.Encode failed: %v", err)
	}
	return buf.Bytes()
}

var fixedNow = time.Unix(1700000000, 0)

func testOptions() Options {
	return Options{MaxBytes: 1 << 20, Now: func() time.Time { return fixedNow }}
}

func storeImplementations(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemStore(testOptions()) },
		"dir": func(t *testing.T) Store {
			s, err := OpenDir(filepath.Join(t.TempDir(), "images"), testOptions())
			if err != nil {
				t.Fatalf("OpenDir failed: %v", err)
			}
			return s
		},
	}
}

// ============================================================================
// Store conformance
// ============================================================================

func TestStore_PutOpenList(t *testing.T) {
	ctx := context.Background()
	img := pngBytes(t, 4, 3)
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			a, err := s.Put(ctx, "../Holiday Photo.png", img)
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if a.Name != "uploaded_1700000000_Holiday_Photo.png" {
				t.Errorf("Name = %q", a.Name)
			}
			if a.OriginalName != "../Holiday Photo.png" || a.Size != int64(len(img)) {
				t.Errorf("asset = %+v", a)
			}
			if a.ContentType != "image/png" || a.Width != 4 || a.Height != 3 {
				t.Errorf("probe = %s %dx%d", a.ContentType, a.Width, a.Height)
			}
			if a.Digest != Digest(img) || !a.CreatedAt.Equal(fixedNow) {
				t.Errorf("digest/time = %s %v", a.Digest, a.CreatedAt)
			}

			// Same name in the same second gets a counter, never an overwrite.
			b, err := s.Put(ctx, "Holiday Photo.png", pngBytes(t, 5, 5))
			if err != nil {
				t.Fatalf("second Put failed: %v", err)
			}
			if b.Name != "uploaded_1700000000_Holiday_Photo_2.png" {
				t.Errorf("second Name = %q", b.Name)
			}

			// The extension follows the content.
			c, err := s.Put(ctx, "anim.png", gifBytes(t))
			if err != nil {
				t.Fatalf("gif Put failed: %v", err)
			}
			if c.Name != "uploaded_1700000000_anim.gif" || c.ContentType != "image/gif" {
				t.Errorf("gif asset = %+v", c)
			}

			data, got, err := s.Open(a.Name)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(data, img) || got.Name != a.Name {
				t.Error("Open returned different content")
			}
			if data, err := s.ReadAsset(b.Name); err != nil || len(data) == 0 {
				t.Errorf("ReadAsset = %d bytes, %v", len(data), err)
			}

			list, err := s.List()
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list) != 3 || list[0].Name != a.Name || list[1].Name != b.Name || list[2].Name != c.Name {
				t.Errorf("List = %+v", list)
			}

			if _, _, err := s.Open("uploaded_0_missing.png"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Open(missing) err = %v", err)
			}
		})
	}
}

func TestStore_Rejects(t *testing.T) {
	ctx := context.Background()
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if _, err := s.Put(ctx, "notes.png", []byte("not an image")); !errors.Is(err, ErrNotImage) {
				t.Errorf("non-image err = %v", err)
			}
			big := append(pngBytes(t, 2, 2), make([]byte, 1<<20)...)
			if _, err := s.Put(ctx, "big.png", big); !errors.Is(err, ErrTooLarge) {
				t.Errorf("oversize err = %v", err)
			}
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			if _, err := s.Put(canceled, "a.png", pngBytes(t, 1, 1)); !errors.Is(err, context.Canceled) {
				t.Errorf("canceled err = %v", err)
			}
			if list, _ := s.List(); len(list) != 0 {
				t.Errorf("rejected uploads were stored: %+v", list)
			}
		})
	}
}

func TestStore_Import(t *testing.T) {
	ctx := context.Background()
	img := pngBytes(t, 2, 2)
	a := Asset{Name: "uploaded_5_logo.png", OriginalName: "logo.png", Size: int64(len(img)), ContentType: "image/png", Digest: Digest(img)}

	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if err := s.Import(ctx, a, img); err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if err := s.Import(ctx, a, img); err != nil {
				t.Errorf("identical re-import failed: %v", err)
			}

			other := pngBytes(t, 3, 3)
			clash := a
			clash.Digest = Digest(other)
			if err := s.Import(ctx, clash, other); !errors.Is(err, ErrExists) {
				t.Errorf("clashing import err = %v", err)
			}
			if err := s.Import(ctx, Asset{Name: "x.png", Digest: "00"}, img); !errors.Is(err, ErrCorrupt) {
				t.Errorf("bad digest err = %v", err)
			}
			if err := s.Import(ctx, Asset{Name: "../x.png", Digest: Digest(img)}, img); err == nil {
				t.Error("path-like name accepted")
			}

			data, _, err := s.Open(a.Name)
			if err != nil || !bytes.Equal(data, img) {
				t.Errorf("Open after import = %v", err)
			}
		})
	}
}

func TestDirStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := OpenDir(dir, testOptions())
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	a, err := s.Put(ctx, "chart.png", pngBytes(t, 2, 2))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reopened, err := OpenDir(dir, testOptions())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	list, _ := reopened.List()
	if len(list) != 1 || list[0].Name != a.Name || list[0].Digest != a.Digest {
		t.Fatalf("reopened index = %+v", list)
	}

	// A file tampered with on disk is refused.
	if err := os.WriteFile(filepath.Join(dir, a.Name), []byte("tampered"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := reopened.ReadAsset(a.Name); !errors.Is(err, ErrCorrupt) {
		t.Errorf("tampered read err = %v", err)
	}
}

// ============================================================================
// Naming
// ============================================================================

func TestGenerateName(t *testing.T) {
	at := time.Unix(42, 0)
	none := func(string) bool { return false }
	tests := []struct {
		original string
		ct       string
		want     string
	}{
		{"cat.png", "image/png", "uploaded_42_cat.png"},
		{`C:\Users\me\My Cat.JPG`, "image/jpeg", "uploaded_42_My_Cat.jpg"},
		{"photo.png", "image/jpeg", "uploaded_42_photo.jpg"},
		{"noext", "image/gif", "uploaded_42_noext.gif"},
		{"???.webp", "image/webp", "uploaded_42_image.webp"},
		{"v1.2.tiff", "image/tiff", "uploaded_42_v1_2.tiff"},
	}
	for _, tt := range tests {
		if got := GenerateName(at, tt.original, tt.ct, none); got != tt.want {
			t.Errorf("GenerateName(%q) = %q, want %q", tt.original, got, tt.want)
		}
	}

	used := map[string]bool{"uploaded_42_cat.png": true, "uploaded_42_cat_2.png": true}
	if got := GenerateName(at, "cat.png", "image/png", func(n string) bool { return used[n] }); got != "uploaded_42_cat_3.png" {
		t.Errorf("collision name = %q", got)
	}
}

func TestURLPath(t *testing.T) {
	a := Asset{Name: "uploaded_1_x.png"}
	if got := a.URLPath("abc"); got != "/api/project/abc/image/uploaded_1_x.png" {
		t.Errorf("URLPath = %q", got)
	}
}
