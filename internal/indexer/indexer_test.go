package indexer_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/aliskhannn/pixmo/internal/config"
	"github.com/aliskhannn/pixmo/internal/indexer"
	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/storage/file"
	"github.com/aliskhannn/pixmo/internal/store"
	"github.com/aliskhannn/pixmo/internal/store/storetest"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

func testConfig() config.Indexer {
	return config.Indexer{
		MaxArchiveFiles: 1000,
		MaxFileBytes:    10 << 20,
		MaxThumbsBytes:  1 << 30,
		ThumbSize:       64,
		Quant:           8,
		AllowedExt:      []string{".jpg", ".jpeg", ".png"},
	}
}

type env struct {
	st      *store.Store
	repos   *storetest.Repos
	storage *file.Storage
	ix      *indexer.Indexer
}

func newEnv(t *testing.T, cfg config.Indexer) *env {
	t.Helper()
	storage, err := file.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	st, repos := storetest.NewStore(storage, cfg.Quant)
	return &env{
		st:      st,
		repos:   repos,
		storage: storage,
		ix:      indexer.New(st, storage, cfg, semaphore.NewWeighted(2)),
	}
}

type zipEntry struct {
	name string
	data []byte
}

// tileJPEG renders a solid-color image and encodes it as JPEG.
func tileJPEG(t *testing.T, r, g, b int) []byte {
	t.Helper()
	dc := gg.NewContext(80, 60)
	dc.SetRGB255(r, g, b)
	dc.Clear()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dc.Image(), imaging.JPEG); err != nil {
		t.Fatalf("encode tile: %v", err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, entries []zipEntry) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("zip entry %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func validEntries(t *testing.T, n int) []zipEntry {
	entries := make([]zipEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, zipEntry{
			name: fmt.Sprintf("tiles/img_%03d.jpg", i),
			data: tileJPEG(t, (i*20)%256, (i*35)%256, (i*50)%256),
		})
	}
	return entries
}

// startLibrary seeds the session and library records, stores the archive and
// kicks off the indexing run.
func (e *env) startLibrary(t *testing.T, sessionID string, entries []zipEntry) (uuid.UUID, string) {
	t.Helper()
	ctx := context.Background()

	id := uuid.New()
	zipPath, err := e.storage.SaveArchive(id.String(), buildZip(t, entries))
	if err != nil {
		t.Fatalf("save archive: %v", err)
	}
	if err := e.st.Libraries.Create(ctx, model.Library{
		ID:        id,
		SessionID: sessionID,
		Name:      "library",
		Status:    model.StatusQueued,
		Message:   "Queued",
		ZipPath:   zipPath,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create library: %v", err)
	}

	e.ix.Run(ctx, sessionID, id, zipPath)
	return id, zipPath
}

func waitLibrary(t *testing.T, st *store.Store, id uuid.UUID) model.Library {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		l, err := st.Libraries.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get library: %v", err)
		}
		if l.Status == model.StatusReady || l.Status == model.StatusError {
			return l
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("library never reached a final status")
	return model.Library{}
}

func TestIndexBuildsReadyLibrary(t *testing.T) {
	e := newEnv(t, testConfig())
	ctx := context.Background()
	if err := e.st.Sessions.Touch(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	id, zipPath := e.startLibrary(t, "s1", validEntries(t, 12))
	l := waitLibrary(t, e.st, id)

	if l.Status != model.StatusReady {
		t.Fatalf("status = %s (%s), want ready", l.Status, l.Message)
	}
	if l.Count != 12 || l.Progress != 100 {
		t.Fatalf("count = %d, progress = %d, want 12 and 100", l.Count, l.Progress)
	}
	if _, err := os.Stat(l.MetaPath); err != nil {
		t.Errorf("snapshot missing: %v", err)
	}
	if _, err := os.Stat(zipPath); !os.IsNotExist(err) {
		t.Errorf("archive not removed: %v", err)
	}

	thumbs, err := filepath.Glob(filepath.Join(filepath.Dir(l.MetaPath), "thumbs", "t_*.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if len(thumbs) != 12 {
		t.Errorf("thumbnail count = %d, want 12", len(thumbs))
	}

	// Thumbnails must be normalized to the exact square size.
	img, err := imaging.Open(thumbs[0])
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 64 || h != 64 {
		t.Errorf("thumbnail is %dx%d, want 64x64", w, h)
	}

	rt, err := e.st.Libraries.Runtime(ctx, id)
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if rt.Count() != 12 {
		t.Errorf("runtime count = %d, want 12", rt.Count())
	}
}

func TestIndexRejectsTooFewTiles(t *testing.T) {
	e := newEnv(t, testConfig())
	if err := e.st.Sessions.Touch(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}

	entries := validEntries(t, 5)
	for i := 0; i < 20; i++ {
		entries = append(entries, zipEntry{
			name: fmt.Sprintf("broken_%02d.jpg", i),
			data: []byte("not an image at all"),
		})
	}

	id, _ := e.startLibrary(t, "s1", entries)
	l := waitLibrary(t, e.st, id)

	if l.Status != model.StatusError {
		t.Fatalf("status = %s, want error", l.Status)
	}
	if !strings.Contains(l.Message, "minimum") {
		t.Errorf("message %q does not explain the minimum", l.Message)
	}
}

func TestIndexSkipsUnsafeAndForeignEntries(t *testing.T) {
	e := newEnv(t, testConfig())
	if err := e.st.Sessions.Touch(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}

	entries := validEntries(t, 10)
	entries = append(entries,
		zipEntry{name: "../evil.jpg", data: tileJPEG(t, 1, 2, 3)},
		zipEntry{name: "/abs.jpg", data: tileJPEG(t, 4, 5, 6)},
		zipEntry{name: "sub/../up.jpg", data: tileJPEG(t, 7, 8, 9)},
		zipEntry{name: "readme.txt", data: []byte("hello")},
		zipEntry{name: "noext", data: tileJPEG(t, 10, 11, 12)},
	)

	id, _ := e.startLibrary(t, "s1", entries)
	l := waitLibrary(t, e.st, id)

	if l.Status != model.StatusReady {
		t.Fatalf("status = %s (%s), want ready", l.Status, l.Message)
	}
	if l.Count != 10 {
		t.Errorf("count = %d, want 10 safe image entries", l.Count)
	}
}

func TestIndexTruncatesOversizedArchive(t *testing.T) {
	cfg := testConfig()
	cfg.MaxArchiveFiles = 12
	e := newEnv(t, cfg)
	if err := e.st.Sessions.Touch(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}

	id, _ := e.startLibrary(t, "s1", validEntries(t, 20))
	l := waitLibrary(t, e.st, id)

	if l.Status != model.StatusReady {
		t.Fatalf("status = %s (%s), want ready", l.Status, l.Message)
	}
	if l.Count != 12 {
		t.Errorf("count = %d, want the first 12 entries only", l.Count)
	}
}

func TestIndexSkipsOversizedEntries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFileBytes = 64
	e := newEnv(t, cfg)
	if err := e.st.Sessions.Touch(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}

	id, _ := e.startLibrary(t, "s1", validEntries(t, 12))
	l := waitLibrary(t, e.st, id)

	// Every entry exceeds the per-file cap, so none survive.
	if l.Status != model.StatusError {
		t.Fatalf("status = %s, want error", l.Status)
	}
}

func TestIndexAbortsWhenSessionGone(t *testing.T) {
	e := newEnv(t, testConfig())

	// No session record exists, so the first entry boundary aborts the run.
	id, zipPath := e.startLibrary(t, "ghost", validEntries(t, 12))

	deadline := time.Now().Add(15 * time.Second)
	for {
		if _, err := os.Stat(zipPath); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("archive never cleaned up")
		}
		time.Sleep(20 * time.Millisecond)
	}

	l, err := e.st.Libraries.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != model.StatusProcessing {
		t.Fatalf("status = %s, want processing left as-is after silent abort", l.Status)
	}
	if l.Count != 0 {
		t.Fatalf("count = %d, want 0", l.Count)
	}
}
