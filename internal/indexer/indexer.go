package indexer

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/aliskhannn/pixmo/internal/config"
	"github.com/aliskhannn/pixmo/internal/mosaic"
	"github.com/aliskhannn/pixmo/internal/storage/file"
	"github.com/aliskhannn/pixmo/internal/store"
)

// minTiles is the smallest library that can produce a usable mosaic.
const minTiles = 10

// progressEvery bounds how often indexing progress hits the state store.
const progressEvery = 200

// Indexer turns uploaded tile archives into ready libraries: normalized
// thumbnails, average colors and the quantized bucket index.
type Indexer struct {
	store   *store.Store
	storage *file.Storage
	cfg     config.Indexer
	sem     *semaphore.Weighted
}

// New creates an Indexer. The semaphore bounds how many indexing and
// compositing tasks run at once and is shared with the job supervisor.
func New(st *store.Store, storage *file.Storage, cfg config.Indexer, sem *semaphore.Weighted) *Indexer {
	return &Indexer{store: st, storage: storage, cfg: cfg, sem: sem}
}

// Run processes the archive for the given library as an independent task.
// It returns immediately; outcome is visible only through the library's
// status, progress and message.
func (ix *Indexer) Run(ctx context.Context, sessionID string, libraryID uuid.UUID, zipPath string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zlog.Logger.Error().Interface("panic", r).Str("library_id", libraryID.String()).Msg("indexing panicked")
				_ = ix.store.Libraries.SetError(context.Background(), libraryID, fmt.Sprintf("internal error: %v", r))
			}
		}()

		if err := ix.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer ix.sem.Release(1)

		ix.process(ctx, sessionID, libraryID, zipPath)
	}()
}

func (ix *Indexer) process(ctx context.Context, sessionID string, libraryID uuid.UUID, zipPath string) {
	// The archive is removed whatever happens; thumbnails are the only
	// artifact a library keeps.
	defer func() {
		if err := ix.storage.Remove(zipPath); err != nil {
			zlog.Logger.Err(err).Str("path", zipPath).Msg("failed to remove archive")
		}
	}()

	if err := ix.store.Libraries.SetProgress(ctx, libraryID, 0, "Reading archive..."); err != nil {
		zlog.Logger.Err(err).Str("library_id", libraryID.String()).Msg("library gone before indexing started")
		return
	}

	lib, processed, err := ix.ingest(ctx, sessionID, libraryID, zipPath)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("library_id", libraryID.String()).Msg("indexing failed")
		_ = ix.store.Libraries.SetError(ctx, libraryID, err.Error())
		return
	}
	if lib == nil {
		// Session or library vanished mid-run; abort without touching status.
		return
	}

	if processed < minTiles {
		msg := fmt.Sprintf("not enough valid tiles: %d (minimum %d)", processed, minTiles)
		_ = ix.store.Libraries.SetError(ctx, libraryID, msg)
		return
	}

	metaPath := ix.storage.MetaPath(libraryID.String())
	if err := mosaic.WriteSnapshot(metaPath, lib.Snapshot()); err != nil {
		_ = ix.store.Libraries.SetError(ctx, libraryID, err.Error())
		return
	}

	if err := ix.store.Libraries.SetReady(ctx, libraryID, processed, metaPath, lib); err != nil {
		zlog.Logger.Err(err).Str("library_id", libraryID.String()).Msg("failed to mark library ready")
		return
	}

	zlog.Logger.Info().
		Str("library_id", libraryID.String()).
		Int("tiles", processed).
		Msg("library ready")
}

// ingest walks the archive in order and builds the runtime library. A nil
// library with nil error means the run was aborted because the owning
// session disappeared or the context was canceled.
func (ix *Indexer) ingest(ctx context.Context, sessionID string, libraryID uuid.UUID, zipPath string) (*mosaic.Library, int, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	entries := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, f)
	}
	// Oversized archives are truncated, not rejected; a partial library is
	// still usable if it clears the minimum tile count.
	if len(entries) > ix.cfg.MaxArchiveFiles {
		entries = entries[:ix.cfg.MaxArchiveFiles]
	}

	thumbsDir, err := ix.storage.ThumbsDir(libraryID.String())
	if err != nil {
		return nil, 0, err
	}

	allowed := ix.cfg.AllowedExtSet()
	lib := mosaic.NewLibrary(ix.cfg.Quant)
	total := len(entries)
	if total == 0 {
		total = 1
	}

	var writtenBytes int64
	processed := 0

	for k, f := range entries {
		// Cooperative cancellation plus a check that the owning session
		// still exists; either aborts silently.
		if ctx.Err() != nil {
			return nil, 0, nil
		}
		if ok, err := ix.store.Sessions.Exists(ctx, sessionID); err == nil && !ok {
			return nil, 0, nil
		}

		if writtenBytes > ix.cfg.MaxThumbsBytes {
			break
		}

		name := strings.ReplaceAll(f.Name, `\`, "/")
		if !safeRelativePath(name) {
			continue
		}
		if !allowed[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if f.UncompressedSize64 > uint64(ix.cfg.MaxFileBytes) {
			continue
		}

		thumb, ok := ix.normalizeEntry(f)
		if !ok {
			continue
		}

		outPath := filepath.Join(thumbsDir, fmt.Sprintf("t_%07d.jpg", processed))
		if err := imaging.Save(thumb, outPath, imaging.JPEGQuality(85)); err != nil {
			zlog.Logger.Warn().Err(err).Str("path", outPath).Msg("failed to save thumbnail")
			continue
		}
		if fi, err := os.Stat(outPath); err == nil {
			writtenBytes += fi.Size()
		}

		lib.Append(outPath, mosaic.AverageColor(thumb))
		processed++

		if k%progressEvery == 0 {
			prog := (k + 1) * 100 / total
			_ = ix.store.Libraries.SetProgress(ctx, libraryID, prog, "Processing...")
		}
	}

	return lib, processed, nil
}

// normalizeEntry decodes one archive entry and normalizes it to the fixed
// square thumbnail size. Undecodable entries are skipped, never fatal.
func (ix *Indexer) normalizeEntry(f *zip.File) (*image.NRGBA, bool) {
	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	data, err := io.ReadAll(io.LimitReader(rc, ix.cfg.MaxFileBytes+1))
	rc.Close()
	if err != nil || int64(len(data)) > ix.cfg.MaxFileBytes {
		return nil, false
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}

	// Fit within the square first, then stretch to the exact size so every
	// tile has identical dimensions.
	size := ix.cfg.ThumbSize
	fitted := imaging.Fit(img, size, size, imaging.Lanczos)
	return imaging.Resize(fitted, size, size, imaging.Lanczos), true
}

// safeRelativePath rejects absolute entries and any path segment escaping
// the archive root.
func safeRelativePath(name string) bool {
	if strings.HasPrefix(name, "/") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
