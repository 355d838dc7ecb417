package supervisor_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/mosaic"
	"github.com/aliskhannn/pixmo/internal/storage/file"
	"github.com/aliskhannn/pixmo/internal/store"
	"github.com/aliskhannn/pixmo/internal/store/storetest"
	"github.com/aliskhannn/pixmo/internal/supervisor"
)

const thumbSize = 64

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

type env struct {
	st      *store.Store
	repos   *storetest.Repos
	storage *file.Storage
	sup     *supervisor.Supervisor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	storage, err := file.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	st, repos := storetest.NewStore(storage, 8)
	return &env{
		st:      st,
		repos:   repos,
		storage: storage,
		sup:     supervisor.New(st, storage, semaphore.NewWeighted(2), thumbSize),
	}
}

// newTarget stores a real 96x64 image and its record for the session.
func (e *env) newTarget(t *testing.T, sessionID string) model.Target {
	t.Helper()

	dc := gg.NewContext(96, 64)
	dc.SetRGB255(40, 90, 160)
	dc.Clear()
	dc.SetRGB255(220, 180, 60)
	dc.DrawCircle(48, 32, 20)
	dc.Fill()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dc.Image(), imaging.PNG); err != nil {
		t.Fatalf("encode target: %v", err)
	}

	id := uuid.New()
	path, err := e.storage.SaveTarget(id.String(), ".png", &buf)
	if err != nil {
		t.Fatalf("save target: %v", err)
	}

	target := model.Target{
		ID:        id,
		SessionID: sessionID,
		Name:      "target.png",
		Path:      path,
		Width:     96,
		Height:    64,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.st.Targets.Create(context.Background(), target); err != nil {
		t.Fatalf("create target: %v", err)
	}
	return target
}

// newReadyLibrary writes real thumbnails and a snapshot to disk but seeds the
// record straight into the repository, so the first job has to rehydrate the
// runtime from the snapshot.
func (e *env) newReadyLibrary(t *testing.T, sessionID string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	thumbsDir, err := e.storage.ThumbsDir(id.String())
	if err != nil {
		t.Fatalf("thumbs dir: %v", err)
	}

	lib := mosaic.NewLibrary(8)
	for i := 0; i < 12; i++ {
		c := color.NRGBA{R: uint8(i * 20), G: uint8(255 - i*20), B: uint8(80 + i*10), A: 255}
		thumb := imaging.New(thumbSize, thumbSize, c)
		path := filepath.Join(thumbsDir, fmt.Sprintf("t_%07d.jpg", i))
		if err := imaging.Save(thumb, path, imaging.JPEGQuality(85)); err != nil {
			t.Fatalf("save thumb: %v", err)
		}
		lib.Append(path, mosaic.AverageColor(thumb))
	}

	metaPath := e.storage.MetaPath(id.String())
	if err := mosaic.WriteSnapshot(metaPath, lib.Snapshot()); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	e.repos.Libraries.Put(model.Library{
		ID:        id,
		SessionID: sessionID,
		Name:      "library",
		Status:    model.StatusReady,
		Progress:  100,
		Count:     12,
		MetaPath:  metaPath,
		CreatedAt: time.Now().UTC(),
	})
	return id
}

func validParams() model.JobParams {
	return model.JobParams{CellSize: 32, RepeatWindow: 30, ColorStrength: 0.35}
}

func waitJob(t *testing.T, st *store.Store, id uuid.UUID) model.Job {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		j, err := st.Jobs.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if model.IsTerminal(j.Status) {
			return j
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return model.Job{}
}

func TestSubmitRejectsUnreadyLibrary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	target := e.newTarget(t, "s1")

	libID := uuid.New()
	e.repos.Libraries.Put(model.Library{
		ID:        libID,
		SessionID: "s1",
		Status:    model.StatusProcessing,
	})

	_, err := e.sup.Submit(ctx, "s1", target.ID, libID, validParams())
	if !errors.Is(err, supervisor.ErrLibraryNotReady) {
		t.Fatalf("Submit against processing library: got %v, want ErrLibraryNotReady", err)
	}
	if e.repos.Jobs.Len() != 0 {
		t.Error("rejected submission still created a job record")
	}
}

func TestSubmitValidatesParams(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	target := e.newTarget(t, "s1")
	libID := e.newReadyLibrary(t, "s1")

	cases := []struct {
		name   string
		mutate func(*model.JobParams)
	}{
		{"cell size too small", func(p *model.JobParams) { p.CellSize = 4 }},
		{"cell size too large", func(p *model.JobParams) { p.CellSize = 300 }},
		{"negative repeat window", func(p *model.JobParams) { p.RepeatWindow = -1 }},
		{"repeat window too large", func(p *model.JobParams) { p.RepeatWindow = 501 }},
		{"color strength above one", func(p *model.JobParams) { p.ColorStrength = 1.5 }},
		{"negative overlay strength", func(p *model.JobParams) { p.OverlayStrength = -0.1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			if _, err := e.sup.Submit(ctx, "s1", target.ID, libID, p); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if e.repos.Jobs.Len() != 0 {
		t.Error("rejected submissions created job records")
	}
}

func TestSubmitEnforcesOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	foreignTarget := e.newTarget(t, "other")
	ownTarget := e.newTarget(t, "s1")
	foreignLib := e.newReadyLibrary(t, "other")

	if _, err := e.sup.Submit(ctx, "s1", foreignTarget.ID, foreignLib, validParams()); !errors.Is(err, store.ErrTargetNotFound) {
		t.Errorf("foreign target: got %v, want ErrTargetNotFound", err)
	}
	if _, err := e.sup.Submit(ctx, "s1", ownTarget.ID, foreignLib, validParams()); !errors.Is(err, store.ErrLibraryNotFound) {
		t.Errorf("foreign library: got %v, want ErrLibraryNotFound", err)
	}
	if e.repos.Jobs.Len() != 0 {
		t.Error("rejected submissions created job records")
	}
}

func TestJobRunsToCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	target := e.newTarget(t, "s1")
	libID := e.newReadyLibrary(t, "s1")

	jobID, err := e.sup.Submit(ctx, "s1", target.ID, libID, validParams())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	j := waitJob(t, e.st, jobID)
	if j.Status != model.StatusDone {
		t.Fatalf("status = %s (%s), want done", j.Status, j.Message)
	}
	if j.Progress != 100 {
		t.Errorf("progress = %d, want 100", j.Progress)
	}
	if j.ResultPath == "" {
		t.Fatal("done job has no result path")
	}

	img, err := imaging.Open(j.ResultPath)
	if err != nil {
		t.Fatalf("open result: %v", err)
	}
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != target.Width || h != target.Height {
		t.Errorf("result is %dx%d, want %dx%d", w, h, target.Width, target.Height)
	}
}

func TestJobFailsWhenSnapshotMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	target := e.newTarget(t, "s1")
	libID := e.newReadyLibrary(t, "s1")

	// Break the snapshot after the record says ready.
	l, err := e.st.Libraries.Get(ctx, libID)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(l.MetaPath); err != nil {
		t.Fatal(err)
	}

	jobID, err := e.sup.Submit(ctx, "s1", target.ID, libID, validParams())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	j := waitJob(t, e.st, jobID)
	if j.Status != model.StatusError {
		t.Fatalf("status = %s, want error", j.Status)
	}
	if j.Message == "" {
		t.Error("failed job carries no message")
	}
}
