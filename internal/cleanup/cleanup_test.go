package cleanup_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pixmo/internal/cleanup"
	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/store"
	"github.com/aliskhannn/pixmo/internal/store/storetest"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	files := &storetest.Files{}
	st, repos := storetest.NewStore(files, 8)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repos.Sessions.Touch(ctx, "idle", now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := repos.Sessions.Touch(ctx, "active", now); err != nil {
		t.Fatal(err)
	}

	target := model.Target{ID: uuid.New(), SessionID: "idle"}
	if err := st.Targets.Create(ctx, target); err != nil {
		t.Fatal(err)
	}

	sw := cleanup.New(st, 15*time.Minute, time.Minute)
	n, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}

	if ok, _ := st.Sessions.Exists(ctx, "idle"); ok {
		t.Error("idle session survived the sweep")
	}
	if ok, _ := st.Sessions.Exists(ctx, "active"); !ok {
		t.Error("active session was swept")
	}
	if _, err := st.Targets.Get(ctx, target.ID); !errors.Is(err, store.ErrTargetNotFound) {
		t.Errorf("idle session's target survived: %v", err)
	}
	if len(files.TargetDirs) != 1 {
		t.Errorf("target files not removed: %v", files.TargetDirs)
	}
}

func TestSweepNothingExpired(t *testing.T) {
	st, repos := storetest.NewStore(&storetest.Files{}, 8)
	ctx := context.Background()

	if err := repos.Sessions.Touch(ctx, "active", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	sw := cleanup.New(st, 15*time.Minute, time.Minute)
	n, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("swept %d sessions, want 0", n)
	}
}
