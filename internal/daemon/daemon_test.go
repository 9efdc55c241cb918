package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/allaspectsdev/resolvr/internal/cache"
	"github.com/allaspectsdev/resolvr/internal/config"
	"github.com/allaspectsdev/resolvr/internal/format"
	"github.com/allaspectsdev/resolvr/internal/service"
	"github.com/allaspectsdev/resolvr/internal/testutil"
)

func resolveTitle(t *testing.T, svc *service.Service) format.Output {
	t.Helper()
	resp, err := svc.Resolve(context.Background(), service.Request{Scope: "root", Request: "title", Text: "x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return resp.Output
}

func TestRun_WatchesConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, cfgPath := testutil.LoadConfig(t, testutil.TitleConfig("bold"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan *service.Service, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg, Options{
			ConfigPath:    cfgPath,
			DataDir:       dir,
			StatsInterval: 20 * time.Millisecond,
			OnReady:       func(s *service.Service) { ready <- s },
		})
	}()

	var svc *service.Service
	select {
	case svc = <-ready:
	case err := <-errCh:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run")
	}

	if !IsRunning(dir) {
		t.Error("PID file should name this process while running")
	}
	if got := resolveTitle(t, svc); got != "**x**" {
		t.Fatalf("before reload: got %q", got)
	}

	testutil.WriteFile(t, filepath.Dir(cfgPath), filepath.Base(cfgPath), testutil.TitleConfig("italic"))
	deadline := time.Now().Add(5 * time.Second)
	for resolveTitle(t, svc) != "_x_" {
		if time.Now().After(deadline) {
			t.Fatal("config change was not applied")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if _, err := os.Stat(filepath.Join(dir, pidFilename)); !os.IsNotExist(err) {
		t.Error("PID file should be removed on shutdown")
	}
	snap, err := ReadSnapshot(dir)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snap.PID != os.Getpid() || len(snap.Scopes) != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Stats == nil || snap.Stats.Resolutions == 0 {
		t.Errorf("snapshot should count resolutions: %+v", snap.Stats)
	}
	prom, err := os.ReadFile(filepath.Join(dir, metricsFilename))
	if err != nil {
		t.Fatalf("reading metrics file: %v", err)
	}
	if !strings.Contains(string(prom), "resolvr_resolutions_total") {
		t.Errorf("metrics file missing counters:\n%s", prom)
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, pidFilename, strconv.Itoa(os.Getpid()))

	cfg := testutil.NewTestConfig(t)
	err := Run(context.Background(), cfg, Options{DataDir: dir})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestRun_InvalidScopes(t *testing.T) {
	cfg := testutil.NewTestConfig(t)
	cfg.Scopes[0].Middleware[0].Name = "nope"

	dir := t.TempDir()
	if err := Run(context.Background(), cfg, Options{DataDir: dir}); err == nil {
		t.Fatal("expected error for unknown middleware")
	}
	if IsRunning(dir) {
		t.Error("PID file should not be left behind")
	}
}

func TestPurger_Track(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m1, _ := cache.New(8, time.Second, nil)
	m2, _ := cache.New(8, time.Second, nil)
	p := &purger{}

	p.track(ctx, m1, config.CacheConfig{Enabled: true, TTLSeconds: 1})
	first := p.done
	if first == nil {
		t.Fatal("purger should start for a memo with a TTL")
	}

	p.track(ctx, m1, config.CacheConfig{Enabled: true, TTLSeconds: 1})
	if p.done != first {
		t.Error("tracking the same memo should keep the purger")
	}

	p.track(ctx, m2, config.CacheConfig{Enabled: true})
	select {
	case <-first:
	default:
		t.Error("previous purger should be stopped")
	}
	if p.done != nil {
		t.Error("no purger should run without a TTL")
	}

	p.stop()
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/.resolvr"); got != filepath.Join(home, ".resolvr") {
		t.Errorf("got %q", got)
	}
	if got := expandHome("/tmp/x"); got != "/tmp/x" {
		t.Errorf("got %q", got)
	}
}
