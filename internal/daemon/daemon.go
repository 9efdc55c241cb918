// Package daemon runs resolvr in watch mode: a long-lived process that keeps
// the scope tree in sync with the config file.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/resolvr/internal/cache"
	"github.com/allaspectsdev/resolvr/internal/config"
	"github.com/allaspectsdev/resolvr/internal/logging"
	"github.com/allaspectsdev/resolvr/internal/metrics"
	"github.com/allaspectsdev/resolvr/internal/service"
	"github.com/allaspectsdev/resolvr/internal/tracing"
	"github.com/allaspectsdev/resolvr/internal/version"
)

// DefaultDataDir is where watch mode keeps its runtime files.
const DefaultDataDir = "~/.resolvr"

// DefaultStatsInterval is how often watch mode writes its stats snapshot.
const DefaultStatsInterval = 10 * time.Second

const (
	statsFilename   = "stats.json"
	metricsFilename = "metrics.prom"
)

// Options configures Run.
type Options struct {
	// ConfigPath is watched for changes. Empty means the file config.Load
	// found, if any.
	ConfigPath string

	// DataDir defaults to DefaultDataDir.
	DataDir string

	// StatsInterval defaults to DefaultStatsInterval.
	StatsInterval time.Duration

	// OnReady, when set, is called once the service is built.
	OnReady func(*service.Service)
}

// Snapshot is the stats file watch mode maintains for `resolvr status`.
type Snapshot struct {
	PID     int                 `json:"pid"`
	Version string              `json:"version"`
	Updated time.Time           `json:"updated"`
	Scopes  []service.ScopeInfo `json:"scopes"`
	Stats   *metrics.Stats      `json:"stats"`
	Cache   *cache.Stats        `json:"cache,omitempty"`
}

// Run builds the service from cfg, watches the config file and blocks until
// ctx is cancelled or SIGINT/SIGTERM is received.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	logging.Setup(logging.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	dataDir := expandHome(opts.DataDir)
	if dataDir == "" {
		dataDir = expandHome(DefaultDataDir)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	interval := opts.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Msg("resolvr starting")

	// 1. Tracing.
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version.Version,
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				log.Error().Err(err).Msg("tracing shutdown error")
			}
		}()
		log.Info().Str("exporter", cfg.Tracing.Exporter).Msg("tracing enabled")
	}

	// 2. Scope tree.
	collector := metrics.NewCollector()
	svc, err := service.New(cfg, service.WithCollector(collector))
	if err != nil {
		return fmt.Errorf("building scope tree: %w", err)
	}

	// 3. PID file.
	if err := AcquirePID(dataDir); err != nil {
		return err
	}
	defer func() {
		if err := ReleasePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()
	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Memo purger, restarted when a reload replaces the memo.
	p := &purger{}
	p.track(runCtx, svc.Memo(), cfg.Cache)
	defer p.stop()

	// 5. Config watcher.
	configFile := opts.ConfigPath
	if configFile == "" {
		configFile = config.ConfigFilePath()
	}
	if configFile != "" {
		w, err := config.Watch(configFile)
		if err != nil {
			log.Warn().Err(err).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			defer w.Close()
			w.OnChange(func(_, newCfg *config.Config) {
				logging.SetLevel(newCfg.Log.Level)
				if err := svc.Reload(newCfg); err != nil {
					log.Error().Err(err).Msg("scope tree reload failed, keeping previous scopes")
					return
				}
				p.track(runCtx, svc.Memo(), newCfg.Cache)
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	} else {
		log.Info().Msg("no config file found; hot-reload disabled")
	}

	if opts.OnReady != nil {
		opts.OnReady(svc)
	}
	log.Info().Int("scopes", len(svc.Scopes())).Msg("resolvr is watching")

	// 6. Stats snapshots until shutdown.
	statsPath := filepath.Join(dataDir, statsFilename)
	runStats(runCtx, svc, statsPath, interval)

	log.Info().Msg("shutting down")
	if err := writeSnapshot(svc, statsPath); err != nil {
		log.Error().Err(err).Msg("failed to write final stats snapshot")
	}
	log.Info().Msg("resolvr stopped")
	return nil
}

// runStats writes a stats snapshot every interval until ctx is done.
func runStats(ctx context.Context, svc *service.Service, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("stats writer: recovered from panic")
					}
				}()
				if err := writeSnapshot(svc, path); err != nil {
					log.Error().Err(err).Msg("writing stats snapshot failed")
				}
			}()
		}
	}
}

func writeSnapshot(svc *service.Service, path string) error {
	snap := Snapshot{
		PID:     os.Getpid(),
		Version: version.Version,
		Updated: time.Now().UTC(),
		Scopes:  svc.Scopes(),
		Stats:   svc.Collector().Stats(),
	}
	if cs, ok := svc.CacheStats(); ok {
		snap.Cache = &cs
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling stats: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}

	// Prometheus textfile-collector output next to the snapshot.
	return metrics.WriteTextfile(filepath.Join(filepath.Dir(path), metricsFilename), svc.Collector())
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// ReadSnapshot reads the stats snapshot from dataDir.
func ReadSnapshot(dataDir string) (*Snapshot, error) {
	path := filepath.Join(expandHome(dataDir), statsFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stats %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing stats %s: %w", path, err)
	}
	return &snap, nil
}

// purger runs the memo's expiry purger for the current memo.
type purger struct {
	mu     sync.Mutex
	memo   *cache.Memo
	cancel context.CancelFunc
	done   <-chan struct{}
}

// track starts purging m when its entries expire, stopping the purger of a
// previous memo first. Tracking the same memo again is a no-op.
func (p *purger) track(ctx context.Context, m *cache.Memo, cc config.CacheConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m == p.memo {
		return
	}
	p.stopLocked()
	p.memo = m
	if m == nil || cc.TTLSeconds <= 0 {
		return
	}
	pctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = m.StartPurger(pctx, time.Duration(cc.TTLSeconds)*time.Second)
}

func (p *purger) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *purger) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	p.cancel, p.done = nil, nil
}

// Stop reads the PID file and sends SIGTERM to the running watcher.
func Stop(dataDir string) error {
	dataDir = expandHome(dataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("resolvr does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		// Stale PID file; clean it up.
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("resolvr is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to resolvr (PID %d)\n", pid)

	// Wait briefly for the process to exit.
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}
	return nil
}

// Status reports whether watch mode is running and prints its last stats
// snapshot.
func Status(dataDir string) error {
	dataDir = expandHome(dataDir)

	if !IsRunning(dataDir) {
		fmt.Println("resolvr is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("resolvr is running (PID %d)\n", pid)

	snap, err := ReadSnapshot(dataDir)
	if err != nil {
		fmt.Println("  (no stats snapshot yet)")
		return nil
	}

	s := snap.Stats
	fmt.Printf("\n  Uptime:         %s\n", s.Uptime)
	fmt.Printf("  Scopes:         %d\n", len(snap.Scopes))
	fmt.Printf("  Resolutions:    %d\n", s.Resolutions)
	fmt.Printf("  Handled:        %d\n", s.Handled)
	fmt.Printf("  Unhandled:      %d\n", s.Unhandled)
	fmt.Printf("  Fallbacks:      %d\n", s.Fallbacks)
	fmt.Printf("  Failures:       %d\n", s.Failures)
	fmt.Printf("  Compilations:   %d\n", s.Compilations)
	fmt.Printf("  Modified reqs:  %d\n", s.RequestsModified)
	fmt.Printf("  Cache Hit Rate: %.1f%% (%d hits / %d misses)\n", s.CacheHitRate, s.CacheHits, s.CacheMisses)
	fmt.Printf("  Updated:        %s\n", snap.Updated.Format(time.RFC3339))
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
