package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// SeedWatcher watches an external seeds.yaml for changes and swaps in a fresh
// immutable snapshot when the file is rewritten. Consumers read the current
// bank through Bank(); a snapshot is never mutated after publication.
type SeedWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	path        string
	bank        []SeedSpec
	onSwap      func([]SeedSpec)
	logger      *zap.Logger
	debounceDur time.Duration
	lastEvent   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewSeedWatcher loads the seed file once and prepares a watcher on its
// directory. onSwap, when non-nil, is invoked with every published snapshot.
func NewSeedWatcher(path string, logger *zap.Logger, onSwap func([]SeedSpec)) (*SeedWatcher, error) {
	bank, err := LoadSeedFile(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedWatcher{
		watcher:     w,
		path:        path,
		bank:        bank,
		onSwap:      onSwap,
		logger:      logger,
		debounceDur: 250 * time.Millisecond, // rapid editor saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Bank returns the current immutable seed snapshot.
func (sw *SeedWatcher) Bank() []SeedSpec {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.bank
}

// Start begins watching. Non-blocking; events are handled in a goroutine
// until Stop is called or ctx is cancelled.
func (sw *SeedWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = true
	sw.mu.Unlock()

	// Watch the directory, not the file: editors replace files by rename.
	if err := sw.watcher.Add(filepath.Dir(sw.path)); err != nil {
		return err
	}

	go sw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (sw *SeedWatcher) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.stopCh)
	<-sw.doneCh
	_ = sw.watcher.Close()
}

func (sw *SeedWatcher) run(ctx context.Context) {
	defer close(sw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopCh:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(sw.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			sw.reload()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			if sw.logger != nil {
				sw.logger.Warn("seed watcher error", zap.Error(err))
			}
		}
	}
}

func (sw *SeedWatcher) reload() {
	sw.mu.Lock()
	if time.Since(sw.lastEvent) < sw.debounceDur {
		sw.mu.Unlock()
		return
	}
	sw.lastEvent = time.Now()
	sw.mu.Unlock()

	bank, err := LoadSeedFile(sw.path)
	if err != nil {
		// Keep the previous snapshot; a half-written or invalid file must
		// never replace a valid bank.
		if sw.logger != nil {
			sw.logger.Warn("seed reload rejected", zap.String("path", sw.path), zap.Error(err))
		}
		return
	}

	sw.mu.Lock()
	sw.bank = bank
	onSwap := sw.onSwap
	sw.mu.Unlock()

	if sw.logger != nil {
		sw.logger.Info("seed bank reloaded", zap.String("path", sw.path), zap.Int("seeds", len(bank)))
	}
	if onSwap != nil {
		onSwap(bank)
	}
}
