package envfile

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"convexpanel-go/internal/constants"
	"convexpanel-go/internal/events"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher publishes an event whenever the project env file changes, so the
// panel re-runs its env-file reconciliation. Editors write via rename, so
// the watch is on the containing directory, filtered by base name.
type Watcher struct {
	path      string
	publisher events.Publisher
	watchOnce sync.Once
	changeCh  chan struct{}
}

// NewWatcher constructs a watcher for the env file at path.
func NewWatcher(path string, publisher events.Publisher) *Watcher {
	return &Watcher{
		path:      filepath.Clean(path),
		publisher: publisher,
		changeCh:  make(chan struct{}, 1),
	}
}

// Start begins watching. Safe to call more than once.
func (w *Watcher) Start(ctx context.Context) {
	if w.path == "" || w.path == "." {
		return
	}
	w.watchOnce.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.WithError(err).Warn("env file watcher: failed to start")
			return
		}
		dir := filepath.Dir(w.path)
		if err := watcher.Add(dir); err != nil {
			log.WithError(err).Warnf("env file watcher: failed to watch %s", dir)
			_ = watcher.Close()
			return
		}
		go w.debounceLoop(ctx)
		go w.watchLoop(ctx, watcher)
		log.Infof("env file watcher: watching %s for changes", w.path)
	})
}

func (w *Watcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	base := filepath.Base(w.path)
	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(evt.Name) == base {
				w.requestPublish()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("env file watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.changeCh:
			if timer == nil {
				timer = time.NewTimer(constants.EnvFileWatchDebounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(constants.EnvFileWatchDebounce)
			}
		case <-timerCh:
			w.publish(ctx)
			timerCh = nil
			timer.Stop()
			timer = nil
		}
	}
}

func (w *Watcher) requestPublish() {
	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}

func (w *Watcher) publish(ctx context.Context) {
	if w.publisher == nil {
		return
	}
	key, err := ReadDeployKey(w.path)
	payload := map[string]any{"path": w.path, "has_key": key != ""}
	if err != nil {
		payload["read_error"] = err.Error()
	}
	w.publisher.Publish(ctx, events.TopicEnvFileChanged, payload, nil)
	log.WithField("path", w.path).Debug("env file change published")
}
