// Package watcher observes a Claude home for external changes to session
// transcripts, the settings file and the plugin registry, and emits one
// classified event per settled change.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/core/logging"
	"github.com/sirupsen/logrus"
)

// DefaultSettleWindow is how long a file must stay unchanged before a write
// to it is reported.
const DefaultSettleWindow = 100 * time.Millisecond

// Category says which watched subtree an event belongs to. It doubles as the
// event name on the streaming channel.
type Category string

const (
	SessionChange  Category = "session-change"
	SettingsChange Category = "settings-change"
	PluginChange   Category = "plugin-change"
)

// Kind is the mutation observed on a path.
type Kind string

const (
	KindAdd       Kind = "add"
	KindAddDir    Kind = "addDir"
	KindChange    Kind = "change"
	KindUnlink    Kind = "unlink"
	KindUnlinkDir Kind = "unlinkDir"
)

// Event is one classified, settled filesystem change.
type Event struct {
	Category Category
	Kind     Kind
	Path     string
}

// Payload is the JSON body sent to clients for this event.
func (e Event) Payload() map[string]string {
	return map[string]string{"type": string(e.Kind), "path": e.Path}
}

// Paths names what to watch. SessionRoot is watched recursively; the two
// files are watched individually and may not exist yet.
type Paths struct {
	SessionRoot  string
	SettingsFile string
	PluginsFile  string
}

// Options tunes a Watcher.
type Options struct {
	SettleWindow time.Duration
}

type pendingWrite struct {
	event   Event
	size    int64
	modTime time.Time
	gen     uint64
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// Watcher owns a single fsnotify subscription shared by all subscribers.
type Watcher struct {
	paths  Paths
	settle time.Duration
	log    *logrus.Entry

	mu          sync.Mutex
	fsw         *fsnotify.Watcher
	started     bool
	closed      bool
	watched     map[string]bool
	removedDirs map[string]bool
	pending     map[string]*pendingWrite

	subMu   sync.Mutex
	subs    []subscriber
	nextSub uint64

	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
	loopWG    sync.WaitGroup

	// dispatchWG tracks the dispatch goroutine. inCallback is set while it
	// runs subscriber callbacks.
	dispatchWG sync.WaitGroup
	inCallback atomic.Bool
}

// New creates a watcher. Nothing is observed until Start is called.
func New(paths Paths, opts Options) *Watcher {
	if opts.SettleWindow <= 0 {
		opts.SettleWindow = DefaultSettleWindow
	}
	return &Watcher{
		paths: Paths{
			SessionRoot:  filepath.Clean(paths.SessionRoot),
			SettingsFile: filepath.Clean(paths.SettingsFile),
			PluginsFile:  filepath.Clean(paths.PluginsFile),
		},
		settle:      opts.SettleWindow,
		log:         logging.NewLogger("agconsole.watcher"),
		watched:     make(map[string]bool),
		removedDirs: make(map[string]bool),
		pending:     make(map[string]*pendingWrite),
		out:         make(chan Event, 256),
		done:        make(chan struct{}),
	}
}

// Start establishes the watches and begins delivering events. Watches are in
// place when Start returns, and files that already exist are not reported.
// Calling Start on a running watcher does nothing. The watcher stops when ctx
// is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.isDone() {
		return errors.New("watcher is closed")
	}
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if _, err := os.Stat(w.paths.SessionRoot); err == nil {
		w.watchTree(w.paths.SessionRoot, false)
	} else {
		w.addWatch(nearestExisting(w.paths.SessionRoot))
	}
	w.addWatch(nearestExisting(filepath.Dir(w.paths.SettingsFile)))
	w.addWatch(nearestExisting(filepath.Dir(w.paths.PluginsFile)))

	w.started = true
	w.loopWG.Add(1)
	w.dispatchWG.Add(1)
	go w.loop()
	go w.dispatch()
	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.done:
		}
	}()

	w.log.WithFields(logrus.Fields{
		"session_root": w.paths.SessionRoot,
		"watches":      len(w.watched),
	}).Debug("Watcher started")
	return nil
}

// Subscribe registers fn to receive every event, in emission order, on the
// watcher's dispatch goroutine. fn must return promptly: events queue behind
// it. fn may call Close. The returned func unregisters it.
func (w *Watcher) Subscribe(fn func(Event)) (cancel func()) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.nextSub++
	id := w.nextSub
	w.subs = append(w.subs, subscriber{id: id, fn: fn})

	return func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		for i, s := range w.subs {
			if s.id == id {
				w.subs = append(w.subs[:i:i], w.subs[i+1:]...)
				return
			}
		}
	}
}

// Close stops the watcher and waits for its goroutines to exit. When a
// subscriber callback is running, Close does not wait for it to return; the
// dispatch goroutine exits right after. This lets a callback call Close.
func (w *Watcher) Close() error {
	first := false
	w.closeOnce.Do(func() {
		// done is closed before taking mu so an emit blocked on a full
		// queue releases it.
		close(w.done)
		first = true
	})
	if !first {
		return nil
	}

	w.mu.Lock()
	w.closed = true
	fsw := w.fsw
	w.mu.Unlock()

	var err error
	if fsw != nil {
		err = fsw.Close()
	}
	w.loopWG.Wait()
	if !w.inCallback.Load() {
		w.dispatchWG.Wait()
	}
	return err
}

func (w *Watcher) isDone() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *Watcher) loop() {
	defer w.loopWG.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("Filesystem watch error")
		}
	}
}

func (w *Watcher) dispatch() {
	defer w.dispatchWG.Done()
	for {
		select {
		case <-w.done:
			return
		case ev := <-w.out:
			w.subMu.Lock()
			subs := make([]subscriber, len(w.subs))
			copy(subs, w.subs)
			w.subMu.Unlock()

			w.inCallback.Store(true)
			for _, s := range subs {
				if w.isDone() {
					break
				}
				s.fn(ev)
			}
			w.inCallback.Store(false)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	path := filepath.Clean(ev.Name)
	if ignored(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		delete(w.removedDirs, path)
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.watchTree(path, true)
			return
		}
		w.queue(path, KindAdd, info)

	case ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		w.queue(path, KindChange, info)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.handleRemoval(path)
	}
}

// watchTree watches dir and every directory below it that is inside the
// session root or leads towards a watched file. With announce set, the
// directories and files found are reported as new.
func (w *Watcher) watchTree(dir string, announce bool) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ignored(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if !w.inSessionRoot(path) && !w.leadsToTarget(path) {
				return fs.SkipDir
			}
			w.addWatch(path)
			if announce {
				if category, ok := w.classify(path); ok {
					w.emit(Event{Category: category, Kind: KindAddDir, Path: path})
				}
			}
			return nil
		}

		if announce {
			if info, err := d.Info(); err == nil {
				w.queue(path, KindAdd, info)
			}
		}
		return nil
	})
}

func (w *Watcher) addWatch(dir string) {
	if dir == "" || w.watched[dir] {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.log.WithError(err).WithField("dir", dir).Debug("Failed to watch directory")
		return
	}
	w.watched[dir] = true
}

func (w *Watcher) handleRemoval(path string) {
	category, ok := w.classify(path)

	if w.watched[path] {
		prefix := path + string(filepath.Separator)
		for dir := range w.watched {
			if dir == path || strings.HasPrefix(dir, prefix) {
				delete(w.watched, dir)
			}
		}
		for p := range w.pending {
			if strings.HasPrefix(p, prefix) {
				delete(w.pending, p)
			}
		}
		// Anchors that vanished are watched again through their parent.
		if !w.inSessionRoot(path) || path == w.paths.SessionRoot {
			w.addWatch(nearestExisting(filepath.Dir(path)))
		}
		w.removedDirs[path] = true
		if ok {
			w.emit(Event{Category: category, Kind: KindUnlinkDir, Path: path})
		}
		return
	}

	// A deleted directory is reported both by its parent and by itself.
	if w.removedDirs[path] {
		delete(w.removedDirs, path)
		return
	}

	if p, pending := w.pending[path]; pending {
		delete(w.pending, path)
		if p.event.Kind == KindAdd {
			// Created and removed within one settle window: nothing to report.
			return
		}
	}
	if ok {
		w.emit(Event{Category: category, Kind: KindUnlink, Path: path})
	}
}

// queue starts or restarts the settle timer for a written file. A file that
// was added and then written before settling is still reported as added.
func (w *Watcher) queue(path string, kind Kind, info fs.FileInfo) {
	category, ok := w.classify(path)
	if !ok {
		return
	}

	p, exists := w.pending[path]
	if !exists {
		p = &pendingWrite{event: Event{Category: category, Kind: kind, Path: path}}
		w.pending[path] = p
	}
	p.size = info.Size()
	p.modTime = info.ModTime()
	w.arm(p)
}

func (w *Watcher) arm(p *pendingWrite) {
	p.gen++
	gen := p.gen
	path := p.event.Path
	time.AfterFunc(w.settle, func() { w.settleCheck(path, gen) })
}

func (w *Watcher) settleCheck(path string, gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	p, ok := w.pending[path]
	if !ok || p.gen != gen {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// The removal event will report it.
		return
	}
	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		w.arm(p)
		return
	}

	delete(w.pending, path)
	w.emit(p.event)
}

// emit hands an event to the dispatch goroutine. Callers hold w.mu, which
// keeps emission order consistent with observation order.
func (w *Watcher) emit(ev Event) {
	select {
	case w.out <- ev:
	case <-w.done:
	}
}

func (w *Watcher) classify(path string) (Category, bool) {
	switch {
	case w.inSessionRoot(path):
		return SessionChange, true
	case path == w.paths.SettingsFile:
		return SettingsChange, true
	case path == w.paths.PluginsFile:
		return PluginChange, true
	}
	return "", false
}

func (w *Watcher) inSessionRoot(path string) bool {
	root := w.paths.SessionRoot
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// leadsToTarget reports whether dir is an ancestor of something watched.
func (w *Watcher) leadsToTarget(dir string) bool {
	prefix := dir + string(filepath.Separator)
	for _, target := range []string{w.paths.SessionRoot, filepath.Dir(w.paths.SettingsFile), filepath.Dir(w.paths.PluginsFile)} {
		if target == dir || strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}

func ignored(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == "node_modules" {
			return true
		}
	}
	return false
}

func nearestExisting(path string) string {
	for {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return ""
		}
		path = parent
	}
}
