// Package projectindex maintains the set of crowdfunding projects known to
// a server: a directory scanned at startup and watched for changes, each
// "*.lighthouse-project" file indexed by its project id.
package projectindex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/fsnotify/fsnotify"
	"github.com/vinumeris/lighthouse/observable"
	"github.com/vinumeris/lighthouse/project"
)

// FileExtension is the suffix a file must carry to be picked up by a scan.
const FileExtension = ".lighthouse-project"

// Index is the backend's view of every project file found under a single
// directory. Ids is an observable set of every currently-indexed project
// id; callers mirror it onto their own executor rather than reading it
// directly from another goroutine.
type Index struct {
	dir string

	mu    sync.Mutex
	byID  map[chainhash.Hash]*project.Project
	files map[chainhash.Hash]string

	Ids *observable.Set[chainhash.Hash]

	watcher *fsnotify.Watcher
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New builds an index over dir. Scan (and, optionally, Watch) must be
// called before any project can be found.
func New(dir string) *Index {
	return &Index{
		dir:   dir,
		byID:  make(map[chainhash.Hash]*project.Project),
		files: make(map[chainhash.Hash]string),
		Ids:   observable.NewSet[chainhash.Hash](),
		quit:  make(chan struct{}),
	}
}

// Scan walks dir non-recursively, parsing every FileExtension file found
// and indexing it by id. A file that fails to parse is skipped, not fatal,
// since a partially-written or corrupt project file should never bring the
// whole index down.
func (idx *Index) Scan() error {
	entries, err := os.ReadDir(idx.dir)
	if err != nil {
		return fmt.Errorf("projectindex: reading %s: %w", idx.dir, err)
	}

	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), FileExtension) {
			continue
		}
		path := filepath.Join(idx.dir, ent.Name())
		idx.loadFile(path)
	}
	return nil
}

// Watch starts a background goroutine reacting to filesystem changes under
// dir: new or modified project files are (re)loaded, removed ones are
// dropped from the index. Close stops it.
func (idx *Index) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("projectindex: starting watcher: %w", err)
	}
	if err := w.Add(idx.dir); err != nil {
		w.Close()
		return fmt.Errorf("projectindex: watching %s: %w", idx.dir, err)
	}
	idx.watcher = w

	idx.wg.Add(1)
	go idx.watchLoop()
	return nil
}

func (idx *Index) watchLoop() {
	defer idx.wg.Done()
	for {
		select {
		case event, ok := <-idx.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, FileExtension) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				idx.forget(event.Name)
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				idx.loadFile(event.Name)
			}
		case _, ok := <-idx.watcher.Errors:
			if !ok {
				return
			}
		case <-idx.quit:
			return
		}
	}
}

// Close stops the watcher goroutine, if running.
func (idx *Index) Close() error {
	close(idx.quit)
	if idx.watcher != nil {
		idx.watcher.Close()
	}
	idx.wg.Wait()
	return nil
}

func (idx *Index) loadFile(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("projectindex: reading %s: %v", path, err)
		return
	}
	proj, err := project.ParseProject(raw)
	if err != nil {
		log.Warnf("projectindex: parsing %s: %v", path, err)
		return
	}

	id := proj.ID()
	idx.mu.Lock()
	if oldPath, existed := idx.files[id]; existed && oldPath != path {
		delete(idx.byID, id)
	}
	idx.byID[id] = proj
	idx.files[id] = path
	idx.mu.Unlock()

	idx.Ids.Add(id)
	log.Infof("indexed project %v from %s", id, path)
}

func (idx *Index) forget(path string) {
	idx.mu.Lock()
	var found chainhash.Hash
	var ok bool
	for id, p := range idx.files {
		if p == path {
			found, ok = id, true
			break
		}
	}
	if ok {
		delete(idx.byID, found)
		delete(idx.files, found)
	}
	idx.mu.Unlock()

	if ok {
		idx.Ids.Remove(found)
	}
}

// Lookup returns the project indexed under id, if any.
func (idx *Index) Lookup(id chainhash.Hash) (*project.Project, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	p, ok := idx.byID[id]
	return p, ok
}
