// Package state holds the bookmarks that bound incremental syncs and persists them
// once a run has emitted everything.
package state

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is the persisted state: stream name to bookmark key to value.
type Document struct {
	Bookmarks map[string]map[string]string `json:"bookmarks" yaml:"bookmarks"`
}

// Bookmark is a single flattened bookmark entry.
type Bookmark struct {
	Stream string `json:"stream" yaml:"stream"`
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
}

// StateWriter receives the STATE message written by Persist.
type StateWriter interface {
	WriteState(value interface{}) error
}

type Manager struct {
	mu         sync.Mutex
	doc        Document
	outputPath string
	persisted  bool
	log        *logrus.Entry
}

// Load reads the state file at path. A missing or empty file yields empty state.
// The manager persists back to path unless WithOutput changes it.
func Load(path string, log *logrus.Entry) (*Manager, error) {
	m := FromDocument(Document{}, log)
	if path == "" {
		return m, nil
	}
	m.outputPath = path

	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		m.log.WithField("path", path).Info("No state file found, starting from empty state.")
		return m, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read state file %q", path)
	}
	if len(b) == 0 {
		return m, nil
	}

	var doc Document
	if err = json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse state file %q", path)
	}
	m.doc = normalize(doc)
	return m, nil
}

// FromDocument returns a manager over an in-memory document with no file behind it.
func FromDocument(doc Document, log *logrus.Entry) *Manager {
	return &Manager{
		doc: normalize(doc),
		log: log.WithField("cmp", "state"),
	}
}

// WithOutput sets the file Persist writes to. An empty path disables the file write.
func (m *Manager) WithOutput(path string) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputPath = path
	return m
}

func normalize(doc Document) Document {
	out := Document{Bookmarks: map[string]map[string]string{}}
	for stream, bookmarks := range doc.Bookmarks {
		out.Bookmarks[stream] = map[string]string{}
		for k, v := range bookmarks {
			out.Bookmarks[stream][k] = v
		}
	}
	return out
}

// GetWatermark returns the timestamp stored under stream and key, or nil if there is none.
func (m *Manager) GetWatermark(stream, key string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.doc.Bookmarks[stream][key]
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "bookmark %s/%s has invalid timestamp %q", stream, key, raw)
	}
	t = t.UTC()
	return &t, nil
}

// SetWatermark stores t under stream and key unless the stored watermark is later.
// It returns the watermark in effect afterwards.
func (m *Manager) SetWatermark(stream, key string, t time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	t = t.UTC().Truncate(time.Second)
	bookmarks, ok := m.doc.Bookmarks[stream]
	if !ok {
		bookmarks = map[string]string{}
		m.doc.Bookmarks[stream] = bookmarks
	}

	if raw, ok := bookmarks[key]; ok {
		if current, err := time.Parse(time.RFC3339, raw); err == nil && current.After(t) {
			m.log.WithFields(logrus.Fields{
				"stream":  stream,
				"key":     key,
				"current": raw,
				"offered": t.Format(time.RFC3339),
			}).Debug("Keeping later watermark.")
			return current.UTC()
		}
	}

	bookmarks[key] = t.Format(time.RFC3339)
	return t
}

// Document returns a copy of the current state.
func (m *Manager) Document() Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return normalize(m.doc)
}

// Bookmarks returns every bookmark sorted by stream and key.
func (m *Manager) Bookmarks() []Bookmark {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Bookmark
	for stream, bookmarks := range m.doc.Bookmarks {
		for k, v := range bookmarks {
			out = append(out, Bookmark{Stream: stream, Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stream != out[j].Stream {
			return out[i].Stream < out[j].Stream
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Persist writes the state file, if the manager has one, and then emits a STATE
// message to sink. It may only be called once per manager.
func (m *Manager) Persist(sink StateWriter) error {
	m.mu.Lock()
	if m.persisted {
		m.mu.Unlock()
		return errors.New("state has already been persisted for this run")
	}
	m.persisted = true
	doc := normalize(m.doc)
	path := m.outputPath
	m.mu.Unlock()

	if path != "" {
		if err := writeFile(path, doc); err != nil {
			return err
		}
		m.log.WithField("path", path).Info("Saved state.")
	}

	if sink != nil {
		if err := sink.WriteState(doc); err != nil {
			return err
		}
	}
	return nil
}

// Persisted reports whether Persist has been called.
func (m *Manager) Persisted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persisted
}

func writeFile(path string, doc Document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrapf(err, "create state directory %q", dir)
	}

	lockPath := path + ".lock"
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return errors.Wrap(err, "error checking state file lock")
	}
	if !locked {
		return errors.Errorf("state file %q is locked by another process", path)
	}
	// The lock file is removed while still held.
	defer func() {
		_ = os.Remove(lockPath)
		_ = fileLock.Unlock()
	}()

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}

	tmp, err := ioutil.TempFile(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp state file")
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp state file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp state file")
	}

	return errors.Wrapf(os.Rename(tmp.Name(), path), "replace state file %q", path)
}
