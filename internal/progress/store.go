package progress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/plugaai/trth_downloader/internal/trth"
)

var (
	ErrUnknownFile       = errors.New("file is not tracked")
	ErrInvalidTransition = errors.New("invalid state transition")
)

type State int

const (
	Pending State = iota
	Downloading
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Downloading:
		return "downloading"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Progress is the download state of one file.
type Progress struct {
	Downloaded uint64
	Total      uint64
	State      State
	Err        error
}

// Fraction returns Downloaded/Total, or 1 for an empty file.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}

	return float64(p.Downloaded) / float64(p.Total)
}

// Entry pairs a listed file with a copy of its progress.
type Entry struct {
	File     *trth.RemoteFile
	Progress Progress
}

// Counts tallies entries by state.
type Counts struct {
	Pending     int
	Downloading int
	Complete    int
	Failed      int
}

// Store holds the progress of every listed file. Entries are created
// Pending when the store is built and are never removed.
type Store struct {
	mu      sync.RWMutex
	files   []*trth.RemoteFile
	entries map[string]*Progress
	groups  map[string][]*trth.RemoteFile
}

// NewStore tracks files, keyed by remote name. Duplicate names keep the
// first occurrence.
func NewStore(files []*trth.RemoteFile) *Store {
	s := &Store{
		entries: make(map[string]*Progress, len(files)),
		groups:  make(map[string][]*trth.RemoteFile),
	}

	for _, f := range files {
		if _, ok := s.entries[f.Name]; ok {
			continue
		}

		s.files = append(s.files, f)
		s.entries[f.Name] = &Progress{Total: f.Size, State: Pending}
		s.groups[f.RequestID] = append(s.groups[f.RequestID], f)
	}

	return s
}

func (s *Store) Get(name string) (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.entries[name]
	if !ok {
		return Progress{}, false
	}

	return *p, true
}

// Add records delta more bytes for name. Downloaded never exceeds Total and
// only moves while the file is Downloading.
func (s *Store) Add(name string, delta uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, name)
	}

	if p.State != Downloading {
		return fmt.Errorf("%w: cannot add bytes to %s file %s", ErrInvalidTransition, p.State, name)
	}

	if delta > p.Total-p.Downloaded {
		p.Downloaded = p.Total
	} else {
		p.Downloaded += delta
	}

	return nil
}

// Transition moves name forward to state. Terminal states are final and
// Complete reconciles Downloaded with Total.
func (s *Store) Transition(name string, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, name)
	}

	if p.State.Terminal() || to <= p.State {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, p.State, to, name)
	}

	p.State = to

	if to == Complete {
		p.Downloaded = p.Total
	}

	return nil
}

// Fail marks name Failed with cause. Downloaded keeps the last value reached.
func (s *Store) Fail(name string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, name)
	}

	if p.State.Terminal() {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, p.State, Failed, name)
	}

	p.State = Failed
	p.Err = cause

	return nil
}

// Snapshot returns a point-in-time copy of every entry in listing order.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, Entry{File: f, Progress: *s.entries[f.Name]})
	}

	return out
}

// Group returns the entries sharing requestID in listing order.
func (s *Store) Group(requestID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.groups[requestID]

	out := make([]Entry, 0, len(members))
	for _, f := range members {
		out = append(out, Entry{File: f, Progress: *s.entries[f.Name]})
	}

	return out
}

func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts

	for _, p := range s.entries {
		switch p.State {
		case Pending:
			c.Pending++
		case Downloading:
			c.Downloading++
		case Complete:
			c.Complete++
		case Failed:
			c.Failed++
		}
	}

	return c
}
