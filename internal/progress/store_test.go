package progress

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/plugaai/trth_downloader/internal/trth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remote(name, requestID, partType string, size uint64) *trth.RemoteFile {
	return &trth.RemoteFile{Name: name, RequestID: requestID, PartType: partType, Size: size}
}

func sampleFiles() []*trth.RemoteFile {
	return []*trth.RemoteFile{
		remote("x-N000000001-part000.csv", "N000000001", "part000", 100),
		remote("x-N000000002.csv", "N000000002", "part000", 10),
		remote("x-N000000001-report.csv", "N000000001", "report", 50),
	}
}

func TestNewStore(t *testing.T) {
	s := NewStore(sampleFiles())

	p, ok := s.Get("x-N000000001-part000.csv")
	require.True(t, ok)
	assert.Equal(t, Progress{Total: 100, State: Pending}, p)

	_, ok = s.Get("missing.csv")
	assert.False(t, ok)

	assert.Equal(t, Counts{Pending: 3}, s.Counts())
}

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore(sampleFiles())
	name := "x-N000000001-part000.csv"

	require.NoError(t, s.Transition(name, Downloading))
	require.NoError(t, s.Add(name, 40))
	require.NoError(t, s.Add(name, 40))

	p, _ := s.Get(name)
	assert.Equal(t, uint64(80), p.Downloaded)
	assert.InDelta(t, 0.8, p.Fraction(), 0.0001)

	require.NoError(t, s.Transition(name, Complete))

	p, _ = s.Get(name)
	assert.Equal(t, Complete, p.State)
	assert.Equal(t, p.Total, p.Downloaded)
}

func TestStore_AddClampsToTotal(t *testing.T) {
	s := NewStore(sampleFiles())
	name := "x-N000000002.csv"

	require.NoError(t, s.Transition(name, Downloading))
	require.NoError(t, s.Add(name, 7))
	require.NoError(t, s.Add(name, 1<<20))

	p, _ := s.Get(name)
	assert.Equal(t, uint64(10), p.Downloaded)
}

func TestStore_AddRequiresDownloading(t *testing.T) {
	s := NewStore(sampleFiles())

	err := s.Add("x-N000000002.csv", 1)
	require.ErrorIs(t, err, ErrInvalidTransition)

	err = s.Add("missing.csv", 1)
	require.ErrorIs(t, err, ErrUnknownFile)
}

func TestStore_TransitionsAreMonotonic(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		next    State
		wantErr bool
	}{
		{"pending to downloading", nil, Downloading, false},
		{"pending to complete", nil, Complete, false},
		{"pending to pending", nil, Pending, true},
		{"downloading to pending", []State{Downloading}, Pending, true},
		{"downloading to downloading", []State{Downloading}, Downloading, true},
		{"complete to downloading", []State{Downloading, Complete}, Downloading, true},
		{"complete to failed", []State{Downloading, Complete}, Failed, true},
		{"failed to complete", []State{Downloading, Failed}, Complete, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(sampleFiles())
			name := "x-N000000002.csv"

			for _, st := range tt.path {
				require.NoError(t, s.Transition(name, st))
			}

			err := s.Transition(name, tt.next)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestStore_Fail(t *testing.T) {
	s := NewStore(sampleFiles())
	name := "x-N000000001-part000.csv"
	cause := errors.New("connection reset")

	require.NoError(t, s.Transition(name, Downloading))
	require.NoError(t, s.Add(name, 30))
	require.NoError(t, s.Fail(name, cause))

	p, _ := s.Get(name)
	assert.Equal(t, Failed, p.State)
	assert.Equal(t, uint64(30), p.Downloaded)
	assert.ErrorIs(t, p.Err, cause)

	require.ErrorIs(t, s.Fail(name, cause), ErrInvalidTransition)
	require.ErrorIs(t, s.Fail("missing.csv", cause), ErrUnknownFile)
}

func TestStore_Group(t *testing.T) {
	s := NewStore(sampleFiles())

	group := s.Group("N000000001")
	require.Len(t, group, 2)
	assert.Equal(t, "x-N000000001-part000.csv", group[0].File.Name)
	assert.Equal(t, "x-N000000001-report.csv", group[1].File.Name)

	assert.Empty(t, s.Group("N999999999"))
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore(sampleFiles())

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "x-N000000002.csv", snap[1].File.Name)

	require.NoError(t, s.Transition("x-N000000002.csv", Downloading))

	assert.Equal(t, Pending, snap[1].Progress.State)
}

func TestStore_DuplicateNames(t *testing.T) {
	files := append(sampleFiles(), remote("x-N000000002.csv", "N000000002", "part000", 99))
	s := NewStore(files)

	assert.Len(t, s.Snapshot(), 3)

	p, _ := s.Get("x-N000000002.csv")
	assert.Equal(t, uint64(10), p.Total)
}

func TestStore_ConcurrentWritersAndReaders(t *testing.T) {
	var files []*trth.RemoteFile
	for i := range 20 {
		files = append(files, remote(fmt.Sprintf("x-N%09d.csv", i), fmt.Sprintf("N%09d", i), "part000", 1000))
	}

	s := NewStore(files)

	var wg sync.WaitGroup

	for _, f := range files {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, s.Transition(f.Name, Downloading))

			var last uint64

			for range 100 {
				assert.NoError(t, s.Add(f.Name, 10))

				p, _ := s.Get(f.Name)
				assert.GreaterOrEqual(t, p.Downloaded, last)
				assert.LessOrEqual(t, p.Downloaded, p.Total)

				last = p.Downloaded
			}

			assert.NoError(t, s.Transition(f.Name, Complete))
		}()
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		for range 200 {
			for _, e := range s.Snapshot() {
				assert.LessOrEqual(t, e.Progress.Downloaded, e.Progress.Total)
			}
		}
	}()

	wg.Wait()
	<-done

	assert.Equal(t, Counts{Complete: 20}, s.Counts())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "downloading", Downloading.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
