package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cmakeperf/cmakeperf/model"
)

func testMeasurement(output string, peak uint64) *model.Measurement {
	start := time.Now()
	return &model.Measurement{
		Command: model.Command{
			Args:   []string{"cc", "-c", "x.c", "-o", output},
			File:   "x.c",
			Output: output,
		},
		StartTime: start,
		EndTime:   start.Add(time.Second),
		Duration:  time.Second,
		PeakRSS:   peak,
		ExitCode:  0,
	}
}

func TestStore_PutAndLoad(t *testing.T) {
	s := New(zerolog.Nop(), filepath.Join(t.TempDir(), "results.json"))

	require.NoError(t, s.Put(testMeasurement("a.o", 100)))
	require.NoError(t, s.Put(testMeasurement("b.o", 200)))

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "a.o", records[0].Key())
	require.Equal(t, uint64(200), records[1].PeakRSS)
}

func TestStore_ReplacesByKey(t *testing.T) {
	s := New(zerolog.Nop(), filepath.Join(t.TempDir(), "results.json"))

	require.NoError(t, s.Put(testMeasurement("a.o", 100)))
	require.NoError(t, s.Put(testMeasurement("a.o", 999)))

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 1, "re-running a command updates its entry")
	require.Equal(t, uint64(999), records[0].PeakRSS)
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := New(zerolog.Nop(), filepath.Join(t.TempDir(), "results.json"))

	records, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	const writers = 50
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// One Store per goroutine, mirroring independent launcher
			// processes sharing a file.
			s := New(zerolog.Nop(), path)
			errs[i] = s.Put(testMeasurement(fmt.Sprintf("obj-%d.o", i), uint64(i)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	records, err := New(zerolog.Nop(), path).Load()
	require.NoError(t, err)
	require.Len(t, records, writers, "no record may be lost or duplicated")

	seen := map[string]bool{}
	for _, r := range records {
		require.False(t, seen[r.Key()], "duplicate key %s", r.Key())
		seen[r.Key()] = true
	}
}

func TestStore_Contention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	// Hold the exclusive lock from outside for the whole retry budget.
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, unix.Flock(int(f.Fd()), unix.LOCK_EX))
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	s := New(zerolog.Nop(), path)
	err = s.Put(testMeasurement("a.o", 1))
	require.ErrorIs(t, err, ErrContention)
}

func TestWriteCSV(t *testing.T) {
	records := []model.Measurement{
		*testMeasurement("a.o", 1500000),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))
	require.Equal(t, "file,max_rss,time\na.o,1500000,1.000\n", buf.String())
}
