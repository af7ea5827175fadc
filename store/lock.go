package store

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	lockAttempts   = 25
	lockBackoffMin = 5 * time.Millisecond
	lockBackoffMax = 100 * time.Millisecond
)

// lock acquires the store's sidecar lock file, exclusive for writers and
// shared for readers. Acquisition is non-blocking with backoff so a wedged
// peer surfaces as ErrContention instead of hanging a build forever.
// The returned function releases the lock and must always be called.
func (s *Store) lock(exclusive bool) (func(), error) {
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open store lock file: %w", err)
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}

	backoff := lockBackoffMin
	for attempt := 0; attempt < lockAttempts; attempt++ {
		err = unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return func() {
				_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
				_ = f.Close()
			}, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, fmt.Errorf("failed to lock result store: %w", err)
		}

		s.logger.Debug().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Result store locked, retrying")

		time.Sleep(backoff)
		backoff *= 2
		if backoff > lockBackoffMax {
			backoff = lockBackoffMax
		}
	}

	f.Close()
	return nil, fmt.Errorf("%w: %s", ErrContention, s.path)
}
