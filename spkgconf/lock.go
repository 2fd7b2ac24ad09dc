package spkgconf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Default lock timeouts used by the upper layers.
const (
	InstallLockTimeout = 3600 * time.Second
	BuildLockTimeout   = 7200 * time.Second
)

// LockTimeout is returned when a named lock could not be acquired within
// the deadline.
type LockTimeout struct {
	Name string
}

func (e *LockTimeout) Error() string {
	return fmt.Sprintf("timeout waiting for lock %s", e.Name)
}

// Guard is a held named lock. Locks are advisory flock(2) locks on files
// under the locks directory, so they are released by the kernel if the
// holding process dies.
type Guard struct {
	name string
	f    *os.File
}

// Lock acquires the named exclusive lock, blocking up to timeout. At most
// one holder per name exists across all processes on the host.
func (c *Config) Lock(name string, timeout time.Duration) (*Guard, error) {
	if err := os.MkdirAll(c.Paths.Locks, 0755); err != nil {
		return nil, err
	}

	fn := filepath.Join(c.Paths.Locks, name+".lock")
	f, err := os.OpenFile(fn, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			// note the holder for debugging, content is informational only
			_ = f.Truncate(0)
			fmt.Fprintf(f, "%d\n", os.Getpid())
			return &Guard{name: name, f: f}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			f.Close()
			return nil, err
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, &LockTimeout{Name: name}
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Name returns the lock name.
func (g *Guard) Name() string { return g.name }

// Release drops the lock. Safe to call more than once.
func (g *Guard) Release() {
	if g.f == nil {
		return
	}
	_ = unix.Flock(int(g.f.Fd()), unix.LOCK_UN)
	g.f.Close()
	g.f = nil
}
