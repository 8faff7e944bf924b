//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package headerfs

import "os"

// Platforms without flock semantics get a best-effort no-op; the lock file
// still marks the directory as in use for humans poking around.
func flockExclusive(_ *os.File) error { return nil }

func flockRelease(_ *os.File) error { return nil }
