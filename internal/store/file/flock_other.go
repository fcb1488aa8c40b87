//go:build !unix

package file

import "os"

// Advisory file locking is only wired on unix-like systems; elsewhere the
// in-process mutex is the only serialization, which is fine for a single
// process per host.
func flockExclusive(*os.File) error { return nil }
func flockShared(*os.File) error    { return nil }
func funlock(*os.File)              {}
