//go:build !unix

package orderstore

import "os"

// Without flock only the in-process mutex serializes appends.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
