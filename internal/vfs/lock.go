package vfs

import (
	"fmt"
	"os"
)

// fileLock is a portable advisory lock implemented as an exclusively
// created marker file, released by deleting it. This is enough to enforce
// the single-writer-per-generation discipline (a generation's temp
// directory is claimed by exactly one WriterHandle at a time); it is not
// an OS-level flock and does not protect against a process crash leaving
// the marker behind; nothing in this module removes such a stale marker.
type fileLock struct {
	path string
}

func newExclusiveLock(name string) (*fileLock, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("vfs: lock %s: %w", name, err)
	}
	_ = f.Close()
	return &fileLock{path: name}, nil
}

func (l *fileLock) Close() error {
	return os.Remove(l.path)
}
