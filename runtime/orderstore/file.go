package orderstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/order"
)

// DefaultFilePath is where orders land unless configured otherwise.
const DefaultFilePath = "orders.json"

const filePerm = 0o644

// FileStore appends JSON lines to a shared file.
//
// Within a process a mutex serializes appends; across processes an
// exclusive flock is held for the duration of each write. A record is
// always emitted with one write call so a reader never sees half a line
// from a live writer. A failed write is truncated away; if that fails too
// the next record starts on a fresh line.
type FileStore struct {
	path  string
	fsync bool

	mu     sync.Mutex
	f      *os.File
	closed bool
	torn   bool

	write    func([]byte) (int, error)
	truncate func(size int64) error
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFsync makes every append wait for the data to reach stable storage.
func WithFsync(enabled bool) FileOption {
	return func(s *FileStore) {
		s.fsync = enabled
	}
}

// OpenFileStore opens (creating if needed) the order log at path.
func OpenFileStore(path string, opts ...FileOption) (*FileStore, error) {
	if path == "" {
		path = DefaultFilePath
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm) // #nosec G304 -- operator-configured path
	if err != nil {
		return nil, fmt.Errorf("opening order log %s: %w", path, err)
	}

	s := &FileStore{path: path, f: f, write: f.Write, truncate: f.Truncate}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the log location.
func (s *FileStore) Path() string {
	return s.path
}

// Backend returns "file".
func (s *FileStore) Backend() string {
	return BackendFile
}

// Append writes o as one line.
func (s *FileStore) Append(ctx context.Context, o order.ConfirmedOrder) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, writeErr(BackendFile, err)
	}
	line, err := encode(o)
	if err != nil {
		return Ack{}, writeErr(BackendFile, fmt.Errorf("encoding order: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Ack{}, writeErr(BackendFile, ErrStoreClosed)
	}

	offset, err := s.appendLocked(line)
	if err != nil {
		return Ack{}, writeErr(BackendFile, err)
	}

	return Ack{
		Backend: BackendFile,
		Ref:     s.path + ":" + strconv.FormatInt(offset, 10),
		At:      time.Now(),
	}, nil
}

// appendLocked writes line at the end of the log and returns the offset the
// record starts at.
func (s *FileStore) appendLocked(line []byte) (offset int64, err error) {
	if err := lockFile(s.f); err != nil {
		return 0, fmt.Errorf("locking order log: %w", err)
	}
	defer func() {
		if uerr := unlockFile(s.f); uerr != nil && err == nil {
			err = fmt.Errorf("unlocking order log: %w", uerr)
		}
	}()

	start, err := s.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("locating end of order log: %w", err)
	}
	offset = start
	if s.torn {
		line = append([]byte{'\n'}, line...)
		offset++
	}

	n, err := s.write(line)
	if err == nil && n != len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if n > 0 {
			s.discardPartial(start)
		}
		return 0, err
	}
	s.torn = false

	if s.fsync {
		if err := s.f.Sync(); err != nil {
			return 0, fmt.Errorf("syncing order log: %w", err)
		}
	}
	return offset, nil
}

// discardPartial cuts a half-written record off the log. Callers hold mu
// and the file lock.
func (s *FileStore) discardPartial(start int64) {
	if err := s.truncate(start); err != nil {
		s.torn = true
	}
}

// Close closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

// ReadFile returns every order recorded at path, oldest first. A missing
// file holds no orders.
func ReadFile(path string) ([]order.ConfirmedOrder, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-configured path
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var orders []order.ConfirmedOrder
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var o order.ConfirmedOrder
		if err := json.Unmarshal(scanner.Bytes(), &o); err != nil {
			return orders, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		orders = append(orders, o)
	}
	return orders, scanner.Err()
}
