package logfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Validation errors surfaced before any index work begins.
var (
	ErrNotFound       = errors.New("log file not found")
	ErrNotRegular     = errors.New("not a regular file")
	ErrSymlinkRefused = errors.New("symlinks are refused")
	ErrBadExtension   = errors.New("extension is not .log")
	ErrBinaryContent  = errors.New("binary content detected")
	ErrEmptyFile      = errors.New("file is empty")
	ErrPermission     = errors.New("file is not readable")
	ErrTooLarge       = errors.New("file too large to map")
)

const (
	// sniffLen is how much of the file head the binary heuristic inspects.
	sniffLen = 8 * 1024

	// controlByteRatio rejects files whose sniffed head is mostly
	// non-text control bytes even without a NUL.
	controlByteRatio = 0.10
)

// LogFile is a validated, read-only memory mapping of a single log file.
// The mapping is shared read-only across goroutines; nothing ever writes
// through it.
type LogFile struct {
	Path string

	mu     sync.Mutex
	data   mmap.MMap
	size   int64
	closed bool
}

// Open validates path and maps the file read-only.
// Acceptance: regular file, not a symlink, .log extension, non-empty,
// readable, passes the binary-content heuristic over the first 8 KiB.
func Open(path string) (*LogFile, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermission, path)
		}
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymlinkRefused, path)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".log") {
		return nil, fmt.Errorf("%w: %s", ErrBadExtension, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermission, path)
		}
		return nil, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPermission, path)
	}
	if looksBinary(head[:n]) {
		return nil, fmt.Errorf("%w: %s", ErrBinaryContent, path)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTooLarge, err)
	}

	return &LogFile{
		Path: path,
		data: m,
		size: info.Size(),
	}, nil
}

// looksBinary reports whether a sniffed head chunk is non-text.
// A NUL byte is an immediate reject; otherwise a high ratio of control
// bytes (excluding \t \n \r) is.
func looksBinary(head []byte) bool {
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	if len(head) == 0 {
		return false
	}
	control := 0
	for _, b := range head {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return float64(control)/float64(len(head)) > controlByteRatio
}

// Bytes exposes the whole mapping for streaming passes. Read-only; the
// slice is invalid after Close.
func (lf *LogFile) Bytes() []byte {
	return lf.data
}

// Size returns the mapped file length in bytes.
func (lf *LogFile) Size() int64 {
	return lf.size
}

// ReadRange returns the mapped bytes [off, off+n). The slice aliases the
// mapping; callers must not retain it past Close. Out-of-range requests
// are clamped to the file.
func (lf *LogFile) ReadRange(off int64, n int) []byte {
	if off < 0 || off >= lf.size {
		return nil
	}
	end := off + int64(n)
	if end > lf.size {
		end = lf.size
	}
	return lf.data[off:end]
}

// LineAt returns the bytes of the line starting at off, up to but not
// including the next newline, with a trailing \r trimmed. maxBytes guards
// against pathological single mega-lines.
func (lf *LogFile) LineAt(off int64, maxBytes int) []byte {
	if off < 0 || off >= lf.size {
		return nil
	}
	end := lf.size
	if i := bytes.IndexByte(lf.data[off:], '\n'); i >= 0 {
		end = off + int64(i)
	}
	if end-off > int64(maxBytes) {
		end = off + int64(maxBytes)
	}
	b := lf.data[off:end]
	if len(b) > 0 && b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}
	return b
}

// Close releases the mapping. Safe to call more than once; every session
// exit path funnels here.
func (lf *LogFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.closed {
		return nil
	}
	lf.closed = true
	data := lf.data
	lf.data = nil
	if data == nil {
		return nil
	}
	return data.Unmap()
}
