// Package logstream makes one pathname look like one perpetual source of
// log lines, even though the underlying file may be rotated or truncated by
// another process. Adapted from driver/log/tailer/logstream in the teacher
// repo, itself adapted from https://github.com/google/mtail/tree/main/internal,
// but reshaped from mtail's goroutine-push model into a pull model: a
// Detector (internal/tailer) owns the single blocking-I/O loop and calls
// Next to fetch one outcome at a time, matching this spec's one-thread-per-
// source contract.
package logstream

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// defaultReadBufferSize is the size of the scratch buffer passed to each
// raw Read call.
const defaultReadBufferSize = 4096

// EventKind tags the outcome of a single call to FileStream.Next.
type EventKind int

const (
	// NewLine means Line holds a complete, CR/LF-stripped line.
	NewLine EventKind = iota
	// EndOfFile means no new complete line was available; the caller should
	// sleep for its poll delay and call Next again.
	EndOfFile
	// Rotated means the underlying file shrank since it was last observed;
	// FileStream has already reopened and repositioned at the new file's
	// end, so the caller only needs to continue polling.
	Rotated
)

// Event is the result of one FileStream.Next call.
type Event struct {
	Kind EventKind
	Line string // populated only when Kind == NewLine
}

// FileStream streams lines from a regular file that is appended to by
// another process and may be rotated (replaced) or truncated by that (or
// yet another) process. Rotation is detected purely by a length decrease
// between two consecutive stats (see Next), per this spec's deliberately
// simple length-shrink-only policy: an in-place truncate-then-fast-regrow
// within one poll interval can lose the truncation signal, which is an
// accepted limitation, not a bug.
type FileStream struct {
	pathname     string
	file         *os.File
	buf          []byte        // scratch space for raw Read calls
	partial      *bytes.Buffer // bytes accumulated since the last newline
	lastKnownLen int64
}

// Open opens pathname, seeks to its current end (pre-existing content is
// never read — this is a hard requirement, not an optimization), and
// records its length.
func Open(pathname string) (*FileStream, error) {
	f, fi, err := openAtEnd(pathname)
	if err != nil {
		return nil, err
	}
	return &FileStream{
		pathname:     pathname,
		file:         f,
		buf:          make([]byte, defaultReadBufferSize),
		partial:      bytes.NewBuffer(nil),
		lastKnownLen: fi.Size(),
	}, nil
}

func openAtEnd(pathname string) (*os.File, os.FileInfo, error) {
	f, err := os.OpenFile(pathname, os.O_RDONLY, 0o600)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening source file")
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrap(err, "statting source file")
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrap(err, "seeking to end of source file")
	}

	return f, fi, nil
}

// Close releases the underlying file handle.
func (fs *FileStream) Close() error {
	return fs.file.Close()
}

// Next reads as many bytes as are currently available. If they complete at
// least one line, the first completed line is returned as NewLine and any
// remainder stays buffered for the next call. If no newline was completed,
// Next reports EndOfFile; regular files return EOF immediately rather than
// blocking, so the caller (Detector) owns all sleeping between polls.
func (fs *FileStream) Next() (Event, error) {
	for {
		if line, ok := fs.takeBufferedLine(); ok {
			return Event{Kind: NewLine, Line: line}, nil
		}

		n, err := fs.file.Read(fs.buf)
		if n > 0 {
			fs.partial.Write(fs.buf[:n])
			if line, ok := fs.takeBufferedLine(); ok {
				return Event{Kind: NewLine, Line: line}, nil
			}
		}

		if err == nil {
			continue
		}
		if err != io.EOF {
			return Event{}, errors.Wrap(err, "reading source file")
		}

		return fs.handleEOF()
	}
}

// takeBufferedLine extracts one complete, CR/LF-stripped line from the
// front of the partial buffer, if one is present.
func (fs *FileStream) takeBufferedLine() (string, bool) {
	b := fs.partial.Bytes()
	idx := bytes.IndexByte(b, '\n')
	if idx < 0 {
		return "", false
	}
	line := make([]byte, idx)
	copy(line, b[:idx])
	fs.partial.Next(idx + 1)
	return stripCRLF(string(line)), true
}

// handleEOF is reached when a read returned no new bytes and no complete
// line is buffered: check whether the file has shrunk (rotation) or simply
// has nothing new to offer yet.
func (fs *FileStream) handleEOF() (Event, error) {
	fi, err := os.Stat(fs.pathname)
	if err != nil {
		return Event{}, errors.Wrap(err, "statting source file")
	}

	if fi.Size() < fs.lastKnownLen {
		if err := fs.reopen(); err != nil {
			return Event{}, err
		}
		return Event{Kind: Rotated}, nil
	}

	fs.lastKnownLen = fi.Size()
	return Event{Kind: EndOfFile}, nil
}

// reopen closes the current handle, opens the (new) file at pathname, and
// positions at its end; pre-existing content in the rotated-in file is
// never replayed. Any unterminated partial line from the old file is
// discarded, matching mtail's "about to lose remaining data" truncate path.
func (fs *FileStream) reopen() error {
	_ = fs.file.Close()

	f, fi, err := openAtEnd(fs.pathname)
	if err != nil {
		return errors.Wrap(err, "reopening rotated source file")
	}

	fs.file = f
	fs.partial.Reset()
	fs.lastKnownLen = fi.Size()
	return nil
}

func stripCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
