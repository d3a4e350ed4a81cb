package agenterrors

import (
	"errors"
	"io/fs"
	"syscall"
)

// isInterrupted reports whether err is (or wraps) an EINTR-style interrupted
// system call.
func isInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// isWouldBlock reports whether err is (or wraps) an EAGAIN/EWOULDBLOCK-style
// transient unavailability.
func isWouldBlock(err error) bool {
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, syscall.EAGAIN) || errors.Is(pathErr.Err, syscall.EWOULDBLOCK)
	}
	return false
}
