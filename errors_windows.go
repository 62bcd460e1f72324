//go:build windows

package hnmp

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// isRefused reports whether a dial error means the remote actively refused us.
// Winsock reports WSAECONNREFUSED, which the syscall package does not map
// to ECONNREFUSED.
func isRefused(err error) bool {
	return errors.Is(err, windows.WSAECONNREFUSED) || errors.Is(err, syscall.ECONNREFUSED)
}
