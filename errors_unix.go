//go:build !windows

package hnmp

import (
	"syscall"

	"github.com/pkg/errors"
)

// isRefused reports whether a dial error means the remote actively refused us.
func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
