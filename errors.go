package main

import (
	"context"
	"errors"
)

var (
	ErrUsage            = errors.New("usage error")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrPlatform         = errors.New("bluetooth platform error")
	ErrPermissionDenied = errors.New("permission denied")
)

// Process exit codes. Each error class gets its own code so a launcher can
// tell them apart without parsing stderr.
const (
	exitOK               = 0
	exitFailure          = 1
	exitUsage            = 2
	exitDeviceNotFound   = 3
	exitPlatform         = 4
	exitPermissionDenied = 5
)

// ExitCode maps an error returned by a command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrUsage):
		return exitUsage
	case errors.Is(err, ErrDeviceNotFound):
		return exitDeviceNotFound
	case errors.Is(err, ErrPermissionDenied):
		return exitPermissionDenied
	case errors.Is(err, ErrPlatform),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return exitPlatform
	}
	return exitFailure
}
