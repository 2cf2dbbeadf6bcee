//go:build !linux && !darwin

package main

import (
	"fmt"
	"runtime"
)

func newPlatformBackend(backendOptions) (Backend, error) {
	return nil, fmt.Errorf("%w: unsupported platform %s", ErrPlatform, runtime.GOOS)
}
