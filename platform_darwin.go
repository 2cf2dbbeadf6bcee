//go:build darwin

package main

func newPlatformBackend(opts backendOptions) (Backend, error) {
	return newBlueutil(opts.BlueutilCommand)
}
