//go:build linux

package main

func newPlatformBackend(opts backendOptions) (Backend, error) {
	return newBluez(bluezOptions{Adapter: opts.Adapter})
}
