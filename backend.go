package main

//go:generate mockgen -source=backend.go -destination=mock_backend_test.go -package=main

import "context"

// Backend is the host platform's Bluetooth control surface.
type Backend interface {
	// Devices returns the paired devices known to the platform.
	Devices(ctx context.Context) ([]Device, error)
	// Connect brings the device up and returns once it reports connected.
	Connect(ctx context.Context, addr string) error
	// Disconnect drops the connection and returns once it reports disconnected.
	Disconnect(ctx context.Context, addr string) error
	Close() error
}

// deviceBlocker is implemented by backends that can stop a device from
// reconnecting on its own.
type deviceBlocker interface {
	Block(ctx context.Context, addr string) error
}
