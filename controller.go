package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

const defaultNameFilter = "airpod"

// Controller applies actions to a single device through a Backend.
type Controller struct {
	backend Backend
	// BlockOnDisconnect blocks the device after a disconnect, including when
	// it was already disconnected.
	BlockOnDisconnect bool
}

func NewController(b Backend) *Controller {
	return &Controller{backend: b}
}

// Result describes what Apply did.
type Result struct {
	Device  Device
	Action  Action // connect or disconnect, never toggle
	Changed bool   // false when the device was already in the wanted state
}

// Lookup finds a paired device by address.
func (c *Controller) Lookup(ctx context.Context, addr string) (Device, error) {
	devices, err := c.backend.Devices(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if sameAddress(d.Address, addr) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: could not find device id '%s'", ErrDeviceNotFound, addr)
}

// Apply moves the device at addr into the state requested by action.
// Asking for the state the device is already in is a successful no-op.
func (c *Controller) Apply(ctx context.Context, action Action, addr string) (Result, error) {
	dev, err := c.Lookup(ctx, addr)
	if err != nil {
		return Result{}, err
	}

	if action == ActionToggle {
		action = ActionConnect
		if dev.Connected {
			action = ActionDisconnect
		}
	}
	res := Result{Device: dev, Action: action}

	switch action {
	case ActionConnect:
		if dev.Connected {
			log.WithField("device", dev.Address).Info("already connected")
			return res, nil
		}
		if err := c.backend.Connect(ctx, dev.Address); err != nil {
			return res, fmt.Errorf("connect %s: %w", dev.Address, err)
		}
		res.Device.Connected = true
	case ActionDisconnect:
		if !dev.Connected {
			log.WithField("device", dev.Address).Info("already disconnected")
			return res, c.block(ctx, &res.Device)
		}
		if err := c.backend.Disconnect(ctx, dev.Address); err != nil {
			return res, fmt.Errorf("disconnect %s: %w", dev.Address, err)
		}
		res.Device.Connected = false
		if err := c.block(ctx, &res.Device); err != nil {
			return res, err
		}
	default:
		return res, fmt.Errorf("%w: unknown action %q", ErrUsage, action)
	}
	res.Changed = true
	log.WithFields(log.Fields{"device": dev.Address, "action": action}).Debug("state changed")
	return res, nil
}

func (c *Controller) block(ctx context.Context, dev *Device) error {
	if !c.BlockOnDisconnect || dev.Blocked {
		return nil
	}
	b, ok := c.backend.(deviceBlocker)
	if !ok {
		log.Warn("blocking is not supported on this platform, ignoring")
		return nil
	}
	log.WithField("device", dev.Address).Info("blocking device")
	if err := b.Block(ctx, dev.Address); err != nil {
		return fmt.Errorf("block %s: %w", dev.Address, err)
	}
	dev.Blocked = true
	return nil
}

// ListOptions selects and orders devices for List.
type ListOptions struct {
	All             bool     // no filtering
	Addresses       []string // keep only these addresses; wins over NameFilter
	NameFilter      string   // case-insensitive substring of the name
	PreviousAddress string   // moved to the top when present
}

// List returns the filtered paired devices, connected ones first and the
// previously used device, if any, at the very top.
func (c *Controller) List(ctx context.Context, opts ListOptions) ([]Device, error) {
	devices, err := c.backend.Devices(ctx)
	if err != nil {
		return nil, err
	}
	devices = filterDevices(devices, opts)

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Connected && !devices[j].Connected
	})
	if opts.PreviousAddress != "" {
		sort.SliceStable(devices, func(i, j int) bool {
			return sameAddress(devices[i].Address, opts.PreviousAddress) &&
				!sameAddress(devices[j].Address, opts.PreviousAddress)
		})
	}
	return devices, nil
}

func filterDevices(devices []Device, opts ListOptions) []Device {
	if opts.All {
		return devices
	}
	var out []Device
	if len(opts.Addresses) > 0 {
		for _, d := range devices {
			for _, a := range opts.Addresses {
				if sameAddress(d.Address, a) {
					out = append(out, d)
					break
				}
			}
		}
		return out
	}
	filter := strings.ToLower(opts.NameFilter)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), filter) {
			out = append(out, d)
		}
	}
	return out
}

// parseDeviceList splits a comma separated address list, dropping blanks.
func parseDeviceList(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
