package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
)

const (
	busName       = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	deviceIface   = "org.bluez.Device1"
	propsIface    = "org.freedesktop.DBus.Properties"
	propsSignal   = "org.freedesktop.DBus.Properties.PropertiesChanged"
	objectManager = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"

	defaultAdapter = "hci0"
)

// bluezOptions tunes the BlueZ backend from command line flags.
type bluezOptions struct {
	Adapter string // e.g. "hci0"
}

// bluez drives the Linux Bluetooth stack over the system D-Bus.
type bluez struct {
	conn *dbus.Conn
	opts bluezOptions
}

func newBluez(opts bluezOptions) (*bluez, error) {
	if opts.Adapter == "" {
		opts.Adapter = defaultAdapter
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, classifyDBusError(fmt.Errorf("connect to system bus: %w", err))
	}
	// Quick check that BlueZ is on the bus.
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, classifyDBusError(fmt.Errorf("list bus names: %w", err))
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("%w: org.bluez not found on system bus, is bluetooth.service running?", ErrPlatform)
	}
	return &bluez{conn: conn, opts: opts}, nil
}

func (b *bluez) Close() error {
	return b.conn.Close()
}

func (b *bluez) adapterPath() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + b.opts.Adapter)
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter dbus.ObjectPath, addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(normalizeAddress(addr), ":", "_")
	return adapter + "/dev_" + dbus.ObjectPath(escaped)
}

// macFromPath extracts a MAC address from a BlueZ device object path.
func macFromPath(adapter, path dbus.ObjectPath) string {
	s := string(path)
	prefix := string(adapter) + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	return strings.ReplaceAll(s[len(prefix):], "_", ":")
}

// --- property helpers ---

func (b *bluez) getProp(ctx context.Context, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := b.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b *bluez) setProp(ctx context.Context, path dbus.ObjectPath, iface, prop string, val interface{}) error {
	obj := b.conn.Object(busName, path)
	return obj.CallWithContext(ctx, propsIface+".Set", 0, iface, prop, dbus.MakeVariant(val)).Err
}

func (b *bluez) getBool(ctx context.Context, path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := b.getProp(ctx, path, iface, prop)
	if err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}

// --- devices ---

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func (b *bluez) Devices(ctx context.Context) ([]Device, error) {
	var objs managedObjects
	err := b.conn.Object(busName, "/").CallWithContext(ctx, objectManager, 0).Store(&objs)
	if err != nil {
		return nil, classifyDBusError(fmt.Errorf("list devices: %w", err))
	}
	return devicesFromObjects(b.adapterPath(), objs), nil
}

// devicesFromObjects picks the paired Device1 objects below adapter, ordered
// by object path so output is stable between runs.
func devicesFromObjects(adapter dbus.ObjectPath, objs managedObjects) []Device {
	paths := make([]string, 0, len(objs))
	for p := range objs {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)

	var devices []Device
	for _, p := range paths {
		props, ok := objs[dbus.ObjectPath(p)][deviceIface]
		if !ok || macFromPath(adapter, dbus.ObjectPath(p)) == "" {
			continue
		}
		d := Device{
			Name:      variantString(props, "Alias"),
			Address:   variantString(props, "Address"),
			Connected: variantBool(props, "Connected"),
			Paired:    variantBool(props, "Paired"),
			Blocked:   variantBool(props, "Blocked"),
		}
		if d.Name == "" {
			d.Name = variantString(props, "Name")
		}
		if d.Address == "" {
			d.Address = macFromPath(adapter, dbus.ObjectPath(p))
		}
		if !d.Paired {
			continue
		}
		devices = append(devices, d)
	}
	return devices
}

func variantString(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func variantBool(props map[string]dbus.Variant, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

// --- connect / disconnect ---

func (b *bluez) Connect(ctx context.Context, addr string) error {
	path := deviceObjectPath(b.adapterPath(), addr)

	powered, err := b.getBool(ctx, b.adapterPath(), adapterIface, "Powered")
	if err != nil {
		return classifyDBusError(fmt.Errorf("read adapter power: %w", err))
	}
	if !powered {
		log.WithField("adapter", b.opts.Adapter).Info("powering on adapter")
		if err := b.setProp(ctx, b.adapterPath(), adapterIface, "Powered", true); err != nil {
			return classifyDBusError(fmt.Errorf("power on: %w", err))
		}
	}

	blocked, err := b.getBool(ctx, path, deviceIface, "Blocked")
	if err != nil {
		return classifyDBusError(fmt.Errorf("read blocked: %w", err))
	}
	if blocked {
		log.WithField("device", addr).Info("unblocking device")
		if err := b.setProp(ctx, path, deviceIface, "Blocked", false); err != nil {
			return classifyDBusError(fmt.Errorf("unblock: %w", err))
		}
	}

	w := b.watchConnected(path)
	defer w.stop()
	if err := b.conn.Object(busName, path).CallWithContext(ctx, deviceIface+".Connect", 0).Err; err != nil {
		if isAlreadyInState(err, true) {
			log.WithField("device", addr).Debug("bluez reports already connected")
			return nil
		}
		return classifyDBusError(err)
	}
	return b.awaitConnected(ctx, w, path, true)
}

func (b *bluez) Disconnect(ctx context.Context, addr string) error {
	path := deviceObjectPath(b.adapterPath(), addr)

	w := b.watchConnected(path)
	defer w.stop()
	if err := b.conn.Object(busName, path).CallWithContext(ctx, deviceIface+".Disconnect", 0).Err; err != nil {
		if isAlreadyInState(err, false) {
			log.WithField("device", addr).Debug("bluez reports not connected")
			return nil
		}
		return classifyDBusError(err)
	}
	return b.awaitConnected(ctx, w, path, false)
}

// Block sets the device's Blocked property so it cannot reconnect on its own.
func (b *bluez) Block(ctx context.Context, addr string) error {
	path := deviceObjectPath(b.adapterPath(), addr)
	if err := b.setProp(ctx, path, deviceIface, "Blocked", true); err != nil {
		return classifyDBusError(fmt.Errorf("block: %w", err))
	}
	return nil
}

// isAlreadyInState reports whether err is BlueZ refusing a Connect (want
// true) or Disconnect (want false) because the device is already there.
func isAlreadyInState(err error, want bool) bool {
	name := dbusErrorName(err)
	if want {
		return name == "org.bluez.Error.AlreadyConnected"
	}
	return name == "org.bluez.Error.NotConnected"
}

func dbusErrorName(err error) string {
	var de dbus.Error
	var dep *dbus.Error
	switch {
	case errors.As(err, &de):
		return de.Name
	case errors.As(err, &dep) && dep != nil:
		return dep.Name
	}
	return ""
}

// awaitConnected returns once the device's Connected property equals want.
// The property is read once after the method call returns, since BlueZ may
// have emitted the change before anyone was listening.
func (b *bluez) awaitConnected(ctx context.Context, w *propertyWatch, path dbus.ObjectPath, want bool) error {
	connected, err := b.getBool(ctx, path, deviceIface, "Connected")
	if err != nil {
		return classifyDBusError(fmt.Errorf("read connected: %w", err))
	}
	if connected == want {
		return nil
	}
	log.WithFields(log.Fields{"path": path, "want": want}).Debug("waiting for Connected to change")
	if err := w.wait(ctx, want); err != nil {
		return fmt.Errorf("%w: waiting for device: %w", ErrPlatform, err)
	}
	return nil
}

// classifyDBusError maps BlueZ and D-Bus error names onto the error
// taxonomy. Errors that already carry a class pass through unchanged.
func classifyDBusError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPlatform) || errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUsage) {
		return err
	}

	switch dbusErrorName(err) {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.bluez.Error.DoesNotExist":
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	case "org.freedesktop.DBus.Error.AccessDenied",
		"org.bluez.Error.NotAuthorized",
		"org.bluez.Error.NotPermitted",
		"org.bluez.Error.AuthenticationRejected":
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "permission denied") {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrPlatform, err)
}
