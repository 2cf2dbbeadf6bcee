package main

import (
	"context"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
)

// propertyWatch follows PropertiesChanged signals for a single device path.
type propertyWatch struct {
	conn  *dbus.Conn
	path  dbus.ObjectPath
	ch    chan *dbus.Signal
	match []dbus.MatchOption
}

func (b *bluez) watchConnected(path dbus.ObjectPath) *propertyWatch {
	w := &propertyWatch{
		conn: b.conn,
		path: path,
		ch:   make(chan *dbus.Signal, 16),
		match: []dbus.MatchOption{
			dbus.WithMatchObjectPath(path),
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
	}
	if err := b.conn.AddMatchSignal(w.match...); err != nil {
		// Without the match rule wait only ends on ctx; the direct property
		// read in awaitConnected still covers the common case.
		log.WithError(err).Warn("subscribe to property changes")
	}
	b.conn.Signal(w.ch)
	return w
}

func (w *propertyWatch) stop() {
	w.conn.RemoveSignal(w.ch)
	if err := w.conn.RemoveMatchSignal(w.match...); err != nil {
		log.WithError(err).Debug("remove match rule")
	}
}

// wait blocks until a signal reports Connected == want, or ctx ends.
func (w *propertyWatch) wait(ctx context.Context, want bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-w.ch:
			if !ok {
				return context.Canceled
			}
			if connected, ok := connectedChange(sig, w.path); ok && connected == want {
				return nil
			}
		}
	}
}

// connectedChange extracts the new Connected value from a PropertiesChanged
// signal on path. ok is false for any other signal.
func connectedChange(sig *dbus.Signal, path dbus.ObjectPath) (connected, ok bool) {
	if sig == nil || sig.Name != propsSignal || sig.Path != path {
		return false, false
	}
	// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
	if len(sig.Body) < 2 {
		return false, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != deviceIface {
		return false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	connVar, ok := changed["Connected"]
	if !ok {
		return false, false
	}
	connected, ok = connVar.Value().(bool)
	return connected, ok
}
