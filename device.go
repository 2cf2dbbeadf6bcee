package main

import (
	"fmt"
	"strings"
)

// Action is the connection change requested on the command line.
type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
	ActionToggle     Action = "toggle"
)

// ParseAction accepts an action name in any case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionConnect, ActionDisconnect, ActionToggle:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q (want connect, disconnect or toggle)", ErrUsage, s)
}

// Device is a paired accessory as reported by the platform backend.
type Device struct {
	Name      string
	Address   string
	Connected bool
	Paired    bool
	Blocked   bool
}

// normalizeAddress maps "aa-bb-cc-dd-ee-ff" and "AA:BB:CC:DD:EE:FF" to the
// same upper-case, colon-separated form. blueutil prints dashes, BlueZ colons.
func normalizeAddress(addr string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(addr), "-", ":"))
}

func sameAddress(a, b string) bool {
	return normalizeAddress(a) == normalizeAddress(b)
}

// validAddress reports whether addr looks like a six-octet Bluetooth address.
// The octets are not checked for hex digits; blueutil has been seen to print
// addresses that would fail a strict parse.
func validAddress(addr string) bool {
	parts := strings.Split(normalizeAddress(addr), ":")
	if len(parts) != 6 {
		return false
	}
	for _, p := range parts {
		if len(p) != 2 {
			return false
		}
	}
	return true
}
