package main

// DeviceState is the connection state reported by the status command.
type DeviceState string

const (
	StateConnected    DeviceState = "connected"
	StateDisconnected DeviceState = "disconnected"
	StateBlocked      DeviceState = "blocked"
)

// StatusResponse is printed as JSON by the status command.
type StatusResponse struct {
	State  DeviceState `json:"state"`
	Device string      `json:"device"`
	Name   string      `json:"name,omitempty"`
}

func statusOf(d Device) StatusResponse {
	state := StateDisconnected
	switch {
	case d.Connected:
		state = StateConnected
	case d.Blocked:
		state = StateBlocked
	}
	return StatusResponse{State: state, Device: d.Address, Name: d.Name}
}
