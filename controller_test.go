package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	addrDisconnected = "5c-2e-fa-da-a3-43"
	addrConnected    = "80-3b-5c-c2-b1-7f"
	addrConnected2   = "80-3b-5c-c2-b1-80"
	addrUnknown      = "00-11-22-33-44-55"
)

func testDevices() []Device {
	return []Device{
		{Name: "AirPods Pro", Address: addrDisconnected, Paired: true},
		{Name: "Keyboard", Address: addrConnected, Connected: true, Paired: true},
		{Name: "AirPods Max", Address: addrConnected2, Connected: true, Paired: true},
	}
}

func newTestController(t *testing.T) (*Controller, *MockBackend) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	b.EXPECT().Devices(gomock.Any()).Return(testDevices(), nil).AnyTimes()
	return NewController(b), b
}

func TestApplyConnect(t *testing.T) {
	c, b := newTestController(t)
	b.EXPECT().Connect(gomock.Any(), addrDisconnected).Return(nil)

	res, err := c.Apply(context.Background(), ActionConnect, addrDisconnected)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, ActionConnect, res.Action)
	assert.True(t, res.Device.Connected)
}

func TestApplyDisconnect(t *testing.T) {
	c, b := newTestController(t)
	b.EXPECT().Disconnect(gomock.Any(), addrConnected).Return(nil)

	res, err := c.Apply(context.Background(), ActionDisconnect, addrConnected)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Device.Connected)
}

func TestApplyAlreadyInState(t *testing.T) {
	// No Connect/Disconnect expectations: any call fails the test.
	c, _ := newTestController(t)

	res, err := c.Apply(context.Background(), ActionConnect, addrConnected)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = c.Apply(context.Background(), ActionDisconnect, addrDisconnected)
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestApplyToggle(t *testing.T) {
	t.Run("connects a disconnected device", func(t *testing.T) {
		c, b := newTestController(t)
		b.EXPECT().Connect(gomock.Any(), addrDisconnected).Return(nil)

		res, err := c.Apply(context.Background(), ActionToggle, addrDisconnected)
		require.NoError(t, err)
		assert.Equal(t, ActionConnect, res.Action)
		assert.True(t, res.Device.Connected)
	})
	t.Run("disconnects a connected device", func(t *testing.T) {
		c, b := newTestController(t)
		b.EXPECT().Disconnect(gomock.Any(), addrConnected).Return(nil)

		res, err := c.Apply(context.Background(), ActionToggle, addrConnected)
		require.NoError(t, err)
		assert.Equal(t, ActionDisconnect, res.Action)
		assert.False(t, res.Device.Connected)
	})
}

func TestApplyAddressForms(t *testing.T) {
	c, b := newTestController(t)
	b.EXPECT().Connect(gomock.Any(), addrDisconnected).Return(nil)

	_, err := c.Apply(context.Background(), ActionConnect, "5C:2E:FA:DA:A3:43")
	require.NoError(t, err)
}

func TestApplyUnknownDevice(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Apply(context.Background(), ActionConnect, addrUnknown)
	require.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Contains(t, err.Error(), addrUnknown)
}

func TestApplyBackendErrors(t *testing.T) {
	c, b := newTestController(t)
	b.EXPECT().Connect(gomock.Any(), addrDisconnected).
		Return(errors.Join(ErrPermissionDenied, errors.New("org.bluez.Error.NotAuthorized")))

	_, err := c.Apply(context.Background(), ActionConnect, addrDisconnected)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestApplyDevicesError(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	b.EXPECT().Devices(gomock.Any()).Return(nil, ErrPlatform)

	_, err := NewController(b).Apply(context.Background(), ActionToggle, addrConnected)
	require.ErrorIs(t, err, ErrPlatform)
}

func addresses(devices []Device) []string {
	var out []string
	for _, d := range devices {
		out = append(out, d.Address)
	}
	return out
}

func TestList(t *testing.T) {
	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{
			name: "all, connected first",
			opts: ListOptions{All: true},
			want: []string{addrConnected, addrConnected2, addrDisconnected},
		},
		{
			name: "name filter",
			opts: ListOptions{NameFilter: "airpod"},
			want: []string{addrConnected2, addrDisconnected},
		},
		{
			name: "name filter ignores case",
			opts: ListOptions{NameFilter: "MAX"},
			want: []string{addrConnected2},
		},
		{
			name: "specific address",
			opts: ListOptions{Addresses: []string{addrConnected2}},
			want: []string{addrConnected2},
		},
		{
			name: "specific addresses win over name filter",
			opts: ListOptions{Addresses: []string{addrConnected, "80:3B:5C:C2:B1:80"}, NameFilter: "airpod"},
			want: []string{addrConnected, addrConnected2},
		},
		{
			name: "no match",
			opts: ListOptions{NameFilter: "headphones"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t)
			got, err := c.List(context.Background(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, addresses(got))
		})
	}
}

func TestListMovesPreviousAddressToTop(t *testing.T) {
	for _, prev := range []string{addrConnected, addrConnected2, addrDisconnected} {
		c, _ := newTestController(t)
		got, err := c.List(context.Background(), ListOptions{All: true, PreviousAddress: prev})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, prev, got[0].Address)
	}
}

func TestParseDeviceList(t *testing.T) {
	assert.Nil(t, parseDeviceList(""))
	assert.Nil(t, parseDeviceList(" , "))
	assert.Equal(t, []string{"a", "b"}, parseDeviceList("a, b,"))
}

// blockingBackend adds Block to the generated mock.
type blockingBackend struct {
	*MockBackend
	blocked []string
	err     error
}

func (b *blockingBackend) Block(_ context.Context, addr string) error {
	b.blocked = append(b.blocked, addr)
	return b.err
}

func TestApplyDisconnectBlocks(t *testing.T) {
	devices := append(testDevices(), Device{Name: "Old buds", Address: addrUnknown, Paired: true, Blocked: true})

	tests := []struct {
		name        string
		addr        string
		wantChanged bool
		wantBlocked []string
	}{
		{"after a real disconnect", addrConnected, true, []string{addrConnected}},
		{"when already disconnected", addrDisconnected, false, []string{addrDisconnected}},
		{"not again when already blocked", addrUnknown, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMockBackend(gomock.NewController(t))
			m.EXPECT().Devices(gomock.Any()).Return(devices, nil)
			if tt.wantChanged {
				m.EXPECT().Disconnect(gomock.Any(), tt.addr).Return(nil)
			}
			b := &blockingBackend{MockBackend: m}
			c := NewController(b)
			c.BlockOnDisconnect = true

			res, err := c.Apply(context.Background(), ActionDisconnect, tt.addr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, res.Changed)
			assert.Equal(t, tt.wantBlocked, b.blocked)
			assert.True(t, res.Device.Blocked)
		})
	}
}

func TestApplyBlockErrors(t *testing.T) {
	m := NewMockBackend(gomock.NewController(t))
	m.EXPECT().Devices(gomock.Any()).Return(testDevices(), nil)
	b := &blockingBackend{MockBackend: m, err: ErrPermissionDenied}
	c := NewController(b)
	c.BlockOnDisconnect = true

	_, err := c.Apply(context.Background(), ActionDisconnect, addrDisconnected)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestApplyBlockUnsupported(t *testing.T) {
	c, b := newTestController(t)
	b.EXPECT().Disconnect(gomock.Any(), addrConnected).Return(nil)
	c.BlockOnDisconnect = true

	res, err := c.Apply(context.Background(), ActionDisconnect, addrConnected)
	require.NoError(t, err)
	assert.False(t, res.Device.Blocked)
}
