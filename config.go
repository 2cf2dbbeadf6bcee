package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// envPreviousAddress is set by the launcher workflow to the address the user
// picked last time.
const envPreviousAddress = "AIRPODS_MAC"

// envBlueutil overrides the blueutil command on macOS.
const envBlueutil = "PODCTL_BLUEUTIL"

// DeviceConfig is one entry of the devices file.
type DeviceConfig struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Config is the parsed devices file.
type Config struct {
	Devices []DeviceConfig
}

func configPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "podctl", "devices.json")
}

// loadConfig reads the devices file at path, or the default location when
// path is empty. A missing default file yields an empty config; a missing
// explicit file is an error.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
	}
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("%w: read config: %w", ErrUsage, err)
	}
	if err := json.Unmarshal(data, &cfg.Devices); err != nil {
		return cfg, fmt.Errorf("%w: parse config %s: %w", ErrUsage, path, err)
	}
	for i, d := range cfg.Devices {
		if !validAddress(d.Address) {
			return cfg, fmt.Errorf("%w: config %s: entry %d has invalid address %q", ErrUsage, path, i, d.Address)
		}
	}
	return cfg, nil
}

// resolveDevice picks the target address. An explicit argument wins and may
// be a configured name; then the launcher's AIRPODS_MAC; then the first
// configured device.
func resolveDevice(cfg Config, arg string) (string, error) {
	if arg != "" {
		for _, d := range cfg.Devices {
			if d.Name != "" && strings.EqualFold(d.Name, arg) {
				return d.Address, nil
			}
		}
		if !validAddress(arg) {
			return "", fmt.Errorf("%w: %q is neither a Bluetooth address nor a configured device name", ErrUsage, arg)
		}
		return arg, nil
	}
	if prev := os.Getenv(envPreviousAddress); prev != "" {
		return prev, nil
	}
	if len(cfg.Devices) == 0 {
		return "", fmt.Errorf("%w: no device specified and config is empty", ErrUsage)
	}
	return cfg.Devices[0].Address, nil
}
