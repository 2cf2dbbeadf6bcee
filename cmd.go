package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultTimeout = 10 * time.Second

// backendOptions carries the flags a platform backend cares about.
type backendOptions struct {
	Adapter         string
	BlueutilCommand string
}

type app struct {
	stdout, stderr io.Writer
	newBackend     func(backendOptions) (Backend, error)

	timeout    time.Duration
	verbosity  int
	adapter    string
	configFile string
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, newBackend: newPlatformBackend}
}

// run executes the command line in args and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	root := a.rootCmd()
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintf(a.stderr, "error: timed out after %s: %v\n", a.timeout, err)
		} else {
			fmt.Fprintf(a.stderr, "error: %v\n", err)
		}
		if errors.Is(err, ErrUsage) {
			fmt.Fprintf(a.stderr, "Run '%s --help' for usage.\n", root.Name())
		}
	}
	return ExitCode(err)
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return usageErr("%s accepts at most %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "podctl [connect|disconnect|toggle] [DEVICE]",
		Short: "Connect or disconnect AirPods from a launcher",
		Long: `podctl connects, disconnects or toggles one paired Bluetooth accessory.

DEVICE is a Bluetooth address or a name from the devices file. When it is
omitted, $AIRPODS_MAC is used, then the first entry of the devices file.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(a.stderr, a.verbosity)
			if a.timeout <= 0 {
				return usageErr("--timeout must be positive, got %s", a.timeout)
			}
			return nil
		},
		// Only reached when the first argument is not a known subcommand.
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErr("missing action (want connect, disconnect or toggle)")
			}
			action, err := ParseAction(args[0])
			if err != nil {
				return err
			}
			if len(args) > 2 {
				return usageErr("too many arguments")
			}
			return a.apply(cmd.Context(), action, args[1:], false)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	})

	pf := root.PersistentFlags()
	pf.DurationVar(&a.timeout, "timeout", defaultTimeout, "give up on the Bluetooth stack after this long")
	pf.CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	pf.StringVar(&a.adapter, "adapter", defaultAdapter, "BlueZ adapter to use (Linux)")
	pf.StringVar(&a.configFile, "config", "", "devices file (default $XDG_CONFIG_HOME/podctl/devices.json)")

	root.AddCommand(
		a.actionCmd(ActionConnect, "Connect to a device"),
		a.actionCmd(ActionDisconnect, "Disconnect from a device"),
		a.actionCmd(ActionToggle, "Toggle the connection to a device"),
		a.statusCmd(),
		a.listCmd(),
	)
	return root
}

func (a *app) actionCmd(action Action, short string) *cobra.Command {
	var block bool
	cmd := &cobra.Command{
		Use:   string(action) + " [DEVICE]",
		Short: short,
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.apply(cmd.Context(), action, args, block)
		},
	}
	if action == ActionDisconnect {
		cmd.Flags().BoolVar(&block, "block", false, "block the device afterwards so it does not reconnect on its own (Linux)")
	}
	return cmd
}

// resolveTarget loads the devices file and picks the device named by args.
func (a *app) resolveTarget(args []string) (string, error) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	cfg, err := loadConfig(a.configFile)
	if err != nil {
		return "", err
	}
	return resolveDevice(cfg, arg)
}

// controller opens the platform backend. The caller closes the backend.
func (a *app) controller(block bool) (*Controller, Backend, error) {
	b, err := a.newBackend(backendOptions{
		Adapter:         a.adapter,
		BlueutilCommand: os.Getenv(envBlueutil),
	})
	if err != nil {
		return nil, nil, err
	}
	c := NewController(b)
	c.BlockOnDisconnect = block
	return c, b, nil
}

func (a *app) apply(ctx context.Context, action Action, args []string, block bool) error {
	addr, err := a.resolveTarget(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	c, b, err := a.controller(block)
	if err != nil {
		return err
	}
	defer b.Close()

	log.WithFields(log.Fields{"action": action, "device": addr}).Info("applying")
	res, err := c.Apply(ctx, action, addr)
	if err != nil {
		return err
	}

	var msg string
	switch {
	case action == ActionToggle && res.Device.Connected:
		msg = "connected"
	case action == ActionToggle:
		msg = "disconnected"
	case res.Action == ActionConnect && res.Changed:
		msg = "Connected to device"
	case res.Action == ActionConnect:
		msg = "Already connected"
	case res.Changed:
		msg = "Disconnected from device"
	default:
		msg = "Already disconnected"
	}
	fmt.Fprintln(a.stdout, msg)
	return nil
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [DEVICE]",
		Short: "Print the device's connection state as JSON",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.resolveTarget(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()

			c, b, err := a.controller(false)
			if err != nil {
				return err
			}
			defer b.Close()

			dev, err := c.Lookup(ctx, addr)
			if err != nil {
				return err
			}
			return json.NewEncoder(a.stdout).Encode(statusOf(dev))
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var (
		all        bool
		deviceList string
		filter     string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "list [true|false]",
		Short: "List paired devices, by default as Alfred script filter JSON",
		// Older workflows pass "-a true"; a trailing boolean sets --all.
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v, err := strconv.ParseBool(args[0])
				if err != nil {
					return usageErr("list takes no arguments besides an optional true/false for --all, got %q", args[0])
				}
				all = v
			}
			if format == "" {
				format = "alfred"
				if isTerminal(a.stdout) {
					format = "text"
				}
			}
			if format != "alfred" && format != "text" {
				return usageErr("unknown format %q (want alfred or text)", format)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()

			c, b, err := a.controller(false)
			if err != nil {
				return err
			}
			defer b.Close()

			devices, err := c.List(ctx, ListOptions{
				All:             all,
				Addresses:       parseDeviceList(deviceList),
				NameFilter:      filter,
				PreviousAddress: os.Getenv(envPreviousAddress),
			})
			if err != nil {
				return err
			}
			if format == "text" {
				return writeText(a.stdout, devices)
			}
			return writeAlfred(a.stdout, devices)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&all, "all", "a", false, "list every paired device")
	f.StringVarP(&deviceList, "device-list", "d", "", "comma separated addresses to list")
	f.StringVar(&filter, "filter", defaultNameFilter, "case-insensitive name substring to match")
	f.StringVar(&format, "format", "", "output format: alfred or text (default alfred unless stdout is a terminal)")
	return cmd
}
