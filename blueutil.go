package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/shlex"
	log "github.com/sirupsen/logrus"
)

// commandRunner runs an external program and collects its output.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// blueutil drives macOS Bluetooth through the blueutil command line tool.
type blueutil struct {
	runner commandRunner
	argv   []string // program followed by any fixed leading arguments
}

// newBlueutil resolves the blueutil command. BLUEUTIL_PATH names the
// directory holding the binary; otherwise command is split shell-style so
// wrappers such as "sudo -n blueutil" work.
func newBlueutil(command string) (*blueutil, error) {
	if dir := os.Getenv("BLUEUTIL_PATH"); dir != "" {
		return &blueutil{runner: execRunner{}, argv: []string{filepath.Join(dir, "blueutil")}}, nil
	}
	if command == "" {
		command = "blueutil"
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("%w: parse blueutil command %q: %w", ErrUsage, command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty blueutil command", ErrUsage)
	}
	return &blueutil{runner: execRunner{}, argv: argv}, nil
}

func (b *blueutil) Close() error { return nil }

func (b *blueutil) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append(append([]string(nil), b.argv[1:]...), args...)
	log.WithField("args", full).Debug("running " + b.argv[0])
	stdout, stderr, err := b.runner.Run(ctx, b.argv[0], full...)
	log.WithField("stdout", string(stdout)).Trace("blueutil output")
	if len(stderr) > 0 {
		log.WithField("stderr", string(stderr)).Trace("blueutil output")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout, fmt.Errorf("%w: blueutil: %w", ErrPlatform, ctxErr)
		}
		return stdout, classifyExecError(err, stderr)
	}
	return stdout, nil
}

func (b *blueutil) Devices(ctx context.Context) ([]Device, error) {
	out, err := b.run(ctx, "--paired")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return parsePairedOutput(out)
}

func (b *blueutil) Connect(ctx context.Context, addr string) error {
	_, err := b.run(ctx, "--connect", addr)
	return err
}

func (b *blueutil) Disconnect(ctx context.Context, addr string) error {
	// The trailing --info makes blueutil wait for the link to drop.
	_, err := b.run(ctx, "--disconnect", addr, "--info", addr)
	return err
}

var pairedLineRE = regexp.MustCompile(`^address: ([a-zA-Z0-9_-]{17}),.*name: "([^"]*)"`)

// parsePairedOutput reads lines such as
//
//	address: 80-3b-5c-c2-b1-7f, connected (master, 0 dBm), not favourite, paired, name: "AirPods Max", recent access date: ...
func parsePairedOutput(out []byte) ([]Device, error) {
	var devices []Device
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m := pairedLineRE.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%w: unexpected blueutil output: %q", ErrPlatform, line)
		}
		devices = append(devices, Device{
			Name:      m[2],
			Address:   m[1],
			Connected: !strings.Contains(line, "not connected"),
			Paired:    true,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read blueutil output: %w", ErrPlatform, err)
	}
	return devices, nil
}

func classifyExecError(err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	lower := strings.ToLower(msg)

	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: blueutil: %w", ErrPlatform, err)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: blueutil not installed: %w", ErrPlatform, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.As(err, &exitErr):
		switch {
		case strings.Contains(lower, "command not found"), strings.Contains(lower, "no such file"):
			return fmt.Errorf("%w: blueutil not runnable: %s", ErrPlatform, msg)
		case strings.Contains(lower, "device not found"):
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, msg)
		case strings.Contains(lower, "permission"), strings.Contains(lower, "not permitted"),
			strings.Contains(lower, "not authorized"), strings.Contains(lower, "privilege"):
			return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
		}
		if msg == "" {
			msg = exitErr.Error()
		}
		return fmt.Errorf("%w: blueutil: %s", ErrPlatform, msg)
	}
	return fmt.Errorf("%w: blueutil: %w", ErrPlatform, err)
}
