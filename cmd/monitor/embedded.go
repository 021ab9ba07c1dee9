package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// orchestratorProcess is an orchestrator started by -embedded. Its output goes
// to a log file because the terminal belongs to the TUI.
type orchestratorProcess struct {
	cmd     *exec.Cmd
	logPath string
	exited  chan struct{}
}

func spawnOrchestrator(addr, binary, configPath string) (*orchestratorProcess, error) {
	listen, err := listenAddr(addr)
	if err != nil {
		return nil, err
	}
	args := []string{"-addr", listen}
	if strings.TrimSpace(configPath) != "" {
		args = append(args, "-config", configPath)
	}

	cmd := orchestratorCommand(binary, args)
	logFile, err := os.CreateTemp("", "orchestrator-*.log")
	if err != nil {
		return nil, fmt.Errorf("create orchestrator log: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	p := &orchestratorProcess{cmd: cmd, logPath: logFile.Name(), exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		_ = logFile.Close()
		close(p.exited)
	}()
	return p, nil
}

// listenAddr turns the monitor's base URL into the orchestrator's -addr value.
func listenAddr(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	if u.Port() == "" {
		return "", fmt.Errorf("addr must include explicit port, got %q", base)
	}
	return net.JoinHostPort("", u.Port()), nil
}

// orchestratorCommand prefers an explicit binary, then one installed next to
// the monitor, then `go run` from the working directory.
func orchestratorCommand(binary string, args []string) *exec.Cmd {
	if strings.TrimSpace(binary) != "" {
		return exec.Command(binary, args...)
	}
	if self, err := os.Executable(); err == nil {
		name := "orchestrator"
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		sibling := filepath.Join(filepath.Dir(self), name)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return exec.Command(sibling, args...)
		}
	}
	return exec.Command("go", append([]string{"run", "./cmd/orchestrator"}, args...)...)
}

// stop asks the orchestrator to shut down and kills it after grace.
func (p *orchestratorProcess) stop(grace time.Duration) {
	if p == nil || p.cmd.Process == nil {
		return
	}
	select {
	case <-p.exited:
		return
	default:
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.exited:
	case <-time.After(grace):
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
}

func (p *orchestratorProcess) logHint() string {
	if p == nil {
		return ""
	}
	return " (orchestrator log: " + p.logPath + ")"
}

func awaitHealthy(ctx context.Context, c *client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(400 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.healthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("no healthy /health within %s", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
