package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/speakuplabs/speakup-core/internal/api"
	"github.com/speakuplabs/speakup-core/internal/config"
	"github.com/speakuplabs/speakup-core/internal/pidfile"
)

// runService manages the daemon process itself: start, stop, status.
func runService(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: speakup service <start|stop|status>")
	}

	fs := flag.NewFlagSet("service", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to daemon configuration file")
	fs.Parse(args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	switch args[0] {
	case "start":
		return serviceStart(cfg, *configPath)
	case "stop":
		return serviceStop(cfg)
	case "status":
		return serviceStatus(cfg)
	default:
		return fmt.Errorf("unknown service command %q", args[0])
	}
}

func serviceStart(cfg config.Config, configPath string) error {
	if pid, alive := pidfile.Alive(cfg.PIDFile); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	daemonArgs := []string{}
	if configPath != "" {
		daemonArgs = append(daemonArgs, "-config", configPath)
	}
	cmd := exec.Command("speakupd", daemonArgs...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch speakupd: %w", err)
	}
	// The daemon owns its own lifetime from here.
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("detach speakupd: %w", err)
	}

	// Give it a moment to come up, then confirm it answers.
	client := api.NewClient(cfg.HTTP.Port, time.Second)
	for i := 0; i < 20; i++ {
		time.Sleep(250 * time.Millisecond)
		if err := client.Health(context.Background()); err == nil {
			fmt.Printf("daemon started on port %d\n", cfg.HTTP.Port)
			return nil
		}
	}
	return errors.New("daemon launched but is not answering on the control port")
}

func serviceStop(cfg config.Config) error {
	pid, alive := pidfile.Alive(cfg.PIDFile)
	if !alive {
		fmt.Println("daemon is not running")
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	for i := 0; i < 20; i++ {
		time.Sleep(250 * time.Millisecond)
		if _, alive := pidfile.Alive(cfg.PIDFile); !alive {
			fmt.Println("daemon stopped")
			return nil
		}
	}
	return fmt.Errorf("daemon (pid %d) did not exit after SIGTERM", pid)
}

func serviceStatus(cfg config.Config) error {
	pid, alive := pidfile.Alive(cfg.PIDFile)
	if !alive {
		fmt.Println("daemon is not running")
		return nil
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := api.NewClient(cfg.HTTP.Port, 2*time.Second).Health(probeCtx); err != nil {
		fmt.Printf("daemon process exists (pid %d) but is not answering\n", pid)
		return nil
	}
	fmt.Printf("daemon running (pid %d, port %d)\n", pid, cfg.HTTP.Port)
	return nil
}
