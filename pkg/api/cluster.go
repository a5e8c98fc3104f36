package api

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vantagehq/vantage/pkg/config"
	"github.com/vantagehq/vantage/pkg/log"
)

// workerEnv marks a process as a serving worker; its value is the worker id
const workerEnv = "VANTAGE_WORKER_ID"

// restartDelay throttles worker restarts so a crash-looping worker does not
// spin the primary
const restartDelay = time.Second

// WorkerID returns the worker id when running as a forked worker, or -1 in
// the primary
func WorkerID() int {
	v := os.Getenv(workerEnv)
	if v == "" {
		return -1
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return id
}

// WorkerCount resolves the configured worker count; 0 means one per core
func WorkerCount(cfg *config.Config) int {
	if cfg.Cluster.Workers > 0 {
		return cfg.Cluster.Workers
	}
	return runtime.NumCPU()
}

// ListenReusePort opens a TCP listener with SO_REUSEPORT set, so every
// worker can bind the same address and the kernel spreads accepted
// connections across them
func ListenReusePort(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, conn syscall.RawConn) error {
			var sockErr error
			err := conn.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// RunPrimary forks one worker process per configured slot and restarts any
// worker that exits. The primary serves no requests. It returns once all
// workers are gone after an interrupt or terminate signal.
func RunPrimary(cfg *config.Config) error {
	logger := log.WithComponent("cluster")
	count := WorkerCount(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	type exitEvent struct {
		id  int
		err error
	}
	exits := make(chan exitEvent, count)
	procs := make(map[int]*exec.Cmd, count)

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	spawn := func(id int) error {
		cmd := exec.Command(executable, os.Args[1:]...)
		cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", workerEnv, id))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start worker %d: %w", id, err)
		}
		procs[id] = cmd
		go func() {
			exits <- exitEvent{id: id, err: cmd.Wait()}
		}()
		logger.Info().Int("worker_id", id).Int("pid", cmd.Process.Pid).Msg("Worker started")
		return nil
	}

	for id := 0; id < count; id++ {
		if err := spawn(id); err != nil {
			return err
		}
	}
	logger.Info().Int("workers", count).Int("port", cfg.Port).Msg("Cluster primary running")

	shuttingDown := false
	alive := count
	for alive > 0 {
		select {
		case sig := <-sigCh:
			if shuttingDown {
				continue
			}
			shuttingDown = true
			logger.Info().Str("signal", sig.String()).Msg("Shutting down workers")
			for _, cmd := range procs {
				_ = cmd.Process.Signal(sig)
			}
		case ev := <-exits:
			delete(procs, ev.id)
			alive--
			if shuttingDown {
				continue
			}
			logger.Warn().Int("worker_id", ev.id).Err(ev.err).Msg("Worker exited, restarting")
			time.Sleep(restartDelay)
			if err := spawn(ev.id); err != nil {
				logger.Error().Err(err).Int("worker_id", ev.id).Msg("Failed to restart worker")
				continue
			}
			alive++
		}
	}

	logger.Info().Msg("All workers gone, primary exiting")
	return nil
}
