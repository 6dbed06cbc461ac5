package source

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultCandumpPath is the candump binary looked up on $PATH.
const DefaultCandumpPath = "candump"

// killTimeout is how long Close waits after SIGTERM before killing.
const killTimeout = 2 * time.Second

// Candump runs `candump <iface>` and reads its standard output.
type Candump struct {
	*Lines

	cmd    *exec.Cmd
	stdout *io.PipeReader
	logger *slog.Logger
	exited chan struct{}

	closeOnce sync.Once
}

// StartCandump starts the candump subprocess on the given CAN interface.
func StartCandump(path, iface string, logger *slog.Logger) (*Candump, error) {
	if path == "" {
		path = DefaultCandumpPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "candump", "interface", iface)

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	cmd := exec.Command(path, iface)
	cmd.Stdout = outW
	cmd.Stderr = errW
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s %s: %w", path, iface, err)
	}
	logger.Info("candump started", "pid", cmd.Process.Pid)

	c := &Candump{
		Lines:  NewLines(outR),
		cmd:    cmd,
		stdout: outR,
		logger: logger,
		exited: make(chan struct{}),
	}

	go c.logStderr(errR)
	go func() {
		err := cmd.Wait()
		if err != nil {
			logger.Warn("candump exited", "error", err)
		} else {
			logger.Info("candump exited")
		}
		// Readers see io.EOF once everything written so far is consumed.
		outW.Close()
		errW.Close()
		close(c.exited)
	}()

	return c, nil
}

func (c *Candump) logStderr(r io.Reader) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		c.logger.Warn("candump stderr", "line", s.Text())
	}
}

// Close terminates the subprocess. It is safe to call more than once and
// after the process has already exited.
func (c *Candump) Close() error {
	c.closeOnce.Do(func() {
		select {
		case <-c.exited:
		default:
			if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
				c.logger.Warn("signal candump", "error", err)
			}
		}
		// Unblock the copy goroutine in case nobody is reading any more.
		c.stdout.Close()

		select {
		case <-c.exited:
		case <-time.After(killTimeout):
			c.logger.Warn("candump did not exit after SIGTERM, killing")
			c.cmd.Process.Kill()
			<-c.exited
		}
	})
	return nil
}
