package source

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireExecutable(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

// echo stands in for candump: it prints its interface argument and exits.
func TestCandumpReadsUntilProcessExits(t *testing.T) {
	echo := requireExecutable(t, "echo")
	record := "can1  351   [2]  14 97"

	c, err := StartCandump(echo, record, quietLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Close()

	got, err := c.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != record {
		t.Errorf("got %q, want %q", got, record)
	}
	if _, err := c.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after exit, got %v", err)
	}
}

func TestCandumpCloseAfterExitIsSafe(t *testing.T) {
	echo := requireExecutable(t, "echo")

	c, err := StartCandump(echo, "can1", quietLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for {
		if _, err := c.ReadLine(); err != nil {
			break
		}
	}

	if err := c.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestCandumpCloseTerminatesRunningProcess(t *testing.T) {
	sh := requireExecutable(t, "sh")
	script := filepath.Join(t.TempDir(), "candump")
	body := "#!" + sh + "\nwhile :; do sleep 0.05; done\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	c, err := StartCandump(script, "can1", quietLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	start := time.Now()
	if err := c.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= killTimeout {
		t.Errorf("SIGTERM should stop the process, close took %v", elapsed)
	}
	if _, err := c.ReadLine(); err == nil {
		t.Error("expected an error reading after close")
	}
}

func TestCandumpCloseKillsProcessIgnoringSIGTERM(t *testing.T) {
	sh := requireExecutable(t, "sh")
	script := filepath.Join(t.TempDir(), "candump")
	body := "#!" + sh + "\ntrap '' TERM\nwhile :; do sleep 0.05; done\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	c, err := StartCandump(script, "can1", quietLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Let the shell install its trap before it is signalled.
	time.Sleep(200 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(killTimeout + 3*time.Second):
		t.Fatal("close did not return after the kill deadline")
	}
	if _, err := c.ReadLine(); err == nil {
		t.Error("expected an error reading after close")
	}
}

func TestStartCandumpMissingBinary(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-candump")
	if _, err := StartCandump(missing, "can1", quietLogger()); err == nil {
		t.Error("expected an error starting a missing binary")
	}
}
