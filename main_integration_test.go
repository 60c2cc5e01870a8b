package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func buildTestBinary(t *testing.T) string {
	binName := "uniboard_it_bin"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	bin := filepath.Join(t.TempDir(), binName)
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, string(out))
	}
	return bin
}

// isolatedEnv points the binary at a throwaway home, session database and API.
func isolatedEnv(t *testing.T) []string {
	home := t.TempDir()
	return append(os.Environ(),
		"HOME="+home,
		"UNIBOARD_SESSION_DB="+filepath.Join(home, "session.db"),
		"UNIBOARD_API_BASE_URL=http://127.0.0.1:1",
	)
}

// TestStatusWithoutSession runs the status command against a fresh session database.
func TestStatusWithoutSession(t *testing.T) {
	bin := buildTestBinary(t)
	cmd := exec.Command(bin, "status")
	cmd.Env = isolatedEnv(t)
	cmd.Dir = t.TempDir()
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "not logged in") || !strings.Contains(string(out), "http://127.0.0.1:1") {
		t.Fatalf("unexpected output: %s", out)
	}
}

// TestUnreachableAPIExitCode checks that a network failure maps to exit status 5.
func TestUnreachableAPIExitCode(t *testing.T) {
	bin := buildTestBinary(t)
	cmd := exec.Command(bin, "login", "--username", "admin_user")
	cmd.Env = isolatedEnv(t)
	cmd.Dir = t.TempDir()
	cmd.Stdin = strings.NewReader("s3cret-pass\n")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected an exit error, got %v", err)
	}
	if exitErr.ExitCode() != 5 {
		t.Fatalf("expected exit code 5, got %d", exitErr.ExitCode())
	}
}

// TestGracefulInterrupt serves a static directory and sends SIGINT, expecting a prompt exit.
func TestGracefulInterrupt(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("os.Interrupt cannot be sent to a process on Windows")
	}
	bin := buildTestBinary(t)
	dist := t.TempDir()
	if err := os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html></html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(bin, "serve", "--dir", dist, "--port", "0")
	cmd.Env = isolatedEnv(t)
	cmd.Dir = t.TempDir()
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start binary: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("failed to send interrupt: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("process did not exit within 5s after SIGINT")
	}
}
