package crash

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReportFallsBackToTemp(t *testing.T) {
	path, err := writeReport(&Info{}, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	if filepath.Dir(path) != filepath.Clean(os.TempDir()) {
		t.Fatalf("expected report in temp dir, got %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "Oyster Crash Report") || !strings.Contains(s, "Panic: boom") {
		t.Fatalf("report content mismatch: %s", s)
	}
}

func TestRecoverWritesReportAndExits(t *testing.T) {
	t.Setenv("OYS_TELEMETRY_OPT_IN", "")
	var out bytes.Buffer
	oldStderr, oldExit := stderr, exitFn
	stderr = &out
	code := 0
	exitFn = func(c int) { code = c }
	t.Cleanup(func() { stderr, exitFn = oldStderr, oldExit })

	dir := filepath.Join(t.TempDir(), "state")
	func() {
		defer Recover(&Info{Dir: dir, Args: []string{"oyster", "run", "intro.oys"}, Script: "intro.oys"})
		panic("kaboom")
	}()

	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 1 || !strings.HasPrefix(files[0].Name(), "crash-") {
		t.Fatalf("expected one crash report in %s, got %v", dir, files)
	}
	b, _ := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if !strings.Contains(string(b), "Script: intro.oys") || !strings.Contains(string(b), "Panic: kaboom") {
		t.Fatalf("report content mismatch: %s", b)
	}
	if !strings.Contains(out.String(), files[0].Name()) {
		t.Fatalf("stderr should name the report: %q", out.String())
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	oldExit := exitFn
	called := false
	exitFn = func(int) { called = true }
	t.Cleanup(func() { exitFn = oldExit })
	func() {
		defer Recover(nil)
	}()
	if called {
		t.Fatalf("exit must not be called without a panic")
	}
}
