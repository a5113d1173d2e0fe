//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var binaryPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "scrub-e2e-build-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "e2e TestMain: mkdir temp: %v\n", err)
		os.Exit(1)
	}
	binaryPath = filepath.Join(dir, "scrub")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/scrub")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "e2e TestMain: build: %v\n%s\n", err, out)
		os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// RunScrub runs the scrub binary with the given args. dataDir is used as
// SCRUB_DATA_DIR and as the working directory; env can add or override env
// vars. The NER backend defaults to "none" unless env sets it. stdin, when
// non-empty, is piped to the process. Returns stdout, stderr, and the exit
// code (or -1 if the process failed to start).
func RunScrub(t *testing.T, dataDir, stdin string, env map[string]string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, "SCRUB_DATA_DIR="+dataDir)
	if _, ok := env["SCRUB_NER_BACKEND"]; !ok {
		cmd.Env = append(cmd.Env, "SCRUB_NER_BACKEND=none")
	}
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Dir = dataDir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var outBuf, errBuf buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	exitCode = 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	return string(outBuf.b), string(errBuf.b), exitCode
}

type buffer struct {
	b []byte
}

func (b *buffer) Write(p []byte) (n int, err error) {
	b.b = append(b.b, p...)
	return len(p), nil
}
