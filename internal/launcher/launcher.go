// Package launcher provides the cluster launch primitives the process
// registry spawns through: srun for batch allocations, SSH for plain node
// sets, and a local executor for single-node runs and tests. All of them
// satisfy the registry's Spawner interface.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/benchctl/benchctl/pkg/models"
)

// execHandle supervises a process started through os/exec.
type execHandle struct {
	cmd   *exec.Cmd
	done  chan struct{}
	files []*os.File

	mu      sync.Mutex
	exitErr error
}

func newExecHandle(cmd *exec.Cmd, files []*os.File) *execHandle {
	h := &execHandle{cmd: cmd, done: make(chan struct{}), files: files}
	go h.wait()
	return h
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()
	for _, f := range h.files {
		f.Close()
	}
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
	close(h.done)
}

func (h *execHandle) Done() <-chan struct{} { return h.done }

func (h *execHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *execHandle) Terminate() error {
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() error {
	return h.cmd.Process.Kill()
}

// openLogFiles opens the spec's stdout/stderr destinations, creating parent
// directories. A spec pointing both streams at one path gets a single shared
// file.
func openLogFiles(spec models.LaunchSpec) (stdout, stderr *os.File, files []*os.File, err error) {
	open := func(path string) (*os.File, error) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir for %s: %w", path, err)
		}
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}

	stdout, err = open(spec.StdoutPath)
	if err != nil {
		return nil, nil, nil, err
	}
	files = []*os.File{stdout}

	if spec.StderrPath == spec.StdoutPath {
		return stdout, stdout, files, nil
	}

	stderr, err = open(spec.StderrPath)
	if err != nil {
		stdout.Close()
		return nil, nil, nil, err
	}
	return stdout, stderr, append(files, stderr), nil
}

// mergedEnviron overlays the spec's environment onto the current process's.
func mergedEnviron(env map[string]string) []string {
	merged := os.Environ()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+env[k])
	}
	return merged
}

// shellQuote renders a command line safe for remote shell execution.
func shellQuote(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'\\$`*{}[]()<>|&;#~?!") {
			quoted[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}
