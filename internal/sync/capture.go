package sync

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ExecDevice captures audio by running arecord. Stop kills the process
// and reads back the WAV file it wrote.
type ExecDevice struct {
	dir  string
	cmd  *exec.Cmd
	path string
}

func NewExecDevice(dir string) *ExecDevice {
	return &ExecDevice{dir: dir}
}

func (d *ExecDevice) Start(ctx context.Context) error {
	bin, err := exec.LookPath("arecord")
	if err != nil {
		return fmt.Errorf("%w: arecord not found", ErrCaptureUnavailable)
	}
	if err := os.MkdirAll(d.dir, 0700); err != nil {
		return fmt.Errorf("preparing capture dir: %w", err)
	}

	d.path = filepath.Join(d.dir, fmt.Sprintf("rec-%d.wav", time.Now().UnixNano()))
	cmd := exec.CommandContext(ctx, bin, "-f", "cd", "-t", "wav", d.path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	d.cmd = cmd
	return nil
}

func (d *ExecDevice) Stop() ([]byte, string, error) {
	if d.cmd == nil {
		return nil, "", fmt.Errorf("capture not running")
	}
	cmd := d.cmd
	d.cmd = nil

	// arecord finalizes the WAV header on SIGINT.
	_ = cmd.Process.Signal(os.Interrupt)
	_ = cmd.Wait()

	clip, err := os.ReadFile(d.path)
	os.Remove(d.path)
	if err != nil {
		return nil, "", fmt.Errorf("reading capture file: %w", err)
	}
	return clip, "wav", nil
}
