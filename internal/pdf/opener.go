package pdf

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Opener launches an external viewer for a paper's files.
type Opener struct {
	root   string
	reader string
}

// NewOpener creates an opener that resolves relative paths against the
// library root and launches the given reader ("system" when empty).
func NewOpener(root, reader string) *Opener {
	if reader == "" {
		reader = "system"
	}
	return &Opener{root: root, reader: reader}
}

// ResolvePath returns the absolute path of a stored file and checks it exists.
func (o *Opener) ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("paper has no file")
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(o.root, path)
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", full)
		}
		return "", fmt.Errorf("checking file: %w", err)
	}
	return full, nil
}

// Open starts the reader on an existing file without waiting for it.
func (o *Opener) Open(fullPath string) error {
	cmd, err := o.Command(fullPath)
	if err != nil {
		return err
	}
	return cmd.Start()
}

// Command builds the viewer command for the current platform.
func (o *Opener) Command(fullPath string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return o.darwinCommand(fullPath), nil
	case "linux":
		return o.linuxCommand(fullPath), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

func (o *Opener) darwinCommand(path string) *exec.Cmd {
	switch o.reader {
	case "skim":
		return exec.Command("open", "-a", "Skim", path)
	case "preview":
		return exec.Command("open", "-a", "Preview", path)
	default:
		return exec.Command("open", path)
	}
}

func (o *Opener) linuxCommand(path string) *exec.Cmd {
	switch o.reader {
	case "zathura", "evince", "okular":
		return exec.Command(o.reader, path)
	default:
		return exec.Command("xdg-open", path)
	}
}
