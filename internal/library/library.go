// Package library manages the files behind paper records: reading raw
// references, moving files into the library layout, and removing them.
package library

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/provider"
	"github.com/matsen/plib/internal/reference"
)

// ErrFileOperation indicates a file could not be read, moved, or removed.
var ErrFileOperation = errors.New("file operation failed")

// incomingDir holds downloads until they are relocated.
const incomingDir = ".incoming"

// Library owns the on-disk layout of managed files.
type Library struct {
	root      string
	papersDir string
	layout    string
	fetcher   provider.Fetcher
	logger    *zap.Logger
}

// New creates a library rooted at root. The fetcher is used to download
// URL references and may be nil if only local files are ingested.
func New(root string, cfg *config.Config, fetcher provider.Fetcher, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	layout := cfg.Layout
	if layout == "" {
		layout = config.LayoutTitle
	}
	return &Library{
		root:      root,
		papersDir: cfg.PapersPath(root),
		layout:    layout,
		fetcher:   fetcher,
		logger:    logger,
	}
}

// Root returns the library root.
func (l *Library) Root() string {
	return l.root
}

// Abs resolves a stored path against the library root.
func (l *Library) Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.root, path)
}

// rel returns path relative to the root when it lies inside it.
func (l *Library) rel(path string) string {
	r, err := filepath.Rel(l.root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return path
	}
	return r
}

// Move is one file placed by Relocate.
type Move struct {
	From   string
	To     string
	Copied bool // From was left in place
}

// Relocation records the moves Relocate made so they can be undone.
type Relocation struct {
	Moves []Move
}

// Relocate places the draft's main and supplementary files under the papers
// directory using the configured layout and returns the draft with
// root-relative paths. Files outside the library are copied so the user's
// originals stay where they were; files already inside are renamed. On
// failure every file moved so far is put back.
func (l *Library) Relocate(d reference.Draft) (reference.Draft, *Relocation, error) {
	r := &Relocation{}
	if len(d.Files()) == 0 {
		return d, r, nil
	}
	if err := os.MkdirAll(l.papersDir, 0755); err != nil {
		return d, r, fmt.Errorf("%w: creating %s: %v", ErrFileOperation, l.papersDir, err)
	}

	out := d.Clone()
	base := l.baseName(d)
	taken := make(map[string]bool)

	if d.MainPath != "" {
		dest := filepath.Join(l.papersDir, base+strings.ToLower(filepath.Ext(d.MainPath)))
		to, err := l.place(r, l.Abs(d.MainPath), dest)
		if err != nil {
			l.Undo(r)
			return d, &Relocation{}, err
		}
		taken[to] = true
		out.MainPath = l.rel(to)
	}

	out.SupplementPaths = out.SupplementPaths[:0]
	for i, sup := range d.SupplementPaths {
		src := l.Abs(sup)
		dest := l.supplementDest(base, src, i+1, taken)
		to, err := l.place(r, src, dest)
		if err != nil {
			l.Undo(r)
			return d, &Relocation{}, err
		}
		taken[to] = true
		out.SupplementPaths = append(out.SupplementPaths, l.rel(to))
	}
	if len(out.SupplementPaths) == 0 {
		out.SupplementPaths = nil
	}
	return out, r, nil
}

// place moves or copies src to dest and records it. A file already at dest
// is left alone.
func (l *Library) place(r *Relocation, src, dest string) (string, error) {
	if filepath.Clean(src) == filepath.Clean(dest) {
		if _, err := os.Stat(src); err != nil {
			return "", fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
		return dest, nil
	}
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("%w: %s already exists", ErrFileOperation, dest)
	}

	inside := l.isManaged(src)
	var err error
	if inside {
		err = moveFile(src, dest)
	} else {
		err = copyFile(src, dest)
	}
	if err != nil {
		return "", fmt.Errorf("%w: placing %s: %v", ErrFileOperation, src, err)
	}
	r.Moves = append(r.Moves, Move{From: src, To: dest, Copied: !inside})
	return dest, nil
}

// isManaged reports whether path is inside the papers directory, including
// pending downloads.
func (l *Library) isManaged(path string) bool {
	r, err := filepath.Rel(l.papersDir, path)
	return err == nil && !strings.HasPrefix(r, "..")
}

func (l *Library) supplementDest(base, src string, n int, taken map[string]bool) string {
	ext := strings.ToLower(filepath.Ext(src))
	for ; ; n++ {
		dest := filepath.Join(l.papersDir, fmt.Sprintf("%s_sup%d%s", base, n, ext))
		if filepath.Clean(dest) == filepath.Clean(src) {
			return dest
		}
		if taken[dest] {
			continue
		}
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return dest
		}
	}
}

// Undo reverses a relocation: copies are deleted and renames are moved back.
// Failures are logged.
func (l *Library) Undo(r *Relocation) {
	if r == nil {
		return
	}
	for i := len(r.Moves) - 1; i >= 0; i-- {
		m := r.Moves[i]
		var err error
		if m.Copied {
			err = os.Remove(m.To)
		} else {
			err = moveFile(m.To, m.From)
		}
		if err != nil && !os.IsNotExist(err) {
			l.logger.Warn("could not undo file relocation",
				zap.String("from", m.From), zap.String("to", m.To), zap.Error(err))
		}
	}
	r.Moves = nil
}

// Remove deletes all of the draft's files. Missing files are not an error.
func (l *Library) Remove(d reference.Draft) error {
	var errs []error
	for _, path := range d.Files() {
		if err := l.RemoveFile(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveFile deletes one stored file. Missing files are not an error.
func (l *Library) RemoveFile(path string) error {
	if err := os.Remove(l.Abs(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing %s: %v", ErrFileOperation, path, err)
	}
	return nil
}

// baseName returns the file name stem for a draft under the configured layout.
func (l *Library) baseName(d reference.Draft) string {
	if l.layout == config.LayoutID {
		return d.ID
	}
	stem := sanitizeTitle(d.Title)
	short := d.ID
	if len(short) > 8 {
		short = short[:8]
	}
	if stem == "" {
		return short
	}
	return stem + "_" + short
}

const maxStemLength = 80

// sanitizeTitle turns a title into a portable file name stem.
func sanitizeTitle(title string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	stem := strings.TrimRight(b.String(), "_")
	if runes := []rune(stem); len(runes) > maxStemLength {
		stem = strings.TrimRight(string(runes[:maxStemLength]), "_")
	}
	return stem
}

func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	// Cross-device moves fall back to copy and delete.
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
