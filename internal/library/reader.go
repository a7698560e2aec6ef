package library

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/provider"
	"github.com/matsen/plib/internal/reference"
)

var (
	doiURLPattern   = regexp.MustCompile(`^https?://(?:dx\.)?doi\.org/(10\..+)$`)
	arxivURLPattern = regexp.MustCompile(`^https?://(?:www\.)?arxiv\.org/(?:abs|pdf)/([^?#]+)$`)
	bareDOIPattern  = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
)

// Read turns one raw reference into an initial draft. A reference is one of:
//
//   - "doi:<doi>" or a bare DOI, or a doi.org URL
//   - "arxiv:<id>" or an arxiv.org abs/pdf URL
//   - an http(s) URL of a PDF, downloaded into the papers directory
//   - a local file path, which must exist
//
// Identifier references produce a draft with no file.
func (l *Library) Read(ctx context.Context, ref string) (reference.Draft, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference.Draft{}, fmt.Errorf("%w: empty reference", ErrFileOperation)
	}
	d := reference.NewDraft()

	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "doi:"):
		return withID(d, reference.KindDOI, provider.NormalizeDOI(ref[4:]))
	case strings.HasPrefix(lower, "arxiv:"):
		return withID(d, reference.KindArXiv, provider.NormalizeArXivID(ref[6:]))
	case bareDOIPattern.MatchString(ref):
		return withID(d, reference.KindDOI, provider.NormalizeDOI(ref))
	}
	if m := doiURLPattern.FindStringSubmatch(ref); m != nil {
		return withID(d, reference.KindDOI, provider.NormalizeDOI(m[1]))
	}
	if m := arxivURLPattern.FindStringSubmatch(ref); m != nil {
		return withID(d, reference.KindArXiv, provider.NormalizeArXivID(m[1]))
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return l.download(ctx, d, ref)
	}
	return l.readLocal(d, ref)
}

func withID(d reference.Draft, kind reference.IDKind, value string) (reference.Draft, error) {
	if value == "" {
		return reference.Draft{}, fmt.Errorf("%w: empty %s identifier", ErrFileOperation, kind)
	}
	return d.WithIdentifier(kind, value), nil
}

func (l *Library) readLocal(d reference.Draft, path string) (reference.Draft, error) {
	path = config.ExpandPath(path)
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return reference.Draft{}, fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
		path = abs
	}
	info, err := os.Stat(path)
	if err != nil {
		return reference.Draft{}, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	if info.IsDir() {
		return reference.Draft{}, fmt.Errorf("%w: %s is a directory", ErrFileOperation, path)
	}
	d.MainPath = path
	return d, nil
}

// download fetches a PDF into the incoming directory. The file is moved to
// its final name by Relocate.
func (l *Library) download(ctx context.Context, d reference.Draft, rawURL string) (reference.Draft, error) {
	if l.fetcher == nil {
		return reference.Draft{}, fmt.Errorf("%w: no fetcher configured for %s", ErrFileOperation, rawURL)
	}

	dir := filepath.Join(l.papersDir, incomingDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return reference.Draft{}, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	path := filepath.Join(dir, uuid.NewString()+".pdf")

	contentType, head, err := l.fetchTo(ctx, rawURL, path)
	if err != nil {
		l.removeIncoming(path)
		return reference.Draft{}, fmt.Errorf("%w: downloading %s: %v", ErrFileOperation, rawURL, err)
	}
	if !isPDF(contentType, head) {
		l.removeIncoming(path)
		return reference.Draft{}, fmt.Errorf("%w: %s is not a PDF (content type %q)", ErrFileOperation, rawURL, contentType)
	}

	d.MainPath = path
	if u, err := url.Parse(rawURL); err == nil {
		d = d.WithIdentifier(reference.KindURL, u.String())
	}
	return d, nil
}

// fetchTo writes the body at rawURL to path and returns its content type
// and first bytes. Fetchers that can stream write straight to the file.
func (l *Library) fetchTo(ctx context.Context, rawURL, path string) (string, []byte, error) {
	req := provider.Request{URL: rawURL}

	dl, ok := l.fetcher.(provider.Downloader)
	if !ok {
		resp, err := l.fetcher.Fetch(ctx, req)
		if err != nil {
			return "", nil, err
		}
		if err := os.WriteFile(path, resp.Body, 0644); err != nil {
			return "", nil, err
		}
		return resp.ContentType, resp.Body, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", nil, err
	}
	head := &headWriter{}
	contentType, err := dl.Download(ctx, req, io.MultiWriter(f, head))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return contentType, head.buf, err
}

func (l *Library) removeIncoming(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("could not remove download", zap.String("path", path), zap.Error(err))
	}
}

// headWriter keeps the first bytes written to it for content sniffing.
type headWriter struct {
	buf []byte
}

const sniffLen = 5

func (h *headWriter) Write(p []byte) (int, error) {
	if n := sniffLen - len(h.buf); n > 0 {
		h.buf = append(h.buf, p[:min(n, len(p))]...)
	}
	return len(p), nil
}

func isPDF(contentType string, head []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return len(head) >= sniffLen && string(head[:sniffLen]) == "%PDF-"
}

// Discard removes a downloaded file that was never relocated. Local files
// named by the user are left alone.
func (l *Library) Discard(d reference.Draft) {
	if d.MainPath == "" || !l.isIncoming(d.MainPath) {
		return
	}
	l.removeIncoming(d.MainPath)
}

func (l *Library) isIncoming(path string) bool {
	r, err := filepath.Rel(filepath.Join(l.papersDir, incomingDir), path)
	return err == nil && !strings.HasPrefix(r, "..")
}
