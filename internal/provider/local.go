package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/pdf"
	"github.com/matsen/plib/internal/reference"
)

// PDF reads identifiers and a title from the draft's main file. It fetches
// from the local filesystem instead of the network.
type PDF struct {
	// Root resolves relative main paths, normally the library directory.
	Root string
}

// NewPDF creates a PDF provider.
func NewPDF(root string) *PDF {
	return &PDF{Root: root}
}

func (p *PDF) Name() string { return config.ProviderPDF }

func (p *PDF) Applies(d reference.Draft) bool {
	return strings.EqualFold(filepath.Ext(d.MainPath), ".pdf")
}

func (p *PDF) BuildRequest(d reference.Draft) (Request, bool) {
	path := d.MainPath
	if !filepath.IsAbs(path) && p.Root != "" {
		path = filepath.Join(p.Root, path)
	}
	return Request{URL: path}, true
}

// Fetch reads the file named by req.URL.
func (p *PDF) Fetch(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	data, err := os.ReadFile(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return &Response{URL: req.URL, ContentType: "application/pdf", Body: data}, nil
}

func (p *PDF) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	md, err := pdf.ExtractMetadata(resp.Body)
	if err != nil {
		return nil, parseErrorf("pdf: %v", err)
	}

	patch := &reference.Patch{}
	// The first-line heuristic is only a fallback for drafts with no title.
	if strings.TrimSpace(d.Title) == "" && md.Title != "" {
		patch.Title = reference.String(md.Title)
	}
	if md.DOI != "" {
		patch.SetIdentifier(reference.KindDOI, NormalizeDOI(md.DOI))
	}
	if md.ArXivID != "" {
		patch.SetIdentifier(reference.KindArXiv, md.ArXivID)
	}
	return patch, nil
}
