package library

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/provider"
	"github.com/matsen/plib/internal/reference"
)

type stubFetcher struct {
	resp *provider.Response
	err  error
	urls []string
}

func (f *stubFetcher) Fetch(_ context.Context, req provider.Request) (*provider.Response, error) {
	f.urls = append(f.urls, req.URL)
	return f.resp, f.err
}

func newTestLibrary(t *testing.T, layout string, fetcher provider.Fetcher) *Library {
	t.Helper()
	cfg := config.Default()
	cfg.Layout = layout
	return New(t.TempDir(), cfg, fetcher, nil)
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRead_Identifiers(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)

	tests := []struct {
		ref   string
		kind  reference.IDKind
		value string
	}{
		{"doi:10.1000/ABC", reference.KindDOI, "10.1000/abc"},
		{"10.1000/xyz", reference.KindDOI, "10.1000/xyz"},
		{"https://doi.org/10.1000/xyz", reference.KindDOI, "10.1000/xyz"},
		{"arxiv:2301.00001v2", reference.KindArXiv, "2301.00001"},
		{"https://arxiv.org/abs/2301.00001", reference.KindArXiv, "2301.00001"},
		{"https://arxiv.org/pdf/2301.00001v1.pdf", reference.KindArXiv, "2301.00001"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			d, err := lib.Read(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.NotEmpty(t, d.ID)
			assert.Equal(t, tt.value, d.Identifier(tt.kind))
			assert.Empty(t, d.MainPath)
		})
	}
}

func TestRead_InvalidIdentifier(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	_, err := lib.Read(context.Background(), "arxiv:not-an-id")
	assert.True(t, errors.Is(err, ErrFileOperation))
}

func TestRead_LocalFile(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	path := writeFile(t, filepath.Join(t.TempDir(), "paper.pdf"), "%PDF-1.4")

	d, err := lib.Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, d.MainPath)
}

func TestRead_MissingFile(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	_, err := lib.Read(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	assert.True(t, errors.Is(err, ErrFileOperation))
}

func TestRead_Directory(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	_, err := lib.Read(context.Background(), t.TempDir())
	assert.True(t, errors.Is(err, ErrFileOperation))
}

func TestRead_DownloadsPDF(t *testing.T) {
	fetcher := &stubFetcher{resp: &provider.Response{StatusCode: 200, ContentType: "application/pdf", Body: []byte("%PDF-1.7 body")}}
	lib := newTestLibrary(t, config.LayoutTitle, fetcher)

	d, err := lib.Read(context.Background(), "https://example.org/paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.org/paper.pdf"}, fetcher.urls)
	assert.Equal(t, "https://example.org/paper.pdf", d.Identifier(reference.KindURL))
	assert.True(t, lib.isIncoming(d.MainPath))

	data, err := os.ReadFile(d.MainPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 body", string(data))

	lib.Discard(d)
	_, err = os.Stat(d.MainPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRead_DownloadNotPDF(t *testing.T) {
	fetcher := &stubFetcher{resp: &provider.Response{StatusCode: 200, ContentType: "text/html", Body: []byte("<html>")}}
	lib := newTestLibrary(t, config.LayoutTitle, fetcher)

	_, err := lib.Read(context.Background(), "https://example.org/landing")
	assert.True(t, errors.Is(err, ErrFileOperation))
}

func TestRead_StreamsLargeDownload(t *testing.T) {
	body := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("x"), 12<<20)...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	}))
	defer server.Close()
	lib := newTestLibrary(t, config.LayoutTitle, provider.NewHTTPFetcher())

	d, err := lib.Read(context.Background(), server.URL+"/paper.pdf")
	require.NoError(t, err)

	info, err := os.Stat(d.MainPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), info.Size())
}

func TestRead_StreamedNotPDFRemovesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login</html>"))
	}))
	defer server.Close()
	lib := newTestLibrary(t, config.LayoutTitle, provider.NewHTTPFetcher())

	_, err := lib.Read(context.Background(), server.URL+"/landing")
	assert.True(t, errors.Is(err, ErrFileOperation))

	entries, err := os.ReadDir(filepath.Join(lib.papersDir, incomingDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRead_DownloadFails(t *testing.T) {
	fetcher := &stubFetcher{err: provider.ErrSourceUnavailable}
	lib := newTestLibrary(t, config.LayoutTitle, fetcher)

	_, err := lib.Read(context.Background(), "https://example.org/paper.pdf")
	assert.True(t, errors.Is(err, ErrFileOperation))
}

func TestRead_URLWithoutFetcher(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	_, err := lib.Read(context.Background(), "https://example.org/paper.pdf")
	assert.True(t, errors.Is(err, ErrFileOperation))
}

func TestDiscard_LeavesUserFiles(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	path := writeFile(t, filepath.Join(t.TempDir(), "mine.pdf"), "x")

	lib.Discard(reference.Draft{MainPath: path})
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestRelocate_CopiesExternalFiles(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	src := writeFile(t, filepath.Join(t.TempDir(), "download.PDF"), "main")
	sup := writeFile(t, filepath.Join(t.TempDir(), "data.zip"), "sup")

	d := reference.NewDraft()
	d.Title = "Deep Learning: A Survey?"
	d.MainPath = src
	d.SupplementPaths = []string{sup}

	out, r, err := lib.Relocate(d)
	require.NoError(t, err)

	wantMain := filepath.Join("papers", "Deep_Learning_A_Survey_"+d.ID[:8]+".pdf")
	wantSup := filepath.Join("papers", "Deep_Learning_A_Survey_"+d.ID[:8]+"_sup1.zip")
	assert.Equal(t, wantMain, out.MainPath)
	assert.Equal(t, []string{wantSup}, out.SupplementPaths)
	assert.Len(t, r.Moves, 2)
	assert.True(t, r.Moves[0].Copied)

	_, err = os.Stat(src)
	assert.NoError(t, err, "user's original is kept")
	_, err = os.Stat(lib.Abs(out.MainPath))
	assert.NoError(t, err)

	// Input draft is untouched.
	assert.Equal(t, src, d.MainPath)
}

func TestRelocate_IDLayout(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutID, nil)
	src := writeFile(t, filepath.Join(t.TempDir(), "a.pdf"), "main")

	d := reference.NewDraft()
	d.Title = "Ignored"
	d.MainPath = src

	out, _, err := lib.Relocate(d)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("papers", d.ID+".pdf"), out.MainPath)
}

func TestRelocate_MovesDownloads(t *testing.T) {
	fetcher := &stubFetcher{resp: &provider.Response{ContentType: "application/pdf", Body: []byte("%PDF-")}}
	lib := newTestLibrary(t, config.LayoutTitle, fetcher)

	d, err := lib.Read(context.Background(), "https://example.org/x.pdf")
	require.NoError(t, err)
	downloaded := d.MainPath
	d.Title = "Downloaded Paper"

	out, r, err := lib.Relocate(d)
	require.NoError(t, err)
	require.Len(t, r.Moves, 1)
	assert.False(t, r.Moves[0].Copied)

	_, err = os.Stat(downloaded)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(lib.Abs(out.MainPath))
	assert.NoError(t, err)
}

func TestRelocate_AlreadyInPlace(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	d := reference.NewDraft()
	d.Title = "Stable"
	d.MainPath = writeFile(t, filepath.Join(t.TempDir(), "s.pdf"), "x")

	first, _, err := lib.Relocate(d)
	require.NoError(t, err)

	second, r, err := lib.Relocate(first)
	require.NoError(t, err)
	assert.Empty(t, r.Moves)
	assert.Equal(t, first.MainPath, second.MainPath)
}

func TestRelocate_RenamesOnTitleChange(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	d := reference.NewDraft()
	d.Title = "Old Title"
	d.MainPath = writeFile(t, filepath.Join(t.TempDir(), "s.pdf"), "x")

	first, _, err := lib.Relocate(d)
	require.NoError(t, err)

	first.Title = "New Title"
	second, r, err := lib.Relocate(first)
	require.NoError(t, err)
	require.Len(t, r.Moves, 1)
	assert.False(t, r.Moves[0].Copied)
	assert.True(t, strings.HasPrefix(filepath.Base(second.MainPath), "New_Title_"))

	lib.Undo(r)
	_, err = os.Stat(lib.Abs(first.MainPath))
	assert.NoError(t, err, "undo moves the file back")
	_, err = os.Stat(lib.Abs(second.MainPath))
	assert.True(t, os.IsNotExist(err))
}

func TestRelocate_MissingFileLeavesNothingBehind(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	d := reference.NewDraft()
	d.Title = "Partial"
	d.MainPath = writeFile(t, filepath.Join(t.TempDir(), "m.pdf"), "x")
	d.SupplementPaths = []string{filepath.Join(t.TempDir(), "missing.zip")}

	_, _, err := lib.Relocate(d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileOperation))

	entries, err := os.ReadDir(filepath.Join(lib.Root(), "papers"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRelocate_NoFiles(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	d := reference.NewDraft()

	out, r, err := lib.Relocate(d)
	require.NoError(t, err)
	assert.Empty(t, r.Moves)
	assert.Equal(t, d, out)
}

func TestUndo_RemovesCopies(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	src := writeFile(t, filepath.Join(t.TempDir(), "m.pdf"), "x")
	d := reference.NewDraft()
	d.Title = "Copied"
	d.MainPath = src

	out, r, err := lib.Relocate(d)
	require.NoError(t, err)

	lib.Undo(r)
	_, err = os.Stat(lib.Abs(out.MainPath))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(src)
	assert.NoError(t, err)
	assert.Empty(t, r.Moves)

	lib.Undo(nil)
}

func TestSupplementNaming_SkipsTaken(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutID, nil)
	d := reference.NewDraft()
	d.MainPath = writeFile(t, filepath.Join(t.TempDir(), "m.pdf"), "x")
	writeFile(t, filepath.Join(lib.Root(), "papers", d.ID+"_sup1.pdf"), "stale")
	d.SupplementPaths = []string{writeFile(t, filepath.Join(t.TempDir(), "s.pdf"), "s")}

	out, _, err := lib.Relocate(d)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("papers", d.ID+"_sup2.pdf")}, out.SupplementPaths)
}

func TestRemove(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	main := writeFile(t, filepath.Join(lib.Root(), "papers", "a.pdf"), "x")
	d := reference.Draft{MainPath: filepath.Join("papers", "a.pdf"), SupplementPaths: []string{"papers/gone.zip"}}

	require.NoError(t, lib.Remove(d))
	_, err := os.Stat(main)
	assert.True(t, os.IsNotExist(err))
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Attention Is All You Need", "Attention_Is_All_You_Need"},
		{"  a/b\\c: d  ", "a_b_c_d"},
		{"Über-Größe", "Über_Größe"},
		{"???", ""},
		{strings.Repeat("x", 100), strings.Repeat("x", maxStemLength)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeTitle(tt.in), tt.in)
	}
}

func TestBaseName_EmptyTitleUsesID(t *testing.T) {
	lib := newTestLibrary(t, config.LayoutTitle, nil)
	d := reference.Draft{ID: "0123456789abcdef"}
	assert.Equal(t, "01234567", lib.baseName(d))
}
