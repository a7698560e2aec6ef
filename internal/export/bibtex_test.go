package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matsen/plib/internal/reference"
)

func journalPaper() reference.Draft {
	return reference.Draft{
		ID:    "0f1e2d3c-aaaa-bbbb-cccc-000000000000",
		Title: "The Structure of Proteins",
		Authors: []reference.Author{
			{First: "John", Last: "Smith"},
			{First: "Jane", Last: "Doe"},
		},
		Abstract:  "This is the abstract",
		Venue:     "Nature",
		Published: reference.PublicationDate{Year: 2026, Month: 3},
		IDs:       map[reference.IDKind]string{reference.KindDOI: "10.1234/test"},
	}
}

func TestToBibTeX_Article(t *testing.T) {
	got := ToBibTeX(journalPaper(), "smith2026structure")

	want := []string{
		"@article{smith2026structure,",
		`author = {Smith, John and Doe, Jane}`,
		`title = {The Structure of Proteins}`,
		`journal = {Nature}`,
		`year = {2026}`,
		`month = {3}`,
		`doi = {10.1234/test}`,
		`abstract = {This is the abstract}`,
	}
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("ToBibTeX() missing %q, got:\n%s", w, got)
		}
	}
	if !strings.HasSuffix(got, "}\n") {
		t.Errorf("ToBibTeX() should end with }, got:\n%s", got)
	}
}

func TestToBibTeX_Inproceedings(t *testing.T) {
	d := reference.Draft{
		Title:     "A Conference Paper",
		Venue:     "Proceedings of ICML 2026",
		Published: reference.PublicationDate{Year: 2026},
	}
	got := ToBibTeX(d, "k")
	if !strings.HasPrefix(got, "@inproceedings{k,") {
		t.Errorf("conference paper should be @inproceedings, got:\n%s", got)
	}
	if !strings.Contains(got, `booktitle = {Proceedings of ICML 2026}`) {
		t.Errorf("conference paper should use booktitle, got:\n%s", got)
	}
}

func TestToBibTeX_PreprintWithArXiv(t *testing.T) {
	d := reference.Draft{
		Title: "Attention Is All You Need",
		Venue: "arXiv",
		IDs:   map[reference.IDKind]string{reference.KindArXiv: "1706.03762"},
	}
	got := ToBibTeX(d, "k")
	for _, w := range []string{"@misc{k,", "eprint = {1706.03762}", "archivePrefix = {arXiv}", "howpublished = {arXiv}"} {
		if !strings.Contains(got, w) {
			t.Errorf("missing %q in:\n%s", w, got)
		}
	}
	if strings.Contains(got, "year =") {
		t.Errorf("unknown year should be omitted:\n%s", got)
	}
}

func TestEntryType(t *testing.T) {
	tests := []struct {
		venue string
		want  string
	}{
		{"Nature", entryArticle},
		{"bioRxiv", entryMisc},
		{"OpenReview", entryMisc},
		{"", entryMisc},
		{"International Conference on Machine Learning", entryInproceedings},
		{"Workshop on AI Safety", entryInproceedings},
		{"Symposium on Theory of Computing", entryInproceedings},
	}
	for _, tt := range tests {
		t.Run(tt.venue, func(t *testing.T) {
			if got := entryType(reference.Draft{Venue: tt.venue}); got != tt.want {
				t.Errorf("entryType(%q) = %q, want %q", tt.venue, got, tt.want)
			}
		})
	}
}

func TestCitationKey(t *testing.T) {
	tests := []struct {
		name string
		d    reference.Draft
		want string
	}{
		{"full", journalPaper(), "smith2026structure"},
		{
			"accents and stop words",
			reference.Draft{
				Title:     "On the Müller Effect",
				Authors:   []reference.Author{{First: "Ana", Last: "O'Brien-García"}},
				Published: reference.PublicationDate{Year: 2020},
			},
			"obriengarca2020mller",
		},
		{"id fallback", reference.Draft{ID: "12345678-abcd"}, "paper12345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CitationKey(tt.d); got != tt.want {
				t.Errorf("CitationKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteBibTeX_UniqueKeys(t *testing.T) {
	p := journalPaper()
	var buf bytes.Buffer
	if err := WriteBibTeX(&buf, []reference.Draft{p, p, p}); err != nil {
		t.Fatalf("WriteBibTeX() error = %v", err)
	}
	out := buf.String()
	for _, key := range []string{"{smith2026structure,", "{smith2026structurea,", "{smith2026structureb,"} {
		if !strings.Contains(out, key) {
			t.Errorf("missing key %s in:\n%s", key, out)
		}
	}
	if n := strings.Count(out, "@article"); n != 3 {
		t.Errorf("got %d entries, want 3", n)
	}
}

func TestWriteBibTeX_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBibTeX(&buf, nil); err != nil {
		t.Fatalf("WriteBibTeX() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty output, got %q", buf.String())
	}
}

func TestEscapeLatex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"A & B", `A \& B`},
		{"50%", `50\%`},
		{"x_1", `x\_1`},
		{"{set}", `\{set\}`},
		{"a~b^c", `a\textasciitilde{}b\textasciicircum{}c`},
		{`back\slash`, `back\textbackslash{}slash`},
	}
	for _, tt := range tests {
		if got := escapeLatex(tt.in); got != tt.want {
			t.Errorf("escapeLatex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
