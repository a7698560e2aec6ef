package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

func draftWith(title, venue string, ids map[reference.IDKind]string) reference.Draft {
	d := reference.NewDraft()
	d.Title = title
	d.Venue = venue
	for k, v := range ids {
		d = d.WithIdentifier(k, v)
	}
	return d
}

const cslBody = `{
  "type": "journal-article",
  "title": "Attention Is All You Need",
  "container-title": ["Advances in Neural Information Processing Systems"],
  "abstract": "<jats:p>The dominant sequence transduction models.</jats:p>",
  "author": [{"given": "Ashish", "family": "Vaswani"}, {"literal": "Google Brain"}],
  "issued": {"date-parts": [[2017, 12]]},
  "DOI": "10.5555/3295222.3295349"
}`

func TestDOI(t *testing.T) {
	p := NewDOI("https://doi.example/")
	d := draftWith("attention", "", map[reference.IDKind]string{reference.KindDOI: "https://doi.org/10.5555/3295222.3295349"})

	require.True(t, p.Applies(d))
	assert.False(t, p.Applies(reference.NewDraft()))

	req, ok := p.BuildRequest(d)
	require.True(t, ok)
	assert.Equal(t, "https://doi.example/10.5555/3295222.3295349", req.URL)
	assert.Contains(t, req.Headers["Accept"], "csl+json")

	patch, err := p.Parse(&Response{Body: []byte(cslBody)}, d)
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", *patch.Title)
	assert.Equal(t, "Advances in Neural Information Processing Systems", *patch.Venue)
	assert.Equal(t, "The dominant sequence transduction models.", *patch.Abstract)
	assert.Equal(t, reference.PublicationDate{Year: 2017, Month: 12}, *patch.Published)
	require.Len(t, patch.Authors, 2)
	assert.Equal(t, reference.Author{First: "Ashish", Last: "Vaswani"}, patch.Authors[0])
	assert.Equal(t, "10.5555/3295222.3295349", patch.IDs[reference.KindDOI])
}

func TestDOI_PostedContentHasNoVenue(t *testing.T) {
	body := `{"type":"posted-content","title":"A bioRxiv paper","container-title":"bioRxiv","issued":{"date-parts":[[2021]]}}`
	patch, err := NewDOI("").Parse(&Response{Body: []byte(body)}, reference.NewDraft())
	require.NoError(t, err)
	assert.Nil(t, patch.Venue)
}

func TestDOI_ParseFailures(t *testing.T) {
	for _, body := range []string{"not json", `{"type":"journal-article"}`} {
		_, err := NewDOI("").Parse(&Response{Body: []byte(body)}, reference.NewDraft())
		assert.True(t, IsParseFailure(err), body)
	}
}

const arxivBody = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models.
    </summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <arxiv:doi>10.48550/arXiv.1706.03762</arxiv:doi>
  </entry>
</feed>`

func TestArXiv(t *testing.T) {
	p := NewArXiv("")
	d := draftWith("", "", map[reference.IDKind]string{reference.KindArXiv: "arXiv:1706.03762v7"})
	require.True(t, p.Applies(d))
	assert.False(t, p.Applies(draftWith("", "Nature", map[reference.IDKind]string{reference.KindArXiv: "1706.03762"})))

	req, ok := p.BuildRequest(d)
	require.True(t, ok)
	assert.Equal(t, ArXivBaseURL+"/api/query?id_list=1706.03762", req.URL)

	patch, err := p.Parse(&Response{Body: []byte(arxivBody)}, d)
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", *patch.Title)
	assert.Equal(t, "The dominant sequence transduction models.", *patch.Abstract)
	assert.Equal(t, "arXiv", *patch.Venue)
	assert.Equal(t, 2017, patch.Published.Year)
	assert.Equal(t, []reference.Author{{First: "Ashish", Last: "Vaswani"}, {First: "Noam", Last: "Shazeer"}}, patch.Authors)
	assert.Equal(t, "10.48550/arxiv.1706.03762", patch.IDs[reference.KindDOI])
}

func TestArXiv_ErrorEntry(t *testing.T) {
	body := `<feed xmlns="http://www.w3.org/2005/Atom"><entry><title>Error</title></entry></feed>`
	_, err := NewArXiv("").Parse(&Response{Body: []byte(body)}, reference.NewDraft())
	assert.True(t, IsParseFailure(err))
}

func TestSemanticScholar_Requests(t *testing.T) {
	p := NewSemanticScholar("https://s2.example", "key")

	req, ok := p.BuildRequest(draftWith("T", "", map[reference.IDKind]string{reference.KindDOI: "10.1/X"}))
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(req.URL, "https://s2.example/paper/DOI:10.1/x?fields="))
	assert.Equal(t, "key", req.Headers["x-api-key"])

	req, _ = p.BuildRequest(draftWith("T", "", map[reference.IDKind]string{reference.KindArXiv: "2101.00001v2"}))
	assert.True(t, strings.HasPrefix(req.URL, "https://s2.example/paper/ARXIV:2101.00001?"))

	req, _ = p.BuildRequest(draftWith("Deep Nets", "", nil))
	assert.Contains(t, req.URL, "/paper/search/match?query=Deep+Nets")

	assert.False(t, p.Applies(draftWith("", "", nil)))
	assert.False(t, p.Applies(draftWith("Deep Nets", "Nature", nil)))
}

func TestSemanticScholar_Parse(t *testing.T) {
	p := NewSemanticScholar("", "")
	body := `{"paperId":"abc123","title":"Deep Nets","venue":"ICML","year":2020,
		"publicationDate":"2020-07-13","authors":[{"name":"Jane Doe"}],
		"externalIds":{"DOI":"10.1/ABC","ArXiv":"2001.00001","DBLP":"conf/icml/Doe20","CorpusId":42}}`

	patch, err := p.Parse(&Response{URL: "https://x/paper/DOI:10.1/abc", Body: []byte(body)}, draftWith("Deep Nets", "", nil))
	require.NoError(t, err)
	assert.Equal(t, "ICML", *patch.Venue)
	assert.Equal(t, reference.PublicationDate{Year: 2020, Month: 7, Day: 13}, *patch.Published)
	assert.Equal(t, "abc123", patch.IDs[reference.KindS2])
	assert.Equal(t, "10.1/abc", patch.IDs[reference.KindDOI])
	assert.Equal(t, "conf/icml/Doe20", patch.IDs[reference.KindDBLP])
}

func TestSemanticScholar_MatchRequiresSameTitle(t *testing.T) {
	p := NewSemanticScholar("", "")
	body := `{"data":[{"paperId":"x","title":"Something Else","venue":"ICML"}]}`
	_, err := p.Parse(&Response{URL: "https://x/paper/search/match?query=a", Body: []byte(body)}, draftWith("Deep Nets", "", nil))
	assert.True(t, IsParseFailure(err))
}

func TestSemanticScholar_PreprintVenueNotWritten(t *testing.T) {
	body := `{"paperId":"x","title":"Deep Nets","venue":"arXiv.org","year":2020}`
	patch, err := NewSemanticScholar("", "").Parse(&Response{URL: "https://x/paper/ARXIV:1", Body: []byte(body)}, draftWith("Deep Nets", "", nil))
	require.NoError(t, err)
	assert.Nil(t, patch.Venue)
}

const dblpBody = `{"result":{"hits":{"hit":[
  {"info":{"title":"Deep Nets.","venue":"CoRR","year":"2020","key":"journals/corr/abs-2001-00001",
    "authors":{"author":{"text":"Jane Doe"}}}},
  {"info":{"title":"Deep Nets.","venue":"ICML","year":"2020","key":"conf/icml/Doe20","doi":"10.1/ICML",
    "authors":{"author":[{"text":"Jane Doe"},{"text":"Wei Wang 0001"}]}}}
]}}}`

func TestDBLP(t *testing.T) {
	providers := NewDBLPSources("https://dblp.example")
	require.Len(t, providers, 4)
	for _, p := range providers {
		assert.Equal(t, config.ProviderDBLP, p.Name())
	}
	keys := []string{}
	for _, p := range providers {
		keys = append(keys, p.(keyed).Key())
	}
	assert.Equal(t, []string{"dblp", "dblp-by-time-0", "dblp-by-time-1", "dblp-venue"}, keys)

	d := draftWith("Deep Nets", "arXiv", nil)
	d.Published = reference.PublicationDate{Year: 2020}

	req, ok := providers[0].BuildRequest(d)
	require.True(t, ok)
	assert.Equal(t, "https://dblp.example/search/publ/api?format=json&h=10&q=Deep+Nets", req.URL)
	req, _ = providers[2].BuildRequest(d)
	assert.Contains(t, req.URL, "year%3A2021%3A")

	patch, err := providers[0].Parse(&Response{Body: []byte(dblpBody)}, d)
	require.NoError(t, err)
	require.NotNil(t, patch)
	assert.Equal(t, "Deep Nets", *patch.Title)
	assert.Equal(t, "ICML", *patch.Venue)
	assert.Equal(t, 2020, patch.Published.Year)
	assert.Equal(t, []reference.Author{{First: "Jane", Last: "Doe"}, {First: "Wei", Last: "Wang"}}, patch.Authors)
	assert.Equal(t, "conf/icml/Doe20", patch.IDs[reference.KindDBLP])
}

func TestDBLP_ByTimeNeedsYear(t *testing.T) {
	providers := NewDBLPSources("")
	d := draftWith("Deep Nets", "", nil)
	assert.True(t, providers[0].Applies(d))
	assert.False(t, providers[1].Applies(d))
	assert.False(t, providers[0].Applies(draftWith("Deep Nets", "ICML", nil)))
}

func TestDBLP_OnlyCoRRMatch(t *testing.T) {
	body := `{"result":{"hits":{"hit":[{"info":{"title":"Deep Nets","venue":"CoRR","year":"2020","key":"journals/corr/x"}}]}}}`
	patch, err := NewDBLPSources("")[0].Parse(&Response{Body: []byte(body)}, draftWith("Deep Nets", "", nil))
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}

func TestDBLPVenue(t *testing.T) {
	p := NewDBLPSources("https://dblp.example")[3]
	d := draftWith("Deep Nets", "ICML", map[reference.IDKind]string{reference.KindDBLP: "conf/icml/Doe20"})
	require.True(t, p.Applies(d))
	assert.False(t, p.Applies(draftWith("Deep Nets", "CoRR", map[reference.IDKind]string{reference.KindDBLP: "journals/corr/abs-1"})))

	body := `{"result":{"hits":{"hit":[
	  {"info":{"venue":"ICML Workshop","url":"https://dblp.org/db/conf/icmlw/"}},
	  {"info":{"venue":"International Conference on Machine Learning (ICML)","url":"https://dblp.org/db/conf/icml/"}}
	]}}}`
	patch, err := p.Parse(&Response{Body: []byte(body)}, d)
	require.NoError(t, err)
	assert.Equal(t, "International Conference on Machine Learning (ICML)", *patch.Venue)
}

func TestOpenReview(t *testing.T) {
	p := NewOpenReview("")
	d := draftWith("Deep Nets", "openreview.net", nil)
	require.True(t, p.Applies(d))

	body := `{"notes":[
	  {"id":"rej","content":{"title":{"value":"Deep Nets"},"venue":{"value":"Submitted to ICLR 2022"}}},
	  {"id":"acc","pdate":1651363200000,"content":{"title":{"value":"Deep Nets"},"venue":{"value":"ICLR 2023 poster"},
	    "authors":{"value":["Jane Doe"]},"abstract":{"value":"We study nets."}}}
	]}`
	patch, err := p.Parse(&Response{Body: []byte(body)}, d)
	require.NoError(t, err)
	assert.Equal(t, "ICLR 2023 poster", *patch.Venue)
	assert.Equal(t, "acc", patch.IDs[reference.KindOpenReview])
	assert.Equal(t, 2022, patch.Published.Year)
}

func TestCustom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10.1/abc", r.URL.Query().Get("doi"))
		w.Write([]byte(`{"message":{"title":["Mirror Title"],"container-title":["Journal of Mirrors"],
			"issued":{"date-parts":[[2019,1]]},"author":[{"given":"Jane","family":"Doe"}]}}`))
	}))
	defer server.Close()

	p, err := NewCustom(config.ProviderConfig{
		Name: "mirror",
		Kind: config.KindCustom,
		Options: config.ProviderParams{
			URLTemplate: server.URL + "/works?doi={doi}",
			Fields: map[string]string{
				"title":   "message.title",
				"venue":   "message.container-title",
				"year":    "message.issued.date-parts.0.0",
				"authors": "message.author",
			},
		},
	})
	require.NoError(t, err)

	assert.False(t, p.Applies(reference.NewDraft()))
	d := draftWith("", "", map[reference.IDKind]string{reference.KindDOI: "10.1/ABC"})
	require.True(t, p.Applies(d))

	src := &Source{Key: "mirror", Provider: p, Enabled: true, Fetcher: NewHTTPFetcher()}
	out, outcome := src.Scrape(context.Background(), d, false)
	require.Equal(t, StatusApplied, outcome.Status, "%v", outcome.Err)
	assert.Equal(t, "Mirror Title", out.Title)
	assert.Equal(t, "Journal of Mirrors", out.Venue)
	assert.Equal(t, 2019, out.Published.Year)
	assert.Equal(t, []reference.Author{{First: "Jane", Last: "Doe"}}, out.Authors)
}

func TestNewCustom_Invalid(t *testing.T) {
	_, err := NewCustom(config.ProviderConfig{Name: "x", Kind: config.KindCustom})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPDF_MissingFile(t *testing.T) {
	p := NewPDF(t.TempDir())
	d := reference.NewDraft()
	d.MainPath = "papers/missing.pdf"
	require.True(t, p.Applies(d))

	src := &Source{Key: "pdf", Provider: p, Enabled: true}
	out, outcome := src.Scrape(context.Background(), d, false)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.True(t, IsUnavailable(outcome.Err))
	assert.Equal(t, d, out)
}

func TestPDF_NotApplicable(t *testing.T) {
	d := reference.NewDraft()
	d.MainPath = "notes.txt"
	assert.False(t, NewPDF("").Applies(d))
}
