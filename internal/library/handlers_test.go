package library

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shelfcheck/internal/dom"
)

type testApp struct {
	server *httptest.Server
	client *http.Client
	store  *Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store, _ := newTestStore(t)

	handler := NewHandler(store, arbor.NewLogger())
	handler.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	server := httptest.NewServer(NewServer(handler, "127.0.0.1", 0, arbor.NewLogger()).server.Handler)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testApp{server: server, client: &http.Client{Jar: jar}, store: store}
}

func (a *testApp) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (a *testApp) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	html, err := doc.Html()
	require.NoError(t, err)
	return html
}

func TestIndexRedirectsToCatalog(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasSuffix(resp.Request.URL.Path, "/catalog"))

	catalog, err := dom.ParseCatalog(body)
	require.NoError(t, err)
	assert.Equal(t, len(seedBooks), catalog.Len())
}

func TestCatalogRowContract(t *testing.T) {
	app := newTestApp(t)

	_, body := app.get(t, "/catalog")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)

	row := doc.Find(dom.CatalogRows).First()
	assert.Contains(t, row.Text(), "The Great Gatsby")
	assert.Equal(t, 1, row.Find(dom.ByName(dom.PatronIDField)).Length())
	assert.Equal(t, 1, row.Find(dom.BorrowButton).Length())
	assert.Equal(t, "/borrow/1", row.Find("form").AttrOr("action", ""))
}

func TestAddBookFormContract(t *testing.T) {
	app := newTestApp(t)

	_, body := app.get(t, "/add_book")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)

	for _, id := range []string{"title", "author", "isbn", "total_copies"} {
		assert.Equal(t, 1, doc.Find(dom.ByID(id)).Length(), "missing field %s", id)
	}
	assert.Equal(t, 1, doc.Find(dom.SubmitButton).Length())
}

func TestAddBook(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.post(t, "/add_book", url.Values{
		"title":        {"E2E Selenium book"},
		"author":       {"E2E tester"},
		"isbn":         {"9998881130322"},
		"total_copies": {"3"},
	})
	assert.Equal(t, "/catalog", resp.Request.URL.Path, "submission should redirect to the catalog")

	flashes, err := dom.ParseFlashes(body)
	require.NoError(t, err)
	require.Len(t, flashes, 1)
	assert.Equal(t, dom.FlashSuccess, flashes[0].Kind)
	assert.NoError(t, dom.ContainsFold("flash", flashes[0].Text, "e2e selenium book", "successfully", "added to the catalog"))

	catalog, err := dom.ParseCatalog(body)
	require.NoError(t, err)
	assert.Equal(t, len(seedBooks)+1, catalog.Len())

	row, err := catalog.FindByCell("E2E Selenium book")
	require.NoError(t, err)
	assert.NoError(t, dom.ContainsAll("row", row.Text, "E2E tester", "9998881130322"))

	// Flashes are shown once
	_, body = app.get(t, "/catalog")
	flashes, err = dom.ParseFlashes(body)
	require.NoError(t, err)
	assert.Empty(t, flashes)
}

func TestAddBookAcceptsLongISBN(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.post(t, "/add_book", url.Values{
		"title":        {"Long ISBN book"},
		"author":       {"E2E tester"},
		"isbn":         {"99988811303221234"},
		"total_copies": {"1"},
	})
	assert.Equal(t, "/catalog", resp.Request.URL.Path)

	catalog, err := dom.ParseCatalog(body)
	require.NoError(t, err)
	row, err := catalog.FindByCell("Long ISBN book")
	require.NoError(t, err)
	assert.Contains(t, row.Text, "99988811303221234")
}

func TestAddBookRejectsInvalidForm(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.post(t, "/add_book", url.Values{
		"title":        {"No ISBN"},
		"author":       {"Someone"},
		"isbn":         {"abc"},
		"total_copies": {"0"},
	})
	assert.Equal(t, "/add_book", resp.Request.URL.Path)

	flashes, err := dom.ParseFlashes(body)
	require.NoError(t, err)
	require.Len(t, flashes, 1)
	assert.Equal(t, dom.FlashError, flashes[0].Kind)

	books, err := app.store.Books(resp.Request.Context())
	require.NoError(t, err)
	assert.Len(t, books, len(seedBooks))
}

func TestBorrowHandler(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.post(t, "/borrow/1", url.Values{"patron_id": {"708888"}})
	assert.Equal(t, "/catalog", resp.Request.URL.Path)

	flashes, err := dom.ParseFlashes(body)
	require.NoError(t, err)
	require.Len(t, flashes, 1)
	assert.Equal(t, dom.FlashSuccess, flashes[0].Kind)
	assert.Equal(t, `"The Great Gatsby" borrowed by patron 708888. Due date: 2026-11-02.`, flashes[0].Text)

	due, err := dom.ExtractDueDate(flashes[0].Text)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC), due)
}

func TestBorrowErrors(t *testing.T) {
	app := newTestApp(t)

	_, body := app.post(t, "/borrow/1", url.Values{"patron_id": {""}})
	flashes, err := dom.ParseFlashes(body)
	require.NoError(t, err)
	require.Len(t, flashes, 1)
	assert.Equal(t, dom.FlashError, flashes[0].Kind)

	// Pride and Prejudice has one copy
	app.post(t, "/borrow/4", url.Values{"patron_id": {"1"}})
	_, body = app.post(t, "/borrow/4", url.Values{"patron_id": {"2"}})
	flashes, err = dom.ParseFlashes(body)
	require.NoError(t, err)
	require.Len(t, flashes, 1)
	assert.Equal(t, dom.FlashError, flashes[0].Kind)
	assert.Contains(t, flashes[0].Text, "No copies")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	_, disabled := doc.Find(dom.NthRow(3)).Find(dom.ByName(dom.PatronIDField)).Attr("disabled")
	assert.True(t, disabled, "patron field is disabled when no copies remain")

	resp, err := app.client.PostForm(app.server.URL+"/borrow/999", url.Values{"patron_id": {"1"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
