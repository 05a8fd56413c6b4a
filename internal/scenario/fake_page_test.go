package scenario

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	"github.com/ternarybob/shelfcheck/internal/dom"
)

type fakeBook struct {
	Title  string
	Author string
	ISBN   string
	Copies int
}

// fakePage is an in-memory stand-in for the library app rendered in a browser
type fakePage struct {
	mu sync.Mutex

	books []fakeBook
	url   string

	fields  map[string]string
	success string
	failure string

	// Behaviour switches
	addFormURL      string // location reported after opening /add_book
	stayAfterSubmit bool
	duplicateAdds   bool
	alsoShowError   bool
	addedFlash      string
	borrowFlash     string
	disablePatron   bool
	extraBodies     int // table bodies rendered besides the catalog's

	navigations []string
}

func newFakePage() *fakePage {
	return &fakePage{
		books: []fakeBook{
			{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "9780743273565", Copies: 3},
			{Title: "To Kill a Mockingbird", Author: "Harper Lee", ISBN: "9780061120084", Copies: 2},
			{Title: "1984", Author: "George Orwell", ISBN: "9780451524935", Copies: 4},
		},
		fields: map[string]string{},
	}
}

func (p *fakePage) onCatalog() bool {
	return strings.Contains(p.url, "/catalog")
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	p.url = url
	p.success, p.failure = "", ""
	if strings.HasSuffix(url, "/add_book") && p.addFormURL != "" {
		p.url = p.addFormURL
	}
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) WaitPresent(ctx context.Context, selector string) error {
	p.mu.Lock()
	present := selector == "#title" && strings.Contains(p.url, "/add_book")
	p.mu.Unlock()
	if present {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	if n, _ := p.VisibleCount(ctx, selector); n > 0 {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) Count(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == dom.CatalogBody && p.onCatalog() {
		return 1 + p.extraBodies, nil
	}
	if selector != dom.CatalogRows || !p.onCatalog() {
		return 0, nil
	}
	return len(p.books), nil
}

func (p *fakePage) Texts(ctx context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector != dom.CatalogRows || !p.onCatalog() {
		return nil, nil
	}
	texts := make([]string, 0, len(p.books))
	for _, b := range p.books {
		texts = append(texts, fmt.Sprintf("%s\t%s\t%s\t%d\tBorrow", b.Title, b.Author, b.ISBN, b.Copies))
	}
	return texts, nil
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case dom.SuccessFlash:
		return p.success, nil
	case dom.ErrorFlash:
		return p.failure, nil
	}
	return "", fmt.Errorf("no text for %s", selector)
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[selector] = value
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if selector == dom.SubmitButton {
		if p.stayAfterSubmit {
			return nil
		}
		copies, _ := strconv.Atoi(p.fields["#total_copies"])
		book := fakeBook{Title: p.fields["#title"], Author: p.fields["#author"], ISBN: p.fields["#isbn"], Copies: copies}
		p.books = append(p.books, book)
		if p.duplicateAdds {
			p.books = append(p.books, book)
		}
		p.url = strings.Replace(p.url, "/add_book", "/catalog", 1)
		p.success = fmt.Sprintf("Book %q was successfully added to the catalog.", book.Title)
		if p.addedFlash != "" {
			p.success = p.addedFlash
		}
		if p.alsoShowError {
			p.failure = "Something went wrong"
		}
		return nil
	}

	var index int
	if _, err := fmt.Sscanf(selector, dom.CatalogRows+":nth-of-type(%d) "+dom.BorrowButton, &index); err == nil {
		book := p.books[index-1]
		patron := p.fields[dom.Within(dom.NthRow(index-1), dom.ByName(dom.PatronIDField))]
		p.success = fmt.Sprintf("%q borrowed by patron %s. Due date: 2026-11-02.", book.Title, patron)
		if p.borrowFlash != "" {
			p.success = p.borrowFlash
		}
		if p.alsoShowError {
			p.failure = "Something went wrong"
		}
		return nil
	}

	return fmt.Errorf("nothing to click at %s", selector)
}

func (p *fakePage) IsEnabled(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.Contains(selector, dom.PatronIDField) {
		return p.onCatalog() && !p.disablePatron, nil
	}
	return true, nil
}

func (p *fakePage) VisibleCount(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case selector == dom.SuccessFlash && p.success != "":
		return 1, nil
	case selector == dom.ErrorFlash && p.failure != "":
		return 1, nil
	case strings.HasSuffix(selector, dom.BorrowButton) && p.onCatalog():
		return 1, nil
	}
	return 0, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var buf strings.Builder
	buf.WriteString("<html><body><table><tbody>")
	if p.onCatalog() {
		for _, b := range p.books {
			fmt.Fprintf(&buf, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td></tr>",
				html.EscapeString(b.Title), html.EscapeString(b.Author), b.ISBN, b.Copies)
		}
	}
	buf.WriteString("</tbody></table></body></html>")
	return buf.String(), nil
}

// stallingPage never completes the matching Fill or Click until ctx ends, like
// a browser waiting for an element that is not on the page
type stallingPage struct {
	*fakePage
	fillSelector string
	clickSuffix  string
}

func (p *stallingPage) Fill(ctx context.Context, selector, value string) error {
	if p.fillSelector != "" && selector == p.fillSelector {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.fakePage.Fill(ctx, selector, value)
}

func (p *stallingPage) Click(ctx context.Context, selector string) error {
	if p.clickSuffix != "" && strings.HasSuffix(selector, p.clickSuffix) {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.fakePage.Click(ctx, selector)
}
