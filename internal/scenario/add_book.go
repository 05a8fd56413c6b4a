package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/shelfcheck/internal/dom"
	"github.com/ternarybob/shelfcheck/internal/poll"
)

// Add-book steps, in execution order
const (
	StepCountRowsBefore = "count catalog rows"
	StepOpenAddForm     = "open add book form"
	StepFillForm        = "fill add book form"
	StepSubmitForm      = "submit add book form"
	StepRedirect        = "redirect to catalog"
	StepAddedFlash      = "success flash"
	StepNoErrorFlash    = "no error flash"
	StepNewRow          = "new catalog row"
	StepCountRowsAfter  = "catalog row count"
)

// AddBookResult is what the add-book flow observed
type AddBookResult struct {
	RowsBefore int
	RowsAfter  int
	Flash      string
	Row        dom.Row
}

// AddBook submits in through the add-book form and checks that the catalog
// shows it exactly once more than before.
func AddBook(ctx context.Context, page Page, baseURL string, in BookInput, opts Options) (*AddBookResult, error) {
	opts = opts.withDefaults()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	page = bound(page, opts)

	result := &AddBookResult{}

	if err := page.Navigate(ctx, joinURL(baseURL, "/catalog")); err != nil {
		return nil, stepErr(StepCountRowsBefore, err)
	}
	before, err := page.Count(ctx, dom.CatalogRows)
	if err != nil {
		return nil, stepErr(StepCountRowsBefore, err)
	}
	result.RowsBefore = before

	if err := page.Navigate(ctx, joinURL(baseURL, "/add_book")); err != nil {
		return nil, stepErr(StepOpenAddForm, err)
	}
	location, err := page.CurrentURL(ctx)
	if err != nil {
		return nil, stepErr(StepOpenAddForm, err)
	}
	if !strings.Contains(location, "/add_book") {
		return nil, stepErr(StepOpenAddForm, fmt.Errorf("%w: url %q does not contain %q", ErrUnexpectedURL, location, "/add_book"))
	}
	if err := page.WaitPresent(ctx, dom.ByID("title")); err != nil {
		return nil, stepErr(StepOpenAddForm, err)
	}

	for _, field := range in.Fields() {
		if err := page.Fill(ctx, dom.ByID(field.ID), field.Value); err != nil {
			return nil, stepErr(StepFillForm, err)
		}
	}

	if err := page.Click(ctx, dom.SubmitButton); err != nil {
		return nil, stepErr(StepSubmitForm, err)
	}

	if err := waitForURL(ctx, page, "/catalog", opts); err != nil {
		return nil, stepErr(StepRedirect, err)
	}

	if err := page.WaitVisible(ctx, dom.SuccessFlash); err != nil {
		return nil, stepErr(StepAddedFlash, err)
	}
	flash, err := page.Text(ctx, dom.SuccessFlash)
	if err != nil {
		return nil, stepErr(StepAddedFlash, err)
	}
	result.Flash = strings.TrimSpace(flash)
	if err := dom.ContainsFold("add book confirmation", result.Flash, in.Title, "successfully", "added to the catalog"); err != nil {
		return result, stepErr(StepAddedFlash, err)
	}

	if err := checkNoErrorFlash(ctx, page); err != nil {
		return result, stepErr(StepNoErrorFlash, err)
	}

	row, err := waitForRow(ctx, page, in.Title, opts)
	if err != nil {
		return result, stepErr(StepNewRow, err)
	}
	result.Row = row
	if err := dom.ContainsAll("new catalog row", row.Text, in.Title, in.Author, in.ISBN); err != nil {
		return result, stepErr(StepNewRow, err)
	}

	after, err := page.Count(ctx, dom.CatalogRows)
	if err != nil {
		return result, stepErr(StepCountRowsAfter, err)
	}
	result.RowsAfter = after
	if err := dom.RowCountDelta(before, after, 1); err != nil {
		return result, stepErr(StepCountRowsAfter, err)
	}

	return result, nil
}

// waitForRow polls page snapshots until a catalog cell contains title
func waitForRow(ctx context.Context, page Page, title string, opts Options) (dom.Row, error) {
	var row dom.Row
	err := poll.Until(ctx, poll.Options{Interval: opts.PollInterval, Timeout: opts.WaitTimeout}, func(ctx context.Context) (bool, error) {
		html, err := page.HTML(ctx)
		if err != nil {
			return false, err
		}
		catalog, err := dom.ParseCatalog(html)
		if err != nil {
			return false, err
		}
		found, err := catalog.FindByCell(title)
		if err != nil {
			return false, err
		}
		row = found
		return true, nil
	})
	return row, err
}

// checkNoErrorFlash fails when an error banner is showing
func checkNoErrorFlash(ctx context.Context, page Page) error {
	successVisible, err := page.VisibleCount(ctx, dom.SuccessFlash)
	if err != nil {
		return err
	}
	errorVisible, err := page.VisibleCount(ctx, dom.ErrorFlash)
	if err != nil {
		return err
	}
	return dom.ExclusiveFlash(successVisible, errorVisible)
}
