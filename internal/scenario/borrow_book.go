package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/shelfcheck/internal/dom"
	"github.com/ternarybob/shelfcheck/internal/poll"
)

// Borrow-book steps, in execution order
const (
	StepOpenCatalog    = "open catalog"
	StepCatalogLoaded  = "catalog has rows"
	StepSelectRow      = "select book row"
	StepEnterPatron    = "enter patron id"
	StepSubmitBorrow   = "submit borrow"
	StepBorrowFlash    = "borrow confirmation"
	StepDueDate        = "due date"
	StepNoBorrowErrors = "no error flash after borrow"
)

// BorrowResult is what the borrow-book flow observed
type BorrowResult struct {
	RowIndex int
	Row      string
	Flash    string
	DueDate  time.Time
}

// BorrowBook borrows the first catalog row matching in.Title for in.PatronID
// and checks the confirmation banner and its due date.
func BorrowBook(ctx context.Context, page Page, baseURL string, in BorrowInput, opts Options) (*BorrowResult, error) {
	opts = opts.withDefaults()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	page = bound(page, opts)

	if err := page.Navigate(ctx, joinURL(baseURL, "/catalog")); err != nil {
		return nil, stepErr(StepOpenCatalog, err)
	}

	if err := waitForRows(ctx, page, opts); err != nil {
		return nil, stepErr(StepCatalogLoaded, err)
	}

	// Row selectors are positional, so a second table body would make them
	// address a different row than the one matched below.
	bodies, err := page.Count(ctx, dom.CatalogBody)
	if err != nil {
		return nil, stepErr(StepSelectRow, err)
	}
	if err := dom.SingleCatalogBody(bodies); err != nil {
		return nil, stepErr(StepSelectRow, err)
	}

	texts, err := page.Texts(ctx, dom.CatalogRows)
	if err != nil {
		return nil, stepErr(StepSelectRow, err)
	}
	index, rowText, err := dom.FirstMatch(texts, dom.TextContains(in.Title))
	if err != nil {
		return nil, stepErr(StepSelectRow, fmt.Errorf("no catalog row containing %q: %w", in.Title, err))
	}

	result := &BorrowResult{RowIndex: index, Row: dom.NormalizeSpace(rowText)}
	row := dom.NthRow(index)

	patronField := dom.Within(row, dom.ByName(dom.PatronIDField))
	enabled, err := page.IsEnabled(ctx, patronField)
	if err != nil {
		return result, stepErr(StepEnterPatron, err)
	}
	if !enabled {
		return result, stepErr(StepEnterPatron, &dom.AssertionError{
			Check:    "patron id field enabled",
			Expected: "an enabled patron_id input in the selected row",
			Actual:   "missing or disabled",
		})
	}
	if err := page.Fill(ctx, patronField, in.PatronID); err != nil {
		return result, stepErr(StepEnterPatron, err)
	}

	borrowButton := dom.Within(row, dom.BorrowButton)
	visible, err := page.VisibleCount(ctx, borrowButton)
	if err != nil {
		return result, stepErr(StepSubmitBorrow, err)
	}
	if err := dom.NonEmpty("visible borrow button in selected row", visible); err != nil {
		return result, stepErr(StepSubmitBorrow, err)
	}
	if err := page.Click(ctx, borrowButton); err != nil {
		return result, stepErr(StepSubmitBorrow, err)
	}

	if err := page.WaitVisible(ctx, dom.SuccessFlash); err != nil {
		return result, stepErr(StepBorrowFlash, err)
	}
	flash, err := page.Text(ctx, dom.SuccessFlash)
	if err != nil {
		return result, stepErr(StepBorrowFlash, err)
	}
	result.Flash = strings.TrimSpace(flash)
	if err := dom.ContainsAll("borrow confirmation names the book", result.Flash, in.Title); err != nil {
		return result, stepErr(StepBorrowFlash, err)
	}
	if err := dom.ContainsFold("borrow confirmation", result.Flash, "borrowed"); err != nil {
		return result, stepErr(StepBorrowFlash, err)
	}

	due, err := dom.ExtractDueDate(result.Flash)
	if err != nil {
		return result, stepErr(StepDueDate, err)
	}
	result.DueDate = due

	if err := checkNoErrorFlash(ctx, page); err != nil {
		return result, stepErr(StepNoBorrowErrors, err)
	}

	return result, nil
}

// waitForRows polls until the catalog table has at least one row
func waitForRows(ctx context.Context, page Page, opts Options) error {
	count := 0
	err := poll.Until(ctx, poll.Options{Interval: opts.PollInterval, Timeout: opts.WaitTimeout}, func(ctx context.Context) (bool, error) {
		n, err := page.Count(ctx, dom.CatalogRows)
		if err != nil {
			return false, err
		}
		count = n
		return n > 0, nil
	})
	if errors.Is(err, poll.ErrTimeout) && count == 0 {
		return fmt.Errorf("catalog table is empty: %w", dom.NonEmpty("catalog rows", count))
	}
	return err
}
