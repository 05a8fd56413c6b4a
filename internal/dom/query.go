package dom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no element satisfies a query
var ErrNotFound = errors.New("no matching element")

// Selectors shared by the scenarios and the application's DOM contract
const (
	CatalogBody   = "table tbody"
	CatalogRows   = CatalogBody + " tr"
	SubmitButton  = "button[type='submit']"
	BorrowButton  = "button.btn-success"
	SuccessFlash  = "div.flash-success"
	ErrorFlash    = "div.flash-error"
	PatronIDField = "patron_id"
)

// FirstMatch returns the index and value of the first item satisfying pred,
// or ErrNotFound when none does.
func FirstMatch[T any](items []T, pred func(T) bool) (int, T, error) {
	for i, item := range items {
		if pred(item) {
			return i, item, nil
		}
	}
	var zero T
	return -1, zero, ErrNotFound
}

// TextContains builds a predicate for FirstMatch over element texts
func TextContains(substr string) func(string) bool {
	return func(text string) bool {
		return strings.Contains(text, substr)
	}
}

// ByID selects an element by its id attribute
func ByID(id string) string {
	return "#" + id
}

// ByName selects form fields by their name attribute
func ByName(name string) string {
	return fmt.Sprintf(`[name=%q]`, name)
}

// NthRow selects the catalog row at zero-based index i. The index only maps to
// one row when the page has a single CatalogBody; SingleCatalogBody checks that.
func NthRow(i int) string {
	return fmt.Sprintf("%s:nth-of-type(%d)", CatalogRows, i+1)
}

// Within scopes sel to descendants of scope
func Within(scope, sel string) string {
	return scope + " " + sel
}

// SingleCatalogBody fails unless bodies, the number of CatalogBody elements,
// is exactly one
func SingleCatalogBody(bodies int) error {
	if bodies == 1 {
		return nil
	}
	return &AssertionError{
		Check:    "single catalog table body",
		Expected: "exactly 1 " + CatalogBody,
		Actual:   fmt.Sprintf("%d", bodies),
	}
}
