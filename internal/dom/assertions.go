// Package dom holds the driver-independent half of the harness: selector
// helpers, typed queries over ordered element sequences, predicates over
// extracted text and counts, and HTML snapshot parsing.
package dom

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAssertion is matched by every *AssertionError
var ErrAssertion = errors.New("assertion failed")

// DueDateMarker precedes the due date in a borrow confirmation
const DueDateMarker = "Due date:"

// DueDateLayout is the only accepted due date format (YYYY-MM-DD)
const DueDateLayout = "2006-01-02"

// AssertionError describes an expected vs observed DOM condition
type AssertionError struct {
	Check    string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Check)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual:   %s", e.Actual)
	return buf.String()
}

func (e *AssertionError) Is(target error) bool {
	return target == ErrAssertion
}

// ContainsAll requires every part to occur in text (case-sensitive)
func ContainsAll(check, text string, parts ...string) error {
	var missing []string
	for _, part := range parts {
		if !strings.Contains(text, part) {
			missing = append(missing, part)
		}
	}
	if len(missing) > 0 {
		return &AssertionError{
			Check:    check,
			Expected: fmt.Sprintf("text containing %s", quoteAll(missing)),
			Actual:   fmt.Sprintf("%q", text),
		}
	}
	return nil
}

// ContainsFold requires every part to occur in text, ignoring case
func ContainsFold(check, text string, parts ...string) error {
	lower := strings.ToLower(text)
	var missing []string
	for _, part := range parts {
		if !strings.Contains(lower, strings.ToLower(part)) {
			missing = append(missing, part)
		}
	}
	if len(missing) > 0 {
		return &AssertionError{
			Check:    check,
			Expected: fmt.Sprintf("text containing (any case) %s", quoteAll(missing)),
			Actual:   fmt.Sprintf("%q", text),
		}
	}
	return nil
}

// RowCountDelta requires after to equal before plus want
func RowCountDelta(before, after, want int) error {
	if after != before+want {
		return &AssertionError{
			Check:    "catalog row count",
			Expected: fmt.Sprintf("%d rows (before: %d, delta: %+d)", before+want, before, want),
			Actual:   fmt.Sprintf("%d rows", after),
		}
	}
	return nil
}

// NonEmpty requires at least one element
func NonEmpty(check string, count int) error {
	if count < 1 {
		return &AssertionError{Check: check, Expected: "at least 1 element", Actual: "0 elements"}
	}
	return nil
}

// ExclusiveFlash requires that a success banner is not accompanied by an error banner
func ExclusiveFlash(successVisible, errorVisible int) error {
	if errorVisible > 0 {
		return &AssertionError{
			Check:    "flash messages are mutually exclusive",
			Expected: "no visible error flash",
			Actual:   fmt.Sprintf("%d visible error flash(es) alongside %d success flash(es)", errorVisible, successVisible),
		}
	}
	return nil
}

// ExtractDueDate returns the date following DueDateMarker. Surrounding
// whitespace and one trailing period are stripped, and the remainder must be a
// YYYY-MM-DD calendar date.
func ExtractDueDate(text string) (time.Time, error) {
	_, after, found := strings.Cut(text, DueDateMarker)
	if !found {
		return time.Time{}, &AssertionError{
			Check:    "due date present",
			Expected: fmt.Sprintf("text containing %q", DueDateMarker),
			Actual:   fmt.Sprintf("%q", text),
		}
	}

	raw := strings.TrimSuffix(strings.TrimSpace(after), ".")
	due, err := time.Parse(DueDateLayout, raw)
	if err != nil {
		return time.Time{}, &AssertionError{
			Check:    "due date format",
			Expected: "a YYYY-MM-DD calendar date",
			Actual:   fmt.Sprintf("%q (%v)", raw, err),
		}
	}
	return due, nil
}

// NormalizeSpace trims and collapses runs of whitespace into single spaces
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func quoteAll(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return strings.Join(quoted, ", ")
}
