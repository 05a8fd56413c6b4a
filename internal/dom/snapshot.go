package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Row is one catalog table row taken from an HTML snapshot
type Row struct {
	Index int
	Cells []string
	Text  string
}

// Catalog is the ordered set of rows in the listing table
type Catalog struct {
	Rows []Row
}

// Len returns the number of rows
func (c Catalog) Len() int {
	return len(c.Rows)
}

// FindByCell returns the first row having a cell whose normalized text
// contains substr (case-sensitive).
func (c Catalog) FindByCell(substr string) (Row, error) {
	_, row, err := FirstMatch(c.Rows, func(r Row) bool {
		for _, cell := range r.Cells {
			if strings.Contains(cell, substr) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return Row{}, fmt.Errorf("catalog row with a cell containing %q: %w", substr, err)
	}
	return row, nil
}

// ParseCatalog extracts the listing rows from a rendered page
func ParseCatalog(html string) (Catalog, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to parse catalog HTML: %w", err)
	}

	var catalog Catalog
	doc.Find(CatalogRows).Each(func(i int, s *goquery.Selection) {
		row := Row{Index: i}
		s.Find("td").Each(func(_ int, cell *goquery.Selection) {
			row.Cells = append(row.Cells, NormalizeSpace(cell.Text()))
		})
		row.Text = strings.Join(row.Cells, " ")
		catalog.Rows = append(catalog.Rows, row)
	})

	return catalog, nil
}

// FlashKind distinguishes success and error banners
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)

// Flash is a flash banner found in a snapshot
type Flash struct {
	Kind FlashKind
	Text string
}

// ParseFlashes extracts flash banners in document order
func ParseFlashes(html string) ([]Flash, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse flash HTML: %w", err)
	}

	var flashes []Flash
	doc.Find(SuccessFlash + ", " + ErrorFlash).Each(func(_ int, s *goquery.Selection) {
		kind := FlashSuccess
		if s.HasClass("flash-error") {
			kind = FlashError
		}
		flashes = append(flashes, Flash{Kind: kind, Text: NormalizeSpace(s.Text())})
	})
	return flashes, nil
}
