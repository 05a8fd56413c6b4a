package scenario

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// BookInput is the record typed into the add-book form
type BookInput struct {
	Title       string `yaml:"title" validate:"required"`
	Author      string `yaml:"author" validate:"required"`
	ISBN        string `yaml:"isbn" validate:"required,numeric,min=10"`
	TotalCopies int    `yaml:"total_copies" validate:"min=1"`
}

// Field is one form input, identified by its element id
type Field struct {
	ID    string
	Value string
}

// Fields returns the form inputs in the order they are filled
func (b BookInput) Fields() []Field {
	return []Field{
		{ID: "title", Value: b.Title},
		{ID: "author", Value: b.Author},
		{ID: "isbn", Value: b.ISBN},
		{ID: "total_copies", Value: strconv.Itoa(b.TotalCopies)},
	}
}

// Validate checks the record before a flow uses it
func (b BookInput) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("invalid add_book input: %w", err)
	}
	return nil
}

// DefaultBookInput is a title that is not part of the seed catalog
func DefaultBookInput() BookInput {
	return BookInput{
		Title:       "E2E Selenium book",
		Author:      "E2E tester",
		ISBN:        "9998881130322",
		TotalCopies: 3,
	}
}

// BorrowInput selects the book to borrow and who borrows it
type BorrowInput struct {
	Title    string `yaml:"title" validate:"required"`
	PatronID string `yaml:"patron_id" validate:"required"`
}

// Validate checks the record before a flow uses it
func (b BorrowInput) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("invalid borrow_book input: %w", err)
	}
	return nil
}

// DefaultBorrowInput borrows a seeded title
func DefaultBorrowInput() BorrowInput {
	return BorrowInput{
		Title:    "The Great Gatsby",
		PatronID: "708888",
	}
}

// Inputs holds the records for both flows
type Inputs struct {
	AddBook    BookInput   `yaml:"add_book"`
	BorrowBook BorrowInput `yaml:"borrow_book"`
}

// DefaultInputs returns the built-in records
func DefaultInputs() *Inputs {
	return &Inputs{
		AddBook:    DefaultBookInput(),
		BorrowBook: DefaultBorrowInput(),
	}
}

// LoadInputs reads a YAML file over the defaults. An empty path yields the defaults.
func LoadInputs(path string) (*Inputs, error) {
	inputs := DefaultInputs()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, inputs); err != nil {
			return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
		}
	}

	if err := inputs.AddBook.Validate(); err != nil {
		return nil, err
	}
	if err := inputs.BorrowBook.Validate(); err != nil {
		return nil, err
	}
	return inputs, nil
}
