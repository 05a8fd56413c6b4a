package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookInputFieldsOrder(t *testing.T) {
	fields := DefaultBookInput().Fields()

	ids := make([]string, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
	}
	assert.Equal(t, []string{"title", "author", "isbn", "total_copies"}, ids)
	assert.Equal(t, "3", fields[3].Value)
}

func TestBookInputValidate(t *testing.T) {
	assert.NoError(t, DefaultBookInput().Validate())

	in := DefaultBookInput()
	in.Title = ""
	assert.Error(t, in.Validate())

	in = DefaultBookInput()
	in.TotalCopies = 0
	assert.Error(t, in.Validate())

	in = DefaultBookInput()
	in.ISBN = "97800"
	assert.Error(t, in.Validate())

	in = DefaultBookInput()
	in.ISBN = "99988811303221234"
	assert.NoError(t, in.Validate(), "ISBNs longer than 13 digits are accepted")
}

func TestBorrowInputValidate(t *testing.T) {
	assert.NoError(t, DefaultBorrowInput().Validate())
	assert.Error(t, BorrowInput{Title: "The Great Gatsby"}.Validate())
}

func TestLoadInputsDefaults(t *testing.T) {
	inputs, err := LoadInputs("")
	require.NoError(t, err)
	assert.Equal(t, DefaultInputs(), inputs)
}

func TestLoadInputsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	data := `
add_book:
  title: Shelfcheck Handbook
  isbn: "9781234567897"
borrow_book:
  patron_id: "123456"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	inputs, err := LoadInputs(path)
	require.NoError(t, err)

	assert.Equal(t, "Shelfcheck Handbook", inputs.AddBook.Title)
	assert.Equal(t, "9781234567897", inputs.AddBook.ISBN)
	assert.Equal(t, "E2E tester", inputs.AddBook.Author, "unset fields keep their defaults")
	assert.Equal(t, "The Great Gatsby", inputs.BorrowBook.Title)
	assert.Equal(t, "123456", inputs.BorrowBook.PatronID)
}

func TestLoadInputsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte("add_book:\n  total_copies: 0\n"), 0644))

	_, err := LoadInputs(path)
	assert.Error(t, err)

	_, err = LoadInputs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
