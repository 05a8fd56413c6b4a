package library

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
)

//go:embed templates/*.html
var templateFS embed.FS

// BookForm is the add-book form submission
type BookForm struct {
	Title       string `validate:"required,max=200"`
	Author      string `validate:"required,max=200"`
	ISBN        string `validate:"required,numeric,min=10"`
	TotalCopies string `validate:"required,number"`
}

// BorrowForm is a per-row borrow submission
type BorrowForm struct {
	PatronID string `validate:"required,alphanum,max=32"`
}

// Handler serves the library pages
type Handler struct {
	store     *Store
	logger    arbor.ILogger
	templates *template.Template
	validate  *validator.Validate
	now       func() time.Time
}

// NewHandler parses the embedded templates
func NewHandler(store *Store, logger arbor.ILogger) *Handler {
	return &Handler{
		store:     store,
		logger:    logger,
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Routes registers every page on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /catalog", h.Catalog)
	mux.HandleFunc("GET /add_book", h.AddBookForm)
	mux.HandleFunc("POST /add_book", h.AddBook)
	mux.HandleFunc("POST /borrow/{id}", h.Borrow)
	return mux
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	data["Flashes"] = popFlashes(w, r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error().
			Err(err).
			Str("template", name).
			Msg("Failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Index redirects to the catalog
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/catalog", http.StatusFound)
}

// Catalog lists every book with a borrow form per row
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	books, err := h.store.Books(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list books")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "catalog.html", map[string]interface{}{
		"Title": "Catalog",
		"Books": books,
	})
}

// AddBookForm renders an empty add-book form
func (h *Handler) AddBookForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "add_book.html", map[string]interface{}{
		"Title": "Add book",
		"Form":  BookForm{TotalCopies: "1"},
	})
}

// AddBook validates the submission and inserts it
func (h *Handler) AddBook(w http.ResponseWriter, r *http.Request) {
	form := BookForm{
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Author:      strings.TrimSpace(r.PostFormValue("author")),
		ISBN:        strings.TrimSpace(r.PostFormValue("isbn")),
		TotalCopies: strings.TrimSpace(r.PostFormValue("total_copies")),
	}

	copies, err := strconv.Atoi(form.TotalCopies)
	if verr := h.validate.Struct(form); verr != nil || err != nil || copies < 1 {
		h.logger.Warn().Str("title", form.Title).Str("isbn", form.ISBN).Msg("Rejected add book form")
		addFlash(w, r, "error", "Please provide a title, an author, a numeric ISBN and at least one copy.")
		http.Redirect(w, r, "/add_book", http.StatusSeeOther)
		return
	}

	book, err := h.store.AddBook(r.Context(), Book{
		Title:       form.Title,
		Author:      form.Author,
		ISBN:        form.ISBN,
		TotalCopies: copies,
	})
	if errors.Is(err, ErrDuplicateISBN) {
		addFlash(w, r, "error", fmt.Sprintf("A book with ISBN %s already exists.", form.ISBN))
		http.Redirect(w, r, "/add_book", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to add book")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Int64("id", book.ID).Str("title", book.Title).Msg("Book added")
	addFlash(w, r, "success", fmt.Sprintf("Book %q was successfully added to the catalog.", book.Title))
	http.Redirect(w, r, "/catalog", http.StatusSeeOther)
}

// Borrow lends one copy of the book named in the path
func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	form := BorrowForm{PatronID: strings.TrimSpace(r.PostFormValue("patron_id"))}
	if err := h.validate.Struct(form); err != nil {
		addFlash(w, r, "error", "Please enter a valid patron ID.")
		http.Redirect(w, r, "/catalog", http.StatusSeeOther)
		return
	}

	book, loan, err := h.store.Borrow(r.Context(), id, form.PatronID, h.now())
	switch {
	case errors.Is(err, ErrBookNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, ErrNoCopies):
		addFlash(w, r, "error", fmt.Sprintf("No copies of %q are available.", book.Title))
		http.Redirect(w, r, "/catalog", http.StatusSeeOther)
		return
	case err != nil:
		h.logger.Error().Err(err).Int64("id", id).Msg("Failed to borrow book")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Int64("book_id", id).
		Str("patron_id", form.PatronID).
		Str("due", loan.Due.Format("2006-01-02")).
		Msg("Book borrowed")

	addFlash(w, r, "success", fmt.Sprintf("%q borrowed by patron %s. Due date: %s.",
		book.Title, form.PatronID, loan.Due.Format("2006-01-02")))
	http.Redirect(w, r, "/catalog", http.StatusSeeOther)
}
