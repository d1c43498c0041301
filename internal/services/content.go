package services

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/gray-logic-media/internal/catalog"
)

// ContentHandler serves item resources below the device's virtual
// directory at /media/{id}.
type ContentHandler struct {
	catalog Catalog
	logger  Logger
	router  chi.Router
}

// NewContentHandler creates the handler over c.
func NewContentHandler(c Catalog) *ContentHandler {
	h := &ContentHandler{catalog: c, logger: noopLogger{}}

	r := chi.NewRouter()
	r.Use(middleware.GetHead)
	r.Get("/media/{id}", h.serveMedia)
	h.router = r
	return h
}

// SetLogger sets the logger for the handler.
func (h *ContentHandler) SetLogger(logger Logger) {
	h.logger = logger
}

func (h *ContentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *ContentHandler) serveMedia(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	obj, err := h.catalog.Object(r.Context(), id)
	if errors.Is(err, catalog.ErrObjectNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("loading media object", "id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	switch o := obj.(type) {
	case *catalog.Item:
		h.serveFile(w, r, o)
	case *catalog.URLItem:
		http.Redirect(w, r, o.Location, http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

func (h *ContentHandler) serveFile(w http.ResponseWriter, r *http.Request, item *catalog.Item) {
	f, err := os.Open(item.Location)
	if err != nil {
		h.logger.Warn("opening media file", "id", item.ID, "location", item.Location, "error", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if item.MimeType != "" {
		w.Header().Set("Content-Type", item.MimeType)
	}
	http.ServeContent(w, r, filepath.Base(item.Location), info.ModTime(), f)
}
