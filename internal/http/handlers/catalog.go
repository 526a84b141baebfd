package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maykecorrea/dressup/internal/catalog"
)

func (a *App) CatalogList(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"garments": a.Catalog.List()})
}

func (a *App) CatalogGet(w http.ResponseWriter, r *http.Request) {
	garment, err := a.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "garment not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load garment")
		return
	}
	a.json(w, http.StatusOK, garment)
}
