package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maykecorrea/dressup/internal/gallery"
)

type saveImageRequest struct {
	Image string `json:"image" validate:"required"`
}

func (a *App) galleryError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, gallery.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "image not found")
	case errors.Is(err, gallery.ErrInvalidKey), errors.Is(err, gallery.ErrInvalidOwner):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		a.Logger.Error().Err(err).Str("op", op).Msg("gallery failure")
		a.error(w, http.StatusInternalServerError, "internal", "gallery unavailable")
	}
}

func (a *App) GallerySave(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var req saveImageRequest
	if !a.decode(w, r, &req) {
		return
	}
	img, err := decodeImage("image", req.Image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	item, err := a.Gallery.Save(r.Context(), userID, *img)
	if err != nil {
		a.galleryError(w, r, err, "save")
		return
	}
	a.json(w, http.StatusCreated, item)
}

func (a *App) GalleryList(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	items, err := a.Gallery.List(r.Context(), userID)
	if err != nil {
		a.galleryError(w, r, err, "list")
		return
	}
	if items == nil {
		items = []gallery.Item{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// GalleryOpen streams the stored bytes.
func (a *App) GalleryOpen(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	img, err := a.Gallery.Open(r.Context(), userID, chi.URLParam(r, "key"))
	if err != nil {
		a.galleryError(w, r, err, "open")
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (a *App) GalleryDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	if err := a.Gallery.Delete(r.Context(), userID, chi.URLParam(r, "key")); err != nil {
		a.galleryError(w, r, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GalleryExport returns every image of the caller as a zip archive.
func (a *App) GalleryExport(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var buf bytes.Buffer
	n, err := gallery.Export(r.Context(), a.Gallery, userID, &buf)
	if err != nil {
		a.galleryError(w, r, err, "export")
		return
	}
	if n == 0 {
		a.error(w, http.StatusNotFound, "not_found", "gallery is empty")
		return
	}
	name := fmt.Sprintf("dressup-gallery-%s.zip", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
