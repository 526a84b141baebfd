package handlers

import (
	"archive/zip"
	"bytes"
	"net/http"
	"testing"

	"github.com/maykecorrea/dressup/internal/gallery"
	"github.com/maykecorrea/dressup/internal/imagegen"
)

func TestGalleryLifecycle(t *testing.T) {
	env := newTestEnv(t, imagegen.RefusalAbort)

	rec := env.do(t, http.MethodGet, "/v1/gallery/export", "u1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty export status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/gallery", "u1", "", map[string]string{"image": pngURI(t, 30)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d body=%s", rec.Code, rec.Body.String())
	}
	item := decodeBody[gallery.Item](t, rec)
	if item.ContentType != "image/png" || item.Width != 4 {
		t.Fatalf("unexpected item %+v", item)
	}

	rec = env.do(t, http.MethodGet, "/v1/gallery", "u1", "", nil)
	list := decodeBody[struct {
		Items []gallery.Item `json:"items"`
	}](t, rec)
	if len(list.Items) != 1 || list.Items[0].Key != item.Key {
		t.Fatalf("unexpected list %+v", list.Items)
	}

	rec = env.do(t, http.MethodGet, "/v1/gallery", "u2", "", nil)
	if len(decodeBody[struct {
		Items []gallery.Item `json:"items"`
	}](t, rec).Items) != 0 {
		t.Fatal("other owner sees the image")
	}

	rec = env.do(t, http.MethodGet, "/v1/gallery/"+item.Key, "u1", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("open status = %d ct=%q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.Equal(rec.Body.Bytes(), pngBytes(t, 30)) {
		t.Fatal("opened bytes differ from saved bytes")
	}

	rec = env.do(t, http.MethodGet, "/v1/gallery/export", "u1", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("export status = %d", rec.Code)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != item.Key {
		t.Fatalf("unexpected archive entries %d", len(zr.File))
	}

	rec = env.do(t, http.MethodDelete, "/v1/gallery/"+item.Key, "u2", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/gallery/"+item.Key, "u1", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/gallery/"+item.Key, "u1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("open after delete status = %d", rec.Code)
	}
}

func TestGallerySaveRejectsMalformedImage(t *testing.T) {
	env := newTestEnv(t, imagegen.RefusalAbort)
	rec := env.do(t, http.MethodPost, "/v1/gallery", "u1", "", map[string]string{"image": "data:image/png;base64,"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
