package handlers

import (
	"net/http"

	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/middleware"
	"github.com/maykecorrea/dressup/internal/stylist"
)

type describeRequest struct {
	Image    string `json:"image" validate:"required"`
	Language string `json:"language" validate:"omitempty,max=16"`
}

type describeResponse struct {
	Description string `json:"description"`
	Language    string `json:"language"`
}

type suggestRequest struct {
	Garment     string `json:"garment" validate:"max=2000"`
	Preferences string `json:"preferences" validate:"max=2000"`
	Image       string `json:"image"`
	Language    string `json:"language" validate:"omitempty,max=16"`
}

// requestLanguage picks the explicit language or the locale resolved by the
// i18n middleware.
func requestLanguage(r *http.Request, explicit string) string {
	ctxLocale := middleware.LocaleFromContext(r.Context())
	if explicit == "" {
		return ctxLocale
	}
	return imagegen.MatchDescriptionLanguage(ctxLocale, explicit)
}

// DescribeGarment returns a free-text description of a garment image.
func (a *App) DescribeGarment(w http.ResponseWriter, r *http.Request) {
	if a.requireUser(w, r) == "" {
		return
	}
	var req describeRequest
	if !a.decode(w, r, &req) {
		return
	}
	img, err := decodeImage("image", req.Image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Describer.DescribeIn(r.Context(), *img, requestLanguage(r, req.Language))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, describeResponse{Description: res.Description, Language: res.Language})
}

// SuggestStyles proposes complementary items for a garment.
func (a *App) SuggestStyles(w http.ResponseWriter, r *http.Request) {
	if a.requireUser(w, r) == "" {
		return
	}
	if a.Stylist == nil {
		a.error(w, http.StatusNotImplemented, "not_supported", "style suggestions are not configured")
		return
	}
	var req suggestRequest
	if !a.decode(w, r, &req) {
		return
	}
	img, err := decodeImage("image", req.Image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	suggestions, err := a.Stylist.Suggest(r.Context(), stylist.Request{
		Garment:     req.Garment,
		Preferences: req.Preferences,
		Language:    requestLanguage(r, req.Language),
		Image:       img,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}
