package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maykecorrea/dressup/internal/catalog"
	"github.com/maykecorrea/dressup/internal/gallery"
	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/middleware"
)

type slotDTO struct {
	Slot        string `json:"slot" validate:"required,max=32"`
	Image       string `json:"image"`
	Description string `json:"description" validate:"max=2000"`
	CatalogID   string `json:"catalog_id" validate:"max=64"`
}

type guidanceDTO struct {
	Positive    string `json:"positive" validate:"max=2000"`
	Negative    string `json:"negative" validate:"max=2000"`
	CustomStyle string `json:"custom_style" validate:"max=2000"`
}

type optionsDTO struct {
	Size          string `json:"size" validate:"omitempty,max=16"`
	AspectRatio   string `json:"aspect_ratio" validate:"omitempty,max=8"`
	Quality       string `json:"quality" validate:"omitempty,oneof=low medium high auto standard hd"`
	InputFidelity string `json:"input_fidelity" validate:"omitempty,oneof=low high"`
}

type composeRequest struct {
	BaseImage string      `json:"base_image" validate:"required"`
	Slots     []slotDTO   `json:"slots" validate:"max=6,dive"`
	Guidance  guidanceDTO `json:"guidance"`
	Options   optionsDTO  `json:"options"`
	Save      bool        `json:"save"`
}

type composeResponse struct {
	RequestID      string        `json:"request_id"`
	Image          string        `json:"image"`
	Partial        bool          `json:"partial"`
	StepsCompleted int           `json:"steps_completed"`
	StepsPlanned   int           `json:"steps_planned"`
	StoppedAt      string        `json:"stopped_at,omitempty"`
	StopReason     string        `json:"stop_reason,omitempty"`
	Saved          *gallery.Item `json:"saved,omitempty"`
}

type lookResponse struct {
	Slot   string           `json:"slot"`
	Result *composeResponse `json:"result,omitempty"`
	Error  *errorBody       `json:"error,omitempty"`
}

// cancelHandle scopes a client request id to its owner so one user cannot
// stop another user's composition.
func cancelHandle(userID, requestID string) string {
	return userID + ":" + requestID
}

// toRequest converts the DTO. Catalog ids stand in for a garment
// description when the slot carries no image or text of its own.
func (a *App) toRequest(ctx context.Context, userID string, req composeRequest) (imagegen.CompositionRequest, error) {
	base, err := decodeImage("base_image", req.BaseImage)
	if err != nil {
		return imagegen.CompositionRequest{}, err
	}
	out := imagegen.CompositionRequest{
		RequestID: cancelHandle(userID, middleware.RequestIDFromContext(ctx)),
		Base:      base,
		Guidance: imagegen.StyleGuidance{
			Positive:    req.Guidance.Positive,
			Negative:    req.Guidance.Negative,
			CustomStyle: req.Guidance.CustomStyle,
		},
		Options: imagegen.EditOptions{
			Size:          req.Options.Size,
			AspectRatio:   req.Options.AspectRatio,
			Quality:       req.Options.Quality,
			InputFidelity: req.Options.InputFidelity,
		},
	}
	for i, s := range req.Slots {
		id, ok := imagegen.ParseSlotID(s.Slot)
		if !ok {
			return imagegen.CompositionRequest{}, fmt.Errorf("%w: slots[%d]: unknown slot %q", imagegen.ErrInvalidRequest, i, s.Slot)
		}
		img, err := decodeImage(fmt.Sprintf("slots[%d].image", i), s.Image)
		if err != nil {
			return imagegen.CompositionRequest{}, err
		}
		desc := s.Description
		if img == nil && strings.TrimSpace(desc) == "" && s.CatalogID != "" {
			if a.Catalog == nil {
				return imagegen.CompositionRequest{}, fmt.Errorf("%w: catalog is not available", imagegen.ErrInvalidRequest)
			}
			g, err := a.Catalog.Get(s.CatalogID)
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return imagegen.CompositionRequest{}, fmt.Errorf("%w: slots[%d]: unknown catalog garment %q", imagegen.ErrInvalidRequest, i, s.CatalogID)
				}
				return imagegen.CompositionRequest{}, err
			}
			desc = g.Name + ": " + g.AIHint
		}
		out.Slots = append(out.Slots, imagegen.GarmentSlot{ID: id, Image: img, Description: desc})
	}
	return out, nil
}

func (a *App) toResponse(ctx context.Context, userID string, res imagegen.CompositionResult, save bool) (*composeResponse, error) {
	resp := &composeResponse{
		RequestID:      middleware.RequestIDFromContext(ctx),
		Image:          imagegen.Encode(res.Image),
		Partial:        res.Partial,
		StepsCompleted: res.StepsCompleted,
		StepsPlanned:   res.StepsPlanned,
		StoppedAt:      string(res.StoppedAt),
	}
	if res.StopReason != nil {
		resp.StopReason = res.StopReason.Error()
	}
	if save && a.Gallery != nil && !res.Image.Empty() {
		item, err := a.Gallery.Save(ctx, userID, res.Image)
		if err != nil {
			return nil, fmt.Errorf("save to gallery: %w", err)
		}
		resp.Saved = &item
	}
	return resp, nil
}

func (a *App) readCompose(w http.ResponseWriter, r *http.Request) (string, bool, imagegen.CompositionRequest, bool) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return "", false, imagegen.CompositionRequest{}, false
	}
	var body composeRequest
	if !a.decode(w, r, &body) {
		return "", false, imagegen.CompositionRequest{}, false
	}
	req, err := a.toRequest(r.Context(), userID, body)
	if err != nil {
		a.fail(w, r, err)
		return "", false, imagegen.CompositionRequest{}, false
	}
	// A stale flag from an earlier run with the same request id must not
	// stop this one.
	if a.Cancel != nil {
		if err := a.Cancel.Clear(r.Context(), req.RequestID); err != nil {
			a.Logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("clear cancel flag failed")
		}
	}
	return userID, body.Save, req, true
}

// Compose runs the sequential multi-garment composition.
func (a *App) Compose(w http.ResponseWriter, r *http.Request) {
	userID, save, req, ok := a.readCompose(w, r)
	if !ok {
		return
	}
	res, err := a.Composer.Compose(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.toResponse(r.Context(), userID, res, save)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resp)
}

// ComposeSingle runs the one-call prompt variant.
func (a *App) ComposeSingle(w http.ResponseWriter, r *http.Request) {
	userID, save, req, ok := a.readCompose(w, r)
	if !ok {
		return
	}
	res, err := a.Composer.ComposeSingle(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.toResponse(r.Context(), userID, res, save)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resp)
}

// ComposeLooks renders one independent look per slot. Individual failures
// are reported per look.
func (a *App) ComposeLooks(w http.ResponseWriter, r *http.Request) {
	userID, save, req, ok := a.readCompose(w, r)
	if !ok {
		return
	}
	looks, err := a.Composer.ComposeLooks(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]lookResponse, 0, len(looks))
	for _, look := range looks {
		lr := lookResponse{Slot: string(look.Slot)}
		if look.Err != nil {
			lr.Error = &errorBody{
				Code:      string(imagegen.KindOf(look.Err)),
				Message:   look.Err.Error(),
				Retryable: imagegen.Retryable(look.Err),
			}
		} else {
			resp, err := a.toResponse(r.Context(), userID, look.Result, save)
			if err != nil {
				a.fail(w, r, err)
				return
			}
			lr.Result = resp
		}
		out = append(out, lr)
	}
	a.json(w, http.StatusOK, map[string]any{"request_id": middleware.RequestIDFromContext(r.Context()), "looks": out})
}

// CancelComposition flags a running composition of the caller. The sequence
// stops at its next step boundary.
func (a *App) CancelComposition(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	if a.Cancel == nil {
		a.error(w, http.StatusNotImplemented, "not_supported", "cancellation is not configured")
		return
	}
	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), "request id required")
		return
	}
	if err := a.Cancel.Cancel(r.Context(), cancelHandle(userID, requestID)); err != nil {
		a.Logger.Error().Err(err).Str("request_id", requestID).Msg("cancel composition failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
