package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/maykecorrea/dressup/internal/cancel"
	"github.com/maykecorrea/dressup/internal/catalog"
	"github.com/maykecorrea/dressup/internal/gallery"
	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/middleware"
	"github.com/maykecorrea/dressup/internal/stylist"
	"github.com/maykecorrea/dressup/internal/users"
)

const defaultMaxBody = 25 << 20

// Accounts is the user store used by the auth handlers.
type Accounts interface {
	Register(ctx context.Context, in users.SignUp) (users.User, error)
	Authenticate(ctx context.Context, email, password string) (users.User, error)
	ByID(ctx context.Context, id string) (users.User, error)
}

// Compositions runs try-on compositions.
type Compositions interface {
	Compose(ctx context.Context, req imagegen.CompositionRequest) (imagegen.CompositionResult, error)
	ComposeSingle(ctx context.Context, req imagegen.CompositionRequest) (imagegen.CompositionResult, error)
	ComposeLooks(ctx context.Context, req imagegen.CompositionRequest) ([]imagegen.Look, error)
}

type GarmentDescriber interface {
	DescribeIn(ctx context.Context, img imagegen.ImageRef, lang string) (imagegen.DescriptionResult, error)
}

type StyleSuggester interface {
	Suggest(ctx context.Context, req stylist.Request) ([]stylist.Suggestion, error)
}

// Pinger reports database liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Logger         zerolog.Logger
	JWTSecret      string
	TokenTTL       time.Duration
	MaxUploadBytes int64

	DB        Pinger
	Users     Accounts
	Composer  Compositions
	Describer GarmentDescriber
	Stylist   StyleSuggester
	Catalog   *catalog.Catalog
	Gallery   gallery.Store
	Cancel    cancel.Registry
}

// validate is shared by every App; Validate is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

func NewApp(logger zerolog.Logger, jwtSecret string) *App {
	return &App{
		Logger:         logger,
		JWTSecret:      jwtSecret,
		TokenTTL:       24 * time.Hour,
		MaxUploadBytes: defaultMaxBody,
	}
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Step      int    `json:"step,omitempty"`
	Slot      string `json:"slot,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, errorEnvelope{Error: errorBody{Code: code, Message: msg}})
}

// fail maps a domain error to the JSON error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := imagegen.KindOf(err)
	body := errorBody{Code: string(kind), Message: err.Error()}
	status := http.StatusInternalServerError
	switch kind {
	case imagegen.KindInvalidRequest, imagegen.KindMalformedInput:
		status = http.StatusBadRequest
	case imagegen.KindProviderRefused:
		status = http.StatusUnprocessableEntity
	case imagegen.KindProviderTransport:
		status = http.StatusBadGateway
		body.Retryable = true
	case imagegen.KindCanceled:
		status = http.StatusConflict
	default:
		body.Message = "internal error"
	}
	var stepErr *imagegen.StepError
	if errors.As(err, &stepErr) {
		body.Step = stepErr.Step
		body.Slot = string(stepErr.Slot)
	}
	ev := a.Logger.Warn()
	if status >= 500 {
		ev = a.Logger.Error()
	}
	ev.Err(err).Str("kind", string(kind)).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("request failed")
	a.json(w, status, errorEnvelope{Error: body})
}

// decode reads a size limited JSON body into dst and validates it.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("body exceeds %d bytes", limit))
		case errors.Is(err, io.EOF):
			a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), "empty payload")
		default:
			a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), "invalid payload")
		}
		return false
	}
	if err := validate.Struct(dst); err != nil {
		a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid payload"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// requireUser writes 401 and returns "" when the request is anonymous.
func (a *App) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	}
	return userID
}

// decodeImage parses an optional data URI field.
func decodeImage(field, wire string) (*imagegen.ImageRef, error) {
	if strings.TrimSpace(wire) == "" {
		return nil, nil
	}
	ref, err := imagegen.Decode(wire)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &ref, nil
}
