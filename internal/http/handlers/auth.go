package handlers

import (
	"errors"
	"net/http"

	"github.com/maykecorrea/dressup/internal/middleware"
	"github.com/maykecorrea/dressup/internal/users"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"max=120"`
	Locale   string `json:"locale" validate:"omitempty,max=16"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  users.User `json:"user"`
}

func (a *App) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !a.decode(w, r, &req) {
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	user, err := a.Users.Register(r.Context(), users.SignUp{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Locale:   locale,
	})
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			a.error(w, http.StatusConflict, "email_taken", "email already registered")
			return
		}
		a.Logger.Error().Err(err).Msg("register user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create user")
		return
	}
	a.issueToken(w, http.StatusCreated, user)
}

func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			a.error(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		a.Logger.Error().Err(err).Msg("authenticate failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to authenticate")
		return
	}
	a.issueToken(w, http.StatusOK, user)
}

func (a *App) issueToken(w http.ResponseWriter, status int, user users.User) {
	token, err := middleware.SignJWT(a.JWTSecret, user.ID, user.Email, user.Locale, a.TokenTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, status, authResponse{Token: token, User: user})
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	user, err := a.Users.ByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		a.Logger.Error().Err(err).Msg("load user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load user")
		return
	}
	a.json(w, http.StatusOK, user)
}
