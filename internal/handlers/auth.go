package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cliptube/accounts/config"
	"github.com/cliptube/accounts/internal/services"
	"github.com/cliptube/accounts/types"
	"github.com/go-chi/chi/v5"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	maxMultipartMemory = 32 << 20

	formFieldFullname = "fullname"
	formFieldEmail    = "email"
	formFieldUsername = "username"
	formFieldPassword = "password"
	formFieldAvatar   = "avatar"
	formFieldCover    = "coverImage"
)

// AuthHandler provides the account/session HTTP endpoints.
type AuthHandler struct {
	sessions   *services.SessionService
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(sessions *services.SessionService, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		sessions:   sessions,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

// AuthRouter registers account routes on the given router.
func AuthRouter(r chi.Router, sessions *services.SessionService, cfg config.AuthConfig) {
	handler := NewAuthHandler(sessions, cfg)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh-token", handler.Refresh)
	r.With(handler.RequireAuth).Post("/logout", handler.Logout)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth authenticates the request via the access token taken from
// the accessToken cookie or the Authorization header, and attaches the
// resolved user to the request context. It never retries.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessTokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized request")
			return
		}

		user, err := h.sessions.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		ctx := context.WithValue(r.Context(), contextUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Register creates a new account from a multipart form with an avatar
// file (required) and a coverImage file (optional).
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	avatar, closeAvatar, err := formFile(r, formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid avatar upload")
		return
	}
	defer closeAvatar()

	cover, closeCover, err := formFile(r, formFieldCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cover image upload")
		return
	}
	defer closeCover()

	user, err := h.sessions.Register(r.Context(), services.RegisterInput{
		Fullname:   r.FormValue(formFieldFullname),
		Email:      r.FormValue(formFieldEmail),
		Username:   r.FormValue(formFieldUsername),
		Password:   r.FormValue(formFieldPassword),
		Avatar:     avatar,
		CoverImage: cover,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials, sets both token cookies, and returns the
// sanitized user along with the token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, pair, err := h.sessions.Login(r.Context(), services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout revokes the caller's refreshable session and clears both
// token cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if err := h.sessions.Logout(r.Context(), user.ID); err != nil {
		writeServiceError(w, err)
		return
	}

	clearTokenCookies(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// Refresh rotates the refresh token taken from the refreshToken cookie
// or the request body, and resets both cookies.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

// Me returns the authenticated caller's sanitized account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User         types.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, pair types.TokenPair) {
	http.SetCookie(w, tokenCookie(accessTokenCookie, pair.AccessToken, h.accessTTL))
	http.SetCookie(w, tokenCookie(refreshTokenCookie, pair.RefreshToken, h.refreshTTL))
}

func clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, tokenCookie(accessTokenCookie, "", -time.Second))
	http.SetCookie(w, tokenCookie(refreshTokenCookie, "", -time.Second))
}

func tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	token, err := bearerToken(r)
	if err != nil {
		return ""
	}
	return token
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// formFile extracts an optional file field from a parsed multipart
// form. A missing field yields a nil input, not an error.
func formFile(r *http.Request, field string) (*services.FileInput, func(), error) {
	noop := func() {}
	if r.MultipartForm == nil {
		return nil, noop, nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, noop, nil
	}

	header := headers[0]
	file, err := header.Open()
	if err != nil {
		return nil, noop, err
	}

	return &services.FileInput{
		Filename:    header.Filename,
		ContentType: contentTypeOf(header),
		Size:        header.Size,
		Reader:      file,
	}, func() { _ = file.Close() }, nil
}

func contentTypeOf(header *multipart.FileHeader) string {
	return header.Header.Get("Content-Type")
}
