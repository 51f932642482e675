package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/tabletap/api/internal/auth"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/policy"
	"golang.org/x/crypto/bcrypt"
)

// AuthStore defines the database methods needed by auth handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type AuthStore interface {
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
	ListUserRoles(ctx context.Context, userID int64) ([]string, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store     AuthStore
	jwtSecret string
	policy    *policy.Policy
	log       *slog.Logger
}

func NewAuthHandler(store AuthStore, jwtSecret string, p *policy.Policy, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{store: store, jwtSecret: jwtSecret, policy: p, log: log}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

// --- Request / Response types ---

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        userResponse `json:"user"`
}

type userResponse struct {
	ID           int64    `json:"id"`
	RestaurantID *int64   `json:"restaurant_id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"`
}

// --- Handlers ---

// Login handles email + password authentication.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeFailure(w, err)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			fail(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		respondError(w, r, h.log, "login", err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		fail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user.Status != enum.StatusActive {
		fail(w, http.StatusForbidden, "account is "+user.Status)
		return
	}

	roles, err := h.store.ListUserRoles(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.log, "login: list roles", err)
		return
	}

	var restaurantID *int64
	if user.RestaurantID.Valid {
		rid := user.RestaurantID.Int64
		restaurantID = &rid
	}

	token, err := auth.GenerateToken(h.jwtSecret, user.ID, restaurantID, roles)
	if err != nil {
		respondError(w, r, h.log, "login: sign token", err)
		return
	}

	respondMessage(w, http.StatusOK, "login successful", tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(auth.TokenTTL.Seconds()),
		User: userResponse{
			ID:           user.ID,
			RestaurantID: restaurantID,
			Name:         user.Name,
			Email:        user.Email,
			Roles:        roles,
			Permissions:  h.policy.Permissions(roles),
		},
	})
}
