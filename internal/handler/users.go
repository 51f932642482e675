package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/middleware"
	"github.com/tabletap/api/internal/policy"
	"github.com/tabletap/api/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// UserStore defines the database methods needed by user handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (database.User, error)
	ListUsers(ctx context.Context, arg database.ListUsersParams) ([]database.User, error)
	ListUserRoles(ctx context.Context, userID int64) ([]string, error)
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	AddUserRole(ctx context.Context, arg database.AddUserRoleParams) (int64, error)
	ClearUserRoles(ctx context.Context, userID int64) error
	UpdateUserStatus(ctx context.Context, arg database.UpdateUserStatusParams) (database.User, error)
	SoftDeleteUser(ctx context.Context, id int64) (int64, error)
}

// NewUserStore creates a UserStore from a DBTX (pool or tx).
type NewUserStore func(db database.DBTX) UserStore

// UserHandler handles user management endpoints. Every mutation is checked
// against the role hierarchy on top of the route's permission.
type UserHandler struct {
	store    UserStore
	pool     service.TxBeginner
	newStore NewUserStore
	policy   *policy.Policy
	log      *slog.Logger
}

func NewUserHandler(store UserStore, pool service.TxBeginner, newStore NewUserStore, p *policy.Policy, log *slog.Logger) *UserHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UserHandler{store: store, pool: pool, newStore: newStore, policy: p, log: log}
}

// RegisterRoutes registers user endpoints. Expects claims in the request
// context.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	view := middleware.RequirePermission(h.policy, enum.PermViewUsers)
	manage := middleware.RequirePermission(h.policy, enum.PermManageUsers)

	r.With(view).Get("/users", h.List)
	r.With(manage).Post("/users", h.Create)
	r.With(manage).Put("/users/{id}/roles", h.UpdateRoles)
	r.With(manage).Put("/users/{id}/status", h.UpdateStatus)
	r.With(manage).Delete("/users/{id}", h.Delete)
	r.With(view).Get("/roles", h.Roles)
}

// --- Request / Response types ---

type createUserRequest struct {
	Name         string   `json:"name" validate:"required,max=255"`
	Email        string   `json:"email" validate:"required,email,max=255"`
	Password     string   `json:"password" validate:"required,min=8,max=72"`
	Phone        string   `json:"phone" validate:"max=32"`
	RestaurantID *int64   `json:"restaurant_id" validate:"omitempty,gt=0"`
	Roles        []string `json:"roles" validate:"required,min=1,unique,dive,required"`
}

type updateRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,unique,dive,required"`
}

type updateUserStatusRequest struct {
	Status           string `json:"status" validate:"required,account_status"`
	SuspensionReason string `json:"suspension_reason" validate:"required_if=Status suspended,max=500"`
}

type userDetailResponse struct {
	ID               int64     `json:"id"`
	RestaurantID     *int64    `json:"restaurant_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            *string   `json:"phone"`
	Status           string    `json:"status"`
	SuspensionReason *string   `json:"suspension_reason"`
	Roles            []string  `json:"roles"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type roleResponse struct {
	Name        string   `json:"name"`
	Rank        int      `json:"rank"`
	Permissions []string `json:"permissions"`
}

func toUserDetailResponse(u database.User, roles []string) userDetailResponse {
	if roles == nil {
		roles = []string{}
	}
	resp := userDetailResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Phone:            textPtr(u.Phone),
		Status:           u.Status,
		SuspensionReason: textPtr(u.SuspensionReason),
		Roles:            roles,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if u.RestaurantID.Valid {
		rid := u.RestaurantID.Int64
		resp.RestaurantID = &rid
	}
	return resp
}

// --- Handlers ---

// List handles GET /users with optional restaurant_id, status, role and
// search filters. Restaurant-scoped callers only see their own restaurant.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ClaimsFromContext(r.Context()).Actor()
	if err := policy.CanViewUsers(actor); err != nil {
		fail(w, http.StatusForbidden, err.Error())
		return
	}

	q := r.URL.Query()
	limit := defaultListLimit
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := 0
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListUsersParams{Limit: int32(limit), Offset: int32(offset)}
	if s := q.Get("restaurant_id"); s != "" {
		rid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid restaurant_id")
			return
		}
		params.RestaurantID = pgtype.Int8{Int64: rid, Valid: true}
	}
	if !actor.IsPlatform() {
		if actor.RestaurantID == nil ||
			(params.RestaurantID.Valid && params.RestaurantID.Int64 != *actor.RestaurantID) {
			fail(w, http.StatusForbidden, "restaurant is outside your scope")
			return
		}
		params.RestaurantID = pgtype.Int8{Int64: *actor.RestaurantID, Valid: true}
	}
	if s := q.Get("status"); s != "" {
		if !enum.IsAccountStatus(s) {
			fail(w, http.StatusUnprocessableEntity, "invalid status")
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("role"); s != "" {
		params.Role = pgtype.Text{String: s, Valid: true}
	}
	if s := strings.TrimSpace(q.Get("search")); s != "" {
		params.Search = pgtype.Text{String: s, Valid: true}
	}

	users, err := h.store.ListUsers(r.Context(), params)
	if err != nil {
		respondError(w, r, h.log, "list users", err)
		return
	}

	resp := make([]userDetailResponse, len(users))
	for i, u := range users {
		roles, err := h.store.ListUserRoles(r.Context(), u.ID)
		if err != nil {
			respondError(w, r, h.log, "list user roles", err)
			return
		}
		resp[i] = toUserDetailResponse(u, roles)
	}
	respondMessage(w, http.StatusOK, "users retrieved", resp)
}

// Create handles POST /users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeFailure(w, err)
		return
	}

	actor := middleware.ClaimsFromContext(r.Context()).Actor()
	if err := policy.CanAssignRoles(actor, req.Roles); err != nil {
		fail(w, http.StatusForbidden, err.Error())
		return
	}

	restaurantID := req.RestaurantID
	if !actor.IsPlatform() {
		if actor.RestaurantID == nil || (restaurantID != nil && *restaurantID != *actor.RestaurantID) {
			fail(w, http.StatusForbidden, "restaurant is outside your scope")
			return
		}
		restaurantID = actor.RestaurantID
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, r, h.log, "create user: hash password", err)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		respondError(w, r, h.log, "create user: begin tx", err)
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck
	txStore := h.newStore(tx)

	params := database.CreateUserParams{
		Name:           req.Name,
		Email:          strings.ToLower(req.Email),
		HashedPassword: string(hashed),
		Status:         enum.StatusActive,
	}
	if restaurantID != nil {
		params.RestaurantID = pgtype.Int8{Int64: *restaurantID, Valid: true}
	}
	if req.Phone != "" {
		params.Phone = pgtype.Text{String: req.Phone, Valid: true}
	}

	user, err := txStore.CreateUser(r.Context(), params)
	if err != nil {
		if isUniqueViolation(err) {
			fail(w, http.StatusConflict, "email already exists")
			return
		}
		respondError(w, r, h.log, "create user", err)
		return
	}

	if ok := h.assignRoles(w, r, txStore, user.ID, req.Roles); !ok {
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		respondError(w, r, h.log, "create user: commit", err)
		return
	}

	h.log.InfoContext(r.Context(), "user created",
		"user_id", user.ID,
		"roles", req.Roles,
		"actor_id", actor.UserID,
	)
	respondMessage(w, http.StatusCreated, "user created", toUserDetailResponse(user, req.Roles))
}

// UpdateRoles handles PUT /users/{id}/roles. Replaces the user's roles.
func (h *UserHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	target, targetRoles, ok := h.loadTarget(w, r)
	if !ok {
		return
	}

	var req updateRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeFailure(w, err)
		return
	}

	actor := middleware.ClaimsFromContext(r.Context()).Actor()
	if err := policy.CanUpdateRoles(actor, targetRoles); err != nil {
		fail(w, http.StatusForbidden, err.Error())
		return
	}
	if err := policy.CanAssignRoles(actor, req.Roles); err != nil {
		fail(w, http.StatusForbidden, err.Error())
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		respondError(w, r, h.log, "update roles: begin tx", err)
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck
	txStore := h.newStore(tx)

	if err := txStore.ClearUserRoles(r.Context(), target.ID); err != nil {
		respondError(w, r, h.log, "update roles: clear", err)
		return
	}
	if ok := h.assignRoles(w, r, txStore, target.ID, req.Roles); !ok {
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		respondError(w, r, h.log, "update roles: commit", err)
		return
	}

	h.log.InfoContext(r.Context(), "user roles updated",
		"user_id", target.ID,
		"old_roles", targetRoles,
		"new_roles", req.Roles,
		"actor_id", actor.UserID,
	)
	respondMessage(w, http.StatusOK, "roles updated", toUserDetailResponse(target, req.Roles))
}

// UpdateStatus handles PUT /users/{id}/status.
func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	target, targetRoles, ok := h.loadTarget(w, r)
	if !ok {
		return
	}

	var req updateUserStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeFailure(w, err)
		return
	}

	actor := middleware.ClaimsFromContext(r.Context()).Actor()
	if err := policy.CanChangeStatus(actor, targetRoles); err != nil {
		fail(w, http.StatusForbidden, err.Error())
		return
	}

	params := database.UpdateUserStatusParams{ID: target.ID, Status: req.Status}
	if req.Status == enum.StatusSuspended {
		params.SuspensionReason = pgtype.Text{String: req.SuspensionReason, Valid: true}
	}

	updated, err := h.store.UpdateUserStatus(r.Context(), params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			fail(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, r, h.log, "update user status", err)
		return
	}
	respondMessage(w, http.StatusOK, "status updated", toUserDetailResponse(updated, targetRoles))
}

// Delete handles DELETE /users/{id}. Users are soft-deleted.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	target, targetRoles, ok := h.loadTarget(w, r)
	if !ok {
		return
	}

	actor := middleware.ClaimsFromContext(r.Context()).Actor()
	if target.ID == actor.UserID {
		fail(w, http.StatusForbidden, "cannot delete yourself")
		return
	}
	if err := policy.CanDelete(actor, targetRoles); err != nil {
		fail(w, http.StatusForbidden, err.Error())
		return
	}

	n, err := h.store.SoftDeleteUser(r.Context(), target.ID)
	if err != nil {
		respondError(w, r, h.log, "delete user", err)
		return
	}
	if n == 0 {
		fail(w, http.StatusNotFound, "user not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Roles handles GET /roles: every role with its rank and permissions.
func (h *UserHandler) Roles(w http.ResponseWriter, r *http.Request) {
	names := h.policy.Roles()
	resp := make([]roleResponse, len(names))
	for i, name := range names {
		resp[i] = roleResponse{
			Name:        name,
			Rank:        policy.Rank(name),
			Permissions: h.policy.Permissions([]string{name}),
		}
	}
	respondMessage(w, http.StatusOK, "roles retrieved", resp)
}

// --- Helpers ---

// loadTarget fetches the {id} user with its roles and checks it lies within
// the caller's restaurant.
func (h *UserHandler) loadTarget(w http.ResponseWriter, r *http.Request) (database.User, []string, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		fail(w, http.StatusBadRequest, "invalid user ID")
		return database.User{}, nil, false
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			fail(w, http.StatusNotFound, "user not found")
			return database.User{}, nil, false
		}
		respondError(w, r, h.log, "get user", err)
		return database.User{}, nil, false
	}

	actor := middleware.ClaimsFromContext(r.Context()).Actor()
	if !actor.IsPlatform() {
		if !user.RestaurantID.Valid {
			fail(w, http.StatusForbidden, "user is outside your scope")
			return database.User{}, nil, false
		}
		if err := policy.RequireRestaurant(actor, user.RestaurantID.Int64); err != nil {
			fail(w, http.StatusForbidden, "user is outside your scope")
			return database.User{}, nil, false
		}
	}

	roles, err := h.store.ListUserRoles(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.log, "list user roles", err)
		return database.User{}, nil, false
	}
	return user, roles, true
}

func (h *UserHandler) assignRoles(w http.ResponseWriter, r *http.Request, store UserStore, userID int64, roles []string) bool {
	for _, role := range roles {
		n, err := store.AddUserRole(r.Context(), database.AddUserRoleParams{UserID: userID, RoleName: role})
		if err != nil {
			respondError(w, r, h.log, "assign role", err)
			return false
		}
		if n == 0 {
			fail(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown role: %s", role))
			return false
		}
	}
	return true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
