//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tabletap/api/internal/config"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/notify"
	"github.com/tabletap/api/internal/policy"
	"github.com/tabletap/api/internal/router"
	"github.com/tabletap/api/internal/ws"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

const integrationSecret = "integration-test-secret"

// TestIntegrationFlow exercises ordering end to end against a real
// PostgreSQL database with every handler wired through the router.
func TestIntegrationFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()
	queries := database.New(pool)

	// --- 1. Roles, restaurant, catalog and owner (direct inserts) ---
	seedRoles(t, ctx, queries)
	restaurantID := createRestaurant(t, ctx, queries)
	margheritaID := createProduct(t, ctx, queries, restaurantID, "PIZ-MAR", `{"web":"12.99","mobile":"12.49"}`)
	telegramOnlyID := createProductOn(t, ctx, queries, restaurantID, "PIZ-TG", `{"telegram":"9.99"}`, `["telegram"]`)
	createUser(t, ctx, queries, restaurantID, "owner@pizza.test", enum.RoleRestaurantOwner)

	// --- 2. Wire the server ---
	p, err := policy.Load(ctx, queries)
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	hub := ws.NewHub()
	go hub.Run(ctx)
	log := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	emitter := notify.NewEmitter(log, 2*time.Second, hub)
	defer emitter.Close()

	r := router.New(router.Deps{
		Config: &config.Config{
			Port:        "8081",
			DatabaseURL: connStr,
			JWTSecret:   integrationSecret,
			CORSOrigins: []string{"*"},
		},
		Queries: queries,
		Pool:    pool,
		Policy:  p,
		Hub:     hub,
		Emitter: emitter,
		Log:     log,
	})
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 3. Owner logs in and hires kitchen staff ---
	ownerToken := login(t, server, "owner@pizza.test", "password123")
	httpJSON(t, server, "POST", "/api/v1/users", map[string]interface{}{
		"name":     "Luigi",
		"email":    "luigi@pizza.test",
		"password": "password123",
		"roles":    []string{enum.RoleKitchenStaff},
	}, ownerToken, http.StatusCreated)
	kitchenToken := login(t, server, "luigi@pizza.test", "password123")

	// --- 4. Kitchen subscribes to the restaurant feed ---
	feed := dialFeed(t, server, fmt.Sprintf("/ws/restaurants/%d/orders", restaurantID), kitchenToken)
	defer feed.Close()

	// --- 5. Guest places an order ---
	order := createOrder(t, server, restaurantID, margheritaID, 2)
	orderID := int64(order["id"].(float64))

	// 2 x 12.99 = 25.98, tax 8% = 2.08, service 1.00
	if got := order["total_amount"]; got != "29.06" {
		t.Fatalf("total_amount: got %v, want 29.06", got)
	}
	if got := order["order_number"].(string); got != fmt.Sprintf("PIZ-%06d", orderID) {
		t.Errorf("order_number: got %s", got)
	}
	if order["status"] != enum.OrderStatusPending {
		t.Errorf("status: got %v, want pending", order["status"])
	}

	// --- 6. Channel mismatch rejects the whole order ---
	resp := httpJSON(t, server, "POST", "/api/v1/orders", orderBody(restaurantID, telegramOnlyID, 1), "", http.StatusBadRequest)
	if resp["success"] != false {
		t.Errorf("channel mismatch should fail: %v", resp)
	}

	// --- 7. Kitchen confirms; the feed sees it ---
	resp = httpJSON(t, server, "PUT", fmt.Sprintf("/api/v1/orders/%d/status", orderID),
		map[string]string{"status": enum.OrderStatusConfirmed}, kitchenToken, http.StatusOK)
	confirmed := resp["data"].(map[string]interface{})
	if confirmed["confirmed_at"] == nil {
		t.Error("confirmed_at should be stamped")
	}
	expectEvent(t, feed, orderID, enum.OrderStatusPending, enum.OrderStatusConfirmed)

	// --- 8. Still cancellable while confirmed ---
	resp = httpJSON(t, server, "POST", fmt.Sprintf("/api/v1/orders/%d/cancel", orderID),
		map[string]string{"reason": "customer called"}, ownerToken, http.StatusOK)
	cancelled := resp["data"].(map[string]interface{})
	if cancelled["status"] != enum.OrderStatusCancelled || cancelled["cancellation_reason"] != "customer called" {
		t.Errorf("cancelled order: got %v", cancelled)
	}
	expectEvent(t, feed, orderID, enum.OrderStatusConfirmed, enum.OrderStatusCancelled)

	// --- 9. Too late once preparing ---
	second := createOrder(t, server, restaurantID, margheritaID, 1)
	secondID := int64(second["id"].(float64))
	httpJSON(t, server, "PUT", fmt.Sprintf("/api/v1/orders/%d/status", secondID),
		map[string]string{"status": enum.OrderStatusPreparing}, kitchenToken, http.StatusOK)
	httpJSON(t, server, "POST", fmt.Sprintf("/api/v1/orders/%d/cancel", secondID),
		map[string]string{"reason": "too slow"}, ownerToken, http.StatusBadRequest)

	// --- 10. Kitchen board lists only active orders ---
	resp = httpJSON(t, server, "GET", fmt.Sprintf("/api/v1/restaurants/%d/orders", restaurantID), nil, kitchenToken, http.StatusOK)
	active := resp["data"].(map[string]interface{})["orders"].([]interface{})
	if len(active) != 1 || int64(active[0].(map[string]interface{})["id"].(float64)) != secondID {
		t.Errorf("active orders: got %v, want only %d", active, secondID)
	}

	// --- 11. Kitchen staff may not cancel or manage users ---
	httpJSON(t, server, "POST", fmt.Sprintf("/api/v1/orders/%d/cancel", secondID),
		map[string]string{"reason": "burnt"}, kitchenToken, http.StatusForbidden)
	httpJSON(t, server, "POST", "/api/v1/users", map[string]interface{}{
		"name": "Mario", "email": "mario@pizza.test", "password": "password123",
		"roles": []string{enum.RoleCourier},
	}, kitchenToken, http.StatusForbidden)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tabletap_test"),
		tcpostgres.WithUsername("tabletap"),
		tcpostgres.WithPassword("tabletap"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func seedRoles(t *testing.T, ctx context.Context, q *database.Queries) {
	t.Helper()
	permIDs := make(map[string]int64)
	for _, perm := range enum.Permissions {
		id, err := q.UpsertPermission(ctx, perm)
		if err != nil {
			t.Fatalf("upsert permission %s: %v", perm, err)
		}
		permIDs[perm] = id
	}
	for role, perms := range policy.DefaultGrants() {
		roleID, err := q.UpsertRole(ctx, role)
		if err != nil {
			t.Fatalf("upsert role %s: %v", role, err)
		}
		for _, perm := range perms {
			if err := q.GrantPermission(ctx, database.GrantPermissionParams{RoleID: roleID, PermissionID: permIDs[perm]}); err != nil {
				t.Fatalf("grant %s: %v", perm, err)
			}
		}
	}
}

func createRestaurant(t *testing.T, ctx context.Context, q *database.Queries) int64 {
	t.Helper()
	rest, err := q.UpsertRestaurant(ctx, database.UpsertRestaurantParams{
		Name:     "Pizza Palace",
		Slug:     "pizza-palace",
		Currency: "USD",
		Settings: []byte(`{"tax_rate":8,"service_fee":"1.00","delivery_fee":"3.00","estimated_prep_time":25}`),
	})
	if err != nil {
		t.Fatalf("create restaurant: %v", err)
	}
	return rest.ID
}

func createProduct(t *testing.T, ctx context.Context, q *database.Queries, restaurantID int64, sku, prices string) int64 {
	t.Helper()
	return createProductOn(t, ctx, q, restaurantID, sku, prices, `["web","mobile","pos"]`)
}

func createProductOn(t *testing.T, ctx context.Context, q *database.Queries, restaurantID int64, sku, prices, channels string) int64 {
	t.Helper()
	id, err := q.CreateProduct(ctx, database.CreateProductParams{
		RestaurantID: restaurantID,
		Name:         []byte(`{"en":"` + sku + `"}`),
		Description:  []byte(`{}`),
		Sku:          pgtype.Text{String: sku, Valid: true},
		Type:         enum.ProductTypeSimple,
		Prices:       []byte(prices),
		Channels:     []byte(channels),
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", sku, err)
	}
	return id
}

func createUser(t *testing.T, ctx context.Context, q *database.Queries, restaurantID int64, email, role string) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := q.CreateUser(ctx, database.CreateUserParams{
		RestaurantID:   pgtype.Int8{Int64: restaurantID, Valid: true},
		Name:           "Owner",
		Email:          email,
		HashedPassword: string(hash),
		Status:         enum.StatusActive,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if n, err := q.AddUserRole(ctx, database.AddUserRoleParams{UserID: u.ID, RoleName: role}); err != nil || n != 1 {
		t.Fatalf("add role %s: n=%d err=%v", role, n, err)
	}
	return u.ID
}

// --- HTTP helpers ---

func httpJSON(t *testing.T, server *httptest.Server, method, path string, body interface{}, token string, wantStatus int) map[string]interface{} {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d, body: %v", method, path, resp.StatusCode, wantStatus, out)
	}
	return out
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := httpJSON(t, server, "POST", "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "", http.StatusOK)
	token, ok := resp["data"].(map[string]interface{})["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

func orderBody(restaurantID, productID int64, qty int) map[string]interface{} {
	return map[string]interface{}{
		"restaurant_id": restaurantID,
		"channel":       "web",
		"customer_info": map[string]string{"name": "Jane", "phone": "+15550100"},
		"delivery_info": map[string]string{"type": "pickup"},
		"items":         []map[string]interface{}{{"product_id": productID, "quantity": qty}},
	}
}

func createOrder(t *testing.T, server *httptest.Server, restaurantID, productID int64, qty int) map[string]interface{} {
	t.Helper()
	resp := httpJSON(t, server, "POST", "/api/v1/orders", orderBody(restaurantID, productID, qty), "", http.StatusCreated)
	return resp["data"].(map[string]interface{})
}

// --- WebSocket helpers ---

func dialFeed(t *testing.T, server *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return conn
}

func expectEvent(t *testing.T, conn *websocket.Conn, orderID int64, oldStatus, newStatus string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	var frame ws.Event
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev notify.Event
	if err := json.Unmarshal(frame.Payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Order.ID != orderID || ev.Order.OldStatus != oldStatus || ev.Order.NewStatus != newStatus {
		t.Errorf("event: got order %d %s -> %s, want %d %s -> %s",
			ev.Order.ID, ev.Order.OldStatus, ev.Order.NewStatus, orderID, oldStatus, newStatus)
	}
}
