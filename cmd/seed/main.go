package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tabletap/api/internal/config"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/i18n"
	"github.com/tabletap/api/internal/logger"
	"github.com/tabletap/api/internal/policy"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// CLI flags
	email := flag.String("email", "", "Super-admin email address")
	password := flag.String("password", "", "Super-admin password")
	name := flag.String("name", "", "Super-admin full name")
	demo := flag.Bool("demo", true, "Seed the Pizza Palace demo restaurant")
	flag.Parse()

	cfg := config.Load()
	log := logger.New("tabletap-seed", cfg.LogLevel)

	// Fall back to environment variables, then defaults
	if *email == "" {
		*email = envOr("SEED_EMAIL", "admin@tabletap.local")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *password == "" {
		*password = "password123"
		log.Warn("using default password 'password123'; change it immediately in production")
	}
	if *name == "" {
		*name = envOr("SEED_NAME", "Platform Admin")
	}

	ctx := context.Background()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			fatal(log, "migrate database", err)
		}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(log, "connect database", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		fatal(log, "ping database", err)
	}
	log.Info("connected to database")

	// Seed in a transaction: everything or nothing
	tx, err := pool.Begin(ctx)
	if err != nil {
		fatal(log, "begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	q := database.New(tx)

	if err := seedRoles(ctx, q, log); err != nil {
		fatal(log, "seed roles", err)
	}
	userID, err := seedSuperAdmin(ctx, q, log, *email, *password, *name)
	if err != nil {
		fatal(log, "seed super-admin", err)
	}
	if *demo {
		if err := seedPizzaPalace(ctx, tx, q, log, cfg.RequiredLanguages); err != nil {
			fatal(log, "seed demo restaurant", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		fatal(log, "commit", err)
	}
	log.Info("seed completed", "super_admin_id", userID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

// seedRoles writes every role, permission and grant of the default policy.
// Safe to re-run.
func seedRoles(ctx context.Context, q *database.Queries, log *slog.Logger) error {
	permIDs := make(map[string]int64, len(enum.Permissions))
	for _, perm := range enum.Permissions {
		id, err := q.UpsertPermission(ctx, perm)
		if err != nil {
			return fmt.Errorf("permission %s: %w", perm, err)
		}
		permIDs[perm] = id
	}

	grants := policy.DefaultGrants()
	roles := make([]string, 0, len(grants))
	for role := range grants {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		roleID, err := q.UpsertRole(ctx, role)
		if err != nil {
			return fmt.Errorf("role %s: %w", role, err)
		}
		for _, perm := range grants[role] {
			if err := q.GrantPermission(ctx, database.GrantPermissionParams{
				RoleID:       roleID,
				PermissionID: permIDs[perm],
			}); err != nil {
				return fmt.Errorf("grant %s to %s: %w", perm, role, err)
			}
		}
	}
	log.Info("roles seeded", "roles", len(roles), "permissions", len(permIDs))
	return nil
}

// seedSuperAdmin creates the platform super-admin if the email is unused.
func seedSuperAdmin(ctx context.Context, q *database.Queries, log *slog.Logger, email, password, name string) (int64, error) {
	existing, err := q.GetUserByEmail(ctx, email)
	if err == nil {
		log.Info("super-admin already exists, skipping", "email", email, "user_id", existing.ID)
		return existing.ID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("check user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	user, err := q.CreateUser(ctx, database.CreateUserParams{
		Name:           name,
		Email:          email,
		HashedPassword: string(hashed),
		Status:         enum.StatusActive,
	})
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	n, err := q.AddUserRole(ctx, database.AddUserRoleParams{UserID: user.ID, RoleName: enum.RoleSuperAdmin})
	if err != nil {
		return 0, fmt.Errorf("assign role: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("assign role: %s not found", enum.RoleSuperAdmin)
	}

	log.Info("created super-admin", "email", email, "user_id", user.ID)
	return user.ID, nil
}

type demoProduct struct {
	sku      string
	name     i18n.Text
	prices   map[string]string
	channels []string
	featured bool
}

type demoCategory struct {
	name     i18n.Text
	products []demoProduct
}

func tr(en, ru, uz string) i18n.Text {
	return i18n.New(
		i18n.Entry{Lang: "en", Value: en},
		i18n.Entry{Lang: "ru", Value: ru},
		i18n.Entry{Lang: "uz", Value: uz},
	)
}

var allChannels = enum.Channels

var pizzaPalaceCatalog = []demoCategory{
	{
		name: tr("Pizza", "Пицца", "Pitsa"),
		products: []demoProduct{
			{
				sku:      "PIZ-MAR",
				name:     tr("Margherita", "Маргарита", "Margarita"),
				prices:   map[string]string{"web": "12.99", "mobile": "12.49", "pos": "12.99"},
				channels: allChannels,
				featured: true,
			},
			{
				sku:      "PIZ-PEP",
				name:     tr("Pepperoni", "Пепперони", "Pepperoni"),
				prices:   map[string]string{"web": "14.50"},
				channels: allChannels,
			},
			{
				sku:      "PIZ-4CH",
				name:     tr("Four Cheese", "Четыре сыра", "To'rt pishloq"),
				prices:   map[string]string{"web": "15.90", "telegram": "14.90"},
				channels: []string{enum.ChannelWeb, enum.ChannelMobile, enum.ChannelTelegram},
			},
		},
	},
	{
		name: tr("Drinks", "Напитки", "Ichimliklar"),
		products: []demoProduct{
			{
				sku:      "DRK-COL",
				name:     tr("Cola", "Кола", "Kola"),
				prices:   map[string]string{"web": "2.50"},
				channels: allChannels,
			},
			{
				sku:      "DRK-TEA",
				name:     tr("Green tea", "Зелёный чай", "Ko'k choy"),
				prices:   map[string]string{"web": "1.80", "pos": "1.50"},
				channels: []string{enum.ChannelWeb, enum.ChannelPOS, enum.ChannelPhone},
			},
		},
	},
}

// seedPizzaPalace creates the demo restaurant and, on first run, its catalog.
func seedPizzaPalace(ctx context.Context, tx pgx.Tx, q *database.Queries, log *slog.Logger, languages []string) error {
	settings, err := json.Marshal(map[string]any{
		"tax_rate":            8,
		"delivery_fee":        "3.00",
		"service_fee":         "1.00",
		"estimated_prep_time": 30,
	})
	if err != nil {
		return err
	}

	restaurant, err := q.UpsertRestaurant(ctx, database.UpsertRestaurantParams{
		Name:     "Pizza Palace",
		Slug:     "pizza-palace",
		Currency: "USD",
		Settings: settings,
	})
	if err != nil {
		return fmt.Errorf("upsert restaurant: %w", err)
	}

	var hasProducts bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE restaurant_id = $1)`, restaurant.ID,
	).Scan(&hasProducts); err != nil {
		return fmt.Errorf("check catalog: %w", err)
	}
	if hasProducts {
		log.Info("demo catalog already exists, skipping", "restaurant_id", restaurant.ID)
		return nil
	}

	channels, err := json.Marshal(allChannels)
	if err != nil {
		return err
	}
	menuName, err := json.Marshal(tr("Main menu", "Основное меню", "Asosiy menyu"))
	if err != nil {
		return err
	}
	menuID, err := q.CreateMenu(ctx, database.CreateMenuParams{
		RestaurantID: restaurant.ID,
		Name:         menuName,
		Type:         "main",
		Channels:     channels,
	})
	if err != nil {
		return fmt.Errorf("create menu: %w", err)
	}

	count := 0
	for ci, cat := range pizzaPalaceCatalog {
		if err := cat.name.Validate(languages); err != nil {
			return fmt.Errorf("category %d: %w", ci, err)
		}
		catName, err := json.Marshal(cat.name)
		if err != nil {
			return err
		}
		categoryID, err := q.CreateCategory(ctx, database.CreateCategoryParams{
			RestaurantID: restaurant.ID,
			Name:         catName,
			SortOrder:    int32(ci),
		})
		if err != nil {
			return fmt.Errorf("create category: %w", err)
		}

		for pi, p := range cat.products {
			if err := p.name.Validate(languages); err != nil {
				return fmt.Errorf("product %s: %w", p.sku, err)
			}
			productID, err := createDemoProduct(ctx, q, restaurant.ID, categoryID, p)
			if err != nil {
				return fmt.Errorf("product %s: %w", p.sku, err)
			}
			if err := q.AttachMenuProduct(ctx, database.AttachMenuProductParams{
				MenuID:     menuID,
				ProductID:  productID,
				SortOrder:  int32(pi),
				IsFeatured: p.featured,
			}); err != nil {
				return fmt.Errorf("attach %s: %w", p.sku, err)
			}
			count++
		}
	}

	log.Info("demo restaurant seeded", "restaurant_id", restaurant.ID, "products", count)
	return nil
}

func createDemoProduct(ctx context.Context, q *database.Queries, restaurantID, categoryID int64, p demoProduct) (int64, error) {
	name, err := json.Marshal(p.name)
	if err != nil {
		return 0, err
	}
	prices, err := json.Marshal(p.prices)
	if err != nil {
		return 0, err
	}
	channels, err := json.Marshal(p.channels)
	if err != nil {
		return 0, err
	}
	return q.CreateProduct(ctx, database.CreateProductParams{
		RestaurantID: restaurantID,
		CategoryID:   pgtype.Int8{Int64: categoryID, Valid: true},
		Name:         name,
		Description:  []byte(`{}`),
		Sku:          pgtype.Text{String: p.sku, Valid: true},
		Type:         enum.ProductTypeSimple,
		Prices:       prices,
		Channels:     channels,
		IsActive:     true,
	})
}
