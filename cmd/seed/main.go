// Package main seeds a fresh backend project with the storefront baseline:
// the settings row, the vegetable catalog and demo users with profiles.
//
// Usage:
//
//	seed -env .env -file config/seed.yaml
//	seed -file config/seed.yaml -skip-users
//
// Re-running is safe: settings are upserted, products already present by
// SKU are skipped and existing users are reported and left alone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vegdirect/storefront/internal/config"
	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/supabase"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
	catalogsupabase "github.com/vegdirect/storefront/services/catalog/supabase"
	settingssupabase "github.com/vegdirect/storefront/services/settings/supabase"
)

type seedFile struct {
	Settings *seedSettings `yaml:"settings"`
	Products []seedProduct `yaml:"products"`
	Users    []seedUser    `yaml:"users"`
}

type seedSettings struct {
	StoreName    string          `yaml:"store_name"`
	LogoURL      string          `yaml:"logo_url"`
	SupportEmail string          `yaml:"support_email"`
	AdminEmail   string          `yaml:"admin_email"`
	Currency     string          `yaml:"currency"`
	VATPercent   float64         `yaml:"vat_percent"`
	MenuToggles  map[string]bool `yaml:"menu_toggles"`
}

type seedProduct struct {
	SKU         string  `yaml:"sku"`
	Name        string  `yaml:"name"`
	NameEN      string  `yaml:"name_en"`
	NameKO      string  `yaml:"name_ko"`
	Description string  `yaml:"description"`
	Category    string  `yaml:"category"`
	Unit        string  `yaml:"unit"`
	Price       float64 `yaml:"price"`
	Stock       int     `yaml:"stock"`
}

type seedUser struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	Role        string `yaml:"role"`
	FullName    string `yaml:"full_name"`
	Phone       string `yaml:"phone"`
	CompanyName string `yaml:"company_name"`
}

func main() {
	var (
		envFile   = flag.String("env", "", "path to an optional .env file")
		seedPath  = flag.String("file", filepath.Join("config", "seed.yaml"), "path to the seed data file")
		skipUsers = flag.Bool("skip-users", false, "seed settings and products only")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if cfg.Supabase.ServiceKey == "" {
		log.Fatalf("SUPABASE_SERVICE_KEY is required to seed")
	}

	data, err := os.ReadFile(filepath.Clean(*seedPath))
	if err != nil {
		log.Fatalf("read seed file: %v", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		log.Fatalf("parse seed file: %v", err)
	}

	client, err := supabase.NewClient(supabase.Config{
		ProjectURL: cfg.Supabase.URL,
		AnonKey:    cfg.Supabase.AnonKey,
		ServiceKey: cfg.Supabase.ServiceKey,
	})
	if err != nil {
		log.Fatalf("create backend client: %v", err)
	}
	db := database.NewRepository(client)

	ctx := context.Background()

	if seed.Settings != nil {
		if err := seedStoreSettings(ctx, db, seed.Settings, cfg.Store.Currency); err != nil {
			log.Fatalf("seed settings: %v", err)
		}
		log.Printf("Settings saved for %q", seed.Settings.StoreName)
	}

	created, skipped, err := seedProducts(ctx, db, seed.Products, cfg.Store.Currency)
	if err != nil {
		log.Fatalf("seed products: %v", err)
	}
	log.Printf("Products: %d created, %d already present", created, skipped)

	if !*skipUsers {
		n, err := seedUsers(ctx, client, db, seed.Users)
		if err != nil {
			log.Fatalf("seed users: %v", err)
		}
		log.Printf("Users: %d created", n)
	}

	fmt.Println("Seed complete")
}

func seedStoreSettings(ctx context.Context, db *database.Repository, s *seedSettings, defaultCurrency string) error {
	currency := s.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	repo := settingssupabase.NewRepository(db)
	return repo.Save(ctx, &settingssupabase.Settings{
		StoreName:    s.StoreName,
		LogoURL:      s.LogoURL,
		SupportEmail: s.SupportEmail,
		AdminEmail:   s.AdminEmail,
		Currency:     currency,
		VATPercent:   s.VATPercent,
		MenuToggles:  s.MenuToggles,
	})
}

func seedProducts(ctx context.Context, db *database.Repository, products []seedProduct, defaultCurrency string) (created, skipped int, err error) {
	repo := catalogsupabase.NewRepository(db)
	for _, p := range products {
		if p.SKU == "" {
			return created, skipped, fmt.Errorf("product %q has no sku", p.Name)
		}
		_, getErr := repo.GetBySKU(ctx, p.SKU)
		if getErr == nil {
			skipped++
			continue
		}
		if !errors.Is(getErr, database.ErrNotFound) {
			return created, skipped, fmt.Errorf("lookup %s: %w", p.SKU, getErr)
		}
		unit := p.Unit
		if unit == "" {
			unit = "kg"
		}
		if err := repo.Create(ctx, &catalogsupabase.Product{
			SKU:         p.SKU,
			Name:        p.Name,
			NameEN:      p.NameEN,
			NameKO:      p.NameKO,
			Description: p.Description,
			Category:    p.Category,
			Unit:        unit,
			Price:       p.Price,
			Currency:    defaultCurrency,
			Stock:       p.Stock,
			Active:      true,
		}); err != nil {
			return created, skipped, fmt.Errorf("create %s: %w", p.SKU, err)
		}
		created++
	}
	return created, skipped, nil
}

func seedUsers(ctx context.Context, client *supabase.Client, db *database.Repository, users []seedUser) (int, error) {
	repo := accountssupabase.NewRepository(db)
	created := 0
	for _, u := range users {
		if u.Email == "" || u.Password == "" {
			return created, fmt.Errorf("user entries need email and password")
		}
		role := u.Role
		if role == "" {
			role = "customer"
		}
		user, err := client.Auth.AdminCreateUser(ctx, supabase.AdminCreateUserRequest{
			Email:        u.Email,
			Password:     u.Password,
			EmailConfirm: true,
			UserMetadata: map[string]any{"full_name": u.FullName},
		})
		if err != nil {
			// A previous run likely created this account already.
			log.Printf("Skipping %s: %v", u.Email, err)
			continue
		}
		profile := &accountssupabase.Profile{
			ID:            user.ID,
			Email:         u.Email,
			FullName:      u.FullName,
			Phone:         u.Phone,
			Role:          role,
			CompanyName:   u.CompanyName,
			Notifications: accountssupabase.NotificationPrefs{OrderUpdates: true},
			Active:        true,
		}
		if err := repo.CreateProfile(ctx, profile); err != nil {
			return created, fmt.Errorf("profile for %s: %w", u.Email, err)
		}
		created++
	}
	return created, nil
}
