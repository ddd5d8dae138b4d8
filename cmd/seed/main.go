package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"rental-service/config"
	"rental-service/internal/apperror"
	"rental-service/internal/auth"
	"rental-service/internal/models"
	"rental-service/internal/service"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type ListingFixture struct {
	Name             string `yaml:"name"`
	Category         string `yaml:"category"`
	Description      string `yaml:"description"`
	RatePerDayCents  *int64 `yaml:"rate_per_day_cents"`
	RatePerHourCents *int64 `yaml:"rate_per_hour_cents"`
	Location         string `yaml:"location"`
	ImageURL         string `yaml:"image_url"`
}

type AccountFixture struct {
	Role         string           `yaml:"role"`
	Name         string           `yaml:"name"`
	Email        string           `yaml:"email"`
	Password     string           `yaml:"password"`
	Phone        string           `yaml:"phone"`
	Location     string           `yaml:"location"`
	WorkshopName string           `yaml:"workshop_name"`
	Address      string           `yaml:"address"`
	Listings     []ListingFixture `yaml:"listings"`
}

type Fixtures struct {
	Accounts []AccountFixture `yaml:"accounts"`
}

func readFixtures(filename string) (*Fixtures, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var fixtures Fixtures
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	for i, a := range fixtures.Accounts {
		if !models.Role(a.Role).Valid() {
			return nil, fmt.Errorf("account %d (%s): unknown role %q", i, a.Email, a.Role)
		}
		if len(a.Listings) > 0 && models.Role(a.Role) != models.RoleOwner {
			return nil, fmt.Errorf("account %d (%s): only owners can have listings", i, a.Email)
		}
	}
	return &fixtures, nil
}

// seed creates the fixtures through the services, applying the same field
// rules as the HTTP API. Accounts whose email is already registered are
// skipped together with their listings.
func seed(ctx context.Context, accounts *service.AccountService, listings *service.ListingService, fixtures *Fixtures) (created int, err error) {
	logger := util.GetLogger()

	for _, a := range fixtures.Accounts {
		req := &service.RegisterRequest{
			Role:         models.Role(a.Role),
			Name:         a.Name,
			Email:        a.Email,
			Password:     a.Password,
			Phone:        a.Phone,
			Location:     a.Location,
			WorkshopName: a.WorkshopName,
			Address:      a.Address,
		}
		if err := binding.Validator.ValidateStruct(req); err != nil {
			return created, fmt.Errorf("invalid account %s: %w", a.Email, err)
		}

		account, err := accounts.Register(ctx, req)
		if apperror.KindOf(err) == apperror.KindConflict {
			logger.Info("Account already exists, skipping", zap.String("email", a.Email))
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to register %s: %w", a.Email, err)
		}
		created++

		for _, l := range a.Listings {
			in := &service.ListingInput{
				Name:             l.Name,
				Category:         models.Category(l.Category),
				Description:      l.Description,
				RatePerDayCents:  l.RatePerDayCents,
				RatePerHourCents: l.RatePerHourCents,
				Location:         l.Location,
				ImageURL:         l.ImageURL,
			}
			if err := binding.Validator.ValidateStruct(in); err != nil {
				return created, fmt.Errorf("invalid listing %q for %s: %w", l.Name, a.Email, err)
			}

			_, err := listings.CreateListing(ctx, account.ID, in)
			if err != nil {
				return created, fmt.Errorf("failed to create listing %q for %s: %w", l.Name, a.Email, err)
			}
			created++
		}
	}
	return created, nil
}

func main() {
	file := flag.String("file", "fixtures.yaml", "YAML file with accounts and listings")
	flag.Parse()

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	fixtures, err := readFixtures(*file)
	if err != nil {
		logger.Fatal("Failed to read fixtures", zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database.URL, store.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	created, err := seed(ctx, service.NewAccountService(db, tokens), service.NewListingService(db), fixtures)
	if err != nil {
		logger.Fatal("Seeding failed", zap.Int("created", created), zap.Error(err))
	}

	logger.Info("Seed data loaded", zap.String("file", *file), zap.Int("created", created))
}
