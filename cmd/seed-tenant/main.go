// Package main implements a command that creates a tenant with its owner
// from the command line, optionally adopting legacy rows that have no tenant.
//
// Usage:
//
//	./seed-tenant --name="Acme Meats" --owner=<user-uuid>                  # Create tenant
//	./seed-tenant --name="Acme Meats" --owner=<user-uuid> --dry-run        # Preview only
//	./seed-tenant --name="Acme Meats" --owner=<user-uuid> --adopt-orphans  # Also claim legacy rows
//
// Environment Variables:
//
//	DB_HOST, DB_PORT, DB_USER, DB_NAME, DB_SSLMODE - PostgreSQL connection
//	BASE_DOMAIN                                    - Platform domain for the tenant subdomain
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"tenancy-service/internal/config"
	"tenancy-service/internal/logging"
	"tenancy-service/internal/models"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/services"
	"tenancy-service/internal/tenancy"
)

// SeedStats tracks what the run did
type SeedStats struct {
	TenantCreated  bool
	TenantID       uuid.UUID
	Slug           string
	Domains        int
	SuppliersFound int64
	CustomersFound int64
	OrdersFound    int64
	RowsAdopted    int64
	StartTime      time.Time
	EndTime        time.Time
}

// Print outputs the run summary
func (s *SeedStats) Print(dryRun bool) {
	fmt.Println()
	fmt.Println("========================================")
	if dryRun {
		fmt.Println("         SEED PREVIEW (DRY RUN)")
	} else {
		fmt.Println("             SEED SUMMARY")
	}
	fmt.Println("========================================")
	fmt.Printf("Tenant slug:           %s\n", s.Slug)
	if s.TenantCreated {
		fmt.Printf("Tenant ID:             %s\n", s.TenantID)
		fmt.Printf("Domains registered:    %d\n", s.Domains)
	}
	fmt.Printf("Unowned suppliers:     %d\n", s.SuppliersFound)
	fmt.Printf("Unowned customers:     %d\n", s.CustomersFound)
	fmt.Printf("Unowned orders:        %d\n", s.OrdersFound)
	fmt.Printf("Rows adopted:          %d\n", s.RowsAdopted)
	fmt.Printf("Duration:              %s\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
	fmt.Println("========================================")
}

func main() {
	name := flag.String("name", "", "Tenant display name (required)")
	slug := flag.String("slug", "", "Tenant slug, generated from the name when empty")
	domain := flag.String("domain", "", "Custom domain, becomes the primary domain")
	owner := flag.String("owner", "", "Owner user id (required)")
	email := flag.String("email", "", "Tenant contact email")
	trial := flag.Bool("trial", false, "Create the tenant on a trial")
	adoptOrphans := flag.Bool("adopt-orphans", false, "Assign business rows without a tenant to the new tenant")
	dryRun := flag.Bool("dry-run", false, "Preview changes without applying them")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	_ = godotenv.Load()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(level).WithField("command", "seed-tenant")

	if *name == "" || *owner == "" {
		flag.Usage()
		os.Exit(2)
	}
	ownerID, err := uuid.Parse(*owner)
	if err != nil || ownerID == uuid.Nil {
		logger.WithField("owner", *owner).Fatal("Owner must be a valid user id")
	}

	cfg := config.New()
	db, err := initDatabase(cfg.Database, *verbose)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stats := &SeedStats{StartTime: time.Now()}
	req := &services.CreateTenantRequest{
		Name:         *name,
		Slug:         *slug,
		Domain:       *domain,
		ContactEmail: *email,
		Trial:        *trial,
	}
	if err := run(ctx, db, cfg, logger, req, ownerID, *adoptOrphans, *dryRun, stats); err != nil {
		logger.WithError(err).Fatal("Seed failed")
	}
	stats.EndTime = time.Now()
	stats.Print(*dryRun)
}

func run(ctx context.Context, db *gorm.DB, cfg *config.Config, logger *logrus.Entry, req *services.CreateTenantRequest, ownerID uuid.UUID, adoptOrphans, dryRun bool, stats *SeedStats) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	tenantRepo := repository.NewTenantRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	suppliers := repository.NewSupplierRepository(db)
	customers := repository.NewCustomerRepository(db)
	orders := repository.NewPurchaseOrderRepository(db)

	var err error
	if stats.SuppliersFound, err = suppliers.CountUnowned(ctx); err != nil {
		return err
	}
	if stats.CustomersFound, err = customers.CountUnowned(ctx); err != nil {
		return err
	}
	if stats.OrdersFound, err = orders.CountUnowned(ctx); err != nil {
		return err
	}

	if dryRun {
		stats.Slug = req.Slug
		if stats.Slug == "" {
			if stats.Slug, err = tenantRepo.GenerateUniqueSlug(ctx, req.Name); err != nil {
				return err
			}
		} else if available, err := tenantRepo.IsSlugAvailable(ctx, repository.NormalizeSlug(stats.Slug), nil); err != nil {
			return err
		} else if !available {
			return fmt.Errorf("slug %q is already taken", stats.Slug)
		}
		logger.WithField("slug", stats.Slug).Info("[DRY RUN] Would create tenant")
		return nil
	}

	tenantSvc := services.NewTenantService(tenantRepo, membershipRepo, activityRepo, cfg.Tenancy, logger)
	resp, err := tenantSvc.CreateTenant(ctx, tenancy.ForUser(ownerID), req)
	if err != nil {
		if validationErr, ok := services.IsValidationError(err); ok && len(validationErr.Suggestions) > 0 {
			return fmt.Errorf("%w (suggestions: %v)", err, validationErr.Suggestions)
		}
		return err
	}

	stats.TenantCreated = true
	stats.TenantID = resp.Tenant.ID
	stats.Slug = resp.Tenant.Slug
	domains, err := tenantRepo.ListDomains(ctx, resp.Tenant.ID)
	if err != nil {
		return err
	}
	stats.Domains = len(domains)

	if !adoptOrphans {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, adopt := range []func(context.Context, uuid.UUID) (int64, error){
			repository.NewSupplierRepository(tx).AdoptUnowned,
			repository.NewCustomerRepository(tx).AdoptUnowned,
			repository.NewPurchaseOrderRepository(tx).AdoptUnowned,
		} {
			n, err := adopt(ctx, resp.Tenant.ID)
			if err != nil {
				return err
			}
			stats.RowsAdopted += n
		}
		logger.WithFields(logrus.Fields{
			"tenant_id": resp.Tenant.ID.String(),
			"rows":      stats.RowsAdopted,
		}).Info("Adopted unowned rows")
		return nil
	})
}

func initDatabase(cfg config.DatabaseConfig, verbose bool) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if verbose {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
