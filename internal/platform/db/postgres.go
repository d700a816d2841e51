package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/pcbuilder/internal/models"
	cfgpkg "github.com/fatflowers/pcbuilder/pkg/config"
	gormzap "github.com/fatflowers/pcbuilder/pkg/gormlog"
)

const sqlitePrefix = "sqlite://"

// NewDB opens postgres, or sqlite when the DSN carries the sqlite:// prefix
// (local development and tests).
func NewDB(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	if cfg.Database.DSN == "" {
		l.Error("database DSN is empty")
		return nil, gorm.ErrInvalidDB
	}
	gcfg := &gorm.Config{
		Logger:         gormzap.New(l, cfg.Env == cfgpkg.EnvDev),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	if dsn, ok := strings.CutPrefix(cfg.Database.DSN, sqlitePrefix); ok {
		dialector = sqlite.Open(dsn)
	} else {
		dialector = postgres.Open(cfg.Database.DSN)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		l.Errorf("failed to connect database: %v", err)
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	applyPoolSettings(sqlDB, cfg.Database)
	l.Infow("connected to database", "dialect", dialector.Name(), "max_open_conns", cfg.Database.MaxOpenConns)
	return db, nil
}

// applyPoolSettings leaves database/sql defaults for zero values.
func applyPoolSettings(sqlDB *sql.DB, cfg cfgpkg.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// OpenSQLite opens an sqlite database with the same gorm settings as NewDB
// and migrates it.
func OpenSQLite(l *zap.SugaredLogger, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormzap.New(l, false),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(l, db); err != nil {
		return nil, err
	}
	return db, nil
}

var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(AutoMigrate),
	fx.Invoke(SeedPlans),
	fx.Invoke(registerDBClose),
)

// AutoMigrate runs GORM migrations on startup
func AutoMigrate(l *zap.SugaredLogger, db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Merchant{},
		&models.ShopSession{},
		&models.Pricing{},
		&models.Subscription{},
		&models.SubscriptionRenewal{},
		&models.SubscriptionLog{},
		&models.SubscriptionDailySnapshot{},
		&models.BillingNotificationLog{},
		&models.Widget{},
		&models.WidgetStep{},
		&models.SupportRequest{},
	); err != nil {
		l.Errorf("automigrate failed: %v", err)
		return err
	}
	l.Infow("automigrate completed")
	return nil
}

// SeedPlans upserts the configured plans into the pricing table.
func SeedPlans(l *zap.SugaredLogger, db *gorm.DB, cfg *cfgpkg.Config) error {
	if len(cfg.Plans) == 0 {
		l.Warnw("no plans configured; pricing table left untouched")
		return nil
	}
	rows := make([]*models.Pricing, 0, len(cfg.Plans))
	for _, p := range cfg.Plans {
		if p == nil {
			continue
		}
		if p.ID == 0 {
			return errors.New("plan id must be positive")
		}
		currency := p.Currency
		if currency == "" {
			currency = cfg.Shopify.Currency
		}
		rows = append(rows, &models.Pricing{
			ID:        p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Currency:  currency,
			Interval:  p.Interval,
			TrialDays: p.TrialDays,
			Features:  p.Features,
		})
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "currency", "interval", "trial_days", "features", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, strconv.FormatUint(uint64(r.ID), 10))
	}
	l.Infow("pricing plans seeded", "ids", strings.Join(ids, ","))
	return nil
}

// registerDBClose ensures the underlying *sql.DB is closed on shutdown
func registerDBClose(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("gorm: get sql.DB failed", "err", err)
				return nil
			}
			l.Infow("closing database connection pool")
			return sqlDB.Close()
		},
	})
}
