package merchant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/internal/platform/mail"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/tool"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

var Module = fx.Options(
	fx.Provide(
		New,
		func(c *shopify.Client) ShopAPI { return c },
		func(m *mail.Mailer) Mailer { return m },
	),
)

// ShopAPI reads the shop profile from the Admin API.
type ShopAPI interface {
	ShopInfo(ctx context.Context, shop shopify.Shop) (*shopify.ShopInfo, error)
}

type Mailer interface {
	SendWelcome(ctx context.Context, to, name string) error
	SendGoodbye(ctx context.Context, to, name string) error
}

// Service keeps the merchant registry and the offline access tokens.
type Service struct {
	db     *gorm.DB
	api    ShopAPI
	mailer Mailer
	log    *zap.SugaredLogger
}

func New(db *gorm.DB, api ShopAPI, mailer Mailer, log *zap.SugaredLogger) *Service {
	return &Service{db: db, api: api, mailer: mailer, log: log}
}

type RegisterRequest struct {
	Shop        string
	AccessToken string
	Scope       string
}

type RegisterResult struct {
	Merchant *models.Merchant
	// Installed is true on a first install or a reinstall.
	Installed bool
}

// Register refreshes the merchant row from the shop query and stores the
// access token. A welcome mail goes out when the store was not active.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	log := logctx.FromCtx(ctx, s.log)
	req.Shop = strings.ToLower(strings.TrimSpace(req.Shop))
	if !shopify.IsShopDomain(req.Shop) {
		return nil, apperr.Newf(apperr.CodeInvalidInput, "invalid shop domain %q", req.Shop)
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "access token is required")
	}

	info, err := s.api.ShopInfo(ctx, shopify.Shop{Domain: req.Shop, AccessToken: req.AccessToken})
	if err != nil {
		return nil, err
	}

	var (
		m         models.Merchant
		installed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "scope", "updated_at"}),
		}).Create(&models.ShopSession{Shop: req.Shop, AccessToken: req.AccessToken, Scope: req.Scope}).Error
		if err != nil {
			return fmt.Errorf("failed to save shop session: %w", err)
		}

		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("store_id = ?", info.ID).Take(&m).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			installed = true
			m = models.Merchant{ID: tool.GenerateUUIDV7(), StoreID: info.ID}
		case err != nil:
			return fmt.Errorf("failed to get merchant: %w", err)
		default:
			installed = m.Status != types.MerchantStatusActive
		}
		m.Domain = lo.CoalesceOrEmpty(info.MyshopifyDomain, req.Shop)
		m.StoreName = info.Name
		m.Email = info.Email
		m.Currency = info.CurrencyCode
		if !info.CreatedAt.IsZero() {
			m.StoreCreatedAt = lo.ToPtr(info.CreatedAt.UTC())
		}
		m.Status = types.MerchantStatusActive
		if err := tx.Save(&m).Error; err != nil {
			return fmt.Errorf("failed to save merchant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if installed && m.Email != "" {
		if err := s.mailer.SendWelcome(ctx, m.Email, m.StoreName); err != nil {
			log.Warnw("failed to send welcome mail", "store_id", m.StoreID, "err", err)
		}
	}
	log.Infow("merchant registered", "store_id", m.StoreID, "domain", m.Domain, "installed", installed)
	return &RegisterResult{Merchant: &m, Installed: installed}, nil
}

// Uninstall marks the shop uninstalled and drops its access token. Unknown
// shops are ignored.
func (s *Service) Uninstall(ctx context.Context, domain string) error {
	log := logctx.FromCtx(ctx, s.log)
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}

	var (
		m         models.Merchant
		wasActive bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("shop = ?", domain).Delete(&models.ShopSession{}).Error; err != nil {
			return fmt.Errorf("failed to delete shop session: %w", err)
		}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("domain = ?", domain).Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get merchant: %w", err)
		}
		wasActive = m.Status == types.MerchantStatusActive
		if !wasActive {
			return nil
		}
		m.Status = types.MerchantStatusUninstalled
		return tx.Model(&m).Update("status", m.Status).Error
	})
	if err != nil {
		return err
	}
	if m.ID == "" {
		log.Infow("uninstall for unknown shop", "domain", domain)
		return nil
	}

	if wasActive && m.Email != "" {
		if err := s.mailer.SendGoodbye(ctx, m.Email, m.StoreName); err != nil {
			log.Warnw("failed to send goodbye mail", "store_id", m.StoreID, "err", err)
		}
	}
	log.Infow("merchant uninstalled", "store_id", m.StoreID, "domain", domain)
	return nil
}

func (s *Service) GetByDomain(ctx context.Context, domain string) (*models.Merchant, error) {
	return s.take(ctx, "domain = ?", strings.ToLower(strings.TrimSpace(domain)))
}

func (s *Service) GetByStoreID(ctx context.Context, storeID string) (*models.Merchant, error) {
	return s.take(ctx, "store_id = ?", strings.TrimSpace(storeID))
}

func (s *Service) take(ctx context.Context, query string, arg string) (*models.Merchant, error) {
	if arg == "" {
		return nil, apperr.New(apperr.CodeNotFound, "merchant not found")
	}
	var m models.Merchant
	if err := s.db.WithContext(ctx).Where(query, arg).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "merchant not found")
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	return &m, nil
}

// Credentials returns the Admin API credentials of an installed store.
func (s *Service) Credentials(ctx context.Context, storeID string) (shopify.Shop, error) {
	m, err := s.GetByStoreID(ctx, storeID)
	if err != nil {
		return shopify.Shop{}, err
	}
	if m.Status != types.MerchantStatusActive {
		return shopify.Shop{}, apperr.Newf(apperr.CodeNotFound, "merchant %s is not installed", storeID)
	}
	var sess models.ShopSession
	if err := s.db.WithContext(ctx).Where("shop = ?", m.Domain).Take(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shopify.Shop{}, apperr.Newf(apperr.CodeNotFound, "no access token for %s", m.Domain)
		}
		return shopify.Shop{}, fmt.Errorf("failed to get shop session: %w", err)
	}
	return shopify.Shop{Domain: sess.Shop, AccessToken: sess.AccessToken}, nil
}

// ShopCredentials resolves a shop domain, as carried by session tokens.
func (s *Service) ShopCredentials(ctx context.Context, domain string) (shopify.Shop, error) {
	m, err := s.GetByDomain(ctx, domain)
	if err != nil {
		return shopify.Shop{}, err
	}
	return s.Credentials(ctx, m.StoreID)
}
