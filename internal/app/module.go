package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/pcbuilder/internal/app/api/server"
	"github.com/fatflowers/pcbuilder/internal/app/service/asset"
	"github.com/fatflowers/pcbuilder/internal/app/service/merchant"
	notificationhandler "github.com/fatflowers/pcbuilder/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/pcbuilder/internal/app/service/notification_log"
	"github.com/fatflowers/pcbuilder/internal/app/service/pricing"
	"github.com/fatflowers/pcbuilder/internal/app/service/statistics"
	"github.com/fatflowers/pcbuilder/internal/app/service/subscription"
	"github.com/fatflowers/pcbuilder/internal/app/service/support"
	"github.com/fatflowers/pcbuilder/internal/app/service/widget"
	"github.com/fatflowers/pcbuilder/internal/platform/db"
	"github.com/fatflowers/pcbuilder/internal/platform/mail"
	"github.com/fatflowers/pcbuilder/internal/platform/objectstore"
	"github.com/fatflowers/pcbuilder/internal/platform/redis"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/config"
	"github.com/fatflowers/pcbuilder/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	shopify.Module,
	redis.Module,
	mail.Module,
	objectstore.Module,
	server.Module,
	subscription.Module,
	merchant.Module,
	pricing.Module,
	notificationlog.Module,
	notificationhandler.Module,
	widget.Module,
	support.Module,
	asset.Module,
	statistics.Module,
	// the reconciler reads shops and plans through these views
	fx.Provide(
		func(m *merchant.Service) subscription.Shops { return m },
		func(p *pricing.Service) subscription.Plans { return p },
	),
)
