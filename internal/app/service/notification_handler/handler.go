package notification_handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/pcbuilder/internal/app/service/merchant"
	notificationlog "github.com/fatflowers/pcbuilder/internal/app/service/notification_log"
	"github.com/fatflowers/pcbuilder/internal/app/service/subscription"
	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/internal/platform/redis"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/metrics"
)

var Module = fx.Options(
	fx.Provide(
		NewNotificationHandler,
		func(r *subscription.Reconciler) Reconciler { return r },
		func(d *redis.Deduper) Deduper { return d },
		func(m *merchant.Service) Uninstaller { return m },
	),
)

type Reconciler interface {
	ReconcileBillingEvent(ctx context.Context, ev subscription.BillingEvent) (subscription.Outcome, error)
}

type Uninstaller interface {
	Uninstall(ctx context.Context, domain string) error
}

type Deduper interface {
	Claim(ctx context.Context, webhookID, topic string) (bool, error)
	Release(ctx context.Context, webhookID string) error
}

// Delivery is one verified webhook request.
type Delivery struct {
	WebhookID string
	Topic     string
	Shop      string
	Body      []byte
}

type Result struct {
	Duplicate bool
	Outcome   subscription.Outcome
}

type NotificationHandler struct {
	logs       *notificationlog.Service
	reconciler Reconciler
	merchants  Uninstaller
	dedupe     Deduper
	Logger     *zap.SugaredLogger
}

func NewNotificationHandler(logs *notificationlog.Service, reconciler Reconciler, merchants Uninstaller, dedupe Deduper, log *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{logs: logs, reconciler: reconciler, merchants: merchants, dedupe: dedupe, Logger: log}
}

// HandleNotification processes one delivery. Only internal failures are
// returned; payloads with nothing to apply are acknowledged.
func (h *NotificationHandler) HandleNotification(ctx context.Context, d Delivery) (res Result, resErr error) {
	log := logctx.FromCtx(ctx, h.Logger).With("webhook_id", d.WebhookID, "topic", d.Topic)

	dup, err := h.dedupe.Claim(ctx, d.WebhookID, d.Topic)
	if err != nil {
		// redis trouble must not block billing updates; the reconciler is idempotent
		log.Warnw("webhook dedupe unavailable", "err", err)
	}
	if dup {
		log.Infow("duplicate webhook delivery skipped")
		metrics.WebhookTotal.WithLabelValues(d.Topic, "duplicate").Inc()
		return Result{Duplicate: true}, nil
	}

	entry := &models.BillingNotificationLog{
		WebhookID: d.WebhookID,
		Topic:     d.Topic,
		Shop:      d.Shop,
		TraceID:   logctx.TraceID(ctx),
		EventTime: time.Now(),
		Data:      datatypes.JSON(lo.Ternary(json.Valid(d.Body), d.Body, []byte("null"))),
		Status:    models.BillingNotificationLogStatusReceived,
	}
	h.logs.Save(ctx, lo.ToPtr(*entry))

	var (
		ev       *subscription.BillingEvent
		parseErr error
	)
	defer func() {
		resMap := map[string]any{"outcome": res.Outcome}
		if ev != nil {
			resMap["event"] = ev
		}
		status := models.BillingNotificationLogStatusHandled
		result := "handled"
		switch {
		case resErr != nil:
			resMap["error"] = resErr.Error()
			status = models.BillingNotificationLogStatusHandleFailed
			result = "error"
			if err := h.dedupe.Release(context.WithoutCancel(ctx), d.WebhookID); err != nil {
				log.Warnw("failed to release webhook claim", "err", err)
			}
		case parseErr != nil:
			resMap["error"] = parseErr.Error()
			status = models.BillingNotificationLogStatusHandleFailed
			result = "rejected"
		}
		resBytes, _ := json.Marshal(resMap)

		done := *entry
		done.ID = ""
		done.EventTime = time.Now()
		done.Result = lo.ToPtr(datatypes.JSON(resBytes))
		done.Status = status
		if ev != nil {
			done.StoreID = lo.EmptyableToPtr(ev.StoreID)
			done.ChargeID = ev.ChargeID
		}
		h.logs.Save(ctx, &done)
		metrics.WebhookTotal.WithLabelValues(d.Topic, result).Inc()
	}()

	switch d.Topic {
	case shopify.TopicAppSubscriptionsUpdate:
		ev, parseErr = parseAppSubscription(d.Body)
		if parseErr != nil {
			log.Warnw("malformed app subscription payload", "err", parseErr)
			res.Outcome = subscription.OutcomeIgnored
			return res, nil
		}
		if ev == nil {
			log.Infow("app subscription payload without subscription")
			res.Outcome = subscription.OutcomeIgnored
			return res, nil
		}
		res.Outcome, resErr = h.reconciler.ReconcileBillingEvent(ctx, *ev)
		if resErr != nil {
			resErr = fmt.Errorf("failed to reconcile billing event: %w", resErr)
		}
		return res, resErr

	case shopify.TopicAppUninstalled:
		if resErr = h.merchants.Uninstall(ctx, d.Shop); resErr != nil {
			resErr = fmt.Errorf("failed to uninstall %s: %w", d.Shop, resErr)
			return res, resErr
		}
		res.Outcome = subscription.OutcomeUpdated
		return res, nil

	default:
		log.Infow("unhandled webhook topic")
		res.Outcome = subscription.OutcomeIgnored
		return res, nil
	}
}
