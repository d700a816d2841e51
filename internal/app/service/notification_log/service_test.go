package notification_log

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/internal/platform/db/dbtest"
)

func TestService_SaveAndFlush(t *testing.T) {
	svc := New(dbtest.New(t), zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())

	svc.Save(ctx, &models.BillingNotificationLog{
		WebhookID: "wh-1",
		Topic:     "app_subscriptions/update",
		EventTime: time.Now(),
		Status:    models.BillingNotificationLogStatusReceived,
	})
	// a cancelled request must not drop the pending write
	cancel()
	svc.Save(context.Background(), &models.BillingNotificationLog{
		WebhookID: "wh-1",
		Topic:     "app_subscriptions/update",
		EventTime: time.Now(),
		Status:    models.BillingNotificationLogStatusHandled,
	})
	svc.Save(context.Background(), nil)
	svc.Flush()

	rows, err := svc.ByWebhookID(context.Background(), "wh-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.NotEmpty(t, r.ID)
	}
}
