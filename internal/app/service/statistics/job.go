package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/pkg/config"
)

var Module = fx.Options(
	fx.Provide(New, NewSnapshotJob),
	fx.Invoke(registerSnapshotJob),
)

// snapshotTimeout bounds one scheduled snapshot run.
const snapshotTimeout = 10 * time.Minute

// SnapshotJob runs SaveDailySnapshots for the previous UTC day on a cron
// schedule.
type SnapshotJob struct {
	svc      *Service
	log      *zap.SugaredLogger
	cron     *cron.Cron
	schedule string
}

func NewSnapshotJob(cfg *config.Config, svc *Service, log *zap.SugaredLogger) *SnapshotJob {
	return &SnapshotJob{
		svc:      svc,
		log:      log,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		schedule: cfg.SnapshotCron,
	}
}

// Run snapshots the day before now.
func (j *SnapshotJob) Run(ctx context.Context) {
	date := j.svc.now().AddDate(0, 0, -1)
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	if _, err := j.svc.SaveDailySnapshots(ctx, date); err != nil {
		j.log.Errorw("daily snapshot failed", "date", date.Format(time.DateOnly), "err", err)
	}
}

func (j *SnapshotJob) Start() error {
	if j.schedule == "" {
		j.log.Warnw("snapshot cron empty; daily snapshots disabled")
		return nil
	}
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Run(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule daily snapshot %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.log.Infow("daily snapshot scheduled", "schedule", j.schedule)
	return nil
}

// Stop waits for a running snapshot or for ctx, whichever ends first.
func (j *SnapshotJob) Stop(ctx context.Context) error {
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func registerSnapshotJob(lc fx.Lifecycle, j *SnapshotJob) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return j.Start() },
		OnStop:  j.Stop,
	})
}
