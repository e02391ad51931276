// internal/scheduler/driver.go
// 排程驅動 - 佇列發送、棄置偵測、挽回信補排的定時任務

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"commerce-mailer/internal/config"
	"commerce-mailer/internal/services"
)

// Driver 定時任務驅動
// 每個任務以 Redis 鎖保護，多實例部署時不會重複執行
type Driver struct {
	cron        *cron.Cron
	lock        *RunLock
	queue       *services.QueueService
	abandonment *services.AbandonmentService
	cfg         *config.Config
	logger      *zap.Logger
}

// NewDriver 建立排程驅動
func NewDriver(lock *RunLock, queue *services.QueueService, abandonment *services.AbandonmentService, cfg *config.Config, logger *zap.Logger) *Driver {
	return &Driver{
		cron:        cron.New(),
		lock:        lock,
		queue:       queue,
		abandonment: abandonment,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start 註冊任務並啟動排程
func (d *Driver) Start() error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context) (int, error)
	}{
		{
			name:     "queue_drain",
			interval: d.cfg.QueueDrainInterval,
			run: func(ctx context.Context) (int, error) {
				return d.queue.ProcessDue(ctx, d.cfg.QueueBatchSize)
			},
		},
		{
			name:     "schedule_sweep",
			interval: d.cfg.SweepInterval,
			run: func(ctx context.Context) (int, error) {
				return d.abandonment.SweepSchedules(ctx, d.cfg.SweepBatchSize)
			},
		},
		{
			name:     "abandonment_detect",
			interval: d.cfg.DetectInterval,
			run: func(ctx context.Context) (int, error) {
				return d.abandonment.DetectAbandoned(ctx, d.cfg.DetectBatchSize)
			},
		},
	}

	for _, job := range jobs {
		job := job
		spec := fmt.Sprintf("@every %s", job.interval)
		_, err := d.cron.AddFunc(spec, func() {
			d.runLocked(job.name, job.run)
		})
		if err != nil {
			return fmt.Errorf("failed to register job %s: %w", job.name, err)
		}
		d.logger.Info("scheduled job registered",
			zap.String("job", job.name),
			zap.Duration("interval", job.interval),
		)
	}

	d.cron.Start()
	return nil
}

// Stop 停止排程並等待進行中的任務結束
func (d *Driver) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
}

// runLocked 在 Redis 鎖保護下執行單一任務
func (d *Driver) runLocked(name string, run func(ctx context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SchedulerLockTTL)
	defer cancel()

	acquired, err := d.lock.Acquire(ctx, name)
	if err != nil {
		d.logger.Error("scheduler lock error", zap.String("job", name), zap.Error(err))
		return
	}
	if !acquired {
		d.logger.Debug("job already running elsewhere", zap.String("job", name))
		return
	}
	// tick context 可能在任務結束時已逾時，釋放鎖使用獨立 context
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		d.lock.Release(releaseCtx, name)
	}()

	start := time.Now()
	count, err := run(ctx)
	if err != nil {
		d.logger.Error("scheduled job failed",
			zap.String("job", name),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("scheduled job completed",
		zap.String("job", name),
		zap.Int("processed", count),
		zap.Duration("elapsed", time.Since(start)),
	)
}
