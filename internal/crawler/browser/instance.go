package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// newInstance launches a fresh browser process for the pool slot id.
func newInstance(id int, cfg *Config, logger *zap.Logger) (*Instance, error) {
	inst := &Instance{
		ID:        id,
		createdAt: time.Now().UTC(),
		logger:    logger,
		status:    int32(StatusIdle),
	}

	if err := inst.launch(cfg); err != nil {
		return nil, fmt.Errorf("launching browser instance %d: %w", id, err)
	}

	logger.Info("browser instance launched", zap.Int("instance_id", id))
	return inst, nil
}

func (inst *Instance) launch(cfg *Config) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.UserAgent(cfg.UserAgent),
	)

	inst.allocatorCtx, inst.allocatorCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	inst.ctx, inst.cancel = chromedp.NewContext(inst.allocatorCtx)

	if err := chromedp.Run(inst.ctx); err != nil {
		return fmt.Errorf("starting browser process: %w", err)
	}
	return nil
}

// IsAlive runs a cheap no-op CDP command as a liveness check.
func (inst *Instance) IsAlive() bool {
	if Status(atomic.LoadInt32(&inst.status)) == StatusDead {
		return false
	}
	ctx, cancel := context.WithTimeout(inst.ctx, 3*time.Second)
	defer cancel()
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return nil
	})) == nil
}

func (inst *Instance) Age() time.Duration {
	return time.Since(inst.createdAt)
}

// NewPageContext returns a fresh tab context for one task.
func (inst *Instance) NewPageContext() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(inst.ctx)
}

func (inst *Instance) Restart(cfg *Config) error {
	inst.logger.Info("restarting browser instance",
		zap.Int("instance_id", inst.ID),
		zap.Int32("tasks_done", atomic.LoadInt32(&inst.tasksDone)),
		zap.Duration("age", inst.Age()))

	_ = inst.Terminate()

	atomic.StoreInt32(&inst.tasksDone, 0)
	inst.createdAt = time.Now().UTC()
	atomic.StoreInt32(&inst.status, int32(StatusIdle))

	if err := inst.launch(cfg); err != nil {
		atomic.StoreInt32(&inst.status, int32(StatusDead))
		return fmt.Errorf("restarting browser instance %d: %w", inst.ID, err)
	}
	return nil
}

func (inst *Instance) Terminate() error {
	atomic.StoreInt32(&inst.status, int32(StatusDead))
	if inst.cancel != nil {
		inst.cancel()
	}
	if inst.allocatorCancel != nil {
		inst.allocatorCancel()
	}
	return nil
}

func (inst *Instance) IncrementTasks() {
	atomic.AddInt32(&inst.tasksDone, 1)
}

func (inst *Instance) GetStatus() Status {
	return Status(atomic.LoadInt32(&inst.status))
}

func (inst *Instance) SetStatus(s Status) {
	atomic.StoreInt32(&inst.status, int32(s))
}

func (inst *Instance) TasksDone() int32 {
	return atomic.LoadInt32(&inst.tasksDone)
}
