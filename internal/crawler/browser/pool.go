package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool is a fixed-capacity, FIFO-queued set of browser instances. Workers
// pull an instance ID from the queue, run one task against it, and
// return it; no task ever shares an instance with another in-flight task.
type Pool struct {
	config    *Config
	logger    *zap.Logger
	instances []*Instance
	queue     chan int
	mu        sync.RWMutex
	active    atomic.Int32
	totalTasks atomic.Int64
	totalRestarts atomic.Int64
	createdAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// New launches cfg.PoolSize() browser instances and fills the FIFO queue.
// If any instance fails to launch, New shuts down the ones already
// started and returns an error; the caller can then fall back to
// NewSimplePool.
func New(cfg *Config, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid browser pool config: %w", err)
	}

	size := cfg.PoolSize()
	logger.Info("initializing browser pool", zap.Int("pool_size", size))

	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		config:    cfg,
		logger:    logger,
		instances: make([]*Instance, size),
		queue:     make(chan int, size),
		createdAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < size; i++ {
		inst, err := newInstance(i, cfg, logger)
		if err != nil {
			pool.Shutdown()
			return nil, fmt.Errorf("launching browser instance %d: %w", i, err)
		}
		pool.instances[i] = inst
		pool.queue <- i
	}

	return pool, nil
}

// Acquire blocks until an instance is available, restarting it first if
// it's dead.
func (p *Pool) Acquire(url string) (*Instance, error) {
	select {
	case <-p.ctx.Done():
		return nil, ErrPoolShutdown
	case id := <-p.queue:
		select {
		case <-p.ctx.Done():
			select {
			case p.queue <- id:
			default:
			}
			return nil, ErrPoolShutdown
		default:
		}

		p.active.Add(1)

		p.mu.RLock()
		inst := p.instances[id]
		p.mu.RUnlock()

		if !inst.IsAlive() {
			p.logger.Warn("browser instance dead, restarting", zap.Int("instance_id", id))
			if err := inst.Restart(p.config); err != nil {
				select {
				case p.queue <- id:
				case <-p.ctx.Done():
				}
				p.active.Add(-1)
				return nil, fmt.Errorf("%w: instance %d", ErrInstanceDead, id)
			}
			p.totalRestarts.Add(1)
		}

		inst.SetStatus(StatusBusy)
		inst.currentURL = url
		return inst, nil
	}
}

// Release returns the instance to the queue, or discards it during shutdown.
func (p *Pool) Release(inst *Instance) {
	inst.SetStatus(StatusIdle)
	inst.IncrementTasks()
	inst.currentURL = ""
	p.totalTasks.Add(1)
	p.active.Add(-1)

	select {
	case p.queue <- inst.ID:
	case <-p.ctx.Done():
		p.logger.Debug("discarding instance during shutdown", zap.Int("instance_id", inst.ID))
	default:
		p.logger.Error("queue full returning instance, possible leak", zap.Int("instance_id", inst.ID))
	}
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	total := len(p.instances)
	p.mu.RUnlock()

	return Stats{
		TotalInstances:     total,
		AvailableInstances: len(p.queue),
		ActiveInstances:    int(p.active.Load()),
		TotalTasks:         p.totalTasks.Load(),
		TotalRestarts:      p.totalRestarts.Load(),
		Uptime:             time.Since(p.createdAt),
	}
}

// Shutdown drains in-flight tasks (up to timeout) then terminates every
// instance, best-effort.
func (p *Pool) Shutdown() error {
	return p.ShutdownWithTimeout(30 * time.Second)
}

func (p *Pool) ShutdownWithTimeout(timeout time.Duration) error {
	p.logger.Info("shutting down browser pool", zap.Duration("timeout", timeout))
	p.cancel()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for p.active.Load() > 0 && time.Now().Before(deadline) {
		<-ticker.C
	}
	if p.active.Load() > 0 {
		p.logger.Warn("shutdown timeout exceeded, forcing termination", zap.Int32("stuck_tasks", p.active.Load()))
	}

	p.mu.Lock()
	var errs []error
	for _, inst := range p.instances {
		if inst == nil {
			continue
		}
		if err := inst.Terminate(); err != nil {
			errs = append(errs, err)
		}
	}
	p.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("encountered %d errors during browser pool shutdown", len(errs))
	}
	return nil
}

func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instances)
}
