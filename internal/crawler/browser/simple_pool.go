package browser

import (
	"fmt"

	"go.uber.org/zap"
)

// SimplePool is the fallback used when New fails (any one pre-warmed
// instance failing to launch): it launches a fresh allocator per task instead of
// keeping a warm pool. Slower per task, but has no shared state to fail.
type SimplePool struct {
	config *Config
	logger *zap.Logger
	slots  chan struct{}
}

func NewSimplePool(cfg *Config, logger *zap.Logger) *SimplePool {
	size := cfg.PoolSize()
	slots := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		slots <- struct{}{}
	}
	logger.Warn("using simple browser-per-task pool fallback", zap.Int("pool_size", size))
	return &SimplePool{config: cfg, logger: logger, slots: slots}
}

// Acquire launches a brand-new browser instance for this task alone.
func (p *SimplePool) Acquire(url string) (*Instance, error) {
	<-p.slots
	inst, err := newInstance(0, p.config, p.logger)
	if err != nil {
		p.slots <- struct{}{}
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	inst.SetStatus(StatusBusy)
	inst.currentURL = url
	return inst, nil
}

// Release terminates the per-task instance; SimplePool never reuses one.
func (p *SimplePool) Release(inst *Instance) {
	_ = inst.Terminate()
	p.slots <- struct{}{}
}

func (p *SimplePool) Shutdown() error {
	return nil
}
