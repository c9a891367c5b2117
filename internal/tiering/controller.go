package tiering

import (
	"context"
	"sync"
	"time"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/spill"
)

// defaultInterval mirrors TieringManager::Loop's 100ms sleep_for.
const defaultInterval = 100 * time.Millisecond

// Controller periodically checks pressure and schedules spills through
// a spill.Scheduler. Mirrors TieringManager's Start/Stop/Loop.
type Controller struct {
	policy    Policy
	scheduler *spill.Scheduler
	state     *PressureState
	interval  time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewController constructs a Controller. interval <= 0 uses the
// reference system's 100ms poll cadence.
func NewController(policy Policy, scheduler *spill.Scheduler, state *PressureState, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Controller{
		policy:    policy,
		scheduler: scheduler,
		state:     state,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background polling loop.
func (c *Controller) Start() {
	go c.run()
}

// Stop signals the loop to exit and waits for it to finish.
func (c *Controller) Stop() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Controller) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	if victim, ok := c.policy.ChooseRamEviction(ctx, c.state); ok {
		c.scheduler.TryEnqueue(spill.Task{ID: victim, TargetTier: payload.TierDisk})
	}
	if victim, ok := c.policy.ChooseGpuEviction(ctx, c.state); ok {
		c.scheduler.TryEnqueue(spill.Task{ID: victim, TargetTier: payload.TierRam})
	}
}
