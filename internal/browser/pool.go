package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

// PoolConfig configures browser process allocation (spec.md §1's
// out-of-scope "browser automation runtime" collaborator, driven here by
// chromedp rather than treated as a remote process).
type PoolConfig struct {
	MaxInstancesPerMode int           `json:"max_instances_per_mode"`
	DisableGPU          bool          `json:"disable_gpu"`
	NoSandbox           bool          `json:"no_sandbox"`
	StartupTimeout      time.Duration `json:"startup_timeout"`
}

// DefaultPoolConfig mirrors the teacher's ChromeDPPoolConfig defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxInstancesPerMode: 2,
		DisableGPU:          true,
		NoSandbox:           true,
		StartupTimeout:      30 * time.Second,
	}
}

// instance is one running browser process (allocator context) plus its
// cancel functions, generalized from the teacher's parallel-slice fields
// into a single allocator struct.
type instance struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
}

// Pool manages browser process instances, one sub-pool per HeadlessMode
// since headless-ness is a process-launch flag and cannot change per tab.
// Within a mode, instances are handed out round-robin, generalizing the
// teacher's ChromeDPPool allocation strategy (internal/services/crawler's
// chromedp_pool.go) from a single fixed-config pool to one keyed by the
// mode DomainLearner selects per domain.
type Pool struct {
	mu        sync.Mutex
	config    PoolConfig
	logger    arbor.ILogger
	instances map[models.HeadlessMode][]*instance
	next      map[models.HeadlessMode]int
}

// NewPool constructs an empty pool; instances are created lazily on first
// Acquire for each HeadlessMode.
func NewPool(config PoolConfig, logger arbor.ILogger) *Pool {
	return &Pool{
		config:    config,
		logger:    logger,
		instances: map[models.HeadlessMode][]*instance{},
		next:      map[models.HeadlessMode]int{},
	}
}

// Acquire returns a Session driving a fresh browser tab under an instance
// matching mode and userAgent, creating an instance if the mode's sub-pool
// has not reached MaxInstancesPerMode.
func (p *Pool) Acquire(ctx context.Context, mode models.HeadlessMode, userAgent string) (*Session, error) {
	p.mu.Lock()
	inst, err := p.instanceForModeLocked(mode)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(inst.allocatorCtx)
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open browser tab: %w", err)
	}

	return newSession(tabCtx, tabCancel, userAgent, p.logger), nil
}

// instanceForModeLocked returns a round-robin instance for mode, creating
// one if under the per-mode cap. Caller holds p.mu.
func (p *Pool) instanceForModeLocked(mode models.HeadlessMode) (*instance, error) {
	pool := p.instances[mode]
	if len(pool) < p.config.MaxInstancesPerMode {
		inst, err := p.createInstance(mode)
		if err != nil {
			if len(pool) == 0 {
				return nil, fmt.Errorf("create browser instance for mode %s: %w", mode, err)
			}
			p.logger.Warn().Err(err).Str("headless_mode", string(mode)).Msg("failed to grow browser pool, reusing existing instance")
		} else {
			pool = append(pool, inst)
			p.instances[mode] = pool
		}
	}

	idx := p.next[mode] % len(pool)
	p.next[mode] = (p.next[mode] + 1) % len(pool)
	return pool[idx], nil
}

func (p *Pool) createInstance(mode models.HeadlessMode) (*instance, error) {
	headlessFlag := mode != models.HeadlessVisible

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headlessFlag),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if mode == models.HeadlessNew {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	testCtx, testCancel := context.WithTimeout(allocatorCtx, p.config.StartupTimeout)
	defer testCancel()

	tabCtx, tabCancel := chromedp.NewContext(testCtx)
	defer tabCancel()
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		allocatorCancel()
		return nil, fmt.Errorf("startup test for mode %s: %w", mode, err)
	}

	p.logger.Info().Str("headless_mode", string(mode)).Msg("browser instance created")
	return &instance{allocatorCtx: allocatorCtx, allocatorCancel: allocatorCancel}, nil
}

// Shutdown cancels every instance across every mode.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for mode, pool := range p.instances {
		for _, inst := range pool {
			inst.allocatorCancel()
			count++
		}
		delete(p.instances, mode)
	}
	p.logger.Info().Int("instances_shutdown", count).Msg("browser pool shut down")
}

// Stats reports the number of live instances per mode.
func (p *Pool) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]int{}
	for mode, pool := range p.instances {
		out[string(mode)] = len(pool)
	}
	return out
}
