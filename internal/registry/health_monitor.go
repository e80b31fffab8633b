// Package registry owns the set of open shard connections.
// This file implements health monitoring for connected shards.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/bookshard/internal/shard"
)

// Health status values reported by the monitor.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// ShardHealth tracks the health status of a single shard.
// Thread-safe: Protected by HealthMonitor's mutex when accessed.
type ShardHealth struct {
	LastCheck        time.Time // Timestamp of the last health check attempt
	LastHealthy      time.Time // Timestamp of the last successful health check
	Name             string    // Normalized shard name
	Status           string    // Current status: "healthy", "unhealthy", "unknown"
	ConsecutiveFails int       // Number of consecutive failed health checks
}

// HealthMonitor periodically pings every connected shard file.
// A shard whose file vanished or became unreadable is marked unhealthy after
// maxFailures consecutive failures and reported through the onUnhealthy
// callback, which typically disconnects it from the registry.
// Thread-safe: All methods are safe for concurrent access.
type HealthMonitor struct {
	shards      map[string]*ShardHealth                      // Current health status per shard
	checkFunc   func(ctx context.Context, s *shard.Shard) error // Function to perform health check
	onUnhealthy func(name string)                            // Callback when shard becomes unhealthy
	logger      *zap.Logger                                  // Structured logger
	ctx         context.Context                              // Context for cancellation
	cancel      context.CancelFunc                           // Cancel function for shutdown
	interval    time.Duration                                // How often to check shard health
	timeout     time.Duration                                // Timeout for each ping
	mu          sync.RWMutex                                 // Protects shards map and callbacks
	wg          sync.WaitGroup                               // Wait group for graceful shutdown
	maxFailures int                                          // Failures before marking unhealthy
}

// NewHealthMonitor creates a new health monitor with the specified check interval.
// Shards are marked unhealthy after 3 consecutive failures by default.
//
// Parameters:
//   - interval: How often to perform health checks (recommended: 10s)
//   - logger: Structured logger, nil for none
//
// Returns:
//   - *HealthMonitor: Configured health monitor ready to start
//
// Example:
//
//	monitor := NewHealthMonitor(10*time.Second, logger)
//	monitor.SetOnUnhealthy(func(name string) { reg.Disconnect(name) })
//	go monitor.Start(ctx, reg.Shards)
func NewHealthMonitor(interval time.Duration, logger *zap.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second, // 2 second timeout per ping
		maxFailures: 3,               // Mark unhealthy after 3 failures
		shards:      make(map[string]*ShardHealth),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetOnUnhealthy sets the callback invoked when a shard becomes unhealthy.
// The callback runs on its own goroutine without any monitor lock held.
func (h *HealthMonitor) SetOnUnhealthy(callback func(name string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the default ping-based check.
// This is useful for testing or custom health check implementations.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(ctx context.Context, s *shard.Shard) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkFunc = checkFunc
}

// SetMaxFailures sets how many consecutive failures mark a shard unhealthy.
// Values below 1 are ignored.
func (h *HealthMonitor) SetMaxFailures(n int) {
	if n < 1 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxFailures = n
}

// Start begins the health monitoring process in the current goroutine.
// It checks every shard returned by shardProvider once immediately and then
// every interval. This method blocks until ctx or the monitor is canceled.
//
// Parameters:
//   - ctx: Context for cancellation (nil uses the monitor's internal context)
//   - shardProvider: Function that returns the currently connected shards
func (h *HealthMonitor) Start(ctx context.Context, shardProvider func() []*shard.Shard) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("health monitor started", zap.Duration("interval", h.interval))

	h.checkAllShards(ctx, shardProvider())

	for {
		select {
		case <-ticker.C:
			h.checkAllShards(ctx, shardProvider())
		case <-ctx.Done():
			h.logger.Info("health monitor stopping due to context cancellation")
			return
		case <-h.ctx.Done():
			h.logger.Info("health monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop gracefully shuts down the health monitor.
// It cancels the monitoring goroutine and waits for it to complete.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	h.logger.Info("health monitor stopped")
}

// checkAllShards checks every provided shard, then drops tracking for shards
// that are no longer connected.
func (h *HealthMonitor) checkAllShards(ctx context.Context, shards []*shard.Shard) {
	current := make(map[string]bool, len(shards))

	for _, s := range shards {
		current[s.Name] = true
		h.checkShard(ctx, s)
	}

	h.mu.Lock()
	for name := range h.shards {
		if !current[name] {
			delete(h.shards, name)
			h.logger.Debug("removed shard from health monitoring", zap.String("shard", name))
		}
	}
	h.mu.Unlock()
}

// checkShard pings a single shard and updates its record and state.
func (h *HealthMonitor) checkShard(ctx context.Context, s *shard.Shard) {
	h.mu.Lock()
	health, exists := h.shards[s.Name]
	if !exists {
		health = &ShardHealth{
			Name:        s.Name,
			Status:      StatusUnknown,
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.shards[s.Name] = health
	}
	check := h.checkFunc
	if check == nil {
		check = h.defaultHealthCheck
	}
	h.mu.Unlock()

	err := check(ctx, s)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		h.logger.Warn("shard health check failed",
			zap.String("shard", s.Name),
			zap.Int("attempt", health.ConsecutiveFails),
			zap.Int("max_failures", h.maxFailures),
			zap.Error(err))

		if health.ConsecutiveFails >= h.maxFailures {
			previous := health.Status
			health.Status = StatusUnhealthy
			s.SetState(shard.ShardStateUnhealthy)

			if previous != StatusUnhealthy {
				h.logger.Error("shard marked unhealthy",
					zap.String("shard", s.Name),
					zap.Int("failures", health.ConsecutiveFails))
				if h.onUnhealthy != nil {
					go h.onUnhealthy(s.Name)
				}
			}
		}
		return
	}

	if health.Status == StatusUnhealthy {
		h.logger.Info("shard recovered", zap.String("shard", s.Name))
	}
	health.Status = StatusHealthy
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
	s.SetState(shard.ShardStateActive)
}

// defaultHealthCheck pings the shard's store with the monitor timeout.
func (h *HealthMonitor) defaultHealthCheck(ctx context.Context, s *shard.Shard) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("ping shard %s: %w", s.Name, err)
	}
	return nil
}

// GetShardHealth returns a copy of the health record for a shard, or nil if
// the shard is not being monitored.
func (h *HealthMonitor) GetShardHealth(name string) *ShardHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.shards[name]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllShardHealth returns copies of all health records keyed by name.
func (h *HealthMonitor) GetAllShardHealth() map[string]*ShardHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*ShardHealth, len(h.shards))
	for name, health := range h.shards {
		cp := *health
		result[name] = &cp
	}
	return result
}

// IsHealthy reports whether a shard's last check succeeded.
// Returns false if the shard is not being monitored.
func (h *HealthMonitor) IsHealthy(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.shards[name]
	if !exists {
		return false
	}
	return health.Status == StatusHealthy
}
