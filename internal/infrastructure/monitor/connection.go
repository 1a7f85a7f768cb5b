package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nemscan/backend/internal/infrastructure/buffer"
)

// PingFunc checks a single dependency.
type PingFunc func(ctx context.Context) error

// Monitor periodically pings the event store, the group cache and the local
// buffer. Replay of buffered reports only waits for the event store.
type Monitor struct {
	eventStore PingFunc
	groupCache PingFunc
	buffer     *buffer.Store

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopOnce sync.Once
	stopCh   chan struct{}
	logger   *zap.Logger
}

func New(eventStore, groupCache PingFunc, buf *buffer.Store, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		eventStore: eventStore,
		groupCache: groupCache,
		buffer:     buf,
		interval:   interval,
		stopCh:     make(chan struct{}),
		logger:     logger.Named("monitor"),
	}
}

func (m *Monitor) Start() {
	m.Refresh(context.Background())
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.EventStore
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Refresh(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every check once and stores the result.
func (m *Monitor) Refresh(ctx context.Context) Status {
	bufferOK, size, dead := m.checkBuffer()
	status := Status{
		EventStore:  m.ping(ctx, "event_store", m.eventStore, 3*time.Second),
		GroupCache:  m.ping(ctx, "group_cache", m.groupCache, 2*time.Second),
		Buffer:      bufferOK,
		BufferSize:  size,
		DeadLetters: dead,
		LastCheck:   time.Now(),
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if !previous.LastCheck.IsZero() && previous.EventStore != status.EventStore {
		m.logger.Info("event store connectivity changed", zap.Bool("online", status.EventStore))
	}
	return status
}

func (m *Monitor) ping(ctx context.Context, name string, fn PingFunc, timeout time.Duration) bool {
	if fn == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(pingCtx); err != nil {
		m.logger.Debug("dependency check failed", zap.String("component", name), zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) checkBuffer() (bool, int, int) {
	if m.buffer == nil {
		return false, 0, 0
	}
	size, err := m.buffer.Size()
	if err != nil {
		m.logger.Warn("buffer size check failed", zap.Error(err))
		return false, size, 0
	}
	dead, err := m.buffer.DeadSize()
	if err != nil {
		m.logger.Warn("dead-letter size check failed", zap.Error(err))
		return false, size, dead
	}
	return true, size, dead
}
