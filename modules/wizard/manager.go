package wizard

import (
	"context"
	"log"
	"sync"
	"time"

	"clip-wizard-server/modules/common/apperr"
	"clip-wizard-server/modules/pipeline"
	"github.com/google/uuid"
)

// ErrSessionNotFound - no session in memory or in the snapshot store
var ErrSessionNotFound = apperr.New(apperr.CodeNotFound, "session not found")

const (
	saveQueueSize = 256
	saveTimeout   = 5 * time.Second
)

// ManagerOptions - registry behavior
type ManagerOptions struct {
	SettleDelay time.Duration
	// SessionTTL - idle sessions without websocket listeners are evicted after this
	SessionTTL time.Duration
	Now        func() time.Time
}

// Metrics - registry counters
type Metrics struct {
	TotalSessions     int       `json:"totalSessions"`
	ActiveSessions    int       `json:"activeSessions"`
	RestoredSessions  int       `json:"restoredSessions"`
	EvictedSessions   int       `json:"evictedSessions"`
	TotalConnections  int       `json:"totalConnections"`
	ActiveConnections int       `json:"activeConnections"`
	DroppedSnapshots  int       `json:"droppedSnapshots"`
	StartTime         time.Time `json:"startTime"`
}

type snapshotJob struct {
	id     string
	state  pipeline.State
	delete bool
}

// Manager owns every live pipeline session
type Manager struct {
	scripts pipeline.ScriptRequester
	videos  pipeline.VideoGenerator
	store   SnapshotStore
	opts    ManagerOptions

	mu       sync.RWMutex
	sessions map[string]*pipeline.Session

	metricsMu sync.Mutex
	metrics   Metrics

	savesMu     sync.RWMutex
	saves       chan snapshotJob
	savesClosed bool
	closeOnce   sync.Once
	saverDone   chan struct{}
}

// NewManager starts the snapshot writer. store may be nil.
func NewManager(scripts pipeline.ScriptRequester, videos pipeline.VideoGenerator, store SnapshotStore, opts ManagerOptions) *Manager {
	if store == nil {
		store = NoopStore{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		scripts:   scripts,
		videos:    videos,
		store:     store,
		opts:      opts,
		sessions:  make(map[string]*pipeline.Session),
		metrics:   Metrics{StartTime: opts.Now()},
		saves:     make(chan snapshotJob, saveQueueSize),
		saverDone: make(chan struct{}),
	}
	go m.runSaver()
	return m
}

func (m *Manager) sessionOptions() pipeline.Options {
	return pipeline.Options{
		SettleDelay: m.opts.SettleDelay,
		OnChange:    m.enqueueSave,
		Now:         m.opts.Now,
	}
}

// enqueueSave runs under the session lock, so it never blocks
func (m *Manager) enqueueSave(id string, st pipeline.State) {
	m.savesMu.RLock()
	defer m.savesMu.RUnlock()
	if m.savesClosed {
		return
	}

	select {
	case m.saves <- snapshotJob{id: id, state: st}:
	default:
		m.metricsMu.Lock()
		m.metrics.DroppedSnapshots++
		m.metricsMu.Unlock()
		log.Printf("⚠️ [Wizard] Snapshot queue full, dropping snapshot of %s", id)
	}
}

// runSaver writes snapshots in order, so the last one of a session wins
func (m *Manager) runSaver() {
	defer close(m.saverDone)
	for job := range m.saves {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if job.delete {
			if err := m.store.Delete(ctx, job.id); err != nil {
				log.Printf("⚠️ [Wizard] Failed to delete snapshot %s: %v", job.id, err)
			}
		} else if err := m.store.Save(ctx, job.id, job.state); err != nil {
			log.Printf("⚠️ [Wizard] %v", err)
		}
		cancel()
	}
}

// Create registers a new session in stage 1
func (m *Manager) Create() *pipeline.Session {
	id := uuid.NewString()
	session := pipeline.NewSession(id, m.scripts, m.videos, m.sessionOptions())

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	m.metricsMu.Lock()
	m.metrics.TotalSessions++
	m.metrics.ActiveSessions++
	total, active := m.metrics.TotalSessions, m.metrics.ActiveSessions
	m.metricsMu.Unlock()

	m.enqueueSave(id, session.Snapshot())
	log.Printf("✅ [Wizard] Created session %s (Total: %d, Active: %d)", id, total, active)
	return session
}

// Get returns a live session, restoring it from the snapshot store if needed
func (m *Manager) Get(ctx context.Context, id string) (*pipeline.Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return session, nil
	}

	snapshot, found, err := m.store.Load(ctx, id)
	if err != nil {
		log.Printf("⚠️ [Wizard] %v", err)
		return nil, ErrSessionNotFound
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok {
		return session, nil
	}

	session = pipeline.RestoreSession(id, snapshot, m.scripts, m.videos, m.sessionOptions())
	m.sessions[id] = session

	m.metricsMu.Lock()
	m.metrics.RestoredSessions++
	m.metrics.ActiveSessions++
	m.metricsMu.Unlock()

	log.Printf("♻️ [Wizard] Restored session %s at stage %s", id, session.Snapshot().Stage)
	return session, nil
}

// enqueueDelete queues behind pending saves of the same session. It may block.
func (m *Manager) enqueueDelete(id string) {
	m.savesMu.RLock()
	defer m.savesMu.RUnlock()
	if m.savesClosed {
		return
	}
	m.saves <- snapshotJob{id: id, delete: true}
}

// Delete discards a session and its snapshot
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		session.Close()
		m.metricsMu.Lock()
		m.metrics.ActiveSessions--
		m.metricsMu.Unlock()
	}

	m.enqueueDelete(id)
	if !ok {
		return ErrSessionNotFound
	}
	log.Printf("🗑️  [Wizard] Deleted session %s", id)
	return nil
}

// CleanupInactive evicts idle sessions without listeners. Their snapshots stay
// in the store until they expire, so they can still be restored.
func (m *Manager) CleanupInactive() int {
	now := m.opts.Now()

	m.mu.Lock()
	var evicted []*pipeline.Session
	for id, session := range m.sessions {
		idle := now.Sub(session.LastActivity())
		if idle > m.opts.SessionTTL && session.Subscribers() == 0 {
			delete(m.sessions, id)
			evicted = append(evicted, session)
			log.Printf("⏰ [Wizard] Evicting inactive session %s (Inactive: %v)", id, idle)
		}
	}
	m.mu.Unlock()

	for _, session := range evicted {
		session.Close()
	}

	if len(evicted) > 0 {
		m.metricsMu.Lock()
		m.metrics.ActiveSessions -= len(evicted)
		m.metrics.EvictedSessions += len(evicted)
		active := m.metrics.ActiveSessions
		m.metricsMu.Unlock()
		log.Printf("🧼 [Wizard] Cleaned up %d inactive sessions (Active: %d)", len(evicted), active)
	}
	return len(evicted)
}

// StartCleanupRoutine runs CleanupInactive every interval until ctx is done
func (m *Manager) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupInactive()
			}
		}
	}()

	log.Printf("🔄 [Wizard] Started session cleanup routine (every %v, TTL %v)", interval, m.opts.SessionTTL)
}

func (m *Manager) connectionOpened() {
	m.metricsMu.Lock()
	m.metrics.TotalConnections++
	m.metrics.ActiveConnections++
	m.metricsMu.Unlock()
}

func (m *Manager) connectionClosed() {
	m.metricsMu.Lock()
	m.metrics.ActiveConnections--
	m.metricsMu.Unlock()
}

// Metrics returns a copy of the counters
func (m *Manager) Metrics() Metrics {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	return m.metrics
}

// SessionSummary - per-session line of the metrics endpoint
type SessionSummary struct {
	SessionID    string    `json:"sessionId"`
	Stage        string    `json:"stage"`
	Listeners    int       `json:"listeners"`
	LastActivity time.Time `json:"lastActivity"`
	Inactive     string    `json:"inactive"`
}

// Sessions lists the live sessions
func (m *Manager) Sessions() []SessionSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.opts.Now()
	out := make([]SessionSummary, 0, len(m.sessions))
	for id, session := range m.sessions {
		last := session.LastActivity()
		out = append(out, SessionSummary{
			SessionID:    id,
			Stage:        session.Snapshot().StageName,
			Listeners:    session.Subscribers(),
			LastActivity: last,
			Inactive:     now.Sub(last).String(),
		})
	}
	return out
}

// Close ends every session and flushes pending snapshots
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		sessions := make([]*pipeline.Session, 0, len(m.sessions))
		for _, s := range m.sessions {
			sessions = append(sessions, s)
		}
		m.mu.Unlock()

		for _, s := range sessions {
			s.Close()
		}

		m.savesMu.Lock()
		m.savesClosed = true
		close(m.saves)
		m.savesMu.Unlock()
		<-m.saverDone
	})
}
