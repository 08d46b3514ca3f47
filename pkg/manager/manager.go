// Package manager implements RetrievalManager, the public facade over
// retrieval and agent enhancement, per spec.md §4.6. It is grounded in
// the teacher's System-level orchestration (pkg/hindsight/hindsight.go)
// and pkg/memory/recall.go's result aggregation, with the async FIFO
// enhancement queue generalized from the teacher's AutoRetainConfig
// trigger idiom (pkg/hindsight/hooks.go).
package manager

import (
	"sync"
	"time"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/events"
	"github.com/traelm/memengine/pkg/logging"
	"github.com/traelm/memengine/pkg/retrieval"
)

// AgentContext is the input to EnhanceAgent: the caller's current task
// framing, used to build a retrieval query.
type AgentContext struct {
	CurrentTask string
	Domain      string
	UserID      string
	SessionID   string
}

// Agent is the minimal shape EnhanceAgent reads and returns; callers embed
// their own richer agent type behind this view.
type Agent struct {
	ID     string
	Status string

	Episodic   []*core.Memory
	Semantic   []*core.Memory
	Procedural []*core.Memory
}

// clone returns a deep-enough copy so EnhanceAgent never mutates its
// input, per spec.md §4.6 ("pure function over its inputs").
func (a Agent) clone() Agent {
	out := a
	out.Episodic = append([]*core.Memory(nil), a.Episodic...)
	out.Semantic = append([]*core.Memory(nil), a.Semantic...)
	out.Procedural = append([]*core.Memory(nil), a.Procedural...)
	return out
}

// EnhanceResult is the outcome of enhancing an agent with retrieved
// memories, per spec.md §4.6.
type EnhanceResult struct {
	EnhancedAgent           Agent
	AppliedMemories         int
	PerformanceImprovement  float64
	Success                 bool
}

// LearningPattern records a single retrieval's shape for later clustering,
// per spec.md §4.6.
type LearningPattern struct {
	Query      string
	ResultCount int
	Confidence  float64
	Timestamp   time.Time
}

// LearningCluster summarizes a group of learning patterns sharing a query
// text, the shape getLearningPatterns() returns.
type LearningCluster struct {
	Query        string
	Occurrences  int
	AvgResults   float64
	AvgConfidence float64
	LastSeen     time.Time
}

// Config configures a Manager.
type Config struct {
	Logger logging.Logger
	Clock  core.Clock
	Events *events.Bus
}

// Stats tracks the manager's rolling aggregate counters.
type Stats struct {
	TotalQueries int
	QueueSize    int
}

// Manager is the RetrievalManager facade, per spec.md §4.6.
type Manager struct {
	mu sync.Mutex

	retriever *retrieval.Retriever
	logger    logging.Logger
	clock     core.Clock
	events    *events.Bus

	totalQueries int
	history      []LearningPattern
	baselines    map[string]map[string]float64

	queue      chan func()
	queueDepth int
	done       chan struct{}
	closed     bool
}

// New creates a Manager delegating retrieval to r and starts its async
// enhancement worker, draining queued EnhanceAgentAsync calls FIFO, per
// spec.md §4.6 and §5's "async enhancement queue is FIFO" guarantee.
func New(r *retrieval.Retriever, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock()
	}
	if cfg.Events == nil {
		cfg.Events = events.NewBus(nil)
	}
	m := &Manager{
		retriever: r,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		events:    cfg.Events,
		baselines: make(map[string]map[string]float64),
		queue:     make(chan func(), 256),
		done:      make(chan struct{}),
	}
	go m.worker()
	return m
}

func (m *Manager) worker() {
	for task := range m.queue {
		task()
		m.mu.Lock()
		m.queueDepth--
		m.mu.Unlock()
	}
	close(m.done)
}

// RetrieveMemories delegates to the Retriever and updates aggregate stats,
// per spec.md §4.6.
func (m *Manager) RetrieveMemories(q retrieval.Query) (retrieval.Result, error) {
	result, err := m.retriever.Retrieve(q)
	if err != nil {
		return result, err
	}

	m.mu.Lock()
	m.totalQueries++
	m.history = append(m.history, LearningPattern{
		Query:       q.Text,
		ResultCount: len(result.Memories),
		Confidence:  result.Confidence,
		Timestamp:   m.clock.Now(),
	})
	m.mu.Unlock()

	return result, nil
}

// EnhanceAgent builds a query from context.CurrentTask/context.Domain, runs
// retrieval, and buckets matched memories into the returned agent's
// episodic/semantic/procedural slots by memory kind, per spec.md §4.6.
// It never mutates agent.
func (m *Manager) EnhanceAgent(agent Agent, ctx AgentContext) (EnhanceResult, error) {
	query := retrieval.Query{
		Text:  ctx.CurrentTask,
		Limit: 20,
	}
	if ctx.UserID != "" || ctx.SessionID != "" || ctx.Domain != "" {
		query.Context = &core.Context{UserID: ctx.UserID, SessionID: ctx.SessionID, Domain: ctx.Domain}
	}

	result, err := m.RetrieveMemories(query)
	if err != nil {
		return EnhanceResult{EnhancedAgent: agent, Success: false}, err
	}

	enhanced := agent.clone()
	applied := 0
	for _, sm := range result.Memories {
		switch sm.Memory.Type {
		case core.Episodic:
			enhanced.Episodic = append(enhanced.Episodic, sm.Memory)
			applied++
		case core.Semantic:
			enhanced.Semantic = append(enhanced.Semantic, sm.Memory)
			applied++
		case core.Procedural:
			enhanced.Procedural = append(enhanced.Procedural, sm.Memory)
			applied++
		}
	}
	enhanced.Status = "enhanced"

	improvement := performanceImprovement(applied, result.Confidence)

	return EnhanceResult{
		EnhancedAgent:          enhanced,
		AppliedMemories:        applied,
		PerformanceImprovement: improvement,
		Success:                true,
	}, nil
}

// performanceImprovement synthesizes a [0,1) score from match count and
// confidence: more matches and higher confidence move the score toward 1
// without ever reaching it, per spec.md §4.6.
func performanceImprovement(matchCount int, confidence float64) float64 {
	if matchCount == 0 {
		return 0
	}
	volumeFactor := float64(matchCount) / float64(matchCount+5)
	return volumeFactor * confidence * 0.99
}

// EnhanceAgentAsync enqueues an EnhanceAgent call, draining FIFO on the
// manager's single worker goroutine; the returned channel receives the
// result once it runs. Queue depth is visible via Stats().QueueSize.
func (m *Manager) EnhanceAgentAsync(agent Agent, ctx AgentContext) <-chan EnhanceResult {
	result := make(chan EnhanceResult, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(result)
		return result
	}
	m.queueDepth++
	m.mu.Unlock()

	m.queue <- func() {
		r, err := m.EnhanceAgent(agent, ctx)
		if err != nil {
			r.Success = false
		}
		result <- r
		close(result)
	}

	return result
}

// SetPerformanceBaseline stores a metrics snapshot for agentID for later
// delta reporting, per spec.md §4.6.
func (m *Manager) SetPerformanceBaseline(agentID string, metrics map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		cp[k] = v
	}
	m.baselines[agentID] = cp
}

// GetPerformanceBaseline returns the stored baseline for agentID, if any.
func (m *Manager) GetPerformanceBaseline(agentID string) (map[string]float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.baselines[agentID]
	return b, ok
}

// GetLearningPatterns clusters recorded query history by query text and
// emits AnalysisCompleted once the clustering finishes, per spec.md §4.6
// and §6's event contract.
func (m *Manager) GetLearningPatterns() []LearningCluster {
	clusters := m.clusterHistory()
	m.events.Emit(events.AnalysisCompleted, map[string]any{"clusterCount": len(clusters)})
	return clusters
}

func (m *Manager) clusterHistory() []LearningCluster {
	m.mu.Lock()
	defer m.mu.Unlock()

	clusters := make(map[string]*LearningCluster)
	order := make([]string, 0)
	for _, p := range m.history {
		c, ok := clusters[p.Query]
		if !ok {
			c = &LearningCluster{Query: p.Query}
			clusters[p.Query] = c
			order = append(order, p.Query)
		}
		c.Occurrences++
		c.AvgResults += float64(p.ResultCount)
		c.AvgConfidence += p.Confidence
		if p.Timestamp.After(c.LastSeen) {
			c.LastSeen = p.Timestamp
		}
	}

	out := make([]LearningCluster, 0, len(order))
	for _, q := range order {
		c := clusters[q]
		c.AvgResults /= float64(c.Occurrences)
		c.AvgConfidence /= float64(c.Occurrences)
		out = append(out, *c)
	}
	return out
}

// Stats reports the manager's rolling counters, per spec.md §4.6's
// getDetailedStats().queueSize.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{TotalQueries: m.totalQueries, QueueSize: m.queueDepth}
}

// ClearHistory empties the recorded query history, per spec.md §4.6.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// Destroy stops accepting new async work, waits for queued work to drain,
// and stops the worker goroutine, per spec.md §4.6's destroy() stopping
// timers.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.queue)
	<-m.done
}
