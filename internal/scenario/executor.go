package scenario

import (
	"context"
	"sync"
	"time"

	"github.com/p13marc/netimpaird/internal/logger"
	"github.com/p13marc/netimpaird/internal/netem"
	"github.com/p13marc/netimpaird/internal/netid"
	"github.com/p13marc/netimpaird/internal/xerrors"
)

// Status is the lifecycle state of a ScenarioExecution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// FailureReason names why a Failed execution stopped.
type FailureReason string

const (
	FailureNone          FailureReason = ""
	FailureApplyFailed   FailureReason = "apply_failed"
	FailureInterfaceGone FailureReason = "interface_gone"
)

// TcEngine is the subset of tcengine.Engine the executor needs; declared
// here so scenario does not import tcengine, keeping the dependency
// direction the query-handler layer expects (C9 calls C7, never the
// reverse).
type TcEngine interface {
	Capture(ctx context.Context, key netid.Key) (netem.Config, error)
	ApplyTc(ctx context.Context, key netid.Key, cfg netem.Config) error
	Restore(ctx context.Context, key netid.Key, snapshot netem.Config) error
}

// Progress is a single progress record published to C10 after every
// transition (spec.md §4.9).
type Progress struct {
	Key            netid.Key
	ScenarioId     string
	Status         Status
	Reason         FailureReason
	StepIndex      int
	LoopIter       int
	ElapsedInStep  time.Duration
	StepsCompleted int
}

// Execution is one running (or terminal) scenario instance, keyed by
// (namespace, interface). At most one non-terminal Execution exists per key
// at any instant (spec.md P6), enforced by Manager.Start.
type Execution struct {
	mu sync.Mutex

	key        netid.Key
	definition Definition

	status Status
	reason FailureReason

	stepIndex        int
	stepStartedAt    time.Time
	pauseStartedAt   time.Time
	accumulatedPause time.Duration

	loopIter       int
	stepsCompleted int

	priorTc netem.Config
}

// Snapshot returns the execution's current status, reason, step index, and
// loop iteration, suitable for a ScenarioControl reply.
func (e *Execution) Snapshot() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Progress{
		Key:            e.key,
		ScenarioId:     e.definition.Id,
		Status:         e.status,
		Reason:         e.reason,
		StepIndex:      e.stepIndex,
		LoopIter:       e.loopIter,
		ElapsedInStep:  e.elapsedInStepLocked(),
		StepsCompleted: e.stepsCompleted,
	}
}

func (e *Execution) elapsedInStepLocked() time.Duration {
	if e.status != StatusRunning {
		return 0
	}
	return time.Since(e.stepStartedAt) - e.accumulatedPause
}

func (e *Execution) isTerminalLocked() bool {
	return e.status == StatusCompleted || e.status == StatusStopped || e.status == StatusFailed
}

// Manager owns the at-most-one-per-key registry of scenario executions and
// the single coalesced tick driving every Running execution forward
// (spec.md §5: "a monotonic tick, coalesced for all executions").
type Manager struct {
	engine TcEngine
	notify func(Progress)

	tickInterval time.Duration

	mu         sync.Mutex
	executions map[netid.Key]*Execution

	cancel context.CancelFunc
	done   chan struct{}
}

// defaultTickInterval bounds how promptly a step boundary is noticed; it is
// independent of any step's own duration; P7's ± ε timing tolerance is this
// interval's order of magnitude.
const defaultTickInterval = 100 * time.Millisecond

// NewManager returns a Manager driving scenarios through engine, publishing
// every progress transition to notify.
func NewManager(engine TcEngine, notify func(Progress)) *Manager {
	return &Manager{
		engine:       engine,
		notify:       notify,
		tickInterval: defaultTickInterval,
		executions:   make(map[netid.Key]*Execution),
	}
}

// Run starts the coalesced tick loop; it runs until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	m.mu.Lock()
	execs := make([]*Execution, 0, len(m.executions))
	for _, e := range m.executions {
		execs = append(execs, e)
	}
	m.mu.Unlock()

	for _, e := range execs {
		m.advance(ctx, e)
	}
}

// Start begins execution of def against key. It fails with AlreadyRunning if
// a non-terminal execution already occupies key (spec.md P6).
func (m *Manager) Start(ctx context.Context, key netid.Key, def Definition) (*Execution, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.executions[key]; ok {
		existing.mu.Lock()
		terminal := existing.isTerminalLocked()
		existing.mu.Unlock()
		if !terminal {
			m.mu.Unlock()
			return nil, xerrors.New(xerrors.AlreadyRunning, key.String())
		}
	}
	m.mu.Unlock()

	prior, err := m.engine.Capture(ctx, key)
	if err != nil {
		return nil, err
	}

	e := &Execution{
		key:        key,
		definition: def,
		status:     StatusRunning,
		stepIndex:  0,
		priorTc:    prior,
	}
	e.stepStartedAt = time.Now()

	m.mu.Lock()
	m.executions[key] = e
	m.mu.Unlock()

	lc := logger.NewLogContext(key.Namespace.String(), key.Interface).WithScenario(def.Id)
	ctx = logger.WithContext(ctx, lc)

	if err := m.engine.ApplyTc(ctx, key, def.Steps[0].Config); err != nil {
		m.failAndRollback(ctx, e, FailureApplyFailed)
		return e, nil
	}

	m.publish(e)
	return e, nil
}

// Lookup returns the execution registered for key, if any.
func (m *Manager) Lookup(key netid.Key) (*Execution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[key]
	return e, ok
}

// Pause transitions a Running execution to Paused.
func (m *Manager) Pause(ctx context.Context, key netid.Key) (*Execution, error) {
	e, ok := m.Lookup(key)
	if !ok {
		return nil, xerrors.New(xerrors.NotFound, key.String())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusRunning {
		return nil, xerrors.New(xerrors.InvalidScenario, "execution is not running")
	}
	e.status = StatusPaused
	e.pauseStartedAt = time.Now()
	m.publish(e)
	return e, nil
}

// Resume transitions a Paused execution back to Running, adjusting
// accumulated pause time so step-boundary comparisons stay correct (P7).
func (m *Manager) Resume(ctx context.Context, key netid.Key) (*Execution, error) {
	e, ok := m.Lookup(key)
	if !ok {
		return nil, xerrors.New(xerrors.NotFound, key.String())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusPaused {
		return nil, xerrors.New(xerrors.InvalidScenario, "execution is not paused")
	}
	e.accumulatedPause += time.Since(e.pauseStartedAt)
	e.status = StatusRunning
	m.publish(e)
	return e, nil
}

// Stop transitions any non-terminal execution to Stopped and always rolls
// back prior TC state.
func (m *Manager) Stop(ctx context.Context, key netid.Key) (*Execution, error) {
	e, ok := m.Lookup(key)
	if !ok {
		return nil, xerrors.New(xerrors.NotFound, key.String())
	}
	e.mu.Lock()
	if e.isTerminalLocked() {
		e.mu.Unlock()
		return nil, xerrors.New(xerrors.InvalidScenario, "execution already terminal")
	}
	e.status = StatusStopped
	e.mu.Unlock()

	m.rollback(ctx, e)
	m.publish(e)
	return e, nil
}

// NotifyInterfaceGone marks the execution at key Failed{InterfaceGone} and
// skips rollback, per spec.md §4.9's catalog-driven failure rule: the
// interface is already gone, so there is nothing left to restore onto.
func (m *Manager) NotifyInterfaceGone(ctx context.Context, key netid.Key) {
	e, ok := m.Lookup(key)
	if !ok {
		return
	}
	e.mu.Lock()
	if e.isTerminalLocked() {
		e.mu.Unlock()
		return
	}
	e.status = StatusFailed
	e.reason = FailureInterfaceGone
	e.mu.Unlock()
	m.publish(e)
}

// advance checks one Running execution against the coalesced tick and
// drives it past a step boundary if its duration has elapsed.
func (m *Manager) advance(ctx context.Context, e *Execution) {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return
	}
	elapsed := time.Since(e.stepStartedAt) - e.accumulatedPause
	current := e.definition.Steps[e.stepIndex]
	if elapsed < current.Duration {
		e.mu.Unlock()
		return
	}
	e.stepsCompleted++

	nextIndex := e.stepIndex + 1
	var nextConfig netem.Config
	completed := false
	if nextIndex < len(e.definition.Steps) {
		e.stepIndex = nextIndex
		nextConfig = e.definition.Steps[nextIndex].Config
	} else if e.definition.Loop {
		e.stepIndex = 0
		e.loopIter++
		nextConfig = e.definition.Steps[0].Config
	} else {
		completed = true
	}

	if completed {
		e.status = StatusCompleted
		e.mu.Unlock()

		if e.definition.CleanupOnFailure {
			m.rollback(ctx, e)
		}
		m.publish(e)
		return
	}

	e.stepStartedAt = time.Now()
	e.accumulatedPause = 0
	e.mu.Unlock()

	lc := logger.NewLogContext(e.key.Namespace.String(), e.key.Interface).WithScenario(e.definition.Id)
	ctx = logger.WithContext(ctx, lc)

	if err := m.engine.ApplyTc(ctx, e.key, nextConfig); err != nil {
		if xerrors.Is(err, xerrors.InterfaceGone) || xerrors.Is(err, xerrors.UnknownInterface) {
			e.mu.Lock()
			e.status = StatusFailed
			e.reason = FailureInterfaceGone
			e.mu.Unlock()
			m.publish(e)
			return
		}
		m.failAndRollback(ctx, e, FailureApplyFailed)
		return
	}
	m.publish(e)
}

func (m *Manager) failAndRollback(ctx context.Context, e *Execution, reason FailureReason) {
	e.mu.Lock()
	e.status = StatusFailed
	e.reason = reason
	e.mu.Unlock()

	if reason != FailureInterfaceGone {
		m.rollback(ctx, e)
	}
	m.publish(e)
}

// rollback restores prior TC state captured at Start, per spec.md §4.9's
// rollback policy. Any error from Restore, including one for an interface
// that has already vanished, is logged as a warning and otherwise ignored.
func (m *Manager) rollback(ctx context.Context, e *Execution) {
	e.mu.Lock()
	prior := e.priorTc
	key := e.key
	e.mu.Unlock()

	if err := m.engine.Restore(ctx, key, prior); err != nil {
		logger.WarnCtx(ctx, "scenario rollback failed", logger.Err(err))
	}
}

func (m *Manager) publish(e *Execution) {
	if m.notify == nil {
		return
	}
	m.notify(e.Snapshot())
}
