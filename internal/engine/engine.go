// Package engine applies session transitions: it loads persisted state,
// evaluates the pure state machine, resolves supervisors for any alerts, and
// commits the outcome atomically. It is the only writer of session state.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/agentsession/internal/domain"
)

// ResolvedAlert is an alert request with the supervisor lookup already done.
type ResolvedAlert struct {
	domain.AlertRequest
	AlertID      string
	SupervisorID string
	RequestedAt  time.Time
}

// Commit bundles everything one transition persists in a single transaction.
type Commit struct {
	Outcome domain.Outcome
	Alerts  []ResolvedAlert
}

// SessionRef identifies one persisted session row.
type SessionRef struct {
	AgentID      string
	BusinessDate string
}

// Repository captures persistence operations for sessions and outcomes.
type Repository interface {
	GetSession(ctx context.Context, agentID, businessDate string) (*domain.Session, error)
	// ListActiveSessions returns every active session regardless of business
	// date, so sessions left running across midnight still get swept.
	ListActiveSessions(ctx context.Context) ([]SessionRef, error)
	CommitOutcome(ctx context.Context, c Commit) error
}

// Directory resolves an agent's supervisor, falling back to the team leader.
// An empty id with nil error means nobody could be resolved.
type Directory interface {
	ResolveSupervisor(ctx context.Context, agentID string) (string, error)
}

// Engine coordinates the state machine with storage and the alert directory.
type Engine struct {
	machine   domain.Machine
	repo      Repository
	directory Directory
	clock     func() time.Time
	logger    *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger overrides the logger used to report non-fatal failures.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New constructs an Engine.
func New(machine domain.Machine, repo Repository, directory Directory, opts ...Option) *Engine {
	e := &Engine{
		machine:   machine,
		repo:      repo,
		directory: directory,
		clock:     time.Now,
		logger:    log.New(log.Writer(), "[engine] ", log.LstdFlags),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins or restarts today's session for the agent.
func (e *Engine) Start(ctx context.Context, agentID string) (*domain.Session, error) {
	return e.apply(ctx, agentID, func(s *domain.Session, now time.Time) (domain.Outcome, error) {
		return e.machine.Start(s, agentID, now)
	})
}

// Switch changes the agent's current activity.
func (e *Engine) Switch(ctx context.Context, agentID string, activity domain.ActivityType, details string) (*domain.Session, error) {
	return e.apply(ctx, agentID, func(s *domain.Session, now time.Time) (domain.Outcome, error) {
		return e.machine.Switch(s, activity, details, now)
	})
}

// Confirm resolves the outstanding confirmation challenge.
func (e *Engine) Confirm(ctx context.Context, agentID string, response domain.ResponseType, newActivity domain.ActivityType, details string) (*domain.Session, error) {
	return e.apply(ctx, agentID, func(s *domain.Session, now time.Time) (domain.Outcome, error) {
		return e.machine.Confirm(s, response, newActivity, details, now)
	})
}

// End closes the agent's session manually.
func (e *Engine) End(ctx context.Context, agentID string) (*domain.Session, error) {
	return e.apply(ctx, agentID, func(s *domain.Session, now time.Time) (domain.Outcome, error) {
		return e.machine.End(s, domain.EndReasonManual, now)
	})
}

// Session returns the agent's session for the current business day, or
// domain.ErrSessionNotFound.
func (e *Engine) Session(ctx context.Context, agentID string) (*domain.Session, error) {
	now := e.now()
	s, err := e.repo.GetSession(ctx, agentID, e.machine.Day.BusinessDate(now))
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// EvaluateAgent runs the watchdogs for one agent's session at now. The
// session is addressed by its own business date, not now's, so a stale
// prior-day session is still found and closed the morning after. It loops
// so a long-offline session catches up in a single call (for example an
// overdue challenge immediately followed by its expired grace period is
// applied as two transitions).
func (e *Engine) EvaluateAgent(ctx context.Context, agentID, businessDate string, now time.Time) error {
	unlock := e.lockAgent(agentID)
	defer unlock()

	for {
		s, err := e.repo.GetSession(ctx, agentID, businessDate)
		if err != nil {
			return err
		}
		out, ok := e.machine.Evaluate(s, now)
		if !ok {
			return nil
		}
		if err := e.commit(ctx, out); err != nil {
			return err
		}
		watchdogTransitions.WithLabelValues(string(out.Kind)).Inc()
		if !out.Mutates() {
			// A pure-alert outcome will be offered again next tick; the
			// de-dup mark keeps it one-shot.
			return nil
		}
	}
}

func (e *Engine) now() time.Time {
	return e.clock().In(e.machine.Day.Location)
}

func (e *Engine) apply(ctx context.Context, agentID string, fn func(*domain.Session, time.Time) (domain.Outcome, error)) (*domain.Session, error) {
	unlock := e.lockAgent(agentID)
	defer unlock()

	now := e.now()
	s, err := e.repo.GetSession(ctx, agentID, e.machine.Day.BusinessDate(now))
	if err != nil {
		return nil, err
	}

	out, err := fn(s, now)
	if err != nil {
		return nil, err
	}
	if out.Kind == domain.TransitionNone {
		return &out.Session, nil
	}

	if err := e.commit(ctx, out); err != nil {
		return nil, err
	}
	commandsApplied.WithLabelValues(string(out.Kind)).Inc()
	return &out.Session, nil
}

// commit resolves supervisors for the outcome's alerts and persists
// everything in one transaction. An unresolvable supervisor downgrades the
// alert to a warning; it never fails the transition.
func (e *Engine) commit(ctx context.Context, out domain.Outcome) error {
	c := Commit{Outcome: out}
	now := e.now()

	if len(out.Alerts) > 0 {
		// One lookup per outcome; every alert in it targets the same agent.
		supervisorID, err := e.directory.ResolveSupervisor(ctx, out.Session.AgentID)
		switch {
		case err != nil:
			e.logger.Printf("supervisor lookup failed (agent=%s): %v, dropping %d alerts", out.Session.AgentID, err, len(out.Alerts))
		case supervisorID == "":
			e.logger.Printf("no supervisor or team leader for agent %s, dropping %d alerts", out.Session.AgentID, len(out.Alerts))
		default:
			for _, alert := range out.Alerts {
				c.Alerts = append(c.Alerts, ResolvedAlert{
					AlertRequest: alert,
					AlertID:      uuid.NewString(),
					SupervisorID: supervisorID,
					RequestedAt:  now,
				})
				alertsRequested.WithLabelValues(alert.AlertType).Inc()
			}
		}
	}

	return e.repo.CommitOutcome(ctx, c)
}

// lockAgent serialises mutations per agent so concurrent command and watchdog
// evaluations cannot double-fire a transition.
func (e *Engine) lockAgent(agentID string) func() {
	e.mu.Lock()
	lock, ok := e.locks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[agentID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
