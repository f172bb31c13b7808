package engine

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/agentsession/internal/domain"
	"example.com/agentsession/internal/schedule"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 4, hour, minute, 0, 0, ist)
}

func newTestEngine(t *testing.T, repo *memoryRepo, dir Directory, now time.Time) *Engine {
	t.Helper()
	machine := domain.NewMachine(domain.DefaultPolicy(), schedule.Default(ist))
	return New(machine, repo, dir,
		WithClock(func() time.Time { return now }),
		WithLogger(log.New(testWriter{t}, "", 0)),
	)
}

func TestStartPersistsSessionAndAttendance(t *testing.T) {
	repo := newMemoryRepo()
	eng := newTestEngine(t, repo, &stubDirectory{supervisorID: "sup-1"}, at(9, 30))

	s, err := eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)
	require.True(t, s.IsActive)

	require.Len(t, repo.commits, 1)
	commit := repo.commits[0]
	require.Equal(t, domain.TransitionStart, commit.Outcome.Kind)
	require.NotNil(t, commit.Outcome.Attendance)
	require.True(t, commit.Outcome.Attendance.Working)

	stored, err := repo.GetSession(context.Background(), "agent-1", "2026-03-04")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.True(t, stored.IsActive)
}

func TestStartWhileRunningCommitsNothing(t *testing.T) {
	repo := newMemoryRepo()
	eng := newTestEngine(t, repo, &stubDirectory{}, at(9, 30))

	_, err := eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Len(t, repo.commits, 1)

	_, err = eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Len(t, repo.commits, 1, "no-op start must not write")
}

func TestSwitchResolvesSupervisorForCheckoutAlert(t *testing.T) {
	repo := newMemoryRepo()
	dir := &stubDirectory{supervisorID: "sup-1"}
	eng := newTestEngine(t, repo, dir, at(10, 0))

	_, err := eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)

	s, err := eng.Switch(context.Background(), "agent-1", domain.ActivityMarketVisit, "")
	require.NoError(t, err)
	require.False(t, s.IsActive)

	commit := repo.commits[len(repo.commits)-1]
	require.Len(t, commit.Alerts, 1)
	alert := commit.Alerts[0]
	require.Equal(t, domain.AlertMarketVisit, alert.AlertType)
	require.Equal(t, "sup-1", alert.SupervisorID)
	require.NotEmpty(t, alert.AlertID)
	require.Equal(t, at(10, 0), alert.RequestedAt)
}

func TestUnresolvableSupervisorDropsAlertNotTransition(t *testing.T) {
	repo := newMemoryRepo()
	eng := newTestEngine(t, repo, &stubDirectory{err: errors.New("directory down")}, at(10, 0))

	_, err := eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)

	s, err := eng.Switch(context.Background(), "agent-1", domain.ActivityMarketVisit, "")
	require.NoError(t, err)
	require.False(t, s.IsActive)

	commit := repo.commits[len(repo.commits)-1]
	require.Empty(t, commit.Alerts)
	require.Equal(t, domain.TransitionSwitch, commit.Outcome.Kind)
}

func TestSessionReturnsNotFound(t *testing.T) {
	repo := newMemoryRepo()
	eng := newTestEngine(t, repo, &stubDirectory{}, at(10, 0))

	_, err := eng.Session(context.Background(), "agent-1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEvaluateAgentAppliesOverdueTransitions(t *testing.T) {
	repo := newMemoryRepo()
	eng := newTestEngine(t, repo, &stubDirectory{supervisorID: "sup-1"}, at(10, 0))

	_, err := eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)
	_, err = eng.Switch(context.Background(), "agent-1", domain.ActivityCalling, "")
	require.NoError(t, err)

	// Twenty minutes later the interval has lapsed: a challenge opens. Three
	// minutes after that the grace period has expired and the watchdog
	// auto-switches.
	require.NoError(t, eng.EvaluateAgent(context.Background(), "agent-1", "2026-03-04", at(10, 20)))
	require.NoError(t, eng.EvaluateAgent(context.Background(), "agent-1", "2026-03-04", at(10, 23)))

	kinds := make([]domain.TransitionKind, 0, len(repo.commits))
	for _, c := range repo.commits {
		kinds = append(kinds, c.Outcome.Kind)
	}
	require.Contains(t, kinds, domain.TransitionChallengeOpened)
	require.Contains(t, kinds, domain.TransitionAutoSwitch)

	stored, err := repo.GetSession(context.Background(), "agent-1", "2026-03-04")
	require.NoError(t, err)
	require.Equal(t, 1, stored.MissedConfirmations)
	require.Nil(t, stored.PendingPromptAt)
}

func TestEvaluateAgentStopsAfterNonMutatingOutcome(t *testing.T) {
	repo := newMemoryRepo()
	eng := newTestEngine(t, repo, &stubDirectory{supervisorID: "sup-1"}, at(11, 5))

	_, err := eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)
	_, err = eng.Switch(context.Background(), "agent-1", domain.ActivityBreak, "")
	require.NoError(t, err)
	before := len(repo.commits)

	// Seven minutes past the morning tea end: warning only, session untouched.
	require.NoError(t, eng.EvaluateAgent(context.Background(), "agent-1", "2026-03-04", at(11, 22)))
	require.Len(t, repo.commits, before+1)
	require.Equal(t, domain.TransitionBreakWarning, repo.commits[len(repo.commits)-1].Outcome.Kind)
}

func TestSweepClosesSessionLeftRunningOvernight(t *testing.T) {
	repo := newMemoryRepo()
	now := at(10, 0)
	machine := domain.NewMachine(domain.DefaultPolicy(), schedule.Default(ist))
	eng := New(machine, repo, &stubDirectory{supervisorID: "sup-1"},
		WithClock(func() time.Time { return now }),
		WithLogger(log.New(testWriter{t}, "", 0)),
	)

	_, err := eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)
	_, err = eng.Switch(context.Background(), "agent-1", domain.ActivityCalling, "")
	require.NoError(t, err)

	// The evaluator was down over midnight. The next sweep runs the following
	// morning and must still find and close yesterday's session.
	now = time.Date(2026, time.March, 5, 9, 0, 0, 0, ist)
	refs, err := repo.ListActiveSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []SessionRef{{AgentID: "agent-1", BusinessDate: "2026-03-04"}}, refs)

	require.NoError(t, NewSweeper(eng, time.Minute).SweepOnce(context.Background()))

	stored, err := repo.GetSession(context.Background(), "agent-1", "2026-03-04")
	require.NoError(t, err)
	require.False(t, stored.IsActive)
	require.Equal(t, domain.EndReasonEndOfDay, stored.EndReason)

	refs, err = repo.ListActiveSessions(context.Background())
	require.NoError(t, err)
	require.Empty(t, refs, "a new day's start must not find a second active row")
}

func TestCommitResolvesSupervisorOncePerOutcome(t *testing.T) {
	repo := newMemoryRepo()
	dir := &stubDirectory{supervisorID: "sup-1"}
	now := at(9, 30)
	machine := domain.NewMachine(domain.DefaultPolicy(), schedule.Default(ist))
	eng := New(machine, repo, dir,
		WithClock(func() time.Time { return now }),
		WithLogger(log.New(testWriter{t}, "", 0)),
	)

	_, err := eng.Start(context.Background(), "agent-1")
	require.NoError(t, err)
	_, err = eng.Switch(context.Background(), "agent-1", domain.ActivityOthers, "")
	require.NoError(t, err)

	// Checking out after 35 minutes on others produces two alerts in one
	// outcome: excessive others and the market-visit checkout.
	now = at(10, 5)
	_, err = eng.Switch(context.Background(), "agent-1", domain.ActivityMarketVisit, "")
	require.NoError(t, err)

	commit := repo.commits[len(repo.commits)-1]
	require.Len(t, commit.Alerts, 2)
	for _, alert := range commit.Alerts {
		require.Equal(t, "sup-1", alert.SupervisorID)
	}
	require.Equal(t, 1, dir.calls, "one directory lookup per outcome")
}

type memoryRepo struct {
	sessions map[string]domain.Session
	commits  []Commit
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]domain.Session)}
}

func (r *memoryRepo) GetSession(_ context.Context, agentID, businessDate string) (*domain.Session, error) {
	s, ok := r.sessions[agentID+"|"+businessDate]
	if !ok {
		return nil, nil
	}
	copied := s
	return &copied, nil
}

func (r *memoryRepo) ListActiveSessions(_ context.Context) ([]SessionRef, error) {
	var refs []SessionRef
	for _, s := range r.sessions {
		if s.IsActive {
			refs = append(refs, SessionRef{AgentID: s.AgentID, BusinessDate: s.BusinessDate})
		}
	}
	return refs, nil
}

func (r *memoryRepo) CommitOutcome(_ context.Context, c Commit) error {
	r.commits = append(r.commits, c)
	if c.Outcome.Mutates() {
		s := c.Outcome.Session
		r.sessions[s.AgentID+"|"+s.BusinessDate] = s
	}
	return nil
}

type stubDirectory struct {
	supervisorID string
	err          error
	calls        int
}

func (d *stubDirectory) ResolveSupervisor(context.Context, string) (string, error) {
	d.calls++
	return d.supervisorID, d.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
