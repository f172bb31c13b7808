package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory resolves supervisors from the agent/team tables.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs a Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// ResolveSupervisor returns the agent's direct supervisor or, failing that,
// their team leader. An empty id means neither is configured.
func (d *Directory) ResolveSupervisor(ctx context.Context, agentID string) (string, error) {
	const query = `SELECT a.supervisor_id, t.leader_id
        FROM agents a
        LEFT JOIN teams t ON t.team_id = a.team_id
        WHERE a.agent_id = $1`

	var supervisorID, leaderID *string
	if err := d.pool.QueryRow(ctx, query, agentID).Scan(&supervisorID, &leaderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if supervisorID != nil && *supervisorID != "" {
		return *supervisorID, nil
	}
	if leaderID != nil && *leaderID != "" {
		return *leaderID, nil
	}
	return "", nil
}
