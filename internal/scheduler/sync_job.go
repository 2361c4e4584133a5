package scheduler

import (
	"context"
	"fmt"

	"moneta/internal/domain/connection"
	banksync "moneta/internal/domain/sync"
)

// SyncRunner is the orchestrator capability the scheduler needs.
type SyncRunner interface {
	Sync(ctx context.Context, connectionID string, trigger banksync.Trigger, force bool) (*banksync.Run, error)
}

// ConnectionSyncJob syncs one bank connection. It implements the Job
// interface.
type ConnectionSyncJob struct {
	conn  *connection.Connection
	syncs SyncRunner
}

// NewConnectionSyncJob creates a sync job for the given connection.
func NewConnectionSyncJob(conn *connection.Connection, syncs SyncRunner) *ConnectionSyncJob {
	return &ConnectionSyncJob{conn: conn, syncs: syncs}
}

// Execute runs the sync. Partial results are not an error at the job level;
// the orchestrator records them in the run audit row.
func (j *ConnectionSyncJob) Execute(ctx context.Context) error {
	if _, err := j.syncs.Sync(ctx, j.conn.ID, banksync.TriggerScheduled, false); err != nil {
		return fmt.Errorf("scheduled sync for connection %s: %w", j.conn.ID, err)
	}
	return nil
}

// ConnectionID returns the connection this job syncs.
func (j *ConnectionSyncJob) ConnectionID() string {
	return j.conn.ID
}

// Description returns a human-readable description of this job.
func (j *ConnectionSyncJob) Description() string {
	return fmt.Sprintf("bank sync (%s via %s)", j.conn.InstitutionName, j.conn.ProviderID)
}

// NewSyncJobProvider builds the job provider the scheduler polls at each
// scheduled time: every syncable connection becomes one job.
func NewSyncJobProvider(connections connection.Repository, syncs SyncRunner) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		conns, err := connections.ListSyncable(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list syncable connections: %w", err)
		}

		jobs := make([]Job, 0, len(conns))
		for _, conn := range conns {
			jobs = append(jobs, NewConnectionSyncJob(conn, syncs))
		}
		return jobs, nil
	}
}
