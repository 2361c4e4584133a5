package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"moneta/internal/domain/connection"
	banksync "moneta/internal/domain/sync"
)

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{input: "05:00", want: ScheduleTime{Hour: 5, Minute: 0}},
		{input: "23:59", want: ScheduleTime{Hour: 23, Minute: 59}},
		{input: "0:5", want: ScheduleTime{Hour: 0, Minute: 5}},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseScheduleTime(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScheduleTime(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseScheduleTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestShouldRun_OncePerMinute(t *testing.T) {
	s, err := NewScheduler(Config{
		ScheduleTimes: []string{"05:00"},
		WorkerCount:   1,
		QueueSize:     1,
	})
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}

	at := time.Date(2026, 8, 30, 5, 0, 10, 0, time.UTC)
	if !s.shouldRun(at) {
		t.Error("shouldRun = false at a scheduled minute")
	}
	// Second tick in the same minute must not fire again.
	if s.shouldRun(at.Add(30 * time.Second)) {
		t.Error("shouldRun fired twice in the same minute")
	}
	if s.shouldRun(time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)) {
		t.Error("shouldRun fired at an unscheduled time")
	}
}

// listSyncableRepo stubs connection.Repository for the job provider.
type listSyncableRepo struct {
	connection.Repository
	conns []*connection.Connection
	err   error
}

func (r *listSyncableRepo) ListSyncable(ctx context.Context) ([]*connection.Connection, error) {
	return r.conns, r.err
}

type recordingRunner struct {
	calls []string
}

func (r *recordingRunner) Sync(ctx context.Context, connectionID string, trigger banksync.Trigger, force bool) (*banksync.Run, error) {
	if trigger != banksync.TriggerScheduled {
		return nil, errors.New("unexpected trigger")
	}
	r.calls = append(r.calls, connectionID)
	return &banksync.Run{ID: "run-" + connectionID, ConnectionID: connectionID, Outcome: banksync.OutcomeSuccess}, nil
}

func TestSyncJobProvider(t *testing.T) {
	repo := &listSyncableRepo{conns: []*connection.Connection{
		{ID: "conn-1", ProviderID: "plaid", InstitutionName: "First National"},
		{ID: "conn-2", ProviderID: "belvo", InstitutionName: "Banco Dois"},
	}}
	runner := &recordingRunner{}

	providerFn := NewSyncJobProvider(repo, runner)
	jobs, err := providerFn(context.Background())
	if err != nil {
		t.Fatalf("job provider failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].ConnectionID() != "conn-1" {
		t.Errorf("first job connection = %s, want conn-1", jobs[0].ConnectionID())
	}

	for _, job := range jobs {
		if err := job.Execute(context.Background()); err != nil {
			t.Errorf("Execute(%s) failed: %v", job.ConnectionID(), err)
		}
	}
	if len(runner.calls) != 2 || runner.calls[1] != "conn-2" {
		t.Errorf("unexpected sync calls: %v", runner.calls)
	}
}

func TestSyncJobProvider_ListFailure(t *testing.T) {
	repo := &listSyncableRepo{err: errors.New("db down")}
	providerFn := NewSyncJobProvider(repo, &recordingRunner{})

	if _, err := providerFn(context.Background()); err == nil {
		t.Error("expected error when listing fails")
	}
}

func TestWorkerPool_ProcessesJobs(t *testing.T) {
	pool := NewWorkerPool(2, 0, 10)
	pool.Start()

	done := make(chan string, 3)
	runner := &chanRunner{done: done}
	for _, id := range []string{"conn-1", "conn-2", "conn-3"} {
		job := NewConnectionSyncJob(&connection.Connection{ID: id}, runner)
		if err := pool.Submit(job); err != nil {
			t.Fatalf("Submit(%s) failed: %v", id, err)
		}
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	if len(seen) != 3 {
		t.Errorf("processed %d distinct jobs, want 3", len(seen))
	}

	pool.Shutdown()
}

type chanRunner struct {
	done chan string
}

func (r *chanRunner) Sync(ctx context.Context, connectionID string, trigger banksync.Trigger, force bool) (*banksync.Run, error) {
	r.done <- connectionID
	return &banksync.Run{ID: "run", ConnectionID: connectionID}, nil
}
