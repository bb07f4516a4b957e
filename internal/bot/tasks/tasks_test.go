package tasks

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/edgard/relaybot/internal/database"
)

type fakeStore struct {
	database.Store
	err   error
	calls int
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error {
	f.calls++
	return f.err
}

type fakeSweeper struct {
	calls int
}

func (f *fakeSweeper) SweepDedup() int {
	f.calls++
	return 3
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.DiscardHandler)

	tests := []struct {
		name    string
		sweeper DedupSweeper
		want    []string
	}{
		{name: "With batcher", sweeper: &fakeSweeper{}, want: []string{"sql_maintenance", "dedup_sweep"}},
		{name: "Without batcher", want: []string{"sql_maintenance"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := RegisterAllTasks(TaskDeps{Logger: log, Store: &fakeStore{}, Batcher: tt.sweeper})
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tasks, want %d", len(got), len(tt.want))
			}
			for _, name := range tt.want {
				if got[name] == nil {
					t.Errorf("task %q not registered", name)
				}
			}
		})
	}
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.DiscardHandler)

	ok := &fakeStore{}
	if err := newSQLMaintenanceTask(TaskDeps{Logger: log, Store: ok})(context.Background()); err != nil {
		t.Errorf("task error = %v", err)
	}
	if ok.calls != 1 {
		t.Errorf("maintenance calls = %d, want 1", ok.calls)
	}

	wantErr := errors.New("disk full")
	failing := &fakeStore{err: wantErr}
	if err := newSQLMaintenanceTask(TaskDeps{Logger: log, Store: failing})(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("task error = %v, want %v", err, wantErr)
	}
}

func TestDedupSweepTask(t *testing.T) {
	t.Parallel()

	sweeper := &fakeSweeper{}
	task := newDedupSweepTask(TaskDeps{Logger: slog.New(slog.DiscardHandler), Batcher: sweeper})
	if err := task(context.Background()); err != nil {
		t.Fatalf("task error = %v", err)
	}
	if sweeper.calls != 1 {
		t.Errorf("sweep calls = %d, want 1", sweeper.calls)
	}
}
