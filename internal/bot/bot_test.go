package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgard/relaybot/internal/bot/tasks"
	"github.com/edgard/relaybot/internal/config"
)

type blockingListener struct {
	started chan struct{}
}

func (l *blockingListener) Start(ctx context.Context) {
	close(l.started)
	<-ctx.Done()
}

type returningListener struct{}

func (returningListener) Start(context.Context) {}

type fakeDrainer struct {
	closed atomic.Int32
	err    error
}

func (d *fakeDrainer) Close(context.Context) error {
	d.closed.Add(1)
	return d.err
}

type failingServer struct{ err error }

func (s failingServer) Run(context.Context) error { return s.err }

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	listener := &blockingListener{started: make(chan struct{})}
	drainer := &fakeDrainer{}
	b := NewBot(discard(), listener, nil, drainer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	<-listener.started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if drainer.closed.Load() != 1 {
		t.Errorf("batcher closed %d times, want 1", drainer.closed.Load())
	}
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	serverErr := errors.New("address in use")
	drainErr := errors.New("drain timeout")

	tests := []struct {
		name     string
		listener Listener
		opts     []Option
		canceled bool
		drainErr error
		wantErr  error
	}{
		{
			name:     "Listener exits on its own",
			listener: returningListener{},
		},
		{
			name:     "Server fails",
			listener: &blockingListener{started: make(chan struct{})},
			opts:     []Option{WithServer(failingServer{err: serverErr})},
			wantErr:  serverErr,
		},
		{
			name:     "Drain fails",
			listener: &blockingListener{started: make(chan struct{})},
			canceled: true,
			drainErr: drainErr,
			wantErr:  drainErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			drainer := &fakeDrainer{err: tt.drainErr}
			b := NewBot(discard(), tt.listener, nil, drainer, append(tt.opts, WithDrainTimeout(time.Second))...)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.canceled {
				cancel()
			}

			err := b.Run(ctx)
			if err == nil {
				t.Fatal("Run() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if drainer.closed.Load() != 1 {
				t.Errorf("batcher closed %d times, want 1", drainer.closed.Load())
			}
		})
	}
}

func TestSchedulerRunsEnabledTasks(t *testing.T) {
	t.Parallel()

	var ran, skipped atomic.Int32
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"tick": func(context.Context) error {
			ran.Add(1)
			return nil
		},
		"off": func(context.Context) error {
			skipped.Add(1)
			return nil
		},
	}
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"tick":    {Enabled: true, Schedule: "* * * * * *"},
		"off":     {Enabled: false, Schedule: "* * * * * *"},
		"missing": {Enabled: true, Schedule: "* * * * * *"},
	}}

	s, err := NewScheduler(discard(), cfg, taskMap)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() should fail")
	}

	deadline := time.After(5 * time.Second)
	for ran.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("enabled task never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if skipped.Load() != 0 {
		t.Errorf("disabled task ran %d times", skipped.Load())
	}
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	t.Parallel()

	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"broken": {Enabled: true, Schedule: "not a cron"},
	}}
	s, err := NewScheduler(discard(), cfg, map[string]tasks.ScheduledTaskFunc{
		"broken": func(context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	t.Cleanup(func() { _ = s.scheduler.Shutdown() })

	if got := s.schedule("broken", cfg.Tasks["broken"]); got {
		t.Error("schedule() accepted an invalid cron expression")
	}
}
