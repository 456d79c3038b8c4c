package session

import (
	"context"
	"testing"
	"time"
)

func TestSweeper_RemovesExpired(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(time.Hour, WithClock(clock.Now))
	store.Create("agent", "g", "t")
	clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := NewSweeper(store, "@every 1s", nil)
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sweeper.Stop()

	if next := sweeper.NextRun(); next == nil {
		t.Error("NextRun() = nil for a running sweeper")
	}

	deadline := time.Now().Add(5 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired session not swept")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSweeper_Schedules(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantErr     bool
		wantRunning bool
	}{
		{name: "descriptor", schedule: "@every 1h", wantRunning: true},
		{name: "cron expression", schedule: "0 */6 * * *", wantRunning: true},
		{name: "empty disables", schedule: ""},
		{name: "invalid", schedule: "every hour", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeper := NewSweeper(NewStore(time.Hour), tt.schedule, nil)
			err := sweeper.Start(context.Background())
			defer sweeper.Stop()

			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			if sweeper.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", sweeper.IsRunning(), tt.wantRunning)
			}
		})
	}
}

func TestSweeper_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewSweeper(NewStore(time.Hour), "@every 1h", nil)
	if err := sweeper.Start(ctx); err != nil {
		t.Fatal(err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for sweeper.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("sweeper still running after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Stop after the context already stopped it is a no-op.
	sweeper.Stop()
}

func TestSweeper_Restart(t *testing.T) {
	sweeper := NewSweeper(NewStore(time.Hour), "@every 1h", nil)

	for i := 0; i < 3; i++ {
		if err := sweeper.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d error = %v", i+1, err)
		}
		if got := len(sweeper.cron.Entries()); got != 1 {
			t.Errorf("after Start #%d: %d scheduled sweeps, want 1", i+1, got)
		}
		sweeper.Stop()
		if next := sweeper.NextRun(); next != nil {
			t.Errorf("NextRun() = %v after Stop, want nil", next)
		}
	}
}

func TestSweeper_OldContextDoesNotStopRestart(t *testing.T) {
	first, cancelFirst := context.WithCancel(context.Background())
	sweeper := NewSweeper(NewStore(time.Hour), "@every 1h", nil)
	if err := sweeper.Start(first); err != nil {
		t.Fatal(err)
	}
	sweeper.Stop()

	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer sweeper.Stop()

	cancelFirst()
	time.Sleep(50 * time.Millisecond)
	if !sweeper.IsRunning() {
		t.Error("cancelling the first start's context stopped the restarted sweeper")
	}
}
