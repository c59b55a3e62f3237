package scorestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) (*FrameRepo, *GameRepo) {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, filepath.Join(t.TempDir(), "scores.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return NewFrameRepo(db), NewGameRepo(db)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrameRepoRoundTrip(t *testing.T) {
	frames, _ := openTestDB(t)
	ctx := context.Background()
	sentAt := time.Unix(1755950400, 123000000)

	for num := 1; num <= 3; num++ {
		id, err := frames.Insert(ctx, FrameRecord{
			LaneID:     "lane_07",
			BowlerName: "Alice",
			FrameNum:   num,
			FrameJSON:  `{"rolls":[7,2]}`,
			SentAt:     sentAt,
		})
		if err != nil {
			t.Fatalf("insert frame %d: %v", num, err)
		}
		if id <= 0 {
			t.Fatalf("frame %d got id %d", num, id)
		}
	}
	if _, err := frames.Insert(ctx, FrameRecord{
		LaneID:     "lane_07",
		BowlerName: "Bob",
		FrameNum:   1,
		FrameJSON:  `{"rolls":[10]}`,
		SentAt:     sentAt,
	}); err != nil {
		t.Fatalf("insert frame for second bowler: %v", err)
	}

	got, err := frames.ListByBowler(ctx, "Alice")
	if err != nil {
		t.Fatalf("list frames: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 frames for Alice, got %d", len(got))
	}
	for i, rec := range got {
		if rec.FrameNum != i+1 {
			t.Fatalf("frames out of order: %+v", got)
		}
		if rec.LaneID != "lane_07" || rec.FrameJSON != `{"rolls":[7,2]}` {
			t.Fatalf("frame %d mismatch: %+v", i, rec)
		}
		if !rec.SentAt.Equal(sentAt) {
			t.Fatalf("sent_at lost precision: got %v, want %v", rec.SentAt, sentAt)
		}
	}
}

func TestGameRepoListRecentOrder(t *testing.T) {
	_, games := openTestDB(t)
	ctx := context.Background()
	base := time.Unix(1755950400, 0)

	for i := 0; i < 5; i++ {
		if _, err := games.Insert(ctx, GameRecord{
			LaneID:      "lane_07",
			GameJSON:    `{"total":150}`,
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("insert game %d: %v", i, err)
		}
	}

	got, err := games.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 games, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CompletedAt.After(got[i-1].CompletedAt) {
			t.Fatalf("games not newest-first: %v then %v", got[i-1].CompletedAt, got[i].CompletedAt)
		}
	}
}

func TestWriterQueueRunsCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewWriterQueue(testLogger(), 8)
	q.Start(ctx)

	var mu sync.Mutex
	var ran []string
	done := make(chan struct{})
	q.Enqueue("first", func(context.Context) error {
		mu.Lock()
		ran = append(ran, "first")
		mu.Unlock()
		return nil
	})
	q.Enqueue("second", func(context.Context) error {
		mu.Lock()
		ran = append(ran, "second")
		mu.Unlock()
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("queue never drained")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 2 || ran[0] != "first" || ran[1] != "second" {
		t.Fatalf("commands ran out of order: %v", ran)
	}
}

func TestWriterQueueRetriesFailedWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewWriterQueue(testLogger(), 8)
	q.Start(ctx)

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	q.Enqueue("flaky", func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 2 {
			return errors.New("disk hiccup")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("write never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRecorderPersistsThroughQueue(t *testing.T) {
	frames, games := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewWriterQueue(testLogger(), 8)
	q.Start(ctx)
	rec := NewRecorder(testLogger(), "lane_07", frames, games, q)

	at := time.Unix(1755950400, 0)
	rec.RecordFrame("Alice", 2, `{"rolls":[5,3]}`, at)
	rec.RecordGame(`{"total":120}`, at)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := frames.ListByBowler(ctx, "Alice")
		if err != nil {
			t.Fatalf("list frames: %v", err)
		}
		recent, err := games.ListRecent(ctx, 1)
		if err != nil {
			t.Fatalf("list games: %v", err)
		}
		if len(got) == 1 && len(recent) == 1 {
			if got[0].FrameNum != 2 || got[0].LaneID != "lane_07" {
				t.Fatalf("frame mismatch: %+v", got[0])
			}
			if recent[0].GameJSON != `{"total":120}` {
				t.Fatalf("game mismatch: %+v", recent[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("records never reached the database")
}
