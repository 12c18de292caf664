package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"restopos/internal/database"
	"restopos/internal/logger"
	"restopos/internal/models"
)

func TestBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		0:  5 * time.Second,
		1:  5 * time.Second,
		2:  10 * time.Second,
		3:  20 * time.Second,
		7:  320 * time.Second,
		8:  10 * time.Minute,
		30: 10 * time.Minute,
	}
	for attempt, want := range cases {
		if got := Backoff(attempt); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func newWorker(t *testing.T) (*Worker, *time.Time) {
	t.Helper()
	db, err := database.NewTestDB(t.Name())
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	clock := time.Now()
	w := NewWorker(db, logger.Discard(), time.Second)
	w.now = func() time.Time { return clock }
	return w, &clock
}

func TestWorkerRetriesUntilSuccess(t *testing.T) {
	w, clock := newWorker(t)
	ctx := context.Background()

	calls := 0
	var got MandaoStatusPayload
	w.Register(KindMandaoStatus, HandleJSON(func(ctx context.Context, p MandaoStatusPayload) error {
		calls++
		got = p
		if calls == 1 {
			return errors.New("mandao unavailable")
		}
		return nil
	}))

	ob := New(3)
	if err := ob.Enqueue(w.db, KindMandaoStatus, MandaoStatusPayload{OrderID: 7, ExternalOrderID: "M-1", Status: models.StatusListo}); err != nil {
		t.Fatal(err)
	}

	if n, err := w.ProcessDue(ctx); err != nil || n != 1 {
		t.Fatalf("first ProcessDue() = %d, %v", n, err)
	}

	var task models.OutboxTask
	w.db.First(&task)
	if task.Status != models.OutboxPending || task.Attempts != 1 || task.LastError == "" {
		t.Fatalf("after failure task = %+v", task)
	}

	// Not due yet.
	if n, _ := w.ProcessDue(ctx); n != 0 {
		t.Fatalf("ProcessDue() before backoff handled %d tasks", n)
	}

	*clock = clock.Add(Backoff(1) + time.Second)
	if n, err := w.ProcessDue(ctx); err != nil || n != 1 {
		t.Fatalf("second ProcessDue() = %d, %v", n, err)
	}

	w.db.First(&task)
	if task.Status != models.OutboxDone || task.Attempts != 2 {
		t.Errorf("after success task = %+v", task)
	}
	if got.ExternalOrderID != "M-1" || got.Status != models.StatusListo {
		t.Errorf("payload = %+v", got)
	}
}

func TestWorkerMarksTaskDead(t *testing.T) {
	w, clock := newWorker(t)
	ctx := context.Background()

	w.Register(KindPushStatus, func(ctx context.Context, payload []byte) error {
		return errors.New("always failing")
	})
	if err := New(2).Enqueue(w.db, KindPushStatus, PushStatusPayload{Table: "1", Restaurant: "r", Status: models.StatusListo}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := w.ProcessDue(ctx); err != nil {
			t.Fatal(err)
		}
		*clock = clock.Add(time.Hour)
	}

	var task models.OutboxTask
	w.db.First(&task)
	if task.Status != models.OutboxDead || task.Attempts != 2 {
		t.Errorf("task = %+v, want dead after 2 attempts", task)
	}
}

func TestWorkerUnknownKindIsRetried(t *testing.T) {
	w, _ := newWorker(t)
	if err := New(5).Enqueue(w.db, "unknown.kind", map[string]string{"a": "b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.ProcessDue(context.Background()); err != nil {
		t.Fatal(err)
	}
	var task models.OutboxTask
	w.db.First(&task)
	if task.Status != models.OutboxPending || task.LastError == "" {
		t.Errorf("task = %+v", task)
	}
}
