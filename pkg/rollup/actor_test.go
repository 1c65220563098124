package rollup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/caps"
	"halcyon-hq/spendwatch/pkg/rollup/storage"
	"halcyon-hq/spendwatch/pkg/spend"
)

func testActor(t *testing.T, backend storage.Backend, dispatcher *alerts.Dispatcher) *Actor {
	t.Helper()
	a, err := New(Config{Backend: backend, Dispatcher: dispatcher})
	if err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func record(provider spend.Provider, day, model string, cost float64) spend.Record {
	return spend.Record{
		Provider: provider,
		Day:      day,
		Model:    model,
		CostUSD:  cost,
		Currency: "USD",
		Source:   spend.SourceUsageAPI,
	}
}

// ============================================================
// Update
// ============================================================

func TestActor_UpdateMergesAndPersists(t *testing.T) {
	backend := storage.NewMemoryBackend()
	a := testActor(t, backend, nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	result, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 3.50)},
		Now:     now,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(result.State.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(result.State.Records))
	}
	if result.State.LastRun == nil || !result.State.LastRun.Equal(now) {
		t.Errorf("Expected last run %v, got %v", now, result.State.LastRun)
	}

	// The persisted copy must match what the caller saw.
	persisted, err := backend.LoadState(context.Background(), DefaultInstance)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if persisted == nil || len(persisted.Records) != 1 {
		t.Fatalf("Expected persisted state with 1 record, got %+v", persisted)
	}
	if persisted.Records[0].CostUSD != 3.50 {
		t.Errorf("Expected persisted cost 3.50, got %.2f", persisted.Records[0].CostUSD)
	}
}

func TestActor_UpdateLastWriteWins(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 3.50)},
		Now:     now,
	})
	if err != nil {
		t.Fatalf("First update failed: %v", err)
	}
	result, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 4.25)},
		Now:     now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Second update failed: %v", err)
	}
	if len(result.State.Records) != 1 {
		t.Fatalf("Expected 1 record after re-ingest, got %d", len(result.State.Records))
	}
	if result.State.Records[0].CostUSD != 4.25 {
		t.Errorf("Expected newest cost 4.25, got %.2f", result.State.Records[0].CostUSD)
	}
}

func TestActor_UpdateReplaceDiscardsExisting(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{
			record(spend.ProviderOpenAI, "2026-03-08", "gpt-4o", 1.00),
			record(spend.ProviderAnthropic, "2026-03-09", "claude-sonnet", 2.00),
		},
		Now: now,
	})
	if err != nil {
		t.Fatalf("Seed update failed: %v", err)
	}

	result, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderVertex, "2026-03-09", "", 9.00)},
		Now:     now.Add(time.Hour),
		Replace: true,
	})
	if err != nil {
		t.Fatalf("Replace update failed: %v", err)
	}
	if len(result.State.Records) != 1 {
		t.Fatalf("Expected replace to leave 1 record, got %d", len(result.State.Records))
	}
	if result.State.Records[0].Provider != spend.ProviderVertex {
		t.Errorf("Expected vertex record, got %s", result.State.Records[0].Provider)
	}
}

func TestActor_UpdateLastError(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	msg := "openai: fetch failed"
	result, err := a.Update(context.Background(), UpdateRequest{Now: now, LastError: &msg})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if result.State.LastError != msg {
		t.Errorf("Expected last error %q, got %q", msg, result.State.LastError)
	}

	// Nil pointer keeps the previous value.
	result, err = a.Update(context.Background(), UpdateRequest{Now: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if result.State.LastError != msg {
		t.Errorf("Expected last error to persist, got %q", result.State.LastError)
	}

	// Empty string clears it.
	clear := ""
	result, err = a.Update(context.Background(), UpdateRequest{Now: now.Add(2 * time.Hour), LastError: &clear})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if result.State.LastError != "" {
		t.Errorf("Expected last error cleared, got %q", result.State.LastError)
	}
}

func TestActor_OutOfOrderTimestampStillApplies(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := a.Update(context.Background(), UpdateRequest{Now: now}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	earlier := now.Add(-time.Hour)
	result, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 1.00)},
		Now:     earlier,
	})
	if err != nil {
		t.Fatalf("Out-of-order update failed: %v", err)
	}
	if len(result.State.Records) != 1 {
		t.Errorf("Expected record merged despite stale timestamp, got %d records", len(result.State.Records))
	}
	if result.State.LastRun == nil || !result.State.LastRun.Equal(earlier) {
		t.Errorf("Expected last run %v, got %v", earlier, result.State.LastRun)
	}
}

// ============================================================
// Evaluation and dispatch
// ============================================================

func TestActor_UpdateEvaluatesCaps(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	result, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 15.00)},
		Caps:    caps.Config{OpenAISoft: 10.00},
		Now:     now,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	eval := result.State.LastEvaluation
	if eval == nil {
		t.Fatal("Expected evaluation to be recorded")
	}
	if len(eval.Breaches) != 1 {
		t.Fatalf("Expected 1 breach, got %d", len(eval.Breaches))
	}
	if eval.Breaches[0].Scope != caps.ScopeOpenAI || eval.Breaches[0].Level != caps.LevelSoft {
		t.Errorf("Expected openai soft breach, got %s/%s", eval.Breaches[0].Scope, eval.Breaches[0].Level)
	}
	if eval.Totals[caps.ScopeGlobal] != 15.00 {
		t.Errorf("Expected global total 15.00, got %.2f", eval.Totals[caps.ScopeGlobal])
	}
}

func TestActor_UpdateDispatchesAlerts(t *testing.T) {
	var mu sync.Mutex
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{})
	backend := storage.NewMemoryBackend()
	a := testActor(t, backend, dispatcher)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	channels := alerts.Channels{SlackWebhook: srv.URL}
	result, err := a.Update(context.Background(), UpdateRequest{
		Records:  []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 15.00)},
		Caps:     caps.Config{OpenAISoft: 10.00},
		Now:      now,
		Channels: &channels,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(result.Delivery) != 1 || !result.Delivery[0].OK {
		t.Fatalf("Expected one successful delivery, got %+v", result.Delivery)
	}
	mu.Lock()
	if calls != 1 {
		t.Errorf("Expected 1 webhook call, got %d", calls)
	}
	mu.Unlock()

	// The debounce mark must survive persistence.
	persisted, err := backend.LoadState(context.Background(), DefaultInstance)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if _, ok := persisted.Ledger[alerts.LedgerKey(caps.ScopeOpenAI, caps.LevelSoft)]; !ok {
		t.Error("Expected debounce ledger entry to be persisted")
	}

	// An immediate re-run must be debounced: no second call.
	result, err = a.Update(context.Background(), UpdateRequest{
		Caps:     caps.Config{OpenAISoft: 10.00},
		Now:      now.Add(time.Minute),
		Channels: &channels,
	})
	if err != nil {
		t.Fatalf("Second update failed: %v", err)
	}
	if len(result.Delivery) != 0 {
		t.Errorf("Expected debounced update to deliver nothing, got %+v", result.Delivery)
	}
	mu.Lock()
	if calls != 1 {
		t.Errorf("Expected webhook calls to stay at 1, got %d", calls)
	}
	mu.Unlock()
}

func TestActor_NoChannelsNoDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Expected no webhook traffic")
	}))
	defer srv.Close()

	a := testActor(t, storage.NewMemoryBackend(), alerts.NewDispatcher(alerts.DispatcherConfig{}))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	result, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 15.00)},
		Caps:    caps.Config{OpenAISoft: 10.00},
		Now:     now,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(result.Delivery) != 0 {
		t.Errorf("Expected no deliveries without channels, got %+v", result.Delivery)
	}
}

// ============================================================
// Persistence failure
// ============================================================

type failingBackend struct {
	storage.Backend
	fail bool
	mu   sync.Mutex
}

func (b *failingBackend) SaveState(ctx context.Context, instance string, state *storage.State) error {
	b.mu.Lock()
	fail := b.fail
	b.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return b.Backend.SaveState(ctx, instance, state)
}

func TestActor_PersistFailureLeavesStateUnchanged(t *testing.T) {
	backend := &failingBackend{Backend: storage.NewMemoryBackend()}
	a := testActor(t, backend, nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 1.00)},
		Now:     now,
	}); err != nil {
		t.Fatalf("Seed update failed: %v", err)
	}

	backend.mu.Lock()
	backend.fail = true
	backend.mu.Unlock()

	_, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderAnthropic, "2026-03-09", "claude-sonnet", 2.00)},
		Now:     now.Add(time.Hour),
	})
	if err == nil {
		t.Fatal("Expected persistence failure to surface")
	}

	snap, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Records) != 1 {
		t.Errorf("Expected failed update to be discarded, got %d records", len(snap.Records))
	}
	if snap.LastRun == nil || !snap.LastRun.Equal(now) {
		t.Errorf("Expected last run unchanged at %v, got %v", now, snap.LastRun)
	}
}

// ============================================================
// Query and snapshot
// ============================================================

func TestActor_Query(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{
			record(spend.ProviderOpenAI, "2026-03-08", "gpt-4o", 1.00),
			record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 2.00),
			record(spend.ProviderAnthropic, "2026-03-09", "claude-sonnet", 4.00),
		},
		Now: now,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	buckets, err := a.Query(context.Background(), "2026-03-09", "2026-03-09", spend.GroupByProvider)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("Expected 2 provider buckets, got %d", len(buckets))
	}
	byProvider := map[spend.Provider]float64{}
	for _, b := range buckets {
		byProvider[b.Provider] = b.CostUSD
	}
	if byProvider[spend.ProviderOpenAI] != 2.00 {
		t.Errorf("Expected openai total 2.00, got %.2f", byProvider[spend.ProviderOpenAI])
	}
	if byProvider[spend.ProviderAnthropic] != 4.00 {
		t.Errorf("Expected anthropic total 4.00, got %.2f", byProvider[spend.ProviderAnthropic])
	}
}

func TestActor_SnapshotIsACopy(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := a.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 1.00)},
		Now:     now,
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	snap.Records[0].CostUSD = 999

	again, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if again.Records[0].CostUSD != 1.00 {
		t.Errorf("Expected snapshot mutation to be isolated, got %.2f", again.Records[0].CostUSD)
	}
}

// ============================================================
// Restore and lifecycle
// ============================================================

func TestActor_RestoresStateOnStart(t *testing.T) {
	backend := storage.NewMemoryBackend()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first := testActor(t, backend, nil)
	if _, err := first.Update(context.Background(), UpdateRequest{
		Records: []spend.Record{record(spend.ProviderOpenAI, "2026-03-09", "gpt-4o", 1.00)},
		Now:     now,
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	first.Close()

	second := testActor(t, backend, nil)
	snap, err := second.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Records) != 1 {
		t.Errorf("Expected restored state with 1 record, got %d", len(snap.Records))
	}
}

func TestActor_ConcurrentUpdatesSerialize(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	days := []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-04",
		"2026-03-05", "2026-03-06", "2026-03-07", "2026-03-08"}
	var wg sync.WaitGroup
	for i, day := range days {
		wg.Add(1)
		go func(i int, day string) {
			defer wg.Done()
			_, err := a.Update(context.Background(), UpdateRequest{
				Records: []spend.Record{record(spend.ProviderOpenAI, day, "gpt-4o", 1.00)},
				Now:     now.Add(time.Duration(i) * time.Second),
			})
			if err != nil {
				t.Errorf("Update for %s failed: %v", day, err)
			}
		}(i, day)
	}
	wg.Wait()

	snap, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Records) != len(days) {
		t.Errorf("Expected %d records after concurrent updates, got %d", len(days), len(snap.Records))
	}
}

func TestActor_ClosedActorRejectsRequests(t *testing.T) {
	a := testActor(t, storage.NewMemoryBackend(), nil)
	a.Close()

	if _, err := a.Update(context.Background(), UpdateRequest{Now: time.Now()}); err == nil {
		t.Error("Expected update on closed actor to fail")
	}
	if _, err := a.Snapshot(context.Background()); err == nil {
		t.Error("Expected snapshot on closed actor to fail")
	}
}
