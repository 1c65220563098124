package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"halcyon-hq/spendwatch/pkg/spend"
)

func newAnthropicTestServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Missing API key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("Expected version header %s, got %s", anthropicAPIVersion, r.Header.Get("anthropic-version"))
		}
		body, ok := pages[r.URL.Query().Get("page_token")]
		if !ok {
			t.Errorf("Unexpected page token %q", r.URL.Query().Get("page_token"))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(body))
	}))
}

func TestAnthropicFetcher_NormalizesUsage(t *testing.T) {
	srv := newAnthropicTestServer(t, map[string]string{
		"": `{"data": [
			{"date": "2026-03-09T00:00:00Z", "model": "claude-sonnet-4",
			 "input_tokens": 5000, "output_tokens": 1200, "cost_usd": 2.75}
		]}`,
	})
	defer srv.Close()

	fetcher := NewAnthropicFetcher(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL}, testClient())
	result, err := fetcher.Fetch(context.Background(), FetchOptions{From: "2026-03-01", To: "2026-03-10"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(result.Records))
	}
	r := result.Records[0]
	if r.Provider != spend.ProviderAnthropic || r.Model != "claude-sonnet-4" {
		t.Errorf("Unexpected identity: %s/%s", r.Provider, r.Model)
	}
	if r.Day != "2026-03-09" {
		t.Errorf("Expected date truncated to day, got %s", r.Day)
	}
	if r.CostUSD != 2.75 || r.Source != spend.SourceUsageAPI {
		t.Errorf("Expected 2.75/usage_api, got %.2f/%s", r.CostUSD, r.Source)
	}
	if r.InputTokens == nil || *r.InputTokens != 5000 {
		t.Errorf("Expected input tokens 5000, got %v", r.InputTokens)
	}
}

func TestAnthropicFetcher_FollowsPageTokens(t *testing.T) {
	srv := newAnthropicTestServer(t, map[string]string{
		"":   `{"data": [{"date": "2026-03-08", "model": "claude-sonnet-4", "cost_usd": 1.00}], "next_page_token": "t2"}`,
		"t2": `{"data": [{"date": "2026-03-09", "model": "claude-sonnet-4", "cost_usd": 2.00}]}`,
	})
	defer srv.Close()

	fetcher := NewAnthropicFetcher(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL}, testClient())
	result, err := fetcher.Fetch(context.Background(), FetchOptions{From: "2026-03-01", To: "2026-03-10"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("Expected 2 records across pages, got %d", len(result.Records))
	}
	if len(result.RawPages) != 2 {
		t.Errorf("Expected 2 raw pages, got %d", len(result.RawPages))
	}
}

func TestAnthropicRecordsFromRaw(t *testing.T) {
	srv := newAnthropicTestServer(t, map[string]string{
		"": `{"data": [{"date": "2026-03-09", "model": "claude-sonnet-4", "cost_usd": 2.00}]}`,
	})
	defer srv.Close()

	fetcher := NewAnthropicFetcher(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL}, testClient())
	result, err := fetcher.Fetch(context.Background(), FetchOptions{From: "2026-03-01", To: "2026-03-10"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	replayed, err := AnthropicRecordsFromRaw(result.RawPages)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(replayed) != 1 || replayed[0].CostUSD != 2.00 {
		t.Fatalf("Expected replay to reproduce the record, got %+v", replayed)
	}
}
