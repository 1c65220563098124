package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/caps"
	"halcyon-hq/spendwatch/pkg/providers"
	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/rollup"
	"halcyon-hq/spendwatch/pkg/rollup/storage"
	"halcyon-hq/spendwatch/pkg/spend"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "message": message})
}

type providerFlags struct {
	OpenAI           bool `json:"openai"`
	Anthropic        bool `json:"anthropic"`
	VertexBillingAPI bool `json:"vertex_billing_api"`
	VertexBigQuery   bool `json:"vertex_bigquery"`
}

type statusResponse struct {
	OK               bool                   `json:"ok"`
	LastRun          *time.Time             `json:"last_run"`
	LastError        string                 `json:"last_error,omitempty"`
	ProvidersEnabled providerFlags          `json:"providers_enabled"`
	Totals           map[caps.Scope]float64 `json:"totals,omitempty"`
	Breaches         int                    `json:"breaches"`
	RecentRuns       []*storage.IngestRun   `json:"recent_runs,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.actor.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	cfg := s.store.Get()

	resp := statusResponse{
		OK:        true,
		LastRun:   state.LastRun,
		LastError: state.LastError,
		ProvidersEnabled: providerFlags{
			OpenAI:           cfg.Providers.OpenAI.Enabled,
			Anthropic:        cfg.Providers.Anthropic.Enabled,
			VertexBillingAPI: cfg.Providers.Vertex.BillingAPIEnabled,
			VertexBigQuery:   cfg.Providers.Vertex.BigQueryEnabled,
		},
	}
	if state.LastEvaluation != nil {
		resp.Totals = state.LastEvaluation.Totals
		resp.Breaches = len(state.LastEvaluation.Breaches)
	}
	if s.backend != nil {
		runs, err := s.backend.ListRuns(r.Context(), 5)
		if err != nil {
			s.logger.Warn("failed to list ingestion runs", "error", err)
		} else {
			resp.RecentRuns = runs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("group_by")
	if raw == "" {
		raw = q.Get("groupBy")
	}
	groupBy, ok := spend.ParseGroupBy(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown group_by value "+strconv.Quote(raw))
		return
	}

	buckets, err := s.actor.Query(r.Context(), q.Get("from"), q.Get("to"), groupBy)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_by":   groupBy,
		"aggregates": buckets,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.actor.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleConfig returns the effective configuration with secrets reduced to
// presence booleans.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"caps": cfg.Caps,
		"ingest": map[string]any{
			"schedule":       cfg.Ingest.Schedule,
			"lookback_hours": cfg.Ingest.LookbackHours,
		},
		"providers_enabled": providerFlags{
			OpenAI:           cfg.Providers.OpenAI.Enabled,
			Anthropic:        cfg.Providers.Anthropic.Enabled,
			VertexBillingAPI: cfg.Providers.Vertex.BillingAPIEnabled,
			VertexBigQuery:   cfg.Providers.Vertex.BigQueryEnabled,
		},
		"credentials": map[string]bool{
			"openai_api_key":      cfg.Providers.OpenAI.APIKey != "",
			"anthropic_api_key":   cfg.Providers.Anthropic.APIKey != "",
			"vertex_service_json": cfg.Providers.Vertex.ServiceAccountJSON != "",
		},
		"alerts": map[string]any{
			"slack_webhook":    cfg.Alerts.SlackWebhook != "",
			"email_webhook":    cfg.Alerts.EmailWebhook != "",
			"hard_cap_webhook": cfg.Alerts.HardCapWebhook != "",
			"debounce_window":  cfg.Alerts.DebounceWindow.String(),
		},
	})
}

func (s *Server) handleRawPages(w http.ResponseWriter, r *http.Request) {
	name := spend.Provider(r.PathValue("name"))
	known := false
	for _, p := range spend.Providers() {
		if p == name {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	q := r.URL.Query()
	opts := rawstore.ListOptions{Provider: name, Endpoint: q.Get("endpoint")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		opts.Offset = n
	}

	pages, err := s.raw.List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	// Day-window filtering happens after listing: pages archive whatever
	// window the fetcher requested, which can straddle the asked-for range.
	from, to := q.Get("from"), q.Get("to")
	items := make([]*rawstore.Page, 0, len(pages))
	for _, page := range pages {
		if from != "" && page.WindowFrom != "" && page.WindowFrom < from {
			continue
		}
		if to != "" && page.WindowTo != "" && page.WindowTo > to {
			continue
		}
		items = append(items, page)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRecompute replays every archived raw page through the provider
// normalizers and replaces the rollup state with the result. Alert channels
// are deliberately not passed: recomputation must never re-raise alerts.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var records []spend.Record
	for _, provider := range spend.Providers() {
		pages, err := s.raw.List(ctx, rawstore.ListOptions{Provider: provider})
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if len(pages) == 0 {
			continue
		}
		rows, err := providers.RecordsFromRaw(provider, pages)
		if err != nil {
			s.logger.Warn("skipping unreplayable raw pages",
				"provider", provider, "error", err)
			continue
		}
		records = append(records, rows...)
	}

	result, err := s.actor.Update(ctx, rollup.UpdateRequest{
		Records: records,
		Caps:    s.store.Get().Caps,
		Now:     time.Now().UTC(),
		Replace: true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"records": len(records),
		"merged":  len(result.State.Records),
	})
}

// handleTestAlert sends a synthetic soft breach through the dispatcher to
// verify channel wiring. It bypasses the engine ledger so a test never
// debounces a real alert.
func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "alert dispatcher not configured")
		return
	}
	channels := s.store.Get().Alerts.Channels()
	if channels.Empty() {
		writeError(w, http.StatusBadRequest, "no alert channels configured")
		return
	}

	now := time.Now().UTC()
	breaches := []caps.Breach{{
		Scope:       caps.ScopeGlobal,
		Level:       caps.LevelSoft,
		Threshold:   1,
		Total:       1,
		TriggeredAt: now,
	}}
	totals := map[caps.Scope]float64{
		caps.ScopeGlobal:    1,
		caps.ScopeOpenAI:    0,
		caps.ScopeAnthropic: 0,
		caps.ScopeVertex:    0,
	}
	results, _ := s.dispatcher.Dispatch(r.Context(), breaches, totals, alerts.Ledger{}, channels, now)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"results": results,
	})
}
