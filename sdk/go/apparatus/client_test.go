package apparatus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockServer creates an httptest server that mimics the Apparatus API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	if _, ok := handlers["POST /auth/token"]; !ok {
		mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"token":      "test-token-xyz",
				"expires_at": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
			})
		})
	}

	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestCreateRunSendsQueryParams(t *testing.T) {
	runID := uuid.New()
	expID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/runs": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("name") != "train-baseline" {
				t.Errorf("expected name=train-baseline, got %q", q.Get("name"))
			}
			if q.Get("experiment_uuid") != expID.String() {
				t.Errorf("expected experiment_uuid=%s, got %q", expID, q.Get("experiment_uuid"))
			}
			if q.Get("parent_run_uuid") != "" {
				t.Errorf("unexpected parent_run_uuid %q", q.Get("parent_run_uuid"))
			}
			writeJSON(w, http.StatusOK, RunRef{ID: runID, Name: "train-baseline"})
		},
	})

	client := newTestClient(t, srv.URL)
	ref, err := client.CreateRun(context.Background(), "train-baseline", &CreateRunOptions{ExperimentID: &expID})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if ref.ID != runID {
		t.Errorf("expected run ID %s, got %s", runID, ref.ID)
	}
}

func TestCreateRunRequiresName(t *testing.T) {
	client := newTestClient(t, "http://unused")
	if _, err := client.CreateRun(context.Background(), "", nil); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestLogParamInfersTypes(t *testing.T) {
	runID := uuid.New()
	type captured struct{ value, typ string }
	got := make(map[string]captured)

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/params": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("run_uuid") != runID.String() {
				t.Errorf("expected run_uuid=%s, got %q", runID, q.Get("run_uuid"))
			}
			got[q.Get("key")] = captured{value: q.Get("value"), typ: q.Get("type")}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
	})

	client := newTestClient(t, srv.URL)
	ctx := context.Background()
	if err := client.LogParam(ctx, runID, "optimizer", "adam"); err != nil {
		t.Fatalf("LogParam string failed: %v", err)
	}
	if err := client.LogParam(ctx, runID, "epochs", 50); err != nil {
		t.Fatalf("LogParam int failed: %v", err)
	}
	if err := client.LogParam(ctx, runID, "lr", 0.001); err != nil {
		t.Fatalf("LogParam float failed: %v", err)
	}
	if err := client.LogParam(ctx, runID, "shuffle", true); err != nil {
		t.Fatalf("LogParam bool failed: %v", err)
	}

	want := map[string]captured{
		"optimizer": {"adam", "string"},
		"epochs":    {"50", "int"},
		"lr":        {"0.001", "float"},
		"shuffle":   {"true", "bool"},
	}
	for key, expect := range want {
		if got[key] != expect {
			t.Errorf("param %s: expected %+v, got %+v", key, expect, got[key])
		}
	}

	if err := client.LogParam(ctx, runID, "bad", struct{}{}); err == nil {
		t.Error("expected error for unsupported value type")
	}
}

func TestLogMetricsBody(t *testing.T) {
	runID := uuid.New()
	loggedAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/metrics": func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				RunUUID             string        `json:"run_uuid"`
				Key                 string        `json:"key"`
				Values              []MetricPoint `json:"values"`
				LoggedAtEpochMillis int64         `json:"logged_at_epoch_millis"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode metrics body: %v", err)
			}
			if body.RunUUID != runID.String() {
				t.Errorf("expected run_uuid=%s, got %q", runID, body.RunUUID)
			}
			if body.Key != "loss" {
				t.Errorf("expected key=loss, got %q", body.Key)
			}
			if len(body.Values) != 2 || body.Values[1].YValue != 1.8 {
				t.Errorf("unexpected values %+v", body.Values)
			}
			if body.LoggedAtEpochMillis != loggedAt.UnixMilli() {
				t.Errorf("expected timestamp %d, got %d", loggedAt.UnixMilli(), body.LoggedAtEpochMillis)
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
	})

	client := newTestClient(t, srv.URL)
	err := client.LogMetricsAt(context.Background(), runID, "loss", []MetricPoint{
		{XValue: 0, YValue: 2.5},
		{XValue: 1, YValue: 1.8},
	}, loggedAt)
	if err != nil {
		t.Fatalf("LogMetricsAt failed: %v", err)
	}
}

func TestLogMetricsMissingFieldsError(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/metrics": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":          "Missing required fields",
				"missing_fields": []string{"key", "values"},
			})
		},
	})

	client := newTestClient(t, srv.URL)
	err := client.LogMetrics(context.Background(), uuid.New(), "loss", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", apiErr.StatusCode)
	}
	if len(apiErr.MissingFields) != 2 {
		t.Errorf("expected 2 missing fields, got %v", apiErr.MissingFields)
	}
	if !strings.Contains(apiErr.Error(), "missing key, values") {
		t.Errorf("unexpected error string %q", apiErr.Error())
	}
}

func TestLogArtifactMultipart(t *testing.T) {
	runID := uuid.New()
	payload := []byte("step,loss\n0,2.5\n")

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/artifacts": func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("parse multipart: %v", err)
			}
			if r.FormValue("run_uuid") != runID.String() {
				t.Errorf("expected run_uuid=%s, got %q", runID, r.FormValue("run_uuid"))
			}
			if r.FormValue("path") != "results/metrics.csv" {
				t.Errorf("expected path=results/metrics.csv, got %q", r.FormValue("path"))
			}
			file, _, err := r.FormFile("file")
			if err != nil {
				t.Fatalf("form file: %v", err)
			}
			defer func() { _ = file.Close() }()
			data, _ := io.ReadAll(file)
			if !bytes.Equal(data, payload) {
				t.Errorf("payload mismatch: %q", data)
			}
			writeJSON(w, http.StatusOK, ArtifactUpload{
				Status: "ok",
				Path:   "results/metrics.csv",
				URI:    "file:///artifacts/" + runID.String() + "/results/metrics.csv",
			})
		},
	})

	client := newTestClient(t, srv.URL)
	resp, err := client.LogArtifact(context.Background(), runID, "results/metrics.csv", "text/csv", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("LogArtifact failed: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if resp.URI == "" {
		t.Error("expected non-empty URI")
	}
}

func TestDownloadArtifactStreamsPayload(t *testing.T) {
	runID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/artifacts/blob": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("path") != "model.txt" {
				t.Errorf("expected path=model.txt, got %q", r.URL.Query().Get("path"))
			}
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("weights"))
		},
	})

	client := newTestClient(t, srv.URL)
	rc, err := client.DownloadArtifact(context.Background(), runID, "model.txt")
	if err != nil {
		t.Fatalf("DownloadArtifact failed: %v", err)
	}
	defer func() { _ = rc.Close() }()

	data, _ := io.ReadAll(rc)
	if string(data) != "weights" {
		t.Errorf("expected payload 'weights', got %q", data)
	}
}

func TestGetSeriesAndKeys(t *testing.T) {
	runID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/runs/{run_id}/metrics": func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("run_id") != runID.String() {
				t.Errorf("expected run_id=%s, got %q", runID, r.PathValue("run_id"))
			}
			if key := r.URL.Query().Get("key"); key != "" {
				writeJSON(w, http.StatusOK, Series{
					Key:    key,
					Points: []SeriesPoint{{XValue: 0, YValue: 0.5, LoggedAt: time.Now()}},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string][]string{"keys": {"acc", "loss"}})
		},
	})

	client := newTestClient(t, srv.URL)
	series, err := client.GetSeries(context.Background(), runID, "loss")
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if series.Key != "loss" || len(series.Points) != 1 {
		t.Errorf("unexpected series %+v", series)
	}

	keys, err := client.ListSeriesKeys(context.Background(), runID)
	if err != nil {
		t.Fatalf("ListSeriesKeys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "acc" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestNotFoundError(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/runs/{run_id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		},
	})

	client := newTestClient(t, srv.URL)
	_, err := client.GetRun(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}
	if IsUnauthorized(err) || IsRateLimited(err) {
		t.Error("error misclassified")
	}
}

func TestTokenCachedAcrossRequests(t *testing.T) {
	var tokenCalls atomic.Int32

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /auth/token": func(w http.ResponseWriter, r *http.Request) {
			tokenCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{
				"token":      "cached-token",
				"expires_at": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
			})
		},
		"GET /api/experiments": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer cached-token" {
				t.Errorf("expected cached token, got %q", r.Header.Get("Authorization"))
			}
			writeJSON(w, http.StatusOK, []Experiment{})
		},
	})

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.ListExperiments(ctx); err != nil {
			t.Fatalf("ListExperiments failed: %v", err)
		}
	}
	if n := tokenCalls.Load(); n != 1 {
		t.Errorf("expected 1 token exchange, got %d", n)
	}
}

func TestNoAuthHeaderWithoutAPIKey(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/experiments": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
			}
			writeJSON(w, http.StatusOK, []Experiment{})
		},
	})

	client := newTestClient(t, srv.URL)
	if _, err := client.ListExperiments(context.Background()); err != nil {
		t.Fatalf("ListExperiments failed: %v", err)
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("health should not send Authorization, got %q", r.Header.Get("Authorization"))
			}
			writeJSON(w, http.StatusOK, Health{Status: "ok", Version: "test", Database: "ok"})
		},
	})

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("expected status ok, got %q", h.Status)
	}
}
