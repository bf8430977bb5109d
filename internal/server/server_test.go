package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/backend"
	"github.com/quarryhq/quarry/internal/dispatch"
	"github.com/quarryhq/quarry/internal/model"
	"github.com/quarryhq/quarry/internal/session"
	"github.com/quarryhq/quarry/internal/store"
	"github.com/quarryhq/quarry/internal/synth"
)

type stubAdapter struct {
	name   string
	claims []model.ClaimDraft
	err    error
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Research(ctx context.Context, query string, sources []model.Source) (*backend.Result, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &backend.Result{
		Summary: a.name + " summary",
		Claims:  a.claims,
	}, nil
}

func newTestServer(t *testing.T, adapters ...backend.Adapter) (*httptest.Server, *session.Registry) {
	t.Helper()

	factory := func(id string) *session.Controller {
		st := store.New()
		d := dispatch.New(adapters, 2*time.Second, nil)
		sy := synth.New(st, nil, 0, nil)
		return session.New(id, d, st, sy, nil, nil)
	}
	registry := session.NewRegistry(factory)

	srv := New(registry, model.ServerConfig{AllowedOrigin: "*"}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		registry.CloseAll()
	})
	return ts, registry
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getReport(t *testing.T, ts *httptest.Server, id string) reportResponse {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/sessions/" + id + "/report")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d, want 200", resp.StatusCode)
	}
	var rep reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return rep
}

func waitForStage(t *testing.T, ts *httptest.Server, id string, want model.Stage) reportResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rep := getReport(t, ts, id)
		if rep.Stage == want {
			return rep
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached stage %s", id, want)
	return reportResponse{}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{name: "alpha"})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestResearchOpensSession(t *testing.T) {
	ts, registry := newTestServer(t, &stubAdapter{
		name:   "alpha",
		claims: []model.ClaimDraft{{Text: "The bridge opened in 1932.", Confidence: 0.9}},
	})

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{Query: "bridge history"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var created researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if registry.Len() != 1 {
		t.Errorf("registry.Len() = %d, want 1", registry.Len())
	}

	rep := waitForStage(t, ts, created.SessionID, model.StageDone)
	if len(rep.Document.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(rep.Document.Sections))
	}
	if got := rep.Document.Sections[0].Claims[0].Text; got != "The bridge opened in 1932." {
		t.Errorf("claim text = %q", got)
	}
}

func TestResearchUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{name: "alpha"})

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{SessionID: "missing", Query: "anything"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestResearchEmptyQueryCleansUp(t *testing.T) {
	ts, registry := newTestServer(t, &stubAdapter{name: "alpha"})

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{Query: "   "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if registry.Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0 after failed open", registry.Len())
	}
}

func TestResearchInvalidBody(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{name: "alpha"})

	resp, err := http.Post(ts.URL+"/api/research", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFollowUpReusesSession(t *testing.T) {
	ts, registry := newTestServer(t, &stubAdapter{
		name:   "alpha",
		claims: []model.ClaimDraft{{Text: "The bridge opened in 1932.", Confidence: 0.9}},
	})

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{Query: "bridge history"})
	var created researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	waitForStage(t, ts, created.SessionID, model.StageDone)

	follow := postJSON(t, ts.URL+"/api/research", researchRequest{SessionID: created.SessionID, Query: "when was it renovated"})
	defer follow.Body.Close()
	if follow.StatusCode != http.StatusAccepted {
		t.Fatalf("follow-up status = %d, want 202", follow.StatusCode)
	}
	var followResp researchResponse
	if err := json.NewDecoder(follow.Body).Decode(&followResp); err != nil {
		t.Fatalf("decode follow-up: %v", err)
	}
	if followResp.SessionID != created.SessionID {
		t.Errorf("follow-up session id = %q, want %q", followResp.SessionID, created.SessionID)
	}
	if registry.Len() != 1 {
		t.Errorf("registry.Len() = %d, want 1", registry.Len())
	}
}

func TestReportUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{name: "alpha"})

	resp, err := http.Get(ts.URL + "/api/sessions/missing/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestResolveConflictFlow(t *testing.T) {
	ts, _ := newTestServer(t,
		&stubAdapter{name: "alpha", claims: []model.ClaimDraft{{Text: "Revenue grew to $2.1B in 2024", Confidence: 0.9}}},
		&stubAdapter{name: "beta", claims: []model.ClaimDraft{{Text: "Revenue grew to $1.8B in 2024", Confidence: 0.8}}},
	)

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{Query: "acme revenue"})
	var created researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	rep := waitForStage(t, ts, created.SessionID, model.StageDone)

	var conflictID string
	for _, sec := range rep.Document.Sections {
		if sec.Conflict != nil {
			conflictID = sec.Conflict.ID
		}
	}
	if conflictID == "" {
		t.Fatalf("no conflict in document: %+v", rep.Document.Sections)
	}

	url := ts.URL + "/api/sessions/" + created.SessionID + "/conflicts/" + conflictID + "/resolution"
	res := postJSON(t, url, resolveRequest{Resolution: "Q3 restatement superseded the earlier figure"})
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("resolve status = %d, want 204", res.StatusCode)
	}

	after := getReport(t, ts, created.SessionID)
	var resolution string
	for _, sec := range after.Document.Sections {
		if sec.Conflict != nil && sec.Conflict.ID == conflictID {
			resolution = sec.Conflict.Resolution
		}
	}
	if resolution != "Q3 restatement superseded the earlier figure" {
		t.Errorf("resolution = %q", resolution)
	}
}

func TestResolveConflictUnknownID(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{name: "alpha"})

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{Query: "anything"})
	var created researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	waitForStage(t, ts, created.SessionID, model.StageDone)

	url := ts.URL + "/api/sessions/" + created.SessionID + "/conflicts/missing/resolution"
	res := postJSON(t, url, resolveRequest{Resolution: "whatever"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
}

func TestSupersedeFlow(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{
		name: "alpha",
		claims: []model.ClaimDraft{
			{Text: "The bridge opened in 1932.", Confidence: 0.9},
			{Text: "Crews used granite from nearby quarries.", Confidence: 0.8},
		},
	})

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{Query: "bridge history"})
	var created researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	rep := waitForStage(t, ts, created.SessionID, model.StageDone)
	if len(rep.Document.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(rep.Document.Sections))
	}
	oldID := rep.Document.Sections[0].Claims[0].ID
	newID := rep.Document.Sections[1].Claims[0].ID

	url := ts.URL + "/api/sessions/" + created.SessionID + "/claims/" + oldID + "/supersede"
	res := postJSON(t, url, supersedeRequest{ReplacementID: newID})
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("supersede status = %d, want 204", res.StatusCode)
	}

	after := getReport(t, ts, created.SessionID)
	for _, sec := range after.Document.Sections {
		for _, cl := range sec.Claims {
			if cl.ID == oldID {
				t.Errorf("superseded claim %s still projected", oldID)
			}
		}
	}
}

func TestSupersedeUnknownClaim(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{name: "alpha"})

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{Query: "anything"})
	var created researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	waitForStage(t, ts, created.SessionID, model.StageDone)

	url := ts.URL + "/api/sessions/" + created.SessionID + "/claims/missing/supersede"
	res := postJSON(t, url, supersedeRequest{ReplacementID: "also-missing"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{name: "alpha"})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/research", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("allow-methods = %q, want POST included", got)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var ev model.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestStreamUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, &stubAdapter{name: "alpha"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/research/missing"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake failure")
	}
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("dial error = %v, want bad handshake", err)
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("handshake response = %+v, want 404", resp)
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	ts, registry := newTestServer(t, &stubAdapter{
		name:   "alpha",
		claims: []model.ClaimDraft{{Text: "The bridge opened in 1932.", Confidence: 0.9}},
	})

	ctl := registry.Open()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/research/" + ctl.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readEvent(t, conn)
	if first.Type != model.EventStatus || first.Stage != model.StageIdle {
		t.Fatalf("first event = %+v, want idle status", first)
	}
	second := readEvent(t, conn)
	if second.Type != model.EventDocument {
		t.Fatalf("second event type = %q, want document", second.Type)
	}

	resp := postJSON(t, ts.URL+"/api/research", researchRequest{SessionID: ctl.ID, Query: "bridge history"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202", resp.StatusCode)
	}

	sawDocument := false
	for {
		ev := readEvent(t, conn)
		if ev.Type == model.EventDocument {
			sawDocument = true
		}
		if ev.Type == model.EventStatus && ev.Stage == model.StageDone {
			break
		}
	}
	if !sawDocument {
		t.Error("no document event observed before completion")
	}
}
