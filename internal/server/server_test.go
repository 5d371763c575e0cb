package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
	"github.com/hurttlocker/subjectgraph/internal/explorer"
	"github.com/hurttlocker/subjectgraph/internal/metrics"
)

// newTestSnapshot: Science (40) > Physics (20) > Optics (10).
func newTestSnapshot(t *testing.T) *explorer.Snapshot {
	t.Helper()
	var recs []cooccur.Record
	add := func(n int, subjects ...string) {
		for i := 0; i < n; i++ {
			recs = append(recs, cooccur.Record{ID: fmt.Sprintf("r%03d", len(recs)), Subjects: subjects})
		}
	}
	add(10, "Science", "Physics", "Optics")
	add(10, "Science", "Physics")
	add(20, "Science")

	rs, err := cooccur.Compute(context.Background(), cooccur.NewSliceIterator(recs), cooccur.DefaultOptions())
	if err != nil {
		t.Fatalf("computing test result set: %v", err)
	}
	return explorer.NewSnapshot(rs)
}

func newTestServer(t *testing.T) (*httptest.Server, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector("subjectgraph")
	ts := httptest.NewServer(NewHandler(ServerConfig{Snapshot: newTestSnapshot(t), Metrics: collector}))
	t.Cleanup(ts.Close)
	return ts, collector
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func getJSON(t *testing.T, url string, wantStatus int, v interface{}) {
	t.Helper()
	resp, body := get(t, url)
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: expected %d, got %d: %s", url, wantStatus, resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("GET %s: expected JSON content type, got %q", url, ct)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("GET %s: decoding %s: %v", url, body, err)
	}
}

func TestIndexHTML(t *testing.T) {
	data, err := indexFS.ReadFile("index.html")
	if err != nil {
		t.Fatalf("index.html not embedded: %v", err)
	}
	if !strings.HasPrefix(string(data), "<!DOCTYPE html>") {
		t.Fatal("index.html doesn't start with DOCTYPE")
	}
	for _, endpoint := range []string{"/api/relationships", "/api/concept_tree", "/api/hierarchy_tree", "/api/export_yaml", "/api/stats"} {
		if !strings.Contains(string(data), endpoint) {
			t.Errorf("expected explorer page to call %s", endpoint)
		}
	}

	ts, _ := newTestServer(t)
	resp, _ := get(t, ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for /, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("expected HTML, got %q", resp.Header.Get("Content-Type"))
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	var out map[string]string
	getJSON(t, ts.URL+"/health", 200, &out)
	if out["status"] != "healthy" {
		t.Fatalf("unexpected health payload: %v", out)
	}
}

func TestStatsAPI(t *testing.T) {
	ts, _ := newTestServer(t)
	var stats map[string]interface{}
	getJSON(t, ts.URL+"/api/stats", 200, &stats)

	for key, want := range map[string]float64{
		"total_concepts":      3,
		"total_citations":     40,
		"total_pairs":         3,
		"total_relationships": 3,
	} {
		if got, _ := stats[key].(float64); got != want {
			t.Errorf("%s = %v, want %v", key, stats[key], want)
		}
	}
}

func TestRelationshipsAPI(t *testing.T) {
	ts, _ := newTestServer(t)

	var page explorer.RelationshipPage
	getJSON(t, ts.URL+"/api/relationships", 200, &page)
	if page.Total != 3 || len(page.Results) != 3 {
		t.Fatalf("expected 3 relationships, got total=%d results=%d", page.Total, len(page.Results))
	}
	first := page.Results[0]
	if first.BroaderName != "Science" || first.NarrowerName != "Optics" || first.Asymmetry != 4 {
		t.Fatalf("expected strongest pair Science>Optics first, got %+v", first)
	}

	getJSON(t, ts.URL+"/api/relationships?filter=OPTICS&limit=1&sort=cooc_count&desc=false", 200, &page)
	if page.Total != 2 || len(page.Results) != 1 {
		t.Fatalf("expected 1 of 2 optics relationships, got total=%d results=%d", page.Total, len(page.Results))
	}

	getJSON(t, ts.URL+"/api/relationships?min_count=11", 200, &page)
	if page.Total != 1 || page.Results[0].NarrowerName != "Physics" {
		t.Fatalf("expected only Science>Physics above 10 records, got %+v", page.Results)
	}
}

func TestRelationshipsAPI_BadParams(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, q := range []string{"min_p=abc", "min_count=1.5", "sort=popularity", "limit=-3", "min_asym=NaN"} {
		var out map[string]string
		getJSON(t, ts.URL+"/api/relationships?"+q, 400, &out)
		if out["error"] == "" {
			t.Errorf("%s: expected error message", q)
		}
	}
}

func TestConceptTreeAPI(t *testing.T) {
	ts, _ := newTestServer(t)

	var errOut map[string]string
	getJSON(t, ts.URL+"/api/concept_tree", 400, &errOut)
	if errOut["error"] != "No concept specified" {
		t.Fatalf("unexpected error payload: %v", errOut)
	}

	var tree explorer.ConceptTree
	getJSON(t, ts.URL+"/api/concept_tree?concept=physics", 200, &tree)
	if tree.ConceptName != "Physics" || tree.ConceptCount != 20 {
		t.Fatalf("unexpected concept: %+v", tree)
	}
	if len(tree.Broader) != 1 || tree.Broader[0].BroaderName != "Science" {
		t.Fatalf("expected Science as broader term, got %+v", tree.Broader)
	}
	if len(tree.Narrower) != 1 || tree.Narrower[0].NarrowerName != "Optics" {
		t.Fatalf("expected Optics as narrower term, got %+v", tree.Narrower)
	}

	var miss explorer.ConceptTree
	getJSON(t, ts.URL+"/api/concept_tree?concept=ics", 200, &miss)
	if miss.Found() || len(miss.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", miss)
	}
	if miss.Suggestions[0].Name != "Physics" {
		t.Fatalf("expected the more frequent suggestion first, got %+v", miss.Suggestions)
	}

	_, body := get(t, ts.URL+"/api/concept_tree?concept=zzz")
	if !strings.Contains(body, `"suggestions": []`) {
		t.Fatalf("expected an empty suggestions list, got %s", body)
	}
	_, body = get(t, ts.URL+"/api/concept_tree?concept=physics")
	if strings.Contains(body, "suggestions") {
		t.Fatalf("found concept should not carry suggestions, got %s", body)
	}
}

func TestHierarchyTreeAPI(t *testing.T) {
	ts, _ := newTestServer(t)

	var forest []explorer.HierarchyNode
	getJSON(t, ts.URL+"/api/hierarchy_tree", 200, &forest)
	if len(forest) != 1 || forest[0].Name != "Science" {
		t.Fatalf("expected a single Science root, got %+v", forest)
	}
	if len(forest[0].Children) != 2 {
		t.Fatalf("expected Optics and Physics under Science, got %+v", forest[0].Children)
	}

	getJSON(t, ts.URL+"/api/hierarchy_tree?min_asym=10", 200, &forest)
	if len(forest) != 0 {
		t.Fatalf("expected an empty forest, got %+v", forest)
	}
}

func TestConceptsAPI(t *testing.T) {
	ts, _ := newTestServer(t)

	var concepts []explorer.Concept
	getJSON(t, ts.URL+"/api/concepts?min_count=15", 200, &concepts)
	if len(concepts) != 2 || concepts[0].Name != "Science" || concepts[1].Name != "Physics" {
		t.Fatalf("unexpected concepts: %+v", concepts)
	}
}

func TestExportYAMLAPI(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/api/export_yaml")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("expected text/plain, got %q", resp.Header.Get("Content-Type"))
	}
	for _, want := range []string{"# Total relationships: 1", "cb_cooccurrence:", "broader: Science", "Optics # 100.0%"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}

	resp, _ = get(t, ts.URL+"/api/export_yaml?min_cooc=five")
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for bad min_cooc, got %d", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/stats", nil)
	req.Header.Set("Origin", "http://example.org")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	get(t, ts.URL+"/api/stats")
	get(t, ts.URL+"/api/concept_tree")
	get(t, ts.URL+"/no/such/route")

	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
	for _, want := range []string{
		`subjectgraph_http_requests_total{method="GET",route="/api/stats",status="200"} 1`,
		`subjectgraph_http_requests_total{method="GET",route="/api/concept_tree",status="400"} 1`,
		`subjectgraph_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in metrics output", want)
		}
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- Serve(ctx, ServerConfig{Snapshot: newTestSnapshot(t), Addr: "127.0.0.1:0"})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_RequiresSnapshot(t *testing.T) {
	if err := Serve(context.Background(), ServerConfig{Addr: "127.0.0.1:0"}); err == nil {
		t.Fatal("expected error without snapshot")
	}
}
