package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/hurttlocker/subjectgraph/internal/explorer"
	"github.com/hurttlocker/subjectgraph/internal/export"
)

type handlers struct {
	snap   *explorer.Snapshot
	logger *zap.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snap.Stats())
}

func (h *handlers) relationships(w http.ResponseWriter, r *http.Request) {
	p := params{values: r.URL.Query()}
	q := explorer.DefaultRelationshipQuery()
	q.MinNarrowerCount = p.getInt("min_count", q.MinNarrowerCount)
	q.MinCooc = p.getInt("min_cooc", q.MinCooc)
	q.MinP = p.getFloat("min_p", q.MinP)
	q.MinAsymmetry = p.getFloat("min_asym", q.MinAsymmetry)
	q.Limit = p.getInt("limit", q.Limit)
	q.Filter = p.values.Get("filter")
	if s := p.values.Get("sort"); s != "" {
		q.Sort = s
	}
	if d := p.values.Get("desc"); d != "" {
		q.Desc = d == "true"
	}
	if p.err != nil {
		writeError(w, http.StatusBadRequest, p.err.Error())
		return
	}

	page, err := h.snap.Relationships(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) conceptTree(w http.ResponseWriter, r *http.Request) {
	p := params{values: r.URL.Query()}
	concept := p.values.Get("concept")
	if concept == "" {
		writeError(w, http.StatusBadRequest, "No concept specified")
		return
	}
	q := treeQuery(&p, explorer.DefaultTreeQuery())
	if p.err != nil {
		writeError(w, http.StatusBadRequest, p.err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.snap.ConceptTree(concept, q))
}

func (h *handlers) hierarchyTree(w http.ResponseWriter, r *http.Request) {
	p := params{values: r.URL.Query()}
	q := treeQuery(&p, explorer.DefaultHierarchyQuery())
	if p.err != nil {
		writeError(w, http.StatusBadRequest, p.err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.snap.HierarchyTree(q))
}

func (h *handlers) concepts(w http.ResponseWriter, r *http.Request) {
	p := params{values: r.URL.Query()}
	minCount := p.getInt("min_count", 5)
	if p.err != nil {
		writeError(w, http.StatusBadRequest, p.err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.snap.Concepts(minCount))
}

func (h *handlers) exportYAML(w http.ResponseWriter, r *http.Request) {
	p := params{values: r.URL.Query()}
	q := explorer.DefaultExportQuery()
	q.MinP = p.getFloat("min_p", q.MinP)
	q.MinAsymmetry = p.getFloat("min_asym", q.MinAsymmetry)
	q.MinCooc = p.getInt("min_cooc", q.MinCooc)
	q.MinNarrowerCount = p.getInt("min_count", q.MinNarrowerCount)
	if p.err != nil {
		writeError(w, http.StatusBadRequest, p.err.Error())
		return
	}

	hier, err := h.snap.HierarchyGroups(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := export.WriteHierarchyYAML(&buf, hier); err != nil {
		h.logger.Error("rendering hierarchy YAML", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "rendering hierarchy failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func treeQuery(p *params, q explorer.TreeQuery) explorer.TreeQuery {
	q.MinP = p.getFloat("min_p", q.MinP)
	q.MinAsymmetry = p.getFloat("min_asym", q.MinAsymmetry)
	q.MinCooc = p.getInt("min_cooc", q.MinCooc)
	q.MinCount = p.getInt("min_count", q.MinCount)
	return q
}

// params parses numeric query parameters, keeping the first error.
type params struct {
	values url.Values
	err    error
}

func (p *params) getInt(key string, def int) int {
	raw := p.values.Get(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %q is not an integer", key, raw)
		return def
	}
	return v
}

func (p *params) getFloat(key string, def float64) float64 {
	raw := p.values.Get(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.err = fmt.Errorf("invalid %s: %q is not a number", key, raw)
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
