// Package server exposes the live generation's Query Engine over read-only
// HTTP endpoints and as MCP tools.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/facet"
	"github.com/agentic-research/medgraph/internal/logging"
	"github.com/agentic-research/medgraph/internal/metrics"
	"github.com/agentic-research/medgraph/internal/query"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server answers queries against whatever generation is current when each
// request starts. A request never sees two generations.
type Server struct {
	swap    *corpus.HotSwap
	policy  corpus.Policy
	log     *logging.Logger
	decoder *schema.Decoder
}

func New(swap *corpus.HotSwap, policy corpus.Policy, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	return &Server{swap: swap, policy: policy, log: log, decoder: dec}
}

// Handler routes every endpoint, including /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /records/{id}", s.instrument("find_by_id", s.handleRecord))
	mux.HandleFunc("GET /records", s.instrument("find_by_facets", s.handleFacets))
	mux.HandleFunc("GET /records/{id}/related", s.instrument("related_to", s.handleRelated))
	mux.HandleFunc("GET /records/{id}/backlinks", s.instrument("backlinks", s.handleBacklinks))
	mux.HandleFunc("GET /search", s.instrument("search", s.handleSearch))
	mux.HandleFunc("GET /path", s.instrument("path", s.handlePath))
	mux.HandleFunc("GET /where", s.instrument("where", s.handleWhere))
	mux.HandleFunc("GET /report", s.handleReport)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, gen *corpus.Generation) error

// instrument pins the current generation for the request, maps errors to
// status codes and records query metrics under op.
func (s *Server) instrument(op string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		gen, err := s.swap.Current()
		if err == nil {
			err = h(w, r, gen)
		}
		metrics.QueryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.Queries.WithLabelValues(op, resultLabel(err)).Inc()
		if err != nil {
			s.writeError(w, r, err)
		}
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, query.ErrNotFound):
		return "not_found"
	case errors.Is(err, query.ErrInvalidQuery):
		return "invalid"
	}
	return "error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, query.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, query.ErrInvalidQuery):
		status = http.StatusBadRequest
	case errors.Is(err, corpus.ErrNoGeneration):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RecordList is the body of every endpoint that returns records.
type RecordList struct {
	Generation string               `json:"generation"`
	Count      int                  `json:"count"`
	Records    []*api.ContentRecord `json:"records"`
}

func listOf(gen *corpus.Generation, recs []*api.ContentRecord) RecordList {
	if recs == nil {
		recs = []*api.ContentRecord{}
	}
	return RecordList{Generation: gen.ID, Count: len(recs), Records: recs}
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, gen *corpus.Generation) error {
	rec, err := gen.Query.FindByID(r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// handleFacets decodes repeated facet parameters (?system=a&system=b) and
// paging options from the query string.
func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request, gen *corpus.Generation) error {
	var filter facet.Filter
	if err := s.decoder.Decode(&filter, r.URL.Query()); err != nil {
		return invalid(err)
	}
	var opts query.Options
	if err := s.decoder.Decode(&opts, r.URL.Query()); err != nil {
		return invalid(err)
	}
	recs, err := gen.Query.FindByFacets(filter, opts)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, listOf(gen, recs))
	return nil
}

type relatedParams struct {
	Depth int      `schema:"depth"`
	Rel   []string `schema:"rel"`
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request, gen *corpus.Generation) error {
	p := relatedParams{Depth: 1}
	if err := s.decoder.Decode(&p, r.URL.Query()); err != nil {
		return invalid(err)
	}
	rels := make([]api.Relationship, 0, len(p.Rel))
	for _, v := range p.Rel {
		rel := api.Relationship(v)
		if !rel.Valid() {
			return invalid(errors.New("unknown relationship " + strconv.Quote(v)))
		}
		rels = append(rels, rel)
	}
	recs, err := gen.Query.RelatedTo(r.PathValue("id"), p.Depth, rels...)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, listOf(gen, recs))
	return nil
}

func (s *Server) handleBacklinks(w http.ResponseWriter, r *http.Request, gen *corpus.Generation) error {
	recs, err := gen.Query.Backlinks(r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, listOf(gen, recs))
	return nil
}

type searchParams struct {
	Q  string `schema:"q"`
	In string `schema:"in"` // keywords (default) or names
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, gen *corpus.Generation) error {
	var p searchParams
	if err := s.decoder.Decode(&p, r.URL.Query()); err != nil {
		return invalid(err)
	}
	var (
		recs []*api.ContentRecord
		err  error
	)
	switch p.In {
	case "", "keywords":
		recs, err = gen.Query.SearchKeyword(p.Q)
	case "names":
		recs, err = gen.Query.SearchNames(p.Q)
	default:
		return invalid(errors.New("in must be keywords or names"))
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, listOf(gen, recs))
	return nil
}

type pathParams struct {
	From string `schema:"from"`
	To   string `schema:"to"`
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request, gen *corpus.Generation) error {
	var p pathParams
	if err := s.decoder.Decode(&p, r.URL.Query()); err != nil {
		return invalid(err)
	}
	if p.From == "" || p.To == "" {
		return invalid(errors.New("from and to are required"))
	}
	ids, err := gen.Query.Path(p.From, p.To)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"generation": gen.ID, "path": ids})
	return nil
}

func (s *Server) handleWhere(w http.ResponseWriter, r *http.Request, gen *corpus.Generation) error {
	recs, err := gen.Query.Where(r.URL.Query().Get("expr"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, listOf(gen, recs))
	return nil
}

// Report is the body of /report.
type Report struct {
	Generation *corpus.Generation `json:"generation"`
	Stats      query.Stats        `json:"stats"`
	Findings   []corpus.Finding   `json:"findings"`
	Fails      bool               `json:"fails"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	gen, err := s.swap.Current()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	findings := corpus.Findings(gen, s.policy)
	if findings == nil {
		findings = []corpus.Finding{}
	}
	writeJSON(w, http.StatusOK, Report{
		Generation: gen,
		Stats:      gen.Query.Stats(),
		Findings:   findings,
		Fails:      s.policy.Fails(findings),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	gen, err := s.swap.Current()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": gen.ID,
		"seq":        gen.Seq,
		"records":    gen.Store.Count(),
	})
}

func invalid(err error) error {
	return errors.Join(query.ErrInvalidQuery, err)
}
