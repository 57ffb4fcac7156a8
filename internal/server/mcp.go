package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/facet"
	"github.com/agentic-research/medgraph/internal/metrics"
	"github.com/agentic-research/medgraph/internal/query"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

type toolFunc func(ctx context.Context, req mcp.CallToolRequest, gen *corpus.Generation) (any, error)

// NewMCPServer registers the query tools over s's generation.
func (s *Server) NewMCPServer(version string) *mcpserver.MCPServer {
	m := mcpserver.NewMCPServer("medgraph", version, mcpserver.WithToolCapabilities(false))

	m.AddTool(mcp.NewTool("find_by_id",
		mcp.WithDescription("Fetch one content record by id"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id, e.g. asthma")),
	), s.tool("find_by_id", s.toolFindByID))

	m.AddTool(mcp.NewTool("find_by_facets",
		mcp.WithDescription("List records matching every given facet value. Facet values are comma separated."),
		mcp.WithString("system", mcp.Description("Body systems, e.g. respiratory")),
		mcp.WithString("topic", mcp.Description("Topics")),
		mcp.WithString("keyword", mcp.Description("Keywords")),
		mcp.WithString("clinicalRelevance", mcp.Description("low, moderate, high or critical")),
		mcp.WithString("type", mcp.Description("Record types")),
		mcp.WithNumber("limit", mcp.Description("Maximum records to return")),
	), s.tool("find_by_facets", s.toolFindByFacets))

	m.AddTool(mcp.NewTool("related_to",
		mcp.WithDescription("Records reachable from id through cross-references, nearest first"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Start record id")),
		mcp.WithNumber("depth", mcp.Description("Maximum hops, default 1")),
	), s.tool("related_to", s.toolRelatedTo))

	m.AddTool(mcp.NewTool("search_keyword",
		mcp.WithDescription("Records whose keyword tags contain the text"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Substring to look for")),
	), s.tool("search_keyword", s.toolSearchKeyword))

	m.AddTool(mcp.NewTool("backlinks",
		mcp.WithDescription("Records that link to id"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Target record id")),
	), s.tool("backlinks", s.toolBacklinks))

	return m
}

// ServeStdio runs the MCP server on stdin/stdout until the input closes.
func ServeStdio(m *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(m)
}

func (s *Server) tool(op string, fn toolFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		gen, err := s.swap.Current()
		var out any
		if err == nil {
			out, err = fn(ctx, req, gen)
		}
		metrics.QueryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.Queries.WithLabelValues(op, resultLabel(err)).Inc()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		raw, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

func (s *Server) toolFindByID(_ context.Context, req mcp.CallToolRequest, gen *corpus.Generation) (any, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, invalid(err)
	}
	return gen.Query.FindByID(id)
}

func (s *Server) toolFindByFacets(_ context.Context, req mcp.CallToolRequest, gen *corpus.Generation) (any, error) {
	var filter facet.Filter
	for _, f := range []facet.Facet{facet.System, facet.Topic, facet.Keyword, facet.ClinicalRelevance, facet.Type} {
		for _, v := range splitList(req.GetString(string(f), "")) {
			filter = filter.With(f, v)
		}
	}
	if filter.IsEmpty() {
		return nil, invalid(errors.New("at least one facet is required"))
	}
	recs, err := gen.Query.FindByFacets(filter, query.Options{Limit: req.GetInt("limit", 0)})
	if err != nil {
		return nil, err
	}
	return summaries(recs), nil
}

func (s *Server) toolRelatedTo(_ context.Context, req mcp.CallToolRequest, gen *corpus.Generation) (any, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, invalid(err)
	}
	recs, err := gen.Query.RelatedTo(id, req.GetInt("depth", 1))
	if err != nil {
		return nil, err
	}
	return summaries(recs), nil
}

func (s *Server) toolSearchKeyword(_ context.Context, req mcp.CallToolRequest, gen *corpus.Generation) (any, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return nil, invalid(err)
	}
	recs, err := gen.Query.SearchKeyword(text)
	if err != nil {
		return nil, err
	}
	return summaries(recs), nil
}

func (s *Server) toolBacklinks(_ context.Context, req mcp.CallToolRequest, gen *corpus.Generation) (any, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, invalid(err)
	}
	recs, err := gen.Query.Backlinks(id)
	if err != nil {
		return nil, err
	}
	return summaries(recs), nil
}

// Summary is the list form of a record returned by the MCP tools.
type Summary struct {
	ID                string                `json:"id"`
	Type              api.RecordType        `json:"type"`
	Name              string                `json:"name"`
	Systems           []string              `json:"systems,omitempty"`
	ClinicalRelevance api.ClinicalRelevance `json:"clinicalRelevance,omitempty"`
}

func summaries(recs []*api.ContentRecord) []Summary {
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, Summary{
			ID:                r.ID,
			Type:              r.Type,
			Name:              r.Name,
			Systems:           r.Tags.Systems,
			ClinicalRelevance: r.Tags.ClinicalRelevance,
		})
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
