package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers all pagewatch tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerListSites(srv)
	s.registerCheckNow(srv)
	s.registerHistory(srv)
	s.registerRecentChanges(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

// registerTool adapts a typed endpoint to the MCP tool handler contract:
// decode arguments, run, marshal the response as text content.
func registerTool(srv *mcp.Server, tool *mcp.Tool, endpoint func(ctx context.Context, r any) (any, error), decode func(*mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := endpoint(ctx, decoded)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func (s *Service) registerListSites(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagewatch_list_sites",
		Description: "List all monitored sites with their failure counts",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	type siteInfo struct {
		*Site
		Failures int `json:"failures,omitempty"`
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		sites := s.Sites()
		out := make([]siteInfo, 0, len(sites))
		for _, site := range sites {
			out = append(out, siteInfo{Site: site, Failures: s.FailCount(site.ID)})
		}
		return out, nil
	}

	decode := func(*mcp.CallToolRequest) (any, error) { return nil, nil }

	registerTool(srv, tool, endpoint, decode)
}

func (s *Service) registerCheckNow(srv *mcp.Server) {
	type req struct {
		SiteID string `json:"site_id"`
	}

	tool := &mcp.Tool{
		Name:        "pagewatch_check_now",
		Description: "Run a monitoring cycle for one site immediately",
		InputSchema: inputSchema(map[string]any{
			"site_id": map[string]any{"type": "string", "description": "Site ID"},
		}, []string{"site_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.CheckSite(ctx, p.SiteID)
	}

	decode := func(r *mcp.CallToolRequest) (any, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}

	registerTool(srv, tool, endpoint, decode)
}

func (s *Service) registerHistory(srv *mcp.Server) {
	type req struct {
		SiteID string `json:"site_id"`
		Limit  int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "pagewatch_history",
		Description: "Return recent monitoring cycles for a site",
		InputSchema: inputSchema(map[string]any{
			"site_id": map[string]any{"type": "string", "description": "Site ID"},
			"limit":   map[string]any{"type": "integer", "description": "Max entries (default 50)"},
		}, []string{"site_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.History(ctx, p.SiteID, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (any, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}

	registerTool(srv, tool, endpoint, decode)
}

func (s *Service) registerRecentChanges(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "pagewatch_recent_changes",
		Description: "Return the latest detected content changes across all sites",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max entries (default 20)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.RecentChanges(ctx, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (any, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &p, nil
	}

	registerTool(srv, tool, endpoint, decode)
}
