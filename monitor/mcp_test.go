package monitor

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagewatch/snapshot"
)

var testImpl = &mcp.Implementation{Name: "pagewatch-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_ListSites(t *testing.T) {
	// WHAT: pagewatch_list_sites returns the configured sites as JSON.
	// WHY: MCP clients discover targets through this tool.
	svc := newTestService(t, singleSiteConfig("https://example.com"), &capturingNotifier{})
	session := mcpSession(t, svc)

	text := callTool(t, session, "pagewatch_list_sites", map[string]any{})
	var sites []Site
	if err := json.Unmarshal([]byte(text), &sites); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sites) != 1 || sites[0].ID != "site" {
		t.Errorf("sites = %+v", sites)
	}
}

func TestMCP_CheckNow(t *testing.T) {
	// WHAT: pagewatch_check_now runs a cycle and returns its result.
	// WHY: Interactive clients trigger checks without waiting for the
	// schedule.
	page := &pageServer{}
	page.set("<html><body><p>Tool-triggered page content.</p></body></html>")
	srv := httptest.NewServer(page)
	defer srv.Close()

	svc := newTestService(t, singleSiteConfig(srv.URL), &capturingNotifier{})
	session := mcpSession(t, svc)

	text := callTool(t, session, "pagewatch_check_now", map[string]any{"site_id": "site"})
	var res CycleResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Status != snapshot.StatusBaseline {
		t.Errorf("status = %q, want baseline", res.Status)
	}
}

func TestMCP_CheckNow_UnknownSite(t *testing.T) {
	// WHAT: An unknown site ID comes back as a tool error, not a transport
	// failure.
	// WHY: Tool errors stay in-band so the client can show them.
	svc := newTestService(t, singleSiteConfig("https://example.com"), &capturingNotifier{})
	session := mcpSession(t, svc)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pagewatch_check_now",
		Arguments: map[string]any{"site_id": "nope"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("unknown site did not produce a tool error")
	}
}

func TestMCP_History(t *testing.T) {
	// WHAT: pagewatch_history returns the watch log for a site.
	// WHY: Clients inspect what the monitor has been doing.
	page := &pageServer{}
	page.set("<html><body><p>History page body sentence.</p></body></html>")
	srv := httptest.NewServer(page)
	defer srv.Close()

	svc := newTestService(t, singleSiteConfig(srv.URL), &capturingNotifier{})
	if _, err := svc.CheckSite(context.Background(), "site"); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
	session := mcpSession(t, svc)

	text := callTool(t, session, "pagewatch_history", map[string]any{"site_id": "site"})
	var entries []snapshot.WatchLogEntry
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != snapshot.StatusBaseline {
		t.Errorf("entries = %+v", entries)
	}
}

func TestMCP_RecentChanges_Empty(t *testing.T) {
	// WHAT: pagewatch_recent_changes with no detected changes returns an
	// empty result, not an error.
	// WHY: "Nothing happened" is the steady state.
	svc := newTestService(t, singleSiteConfig("https://example.com"), &capturingNotifier{})
	session := mcpSession(t, svc)

	text := callTool(t, session, "pagewatch_recent_changes", map[string]any{})
	var entries []snapshot.WatchLogEntry
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v", entries)
	}
}
