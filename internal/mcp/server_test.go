package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/plantsim/internal/ratelimit"
	"github.com/nvandessel/plantsim/internal/signals"
)

func TestNewServer_RequiresPlant(t *testing.T) {
	if _, err := NewServer(&Config{Name: "test-server"}); err == nil {
		t.Error("expected error without a plant")
	}
	if _, err := NewServer(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewServer_HasRateLimiters(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	for _, tool := range []string{ratelimit.ToolSignals, ratelimit.ToolRead, ratelimit.ToolWrite, ratelimit.ToolHistory} {
		if _, ok := server.toolLimiters[tool]; !ok {
			t.Errorf("missing rate limiter for %s", tool)
		}
	}
}

func TestServer_Close(t *testing.T) {
	server, _ := setupTestServer(t, func(cfg *Config) {
		cfg.AuditDir = t.TempDir()
	})

	if err := server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestServer_RunUnknownTransport(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	if err := server.Run(context.Background(), "carrier-pigeon", "", ""); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestServer_RunHTTPStopsOnCancel(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, TransportHTTP, "127.0.0.1:0", "/refinery")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// connect opens a client session against server over an in-memory transport.
func connect(t *testing.T, server *Server) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	if _, err := server.server.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server Connect: %v", err)
	}

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// decodeStructured converts a tool result's structured content into out.
func decodeStructured(t *testing.T, res *sdk.CallToolResult, out any) {
	t.Helper()
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal structured content: %v", err)
	}
}

func TestServer_ListTools(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	session := connect(t, server)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	want := map[string]bool{
		ratelimit.ToolSignals: false,
		ratelimit.ToolRead:    false,
		ratelimit.ToolWrite:   false,
		ratelimit.ToolHistory: false,
	}
	for _, tool := range res.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestServer_WriteThenReadOverSession(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	session := connect(t, server)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &sdk.CallToolParams{
		Name:      ratelimit.ToolWrite,
		Arguments: map[string]any{"signal": signals.StorageLevel, "value": 75.0},
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", ratelimit.ToolWrite, err)
	}
	if res.IsError {
		t.Fatalf("%s returned a tool error: %+v", ratelimit.ToolWrite, res.Content)
	}
	var written PlantWriteOutput
	decodeStructured(t, res, &written)
	if !written.DecisionScheduled {
		t.Errorf("DecisionScheduled = false, want true for %+v", written)
	}

	res, err = session.CallTool(ctx, &sdk.CallToolParams{
		Name:      ratelimit.ToolRead,
		Arguments: map[string]any{"signal": signals.StorageLevel},
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", ratelimit.ToolRead, err)
	}
	var read PlantReadOutput
	decodeStructured(t, res, &read)
	if len(read.Values) != 1 || read.Values[0].Value != 75 {
		t.Errorf("read back %+v, want %s=75", read.Values, signals.StorageLevel)
	}
}

func TestServer_UnknownSignalIsToolError(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	session := connect(t, server)

	res, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      ratelimit.ToolRead,
		Arguments: map[string]any{"signal": "nope"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError for unknown signal")
	}
}

func TestServer_ReadResource(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	session := connect(t, server)

	res, err := session.ReadResource(context.Background(), &sdk.ReadResourceParams{URI: SignalsResourceURI})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("len(Contents) = %d, want 1", len(res.Contents))
	}

	var doc snapshotDocument
	if err := json.Unmarshal([]byte(res.Contents[0].Text), &doc); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if doc.Mode != "human" {
		t.Errorf("Mode = %q, want human", doc.Mode)
	}
}

func TestServer_StreamableHTTP(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx := context.Background()
	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdk.StreamableClientTransport{Endpoint: ts.URL}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &sdk.CallToolParams{Name: ratelimit.ToolSignals, Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	var out PlantSignalsOutput
	decodeStructured(t, res, &out)
	if out.Count != len(signals.Seeds()) {
		t.Errorf("Count = %d, want %d", out.Count, len(signals.Seeds()))
	}
}
