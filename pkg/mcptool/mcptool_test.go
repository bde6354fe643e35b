package mcptool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var emptySchema = json.RawMessage(`{"type":"object"}`)

func connectInMemory(t *testing.T, toolName string, handler mcpsdk.ToolHandler) *Tool {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-server", Version: "test"}, nil)
	server.AddTool(&mcpsdk.Tool{Name: toolName, Description: "test", InputSchema: emptySchema}, handler)

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	go func() { _ = server.Run(context.Background(), serverTransport) }()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "agentflow-test", Version: "test"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	tl := New("test-tool", toolName, Transport{}, time.Second)
	tl.client = client
	tl.session = session
	return tl
}

func TestTool_Call_Success(t *testing.T) {
	tl := connectInMemory(t, "echo", func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "hello"}}}, nil
	})

	out, err := tl.Call(context.Background(), []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "hello", out.Output)
}

func TestTool_Call_ServerError(t *testing.T) {
	tl := connectInMemory(t, "fail", func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{IsError: true, Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "boom"}}}, nil
	})

	out, err := tl.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "boom", out.Output)
}

func TestTool_Name(t *testing.T) {
	tl := New("my-tool", "toolname", Transport{Command: "echo"}, 0)
	assert.Equal(t, "my-tool", tl.Name())
}
