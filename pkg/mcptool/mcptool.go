// Package mcptool implements the collab.Tool contract over the Model Context
// Protocol. Each Tool instance holds a single server connection; the engine
// treats each MCP tool as one collab.Tool and only needs the generic
// {success, output} call contract.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/agentflow/pkg/collab"
)

// Transport selects how the underlying MCP server process/endpoint is
// reached. Exactly one of the two shapes applies.
type Transport struct {
	// Stdio launches a local MCP server subprocess.
	Command string
	Args    []string

	// HTTP dials a remote MCP server over streamable HTTP.
	URL string
}

// Tool adapts one named tool on one MCP server to collab.Tool.
type Tool struct {
	name      string
	toolName  string
	transport Transport
	timeout   time.Duration

	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// New constructs a Tool bound to toolName on the server reached via
// transport. Connection is established lazily on first Call (and cached)
// rather than eagerly, matching the Agent Pool's on-demand dispatch model —
// a tool that's never invoked in a given workflow never pays the connect
// cost.
func New(name, toolName string, transport Transport, timeout time.Duration) *Tool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Tool{name: name, toolName: toolName, transport: transport, timeout: timeout}
}

func (t *Tool) Name() string { return t.name }

// Schema returns the tool's self-reported JSON input schema, connecting if
// necessary.
func (t *Tool) Schema() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}

	result, err := t.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptool: list tools: %w", err)
	}
	for _, tl := range result.Tools {
		if tl.Name == t.toolName {
			return json.Marshal(tl.InputSchema)
		}
	}
	return nil, fmt.Errorf("mcptool: tool %q not found on server", t.toolName)
}

// Call invokes the tool with the given JSON-encoded arguments.
func (t *Tool) Call(ctx context.Context, arguments []byte) (collab.ToolCallResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.ensureConnected(callCtx); err != nil {
		return collab.ToolCallResult{}, err
	}

	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return collab.ToolCallResult{}, fmt.Errorf("mcptool: invalid arguments: %w", err)
		}
	}

	result, err := t.session.CallTool(callCtx, &mcpsdk.CallToolParams{Name: t.toolName, Arguments: args})
	if err != nil {
		return collab.ToolCallResult{}, fmt.Errorf("mcptool: call %q: %w", t.toolName, err)
	}

	return collab.ToolCallResult{
		Success: !result.IsError,
		Output:  extractText(result),
	}, nil
}

// Close tears down the underlying session, if connected.
func (t *Tool) Close() error {
	if t.session == nil {
		return nil
	}
	return t.session.Close()
}

func (t *Tool) ensureConnected(ctx context.Context) error {
	if t.session != nil {
		return nil
	}

	transport, err := t.buildTransport()
	if err != nil {
		return err
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "agentflow", Version: "dev"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcptool: connect %q: %w", t.name, err)
	}

	t.client = client
	t.session = session
	return nil
}

func (t *Tool) buildTransport() (mcpsdk.Transport, error) {
	if t.transport.Command != "" {
		return &mcpsdk.CommandTransport{Command: exec.Command(t.transport.Command, t.transport.Args...)}, nil
	}
	if t.transport.URL != "" {
		return &mcpsdk.StreamableClientTransport{Endpoint: t.transport.URL}, nil
	}
	return nil, fmt.Errorf("mcptool: %q has no transport configured", t.name)
}

// extractText concatenates the text content blocks of an MCP tool result.
func extractText(result *mcpsdk.CallToolResult) string {
	var out string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
