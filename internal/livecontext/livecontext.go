package livecontext

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bowerhall/docsage/internal/logger"
)

const (
	defaultArgument = "query"
	defaultTimeout  = 5 * time.Second
	defaultMaxChars = 2000
)

// Provider supplies pre-formatted live data for a query. The text is passed
// to answer generation unmodified.
type Provider interface {
	Fetch(ctx context.Context, query string) (string, error)
}

// None never has live context.
type None struct{}

func (None) Fetch(context.Context, string) (string, error) { return "", nil }

// ToolCaller is the part of an MCP client used here.
type ToolCaller interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

type Config struct {
	// Command starts a stdio MCP server; URL selects streamable HTTP instead.
	Command  string
	Args     []string
	URL      string
	Tool     string
	Argument string
	Timeout  time.Duration
	MaxChars int
}

// MCP fetches live context by calling one tool on an MCP server with the
// user's query.
type MCP struct {
	caller   ToolCaller
	closer   func() error
	tool     string
	argument string
	timeout  time.Duration
	maxChars int
}

func NewMCP(caller ToolCaller, cfg Config) *MCP {
	if cfg.Argument == "" {
		cfg.Argument = defaultArgument
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	return &MCP{
		caller:   caller,
		tool:     cfg.Tool,
		argument: cfg.Argument,
		timeout:  cfg.Timeout,
		maxChars: cfg.MaxChars,
	}
}

// Connect starts an MCP client for cfg and performs the initialize handshake.
func Connect(ctx context.Context, cfg Config) (*MCP, error) {
	if cfg.Tool == "" {
		return nil, fmt.Errorf("live context tool is not set")
	}

	var c *client.Client
	var err error

	switch {
	case cfg.URL != "":
		c, err = client.NewStreamableHttpClient(cfg.URL)
		if err == nil {
			err = c.Start(ctx)
		}
	case cfg.Command != "":
		c, err = client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	default:
		return nil, fmt.Errorf("live context needs a command or url")
	}
	if err != nil {
		return nil, fmt.Errorf("start mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "docsage", Version: "1.0.0"}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize mcp client: %w", err)
	}

	m := NewMCP(c, cfg)
	m.closer = c.Close
	logger.Info("live context connected", "tool", cfg.Tool)
	return m, nil
}

func (m *MCP) Fetch(ctx context.Context, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = m.tool
	req.Params.Arguments = map[string]any{m.argument: query}

	result, err := m.caller.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", m.tool, err)
	}

	text := strings.TrimSpace(textOf(result))
	if result.IsError {
		return "", fmt.Errorf("tool %s failed: %s", m.tool, text)
	}

	if r := []rune(text); len(r) > m.maxChars {
		text = string(r[:m.maxChars])
	}
	return text, nil
}

func (m *MCP) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

func textOf(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
