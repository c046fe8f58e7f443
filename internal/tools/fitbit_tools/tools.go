package fitbit_tools

import (
	"context"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/tools/common"
)

// endpointFunc turns validated tool arguments into a Fitbit path and query.
type endpointFunc func(request mcp.CallToolRequest) (path string, query url.Values, err error)

// Tools returns every Fitbit tool bound to sc.
func Tools(sc *server.ServerContext) []mcpserver.ServerTool {
	var tools []mcpserver.ServerTool
	tools = append(tools, profileTools(sc)...)
	tools = append(tools, sleepTools(sc)...)
	tools = append(tools, activityTools(sc)...)
	tools = append(tools, heartRateTools(sc)...)
	tools = append(tools, nutritionTools(sc)...)
	tools = append(tools, overviewTool(sc))
	return tools
}

// RegisterTools registers all Fitbit tools with the MCP server.
func RegisterTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	s.AddTools(Tools(sc)...)
}

// fetchTool builds a tool that validates its arguments with endpoint and
// returns the single Fitbit response it names.
func fetchTool(sc *server.ServerContext, tool mcp.Tool, endpoint endpointFunc) mcpserver.ServerTool {
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, query, err := endpoint(request)
		if err != nil {
			return common.ArgumentError(err), nil
		}
		return common.FetchResult(ctx, sc, path, query), nil
	}
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: common.InstrumentedToolHandler(tool.Name, sc, handler),
	}
}

func readOnly() mcp.ToolOption {
	return mcp.WithReadOnlyHintAnnotation(true)
}

func dateRangeOptions(maxDays string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("startDate",
			mcp.Required(),
			mcp.Description("First day of the range, YYYY-MM-DD"),
		),
		mcp.WithString("endDate",
			mcp.Required(),
			mcp.Description("Last day of the range (inclusive), YYYY-MM-DD. At most "+maxDays+" after startDate"),
		),
	}
}

func withOptions(name, description string, extra ...mcp.ToolOption) mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription(description), readOnly()}, extra...)
	return mcp.NewTool(name, opts...)
}
