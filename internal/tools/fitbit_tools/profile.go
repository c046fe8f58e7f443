package fitbit_tools

import (
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/tools/common"
)

var weightPeriods = []string{"1d", "7d", "30d", "3m", "6m", "1y"}

func profileTools(sc *server.ServerContext) []mcpserver.ServerTool {
	profile := withOptions("get_profile",
		"Get the Fitbit user's profile: name, timezone, height, stride length and membership details.")

	weight := withOptions("get_weight",
		"Get raw weight log entries for a period ending today.",
		mcp.WithString("period",
			mcp.Required(),
			mcp.Description("Time period: 1d, 7d, 30d, 3m, 6m or 1y"),
			mcp.Enum(weightPeriods...),
		),
	)

	return []mcpserver.ServerTool{
		fetchTool(sc, profile, func(mcp.CallToolRequest) (string, url.Values, error) {
			return fitbit.ProfilePath, nil, nil
		}),
		fetchTool(sc, weight, func(request mcp.CallToolRequest) (string, url.Values, error) {
			period, err := common.OneOf(request, "period", "", weightPeriods...)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("/1/user/-/body/weight/date/today/%s.json", period), nil, nil
		}),
	}
}
