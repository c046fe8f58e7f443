package fitbit_tools

import (
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/tools/common"
)

// maxSleepRangeDays is Fitbit's limit for sleep log date ranges.
const maxSleepRangeDays = 100

func sleepPath(date string) string {
	return fmt.Sprintf("/1.2/user/-/sleep/date/%s.json", date)
}

func sleepTools(sc *server.ServerContext) []mcpserver.ServerTool {
	byRange := withOptions("get_sleep_by_date_range",
		"Get raw sleep logs, including stages and efficiency, for a date range of at most 100 days.",
		dateRangeOptions("100 days")...,
	)

	return []mcpserver.ServerTool{
		fetchTool(sc, byRange, func(request mcp.CallToolRequest) (string, url.Values, error) {
			start, end, err := common.DateRange(request, maxSleepRangeDays)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("/1.2/user/-/sleep/date/%s/%s.json", start, end), nil, nil
		}),
	}
}
