package fitbit_tools

import (
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/tools/common"
)

var heartRatePeriods = []string{"1d", "7d", "30d", "1w", "1m"}

// maxHeartRateRangeDays is Fitbit's one year limit for heart rate ranges.
const maxHeartRateRangeDays = 366

func heartRatePath(date, period string) string {
	return fmt.Sprintf("/1/user/-/activities/heart/date/%s/%s.json", date, period)
}

func heartRateTools(sc *server.ServerContext) []mcpserver.ServerTool {
	byPeriod := withOptions("get_heart_rate",
		"Get raw heart rate time series and zones for a period ending on a date.",
		mcp.WithString("period",
			mcp.Required(),
			mcp.Description("Time period: 1d, 7d, 30d, 1w or 1m"),
			mcp.Enum(heartRatePeriods...),
		),
		mcp.WithString("date",
			mcp.Description("End date, YYYY-MM-DD or 'today' (default: today)"),
		),
	)

	byRange := withOptions("get_heart_rate_by_date_range",
		"Get raw heart rate time series and zones for a date range of at most one year.",
		dateRangeOptions("1 year")...,
	)

	return []mcpserver.ServerTool{
		fetchTool(sc, byPeriod, func(request mcp.CallToolRequest) (string, url.Values, error) {
			period, err := common.OneOf(request, "period", "", heartRatePeriods...)
			if err != nil {
				return "", nil, err
			}
			date, err := common.OptionalDate(request, "date", common.Today, true)
			if err != nil {
				return "", nil, err
			}
			return heartRatePath(date, period), nil, nil
		}),
		fetchTool(sc, byRange, func(request mcp.CallToolRequest) (string, url.Values, error) {
			start, end, err := common.DateRange(request, maxHeartRateRangeDays)
			if err != nil {
				return "", nil, err
			}
			return heartRatePath(start, end), nil, nil
		}),
	}
}
