package fitbit_tools

import (
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/tools/common"
)

var nutritionResources = []string{"caloriesIn", "water"}

// maxTimeSeriesRangeDays is Fitbit's limit for food and activity time series.
const maxTimeSeriesRangeDays = 1095

func nutritionTools(sc *server.ServerContext) []mcpserver.ServerTool {
	foodLog := withOptions("get_food_log",
		"Get the foods, meals and nutrition totals logged on one day.",
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Date, YYYY-MM-DD or 'today'"),
		),
	)

	byRange := withOptions("get_nutrition_by_date_range",
		"Get daily calories in or water intake over a date range.",
		append([]mcp.ToolOption{
			mcp.WithString("resource",
				mcp.Required(),
				mcp.Description("Nutrition resource: caloriesIn or water"),
				mcp.Enum(nutritionResources...),
			),
		}, dateRangeOptions("1095 days")...)...,
	)

	return []mcpserver.ServerTool{
		fetchTool(sc, foodLog, func(request mcp.CallToolRequest) (string, url.Values, error) {
			date, err := common.RequireDate(request, "date", true)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("/1/user/-/foods/log/date/%s.json", date), nil, nil
		}),
		fetchTool(sc, byRange, func(request mcp.CallToolRequest) (string, url.Values, error) {
			resource, err := common.OneOf(request, "resource", "", nutritionResources...)
			if err != nil {
				return "", nil, err
			}
			start, end, err := common.DateRange(request, maxTimeSeriesRangeDays)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("/1/user/-/foods/log/%s/date/%s/%s.json", resource, start, end), nil, nil
		}),
	}
}
