package fitbit_tools

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/tools/common"
)

var (
	goalPeriods = []string{"daily", "weekly"}

	activityResources = []string{
		"steps", "distance", "calories", "activityCalories", "caloriesBMR",
		"floors", "elevation",
		"minutesSedentary", "minutesLightlyActive", "minutesFairlyActive", "minutesVeryActive",
	}
)

const (
	defaultExerciseLimit = 20
	maxExerciseLimit     = 100
)

func dailyActivityPath(date string) string {
	return fmt.Sprintf("/1/user/-/activities/date/%s.json", date)
}

func activityTools(sc *server.ServerContext) []mcpserver.ServerTool {
	exercises := withOptions("get_exercises",
		"Get logged exercises and activities recorded after a date, oldest first.",
		mcp.WithString("afterDate",
			mcp.Required(),
			mcp.Description("Only return activities after this date, YYYY-MM-DD"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of activities to return, 1-100 (default: 20)"),
			mcp.Min(1),
			mcp.Max(maxExerciseLimit),
		),
	)

	summary := withOptions("get_daily_activity_summary",
		"Get the activity summary for one day: steps, distance, calories, active minutes and goals.",
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Date, YYYY-MM-DD or 'today'"),
		),
	)

	goals := withOptions("get_activity_goals",
		"Get the user's daily or weekly activity goals.",
		mcp.WithString("period",
			mcp.Required(),
			mcp.Description("Goal period: daily or weekly"),
			mcp.Enum(goalPeriods...),
		),
	)

	timeseries := withOptions("get_activity_timeseries",
		"Get one activity resource, such as steps or calories, as a daily time series.",
		append([]mcp.ToolOption{
			mcp.WithString("resource",
				mcp.Required(),
				mcp.Description("Activity resource, e.g. steps, distance, calories, floors, minutesVeryActive"),
				mcp.Enum(activityResources...),
			),
		}, dateRangeOptions("1095 days")...)...,
	)

	azm := withOptions("get_azm_timeseries",
		"Get Active Zone Minutes (fat burn, cardio, peak) as a daily time series.",
		dateRangeOptions("1095 days")...,
	)

	return []mcpserver.ServerTool{
		fetchTool(sc, exercises, func(request mcp.CallToolRequest) (string, url.Values, error) {
			after, err := common.RequireDate(request, "afterDate", false)
			if err != nil {
				return "", nil, err
			}
			limit, err := common.IntInRange(request, "limit", defaultExerciseLimit, 1, maxExerciseLimit)
			if err != nil {
				return "", nil, err
			}
			query := url.Values{
				"afterDate": {after},
				"sort":      {"asc"},
				"offset":    {"0"},
				"limit":     {strconv.Itoa(limit)},
			}
			return "/1/user/-/activities/list.json", query, nil
		}),
		fetchTool(sc, summary, func(request mcp.CallToolRequest) (string, url.Values, error) {
			date, err := common.RequireDate(request, "date", true)
			if err != nil {
				return "", nil, err
			}
			return dailyActivityPath(date), nil, nil
		}),
		fetchTool(sc, goals, func(request mcp.CallToolRequest) (string, url.Values, error) {
			period, err := common.OneOf(request, "period", "", goalPeriods...)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("/1/user/-/activities/goals/%s.json", period), nil, nil
		}),
		fetchTool(sc, timeseries, func(request mcp.CallToolRequest) (string, url.Values, error) {
			resource, err := common.OneOf(request, "resource", "", activityResources...)
			if err != nil {
				return "", nil, err
			}
			start, end, err := common.DateRange(request, maxTimeSeriesRangeDays)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("/1/user/-/activities/%s/date/%s/%s.json", resource, start, end), nil, nil
		}),
		fetchTool(sc, azm, func(request mcp.CallToolRequest) (string, url.Values, error) {
			start, end, err := common.DateRange(request, maxTimeSeriesRangeDays)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("/1/user/-/activities/active-zone-minutes/date/%s/%s.json", start, end), nil, nil
		}),
	}
}
