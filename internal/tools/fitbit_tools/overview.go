package fitbit_tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sourcegraph/conc/pool"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/tools/common"
)

// overviewSection is one Fitbit call folded into the daily overview.
type overviewSection struct {
	key  string
	path string
}

// DailyOverview is the combined result of get_daily_overview. Sections that
// failed are absent and their error is listed under Errors.
type DailyOverview struct {
	Date      string            `json:"date"`
	Activity  json.RawMessage   `json:"activity,omitempty"`
	Sleep     json.RawMessage   `json:"sleep,omitempty"`
	HeartRate json.RawMessage   `json:"heartRate,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func overviewTool(sc *server.ServerContext) mcpserver.ServerTool {
	tool := withOptions("get_daily_overview",
		"Get activity summary, sleep and heart rate for one day in a single call.",
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Date, YYYY-MM-DD or 'today'"),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date, err := common.RequireDate(request, "date", true)
		if err != nil {
			return common.ArgumentError(err), nil
		}

		overview, err := fetchOverview(ctx, sc, date, progressReporter(ctx, request))
		if err != nil {
			return common.ErrorResult(sc, err), nil
		}

		body, err := json.Marshal(overview)
		if err != nil {
			return nil, err
		}
		return common.JSONResult(body), nil
	}

	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: common.InstrumentedToolHandler(tool.Name, sc, handler),
	}
}

// fetchOverview fetches the sections concurrently. It fails outright when
// authorization is missing or when every section failed.
func fetchOverview(ctx context.Context, sc *server.ServerContext, date string, progress func(done, total int)) (*DailyOverview, error) {
	sections := []overviewSection{
		{key: "activity", path: dailyActivityPath(date)},
		{key: "sleep", path: sleepPath(date)},
		{key: "heartRate", path: heartRatePath(date, "1d")},
	}

	var (
		mu       sync.Mutex
		done     int
		results  = map[string]json.RawMessage{}
		overview = &DailyOverview{Date: date}
	)

	p := pool.New().WithContext(ctx)
	for _, section := range sections {
		p.Go(func(ctx context.Context) error {
			body, err := common.FitbitGet(ctx, sc, section.path, nil)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				if overview.Errors == nil {
					overview.Errors = map[string]string{}
				}
				overview.Errors[section.key] = err.Error()
			} else {
				results[section.key] = body
			}
			progress(done, len(sections))
			return err
		})
	}
	err := p.Wait()

	if errors.Is(err, fitbit.ErrNotAuthorized) || len(overview.Errors) == len(sections) {
		return nil, err
	}
	overview.Activity = results["activity"]
	overview.Sleep = results["sleep"]
	overview.HeartRate = results["heartRate"]
	return overview, nil
}

// progressReporter returns a callback that sends notifications/progress when
// the caller supplied a progress token, and a no-op otherwise.
func progressReporter(ctx context.Context, request mcp.CallToolRequest) func(done, total int) {
	if request.Params.Meta == nil || request.Params.Meta.ProgressToken == nil {
		return func(int, int) {}
	}
	srv := mcpserver.ServerFromContext(ctx)
	if srv == nil {
		return func(int, int) {}
	}
	token := request.Params.Meta.ProgressToken
	return func(done, total int) {
		_ = srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      done,
			"total":         total,
		})
	}
}
