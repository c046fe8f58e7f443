// Package fitbit_tools provides the read-only MCP tools over the Fitbit Web API.
//
// # Available Tools
//
// Body and profile:
//   - get_profile: the user's Fitbit profile
//   - get_weight: weight entries for a period ending today
//
// Sleep:
//   - get_sleep_by_date_range: sleep logs for up to 100 days
//
// Activity:
//   - get_exercises: logged exercises after a date
//   - get_daily_activity_summary: activity summary for one day
//   - get_activity_goals: daily or weekly goals
//   - get_activity_timeseries: one activity resource over a date range
//   - get_azm_timeseries: Active Zone Minutes over a date range
//
// Heart rate:
//   - get_heart_rate: heart rate zones for a period ending on a date
//   - get_heart_rate_by_date_range: heart rate zones over a date range
//
// Nutrition:
//   - get_food_log: foods logged on a day
//   - get_nutrition_by_date_range: calories in or water over a date range
//
// Combined:
//   - get_daily_overview: activity, sleep and heart rate for one day, fetched concurrently
//
// Every tool returns the Fitbit JSON response, indented. When no Fitbit token
// is available the tool result is an error pointing the user at the server's
// /auth page.
package fitbit_tools
