package api

import (
	"encoding/json"

	"github.com/tnunamak/tokentorch/internal/forecast"
)

// UsageResponse is the body of the organization usage endpoint. Every
// bucket is optional; the service omits windows that do not apply to the plan.
type UsageResponse struct {
	FiveHour          *forecast.Bucket `json:"five_hour"`
	SevenDay          *forecast.Bucket `json:"seven_day"`
	SevenDaySonnet    *forecast.Bucket `json:"seven_day_sonnet,omitempty"`
	SevenDayOpus      *forecast.Bucket `json:"seven_day_opus,omitempty"`
	SevenDayOAuthApps *forecast.Bucket `json:"seven_day_oauth_apps,omitempty"`
	SevenDayCowork    *forecast.Bucket `json:"seven_day_cowork,omitempty"`
	ExtraUsage        json.RawMessage  `json:"extra_usage,omitempty"`
}

type Result struct {
	Usage *UsageResponse
	// RefreshedSessionKey is set when the server rotated the session cookie.
	RefreshedSessionKey string
}
