// Package settings turns the 24-hour pump settings form into a typed,
// ordered list used by the prompt builder.
package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"pumpadvisor/internal/config"
)

// ErrInvalidSetting marks form values that should be numeric but are not.
var ErrInvalidSetting = errors.New("invalid setting value")

// HourlySetting is one row of the pump settings table. JSON tags drive
// the exact rendering embedded in the prompt.
type HourlySetting struct {
	TimeRange        string  `json:"time_range"`
	BasalRate        float64 `json:"basal_rate"`
	CorrectionFactor string  `json:"correction_factor"`
	CarbRatio        string  `json:"carb_ratio"`
	TargetBG         float64 `json:"target_bg"`
}

// Hours is the fixed size of the settings table, one entry per hour.
const Hours = 24

// Collect reads the per-hour form fields (basal_rate_<h> etc., h in
// 0..23) into exactly 24 HourlySetting values in ascending hour order.
// Absent or blank fields fall back to the configured defaults; values
// that should be numeric but are not fail with ErrInvalidSetting.
func Collect(form url.Values, defaults config.AdvisorConfig) ([]HourlySetting, error) {
	out := make([]HourlySetting, 0, Hours)
	for hour := 0; hour < Hours; hour++ {
		basal, err := floatField(form, "basal_rate", hour, defaults.BasalRate)
		if err != nil {
			return nil, err
		}
		target, err := floatField(form, "target_bg", hour, defaults.TargetBG)
		if err != nil {
			return nil, err
		}
		out = append(out, HourlySetting{
			TimeRange:        fmt.Sprintf("%02d:00", hour),
			BasalRate:        basal,
			CorrectionFactor: stringField(form, "correction_factor", hour, defaults.CorrectionFactor),
			CarbRatio:        stringField(form, "carb_ratio", hour, defaults.CarbRatio),
			TargetBG:         target,
		})
	}
	return out, nil
}

// Defaults builds the settings table entirely from configured defaults.
// Used by the drop-directory intake path, which has no form submission.
func Defaults(cfg config.AdvisorConfig) []HourlySetting {
	out, _ := Collect(url.Values{}, cfg)
	return out
}

func floatField(form url.Values, name string, hour int, def float64) (float64, error) {
	key := fmt.Sprintf("%s_%d", name, hour)
	raw := strings.TrimSpace(form.Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not numeric: %w", key, raw, ErrInvalidSetting)
	}
	return v, nil
}

func stringField(form url.Values, name string, hour int, def string) string {
	raw := strings.TrimSpace(form.Get(fmt.Sprintf("%s_%d", name, hour)))
	if raw == "" {
		return def
	}
	return raw
}
