// Package prompt assembles the user message sent to the completion
// endpoint from the cleaned export tables and the hourly settings.
package prompt

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"pumpadvisor/internal/settings"
	"pumpadvisor/internal/tabular"
)

// legend spells out the two vocabularies the model will encounter in the
// data: pump alarm codes and basal delivery types.
const legend = `Data legend:
- Alarm codes: "tandem_cgm_low" and "tandem_cgm_low_2" mark low-glucose alerts, "tandem_cgm_high" marks a high-glucose alert.
- Basal delivery types: "Suspend" means delivery paused, "Scheduled" means the programmed profile rate, "Temporary" means a manually set temporary rate.`

// BuildUser renders the complete user message. Output is byte-identical
// for identical inputs; section order and separators are fixed.
func BuildUser(hourly []settings.HourlySetting, cleaned tabular.CleanedSet) (string, error) {
	settingsJSON, err := json.MarshalIndent(map[string]any{"timed_settings": hourly}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}

	var b strings.Builder
	b.WriteString(legend)
	b.WriteString("\n\n")
	b.WriteString("Current Insulin Pump Settings:\n")
	b.Write(settingsJSON)
	b.WriteString("\n\n")
	writeTable(&b, "Alarms Data", cleaned.Alarms)
	writeTable(&b, "CGM Data", cleaned.CGM)
	writeTable(&b, "Bolus Data", cleaned.Bolus)
	writeTable(&b, "Basal Data", cleaned.Basal)
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func writeTable(b *strings.Builder, title string, t tabular.Table) {
	b.WriteString(title)
	b.WriteString(":\n")
	b.WriteString(tabular.Render(t))
	b.WriteString("\n")
}
