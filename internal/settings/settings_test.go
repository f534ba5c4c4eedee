package settings

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"pumpadvisor/internal/config"
)

func TestCollectDefaultsForAllHours(t *testing.T) {
	got, err := Collect(url.Values{}, config.DefaultAdvisorConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != Hours {
		t.Fatalf("expected %d entries, got %d", Hours, len(got))
	}
	for hour, s := range got {
		want := fmt.Sprintf("%02d:00", hour)
		if s.TimeRange != want {
			t.Fatalf("hour %d: time_range %q, want %q", hour, s.TimeRange, want)
		}
		if s.BasalRate != 0.0 || s.CorrectionFactor != "1:3.0" || s.CarbRatio != "1:10" || s.TargetBG != 5.6 {
			t.Fatalf("hour %d: defaults not applied: %+v", hour, s)
		}
	}
}

func TestCollectParsesSubmittedValues(t *testing.T) {
	form := url.Values{}
	form.Set("basal_rate_7", "0.85")
	form.Set("correction_factor_7", "1:2.5")
	form.Set("carb_ratio_7", "1:8")
	form.Set("target_bg_7", "6.1")

	got, err := Collect(form, config.DefaultAdvisorConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := got[7]
	if s.BasalRate != 0.85 || s.CorrectionFactor != "1:2.5" || s.CarbRatio != "1:8" || s.TargetBG != 6.1 {
		t.Fatalf("submitted values not applied: %+v", s)
	}
	// Other hours keep defaults.
	if got[8].BasalRate != 0.0 {
		t.Fatalf("hour 8 unexpectedly changed: %+v", got[8])
	}
}

func TestCollectRejectsNonNumericBasalRate(t *testing.T) {
	form := url.Values{}
	form.Set("basal_rate_3", "abc")

	_, err := Collect(form, config.DefaultAdvisorConfig())
	if !errors.Is(err, ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
}

func TestCollectRejectsNonNumericTargetBG(t *testing.T) {
	form := url.Values{}
	form.Set("target_bg_15", "high")

	_, err := Collect(form, config.DefaultAdvisorConfig())
	if !errors.Is(err, ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
}

func TestDefaultsMatchesEmptyForm(t *testing.T) {
	cfg := config.DefaultAdvisorConfig()
	fromForm, err := Collect(url.Values{}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromDefaults := Defaults(cfg)
	if len(fromForm) != len(fromDefaults) {
		t.Fatalf("length mismatch")
	}
	for i := range fromForm {
		if fromForm[i] != fromDefaults[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, fromForm[i], fromDefaults[i])
		}
	}
}
