package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"pumpadvisor/internal/archive"
	"pumpadvisor/internal/config"
	"pumpadvisor/internal/llm"
	"pumpadvisor/internal/metrics"
	"pumpadvisor/internal/settings"
)

type fakeCompleter struct {
	calls    int
	lastUser string
	reply    string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastUser = user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func exportZip(t *testing.T) []byte {
	t.Helper()
	files := map[string]string{
		"alarms_data_1.csv": "Alarms Export\nTimestamp,Alarm/Event,Serial Number\n" +
			"2024-01-09 02:10:00,tandem_cgm_low,881235\n" +
			"2024-01-09 03:00:00,Cartridge Loaded,881235\n",
		"cgm_data_1.csv": "CGM Export\nTimestamp,CGM Glucose Value (mmol/l),Serial Number\n" +
			"2024-01-09 02:00:00,3.8,881235\n" +
			"2024-01-09 02:05:00,4.1,881235\n",
		"Insulin data/bolus_data_1.csv": "Bolus Export\nTimestamp,Insulin Delivered (U),Carbs (g),Device,Serial Number,Extra\n" +
			"2024-01-09 08:00:00,4.5,40,pump,881235,x\n",
		"Insulin data/basal_data_1.csv": "Basal Export\nTimestamp,Rate,Percentage (%),Insulin Type,Device,Serial Number\n" +
			"1/9/2024 2:00,0.5,100,Scheduled,pump,881235\n" +
			"1/9/2024 14:00,0.7,100,Scheduled,pump,881235\n",
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func testAnalyzer(t *testing.T, completer Completer) (*Analyzer, string) {
	t.Helper()
	workDir := t.TempDir()
	cfg := config.Config{WorkDir: workDir, Advisor: config.DefaultAdvisorConfig()}
	return New(cfg, completer, metrics.New()), workDir
}

func assertWorkDirEmpty(t *testing.T, workDir string) {
	t.Helper()
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("work dir not cleaned up: %v", entries)
	}
}

func TestAnalyzeEndToEnd(t *testing.T) {
	completer := &fakeCompleter{reply: "### Pattern Identified\n..."}
	analyzer, workDir := testAnalyzer(t, completer)
	hourly := settings.Defaults(config.DefaultAdvisorConfig())

	result, err := analyzer.Analyze(context.Background(), exportZip(t), "export.zip", hourly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recommendation != "### Pattern Identified\n..." {
		t.Fatalf("recommendation not surfaced verbatim: %q", result.Recommendation)
	}
	if len(result.ChartPNG) == 0 {
		t.Fatalf("expected a CGM chart")
	}
	// The excluded alarm code must not reach the prompt; the kept one must.
	if strings.Contains(completer.lastUser, "Cartridge Loaded") {
		t.Fatalf("excluded alarm leaked into prompt")
	}
	if !strings.Contains(completer.lastUser, "tandem_cgm_low") {
		t.Fatalf("kept alarm missing from prompt")
	}
	assertWorkDirEmpty(t, workDir)
}

func TestAnalyzeCleansUpOnCompletionFailure(t *testing.T) {
	completer := &fakeCompleter{err: llm.ErrCompletion}
	analyzer, workDir := testAnalyzer(t, completer)
	hourly := settings.Defaults(config.DefaultAdvisorConfig())

	_, err := analyzer.Analyze(context.Background(), exportZip(t), "export.zip", hourly)
	if !errors.Is(err, llm.ErrCompletion) {
		t.Fatalf("expected ErrCompletion, got %v", err)
	}
	assertWorkDirEmpty(t, workDir)
}

func TestAnalyzeRejectsCorruptArchiveWithoutCompletionCall(t *testing.T) {
	completer := &fakeCompleter{reply: "never"}
	analyzer, workDir := testAnalyzer(t, completer)
	hourly := settings.Defaults(config.DefaultAdvisorConfig())

	_, err := analyzer.Analyze(context.Background(), []byte("not a zip"), "export.zip", hourly)
	if !errors.Is(err, archive.ErrInvalidArchive) {
		t.Fatalf("expected ErrInvalidArchive, got %v", err)
	}
	if completer.calls != 0 {
		t.Fatalf("completion service called despite invalid archive")
	}
	assertWorkDirEmpty(t, workDir)
}

func TestAnalyzeRejectsShortSettingsTable(t *testing.T) {
	completer := &fakeCompleter{reply: "never"}
	analyzer, workDir := testAnalyzer(t, completer)

	_, err := analyzer.Analyze(context.Background(), exportZip(t), "export.zip", nil)
	if !errors.Is(err, settings.ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
	if completer.calls != 0 {
		t.Fatalf("completion service called despite invalid settings")
	}
	assertWorkDirEmpty(t, workDir)
}
