// Package config loads service configuration from the environment and an
// optional YAML file. Everything here is resolved once at process start;
// the resulting Config is treated as immutable by the rest of the service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the analyzer service.
type Config struct {
	HTTPPort      string
	WorkDir       string
	DropDir       string
	EnableWatcher bool
	WorkerCount   int
	QueueSize     int
	JobTimeoutSec int
	StrictConfig  bool
	WebhookURL    string
	LLM           LLMConfig
	Advisor       AdvisorConfig
}

// LLMConfig captures the completion endpoint settings.
type LLMConfig struct {
	Model   string
	BaseURL string
	APIKey  string
}

// AdvisorConfig carries the prompt text, the alarm exclusion set, and the
// default hourly pump settings. Loaded once; never mutated at runtime.
type AdvisorConfig struct {
	SystemPrompt     string
	AlarmExclude     []string
	BasalRate        float64
	CorrectionFactor string
	CarbRatio        string
	TargetBG         float64
}

type fileConfig struct {
	HTTPPort string            `json:"http_port" yaml:"http_port"`
	WorkDir  string            `json:"work_dir" yaml:"work_dir"`
	DropDir  string            `json:"drop_dir" yaml:"drop_dir"`
	LLM      llmFileConfig     `json:"llm" yaml:"llm"`
	Advisor  advisorFileConfig `json:"advisor" yaml:"advisor"`
}

type llmFileConfig struct {
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

type advisorFileConfig struct {
	SystemPrompt     string   `json:"system_prompt" yaml:"system_prompt"`
	AlarmExclude     []string `json:"alarm_exclude" yaml:"alarm_exclude"`
	BasalRate        *float64 `json:"basal_rate" yaml:"basal_rate"`
	CorrectionFactor string   `json:"correction_factor" yaml:"correction_factor"`
	CarbRatio        string   `json:"carb_ratio" yaml:"carb_ratio"`
	TargetBG         *float64 `json:"target_bg" yaml:"target_bg"`
}

const (
	defaultPort          = ":8000"
	defaultWorkDir       = "runtime/uploads"
	defaultWorkerCount   = 2
	minQueueSize         = 1
	defaultQueueSize     = 32
	maxQueueSize         = 256
	defaultJobTimeoutSec = 300
	defaultLLMModel      = "llama-3.1-70b-versatile"
	defaultLLMBaseURL    = "https://api.groq.com/openai"
)

// defaultSystemPrompt instructs the model to name exactly one glucose
// pattern, one basal change for one time block, and a data-grounded
// expected outcome. Overridable via the config file only.
const defaultSystemPrompt = `You are a medical assistant providing concise CGM and insulin pump setting recommendations.

ANALYZE AND PROVIDE:
1. ONE specific pattern with exact time period and glucose values
2. ONE basal rate adjustment (single time block only)
3. Realistic, data-based outcome targets

FORMAT YOUR RESPONSE AS:
### Pattern Identified
- State exact time period and glucose values observed (e.g., "Between 2-5 AM: glucose consistently drops from 7.0 to 3.8 mmol/L")

### Recommended Change
- ONE specific basal rate adjustment for ONE time block
- Must include: current rate, new rate, exact start/end times

### Expected Outcome
- State specific, achievable glucose targets for the adjusted time period
- Avoid percentage predictions unless directly supported by the data

IMPORTANT:
- Focus on the most problematic time period only
- No overlapping time blocks
- Base predictions only on available data`

// defaultAlarmExclude lists pump alarm codes that carry no clinical signal.
var defaultAlarmExclude = []string{
	"tandem_cgm_sensor_expiring",
	"tandem_cgm_replace_sensor",
	"Cartridge Loaded",
	"Resume Pump Alarm (18A)",
}

// DefaultAdvisorConfig returns the baked-in prompt and pump setting defaults.
func DefaultAdvisorConfig() AdvisorConfig {
	return AdvisorConfig{
		SystemPrompt:     defaultSystemPrompt,
		AlarmExclude:     append([]string{}, defaultAlarmExclude...),
		BasalRate:        0.0,
		CorrectionFactor: "1:3.0",
		CarbRatio:        "1:10",
		TargetBG:         5.6,
	}
}

// Load reads configuration from environment variables, an optional .env
// file, and an optional YAML config file, applying sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		WorkerCount:   defaultWorkerCount,
		QueueSize:     defaultQueueSize,
		JobTimeoutSec: defaultJobTimeoutSec,
		StrictConfig:  parseBoolEnv("STRICT_CONFIG"),
		EnableWatcher: parseBoolEnvDefault("ENABLE_WATCHER", true),
		WebhookURL:    strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
		Advisor:       DefaultAdvisorConfig(),
		LLM: LLMConfig{
			Model:   defaultLLMModel,
			BaseURL: defaultLLMBaseURL,
			APIKey:  firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("GROQ_API_KEY"), os.Getenv("OPENAI_API_KEY")),
		},
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Warn().Err(fileErr).Str("path", configPath).Msg("config load failed, using defaults")
	}

	cfg.Advisor = applyAdvisorOverrides(cfg.Advisor, fileCfg.Advisor)

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), os.Getenv("PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	cfg.WorkDir = firstNonEmpty(os.Getenv("WORK_DIR"), fileCfg.WorkDir, defaultWorkDir)
	cfg.DropDir = firstNonEmpty(os.Getenv("DROP_DIR"), fileCfg.DropDir)
	if cfg.DropDir == "" {
		cfg.EnableWatcher = false
	}

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Warn().Str("value", v).Int("default", defaultWorkerCount).Msg("invalid WORKER_COUNT")
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}

	if v := os.Getenv("QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Warn().Str("value", v).Int("default", defaultQueueSize).Msg("invalid QUEUE_SIZE")
			n = defaultQueueSize
		}
		cfg.QueueSize = clampInt(n, minQueueSize, maxQueueSize)
	}

	if v := os.Getenv("JOB_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid JOB_TIMEOUT_SEC: %w", err)
		}
		if n <= 0 {
			return cfg, errors.New("JOB_TIMEOUT_SEC must be positive")
		}
		cfg.JobTimeoutSec = n
	}

	if v := strings.TrimSpace(os.Getenv("LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	} else if fileCfg.LLM.Model != "" {
		cfg.LLM.Model = fileCfg.LLM.Model
	}
	cfg.LLM.BaseURL = firstNonEmpty(
		os.Getenv("LLM_BASE_URL"),
		os.Getenv("OPENAI_BASE_URL"),
		fileCfg.LLM.BaseURL,
		cfg.LLM.BaseURL,
	)
	cfg.LLM.BaseURL = strings.TrimRight(cfg.LLM.BaseURL, "/")

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var out fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, err
	}
	// YAML 1.2 is a superset of JSON, so both file styles parse here.
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func applyAdvisorOverrides(base AdvisorConfig, file advisorFileConfig) AdvisorConfig {
	if strings.TrimSpace(file.SystemPrompt) != "" {
		base.SystemPrompt = strings.TrimSpace(file.SystemPrompt)
	}
	if len(file.AlarmExclude) > 0 {
		base.AlarmExclude = append([]string{}, file.AlarmExclude...)
	}
	if file.BasalRate != nil {
		base.BasalRate = *file.BasalRate
	}
	if file.CorrectionFactor != "" {
		base.CorrectionFactor = file.CorrectionFactor
	}
	if file.CarbRatio != "" {
		base.CarbRatio = file.CarbRatio
	}
	if file.TargetBG != nil {
		base.TargetBG = *file.TargetBG
	}
	return base
}

func validate(cfg Config) error {
	if cfg.WorkDir == "" {
		return errors.New("work dir must not be empty")
	}
	if cfg.QueueSize < cfg.WorkerCount {
		return fmt.Errorf("queue size %d must be >= worker count %d", cfg.QueueSize, cfg.WorkerCount)
	}
	if strings.TrimSpace(cfg.Advisor.SystemPrompt) == "" {
		return errors.New("system prompt must not be empty")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBoolEnv(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}

func parseBoolEnvDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
