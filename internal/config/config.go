package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ElectionWatch/internal/domain"
)

const (
	defaultTimezone       = "America/Jamaica"
	configPathEnv         = "ELECTIONWATCH_CONFIG"
	logLevelEnv           = "LOG_LEVEL"
	databaseDSNEnv        = "DATABASE_DSN"
	databaseDriverEnv     = "DATABASE_DRIVER"
	classifierProviderEnv = "CLASSIFIER_PROVIDER"
	chatGPTAPIKeyEnv      = "CHATGPT_API_KEY"
	chatGPTModelEnv       = "CHATGPT_MODEL"
	geminiAPIKeyEnv       = "GEMINI_API_KEY"
	mlAPIKeyEnv           = "ML_API_KEY"
	telegramTokenEnv      = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv     = "TELEGRAM_CHAT_ID"
	natsURLEnv            = "NATS_URL"
	redisAddrEnv          = "REDIS_ADDR"
)

// Classifier providers understood by the app wiring.
const (
	ProviderHeuristic = "heuristic"
	ProviderChatGPT   = "chatgpt"
	ProviderGemini    = "gemini"
	ProviderML        = "ml"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Quota         QuotaConfig        `yaml:"quota"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Gemini        GeminiConfig       `yaml:"gemini"`
	ML            MLConfig           `yaml:"ml"`
	Alerts        AlertConfig        `yaml:"alerts"`
	Notifications NotificationConfig `yaml:"notifications"`
	Redis         RedisConfig        `yaml:"redis"`
	Taxonomy      TaxonomyConfig     `yaml:"taxonomy"`
	Geo           GeoConfig          `yaml:"geo"`
	Sources       []SourceConfig     `yaml:"sources"`
	Monitoring    []MonitoringConfig `yaml:"monitoring"`
}

// LoggingConfig selects the slog level and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the SQL store. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines how often due configs are polled.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PipelineConfig sizes the worker pools and network budgets of a run.
type PipelineConfig struct {
	FetchWorkers    int           `yaml:"fetchWorkers"`
	ClassifyWorkers int           `yaml:"classifyWorkers"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	ClassifyTimeout time.Duration `yaml:"classifyTimeout"`
	UserAgent       string        `yaml:"userAgent"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	RunLockTTL      time.Duration `yaml:"runLockTtl"`
}

// QuotaConfig feeds the fetch and classifier guards.
type QuotaConfig struct {
	FetchPerSecond           float64       `yaml:"fetchPerSecond"`
	FetchBurst               int           `yaml:"fetchBurst"`
	ClassifierCallsPerMinute int           `yaml:"classifierCallsPerMinute"`
	MaxRetries               int           `yaml:"maxRetries"`
	InitialBackoff           time.Duration `yaml:"initialBackoff"`
	MaxBackoff               time.Duration `yaml:"maxBackoff"`
}

// ClassifierConfig picks the primary classifier.
type ClassifierConfig struct {
	Provider string `yaml:"provider"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible chat API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// GeminiConfig holds Google Generative AI settings.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// MLConfig describes neural-service integration parameters.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// AlertConfig tunes the risk pattern thresholds.
type AlertConfig struct {
	ViralMedium        int           `yaml:"viralMedium"`
	ViralHigh          int           `yaml:"viralHigh"`
	SentimentThreshold float64       `yaml:"sentimentThreshold"`
	SentimentSevere    float64       `yaml:"sentimentSevere"`
	Window             time.Duration `yaml:"window"`
	MinWindowItems     int           `yaml:"minWindowItems"`
	DiscountFallback   bool          `yaml:"discountFallback"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	NATS     NATSConfig     `yaml:"nats"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
}

// NATSConfig points the alert event publisher at a server.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// RedisConfig enables the cross-process run lock when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TaxonomyConfig lists the vocabulary the relevance scorer matches.
type TaxonomyConfig struct {
	ElectionKeywords []string `yaml:"electionKeywords"`
	Entities         []string `yaml:"entities"`
	SecondaryTerms   []string `yaml:"secondaryTerms"`
	CountryMarkers   []string `yaml:"countryMarkers"`
}

// GeoConfig lists known regions and the localities inside them.
type GeoConfig struct {
	Regions    []string          `yaml:"regions"`
	Localities []LocalityConfig  `yaml:"localities"`
	Aliases    map[string]string `yaml:"aliases"`
}

// LocalityConfig maps a town or neighbourhood to its parent region.
type LocalityConfig struct {
	Name   string `yaml:"name"`
	Region string `yaml:"region"`
}

// SourceConfig describes a single content source.
type SourceConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Kind        string            `yaml:"kind"`
	Endpoint    string            `yaml:"endpoint"`
	Active      *bool             `yaml:"active"`
	Priority    int               `yaml:"priority"`
	TopicWeight int               `yaml:"topicWeight"`
	Options     map[string]string `yaml:"options"`
}

// MonitoringConfig seeds the policy fields of a stored monitoring config.
type MonitoringConfig struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Keywords         []string `yaml:"keywords"`
	ExcludeKeywords  []string `yaml:"excludeKeywords"`
	GeoUnits         []string `yaml:"geoUnits"`
	FrequencyMinutes int      `yaml:"frequencyMinutes"`
	MaxItemsPerRun   int      `yaml:"maxItemsPerRun"`
	RelevanceFloor   float64  `yaml:"relevanceFloor"`
	AnalysisFloor    float64  `yaml:"analysisFloor"`
	Active           *bool    `yaml:"active"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// Validate rejects configurations the pipeline cannot run safely.
func (c Config) Validate() error {
	if c.Pipeline.FetchWorkers < 2 {
		return fmt.Errorf("pipeline.fetchWorkers must be at least 2")
	}
	if c.Pipeline.ClassifyWorkers < 1 || c.Pipeline.ClassifyWorkers >= c.Pipeline.FetchWorkers {
		return fmt.Errorf("pipeline.classifyWorkers must be between 1 and fetchWorkers-1")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	switch c.Classifier.Provider {
	case ProviderHeuristic, ProviderChatGPT, ProviderGemini, ProviderML:
	default:
		return fmt.Errorf("classifier.provider %q is not supported", c.Classifier.Provider)
	}

	seen := map[string]bool{}
	for _, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("source without id")
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source id %s", src.ID)
		}
		seen[src.ID] = true
		if !domain.SourceKind(src.Kind).Valid() {
			return fmt.Errorf("source %s: unknown kind %q", src.ID, src.Kind)
		}
		if src.Endpoint == "" {
			return fmt.Errorf("source %s: endpoint is required", src.ID)
		}
	}

	for _, mc := range c.Monitoring {
		if err := mc.Domain().Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Domain converts the YAML source description into the runtime value.
func (s SourceConfig) Domain() domain.Source {
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return domain.Source{
		ID:          s.ID,
		Name:        name,
		Kind:        domain.SourceKind(s.Kind),
		Endpoint:    s.Endpoint,
		IsActive:    active,
		Priority:    clamp(s.Priority, 1, 5, 3),
		TopicWeight: clamp(s.TopicWeight, 1, 10, 5),
		Options:     s.Options,
	}
}

// Domain converts the YAML policy into a monitoring config without timestamps.
func (m MonitoringConfig) Domain() domain.MonitoringConfig {
	active := true
	if m.Active != nil {
		active = *m.Active
	}
	return domain.MonitoringConfig{
		ID:               m.ID,
		Name:             m.Name,
		Keywords:         m.Keywords,
		ExcludeKeywords:  m.ExcludeKeywords,
		GeoUnits:         m.GeoUnits,
		FrequencyMinutes: m.FrequencyMinutes,
		MaxItemsPerRun:   m.MaxItemsPerRun,
		RelevanceFloor:   m.RelevanceFloor,
		AnalysisFloor:    m.AnalysisFloor,
		IsActive:         active,
	}
}

func clamp(v, lo, hi, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(classifierProviderEnv); v != "" {
		c.Classifier.Provider = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.Gemini.APIKey = v
	}

	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(natsURLEnv); v != "" {
		c.Notifications.NATS.URL = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}
