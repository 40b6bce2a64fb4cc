package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv       = "PROSPECTOR_CONFIG"
	logLevelEnv         = "LOG_LEVEL"
	httpAddrEnv         = "HTTP_ADDR"
	geminiAPIKeyEnv     = "GEMINI_API_KEY"
	geminiModelEnv      = "GEMINI_MODEL"
	chatGPTAPIKeyEnv    = "CHATGPT_API_KEY"
	chatGPTModelEnv     = "CHATGPT_MODEL"
	databaseDSNEnv      = "DATABASE_DSN"
	cacheDirEnv         = "CACHE_DIR"
	syncIntervalEnv     = "SYNC_INTERVAL"
	screenshotAPIKeyEnv = "SCREENSHOT_API_KEY"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	mapsAPIKeyEnv       = "MAPS_API_KEY"
)

// Config holds high-level settings required across the application.
// Secrets have no defaults and come from the environment or the config file.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	ChatGPT    ChatGPTConfig    `yaml:"chatgpt"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Sync       SyncConfig       `yaml:"sync"`
	Site       SiteConfig       `yaml:"site"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Maps       MapsConfig       `yaml:"maps"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig describes the operator HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// GatewayConfig selects the generation back end and throttles it.
type GatewayConfig struct {
	Provider          string        `yaml:"provider"`
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
	Timeout           time.Duration `yaml:"timeout"`
}

// GeminiConfig defines how to contact the Gemini API.
type GeminiConfig struct {
	APIKey      string  `yaml:"apiKey"`
	Model       string  `yaml:"model"`
	CodeModel   string  `yaml:"codeModel"`
	Temperature float32 `yaml:"temperature"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	CodeModel    string `yaml:"codeModel"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// DatabaseConfig describes the remote Postgres tier. An empty DSN disables it.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// CacheConfig locates the local SQLite cache.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// SyncConfig controls periodic remote sync.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SiteConfig controls synthesized preview URLs.
type SiteConfig struct {
	PreviewBaseURL string `yaml:"previewBaseUrl"`
}

// ScreenshotConfig wires the screenshot capture service.
type ScreenshotConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// TelegramConfig wires all data required to send notices.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MapsConfig wires the location suggestion provider.
type MapsConfig struct {
	APIKey      string        `yaml:"apiKey"`
	Endpoint    string        `yaml:"endpoint"`
	LoadTimeout time.Duration `yaml:"loadTimeout"`
}

// GenerationModels returns the text and code model names of the selected
// generation back end.
func (c Config) GenerationModels() (model, codeModel string) {
	switch c.Gateway.Provider {
	case "chatgpt":
		return c.ChatGPT.Model, c.ChatGPT.CodeModel
	default:
		return c.Gemini.Model, c.Gemini.CodeModel
	}
}

// RemoteEnabled reports whether a remote store is configured.
func (c Config) RemoteEnabled() bool {
	return c.Database.DSN != ""
}

// Load reads .env, the YAML configuration (if present) and applies
// environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{logLevelEnv, &c.Logging.Level},
		{httpAddrEnv, &c.Server.Addr},
		{geminiAPIKeyEnv, &c.Gemini.APIKey},
		{geminiModelEnv, &c.Gemini.Model},
		{chatGPTAPIKeyEnv, &c.ChatGPT.APIKey},
		{chatGPTModelEnv, &c.ChatGPT.Model},
		{databaseDSNEnv, &c.Database.DSN},
		{cacheDirEnv, &c.Cache.Dir},
		{screenshotAPIKeyEnv, &c.Screenshot.APIKey},
		{telegramTokenEnv, &c.Telegram.BotToken},
		{telegramChatIDEnv, &c.Telegram.ChatID},
		{mapsAPIKeyEnv, &c.Maps.APIKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}

	if v := os.Getenv(syncIntervalEnv); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Sync.Interval = d
		} else {
			log.Printf("config: invalid %s=%q, keeping %s", syncIntervalEnv, v, c.Sync.Interval)
		}
	}
}

func mergeConfig(base, override Config) Config {
	mergeString(&base.Logging.Level, override.Logging.Level)
	mergeString(&base.Logging.Format, override.Logging.Format)
	mergeString(&base.Server.Addr, override.Server.Addr)

	mergeString(&base.Gateway.Provider, override.Gateway.Provider)
	if override.Gateway.RequestsPerMinute > 0 {
		base.Gateway.RequestsPerMinute = override.Gateway.RequestsPerMinute
	}
	if override.Gateway.Timeout > 0 {
		base.Gateway.Timeout = override.Gateway.Timeout
	}

	mergeString(&base.Gemini.APIKey, override.Gemini.APIKey)
	mergeString(&base.Gemini.Model, override.Gemini.Model)
	mergeString(&base.Gemini.CodeModel, override.Gemini.CodeModel)
	if override.Gemini.Temperature > 0 {
		base.Gemini.Temperature = override.Gemini.Temperature
	}

	mergeString(&base.ChatGPT.Endpoint, override.ChatGPT.Endpoint)
	mergeString(&base.ChatGPT.Model, override.ChatGPT.Model)
	mergeString(&base.ChatGPT.CodeModel, override.ChatGPT.CodeModel)
	mergeString(&base.ChatGPT.APIKey, override.ChatGPT.APIKey)
	mergeString(&base.ChatGPT.SystemPrompt, override.ChatGPT.SystemPrompt)

	mergeString(&base.Database.DSN, override.Database.DSN)
	mergeString(&base.Cache.Dir, override.Cache.Dir)
	if override.Sync.Interval > 0 {
		base.Sync.Interval = override.Sync.Interval
	}
	mergeString(&base.Site.PreviewBaseURL, override.Site.PreviewBaseURL)

	mergeString(&base.Screenshot.Endpoint, override.Screenshot.Endpoint)
	mergeString(&base.Screenshot.APIKey, override.Screenshot.APIKey)

	mergeString(&base.Telegram.BotToken, override.Telegram.BotToken)
	mergeString(&base.Telegram.ChatID, override.Telegram.ChatID)

	mergeString(&base.Maps.APIKey, override.Maps.APIKey)
	mergeString(&base.Maps.Endpoint, override.Maps.Endpoint)
	if override.Maps.LoadTimeout > 0 {
		base.Maps.LoadTimeout = override.Maps.LoadTimeout
	}

	return base
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Addr: ":8080"},
		Gateway: GatewayConfig{Provider: "gemini", RequestsPerMinute: 30, Timeout: 2 * time.Minute},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			CodeModel:   "gemini-2.5-pro",
			Temperature: 0.7,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You help a web agency prospect local businesses.",
		},
		Cache:      CacheConfig{Dir: ".prospector"},
		Sync:       SyncConfig{Interval: 60 * time.Second},
		Site:       SiteConfig{PreviewBaseURL: "http://localhost:8080/sites"},
		Screenshot: ScreenshotConfig{Endpoint: "https://api.screenshotone.com/take"},
		Maps: MapsConfig{
			Endpoint:    "https://maps.googleapis.com/maps/api/place/autocomplete/json",
			LoadTimeout: 10 * time.Second,
		},
	}
}
