package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func Load() (*Config, error) {
	dataDir := os.Getenv("DOCSAGE_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	dbPath := os.Getenv("DOCSAGE_DB")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "docsage.db")
	}

	snapshotPath := os.Getenv("DOCSAGE_SNAPSHOT")
	if snapshotPath == "" {
		snapshotPath = filepath.Join(dataDir, "vectors.json")
	}

	docsDir := os.Getenv("DOCSAGE_DOCS_DIR")
	if docsDir == "" {
		docsDir = "docs"
	}

	timezone := os.Getenv("TZ")
	if timezone == "" {
		timezone = "UTC"
	}

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}

	llmConfig, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	botConfig, err := loadBotConfig()
	if err != nil {
		return nil, err
	}

	cacheConfig, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}

	liveConfig, err := loadLiveConfig()
	if err != nil {
		return nil, err
	}

	tuning, schedules, err := loadTuning(os.Getenv("DOCSAGE_CONFIG"))
	if err != nil {
		return nil, err
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}

	return &Config{
		DataDir:      dataDir,
		DBPath:       dbPath,
		SnapshotPath: snapshotPath,
		DocsDir:      docsDir,
		Timezone:     timezone,
		MetricsAddr:  metricsAddr,
		Trace:        os.Getenv("DOCSAGE_TRACE"),
		LLM:          llmConfig,
		Embedder:     loadEmbedderConfig(),
		Bots:         botConfig,
		Cache:        cacheConfig,
		Storage:      loadStorageConfig(),
		Live:         liveConfig,
		Alerts:       loadAlertsConfig(),
		Tuning:       tuning,
		Schedules:    schedules,
	}, nil
}

func loadLLMConfig() (LLMConfig, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = DetectProvider()
	}

	apiKey, err := getAPIKey(provider, "LLM")
	if err != nil {
		return LLMConfig{}, err
	}

	model := os.Getenv("LLM_MODEL")
	if model != "" && os.Getenv("LLM_PROVIDER") == "" {
		if inferred := InferProviderFromModel(model); inferred != "" && inferred != provider {
			return LLMConfig{}, fmt.Errorf("LLM_MODEL %s belongs to %s but detected provider is %s; set LLM_PROVIDER", model, inferred, provider)
		}
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   apiKey,
		Model:    model,
		BaseURL:  os.Getenv("LLM_BASE_URL"),
	}, nil
}

func loadEmbedderConfig() EmbedderConfig {
	provider := os.Getenv("EMBEDDER_PROVIDER")

	apiKey := os.Getenv("EMBEDDER_API_KEY")
	if apiKey == "" && provider != "" {
		apiKey = os.Getenv(EnvKeyForProvider(provider))
	}

	return EmbedderConfig{
		Provider: provider,
		APIKey:   apiKey,
		BaseURL:  os.Getenv("EMBEDDER_URL"),
		Model:    os.Getenv("EMBEDDER_MODEL"),
	}
}

func loadBotConfig() (MultiBot, error) {
	telegramToken := os.Getenv("TELEGRAM_TOKEN")
	discordToken := os.Getenv("DISCORD_TOKEN")

	var allowed []int64
	for _, raw := range strings.Split(os.Getenv("TELEGRAM_ALLOWED_CHATS"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return MultiBot{}, fmt.Errorf("invalid TELEGRAM_ALLOWED_CHATS entry %q: %w", raw, err)
		}
		allowed = append(allowed, id)
	}

	return MultiBot{
		Telegram: BotInstance{
			Enabled: telegramToken != "",
			Token:   telegramToken,
		},
		Discord: BotInstance{
			Enabled: discordToken != "",
			Token:   discordToken,
		},
		AllowedChats: allowed,
		GuildID:      os.Getenv("DISCORD_GUILD_ID"),
	}, nil
}

func loadCacheConfig() (CacheConfig, error) {
	redisURL := os.Getenv("REDIS_URL")

	backend := os.Getenv("CACHE_BACKEND")
	if backend == "" {
		backend = "sqlite"
		if redisURL != "" {
			backend = "redis"
		}
	}

	switch backend {
	case "sqlite", "none":
	case "redis":
		if redisURL == "" {
			return CacheConfig{}, fmt.Errorf("REDIS_URL not set")
		}
	default:
		return CacheConfig{}, fmt.Errorf("unknown CACHE_BACKEND: %s", backend)
	}

	return CacheConfig{Backend: backend, RedisURL: redisURL}, nil
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	keep := 7
	if n, err := strconv.Atoi(os.Getenv("BACKUP_KEEP")); err == nil && n > 0 {
		keep = n
	}

	prefix := os.Getenv("BACKUP_PREFIX")
	if prefix == "" {
		prefix = "backups"
	}

	return StorageConfig{
		Enabled:      accessKey != "" && secretKey != "",
		Endpoint:     endpoint,
		AccessKey:    accessKey,
		SecretKey:    secretKey,
		UseSSL:       os.Getenv("MINIO_USE_SSL") == "true",
		Bucket:       os.Getenv("MINIO_BUCKET"),
		BackupPrefix: prefix,
		BackupKeep:   keep,
	}
}

func loadLiveConfig() (LiveConfig, error) {
	command := os.Getenv("MCP_COMMAND")
	url := os.Getenv("MCP_URL")
	if command != "" && url != "" {
		return LiveConfig{}, fmt.Errorf("set only one of MCP_COMMAND and MCP_URL")
	}

	timeout := 5 * time.Second
	if raw := os.Getenv("MCP_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return LiveConfig{}, fmt.Errorf("invalid MCP_TIMEOUT: %w", err)
		}
		timeout = d
	}

	argument := os.Getenv("MCP_ARGUMENT")
	if argument == "" {
		argument = "query"
	}

	return LiveConfig{
		Enabled:  (command != "" || url != "") && os.Getenv("MCP_TOOL") != "",
		Command:  command,
		Args:     strings.Fields(os.Getenv("MCP_ARGS")),
		URL:      url,
		Tool:     os.Getenv("MCP_TOOL"),
		Argument: argument,
		Timeout:  timeout,
	}, nil
}

func loadAlertsConfig() AlertsConfig {
	provider := os.Getenv("ALERT_PROVIDER")
	if provider == "" {
		provider = "telegram"
	}

	cooldown := 15 * time.Minute
	if d, err := time.ParseDuration(os.Getenv("ALERT_COOLDOWN")); err == nil && d > 0 {
		cooldown = d
	}

	return AlertsConfig{
		Provider: provider,
		ChatID:   os.Getenv("ALERT_CHAT_ID"),
		Cooldown: cooldown,
	}
}
