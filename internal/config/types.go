package config

import "time"

type Config struct {
	DataDir      string
	DBPath       string
	SnapshotPath string
	DocsDir      string
	Timezone     string
	MetricsAddr  string
	Trace        string

	LLM       LLMConfig
	Embedder  EmbedderConfig
	Bots      MultiBot
	Cache     CacheConfig
	Storage   StorageConfig
	Live      LiveConfig
	Alerts    AlertsConfig
	Tuning    Tuning
	Schedules Schedules
}

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type EmbedderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

type BotInstance struct {
	Enabled bool
	Token   string
}

type MultiBot struct {
	Telegram     BotInstance
	Discord      BotInstance
	AllowedChats []int64
	GuildID      string
}

type CacheConfig struct {
	Backend  string // sqlite, redis or none
	RedisURL string
}

type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Bucket       string
	BackupPrefix string
	BackupKeep   int
}

type LiveConfig struct {
	Enabled  bool
	Command  string
	Args     []string
	URL      string
	Tool     string
	Argument string
	Timeout  time.Duration
}

type AlertsConfig struct {
	Provider string // bot that delivers alerts
	ChatID   string
	Cooldown time.Duration
}

// Tuning holds the retrieval knobs. Values come from defaults, then the
// optional YAML file, then DOCSAGE_* environment variables.
type Tuning struct {
	SimilarityThreshold float64  `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	TopK                int      `yaml:"top_k" env:"TOP_K"`
	BroadThreshold      float64  `yaml:"broad_threshold" env:"BROAD_THRESHOLD"`
	BroadTopK           int      `yaml:"broad_top_k" env:"BROAD_TOP_K"`
	MaxRewrites         int      `yaml:"max_rewrites" env:"MAX_REWRITES"`
	DecomposeMinWords   int      `yaml:"decompose_min_words" env:"DECOMPOSE_MIN_WORDS"`
	MinRelevancy        float64  `yaml:"min_relevancy" env:"MIN_RELEVANCY"`
	RerankTarget        int      `yaml:"rerank_target" env:"RERANK_TARGET"`
	ValidationWorkers   int      `yaml:"validation_workers" env:"VALIDATION_WORKERS"`
	Temperature         float64  `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens           int      `yaml:"max_tokens" env:"MAX_TOKENS"`
	MaxResponseLength   int      `yaml:"max_response_length" env:"MAX_RESPONSE_LENGTH"`
	MaxSources          int      `yaml:"max_sources" env:"MAX_SOURCES"`
	Keywords            []string `yaml:"keywords" env:"KEYWORDS" envSeparator:","`

	MaxHistory    int           `yaml:"max_history" env:"MAX_HISTORY"`
	IncludeRecent int           `yaml:"include_recent" env:"INCLUDE_RECENT"`
	MemoryLimit   int           `yaml:"memory_limit" env:"MEMORY_LIMIT"`
	ExtractEvery  int           `yaml:"extract_every" env:"EXTRACT_EVERY"`
	SessionTTL    time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`

	ChunkSize    int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`

	ResponseTTL  time.Duration `yaml:"response_ttl" env:"RESPONSE_TTL"`
	RelevancyTTL time.Duration `yaml:"relevancy_ttl" env:"RELEVANCY_TTL"`
	RerankTTL    time.Duration `yaml:"rerank_ttl" env:"RERANK_TTL"`
	TransformTTL time.Duration `yaml:"transform_ttl" env:"TRANSFORM_TTL"`
	EmbeddingTTL time.Duration `yaml:"embedding_ttl" env:"EMBEDDING_TTL"`

	RetryAttempts int `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`

	// RateLimitMessages questions per RateLimitWindow per conversation.
	// Zero disables limiting.
	RateLimitMessages int           `yaml:"rate_limit_messages" env:"RATE_LIMIT_MESSAGES"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window" env:"RATE_LIMIT_WINDOW"`
}

// Schedules are cron expressions for maintenance jobs. Empty disables a job.
type Schedules struct {
	SessionSweep string `yaml:"session_sweep" env:"SESSION_SWEEP"`
	CachePurge   string `yaml:"cache_purge" env:"CACHE_PURGE"`
	Backup       string `yaml:"backup" env:"BACKUP"`
	StatsLog     string `yaml:"stats_log" env:"STATS_LOG"`
}
