package config

import "time"

// Config is the root configuration for the studio.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Storage   StorageConfig   `json:"storage"`
	Assets    AssetsConfig    `json:"assets"`
	Events    EventsConfig    `json:"events"`
	Providers ProvidersConfig `json:"providers"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Retention RetentionConfig `json:"retention"`
}

// GatewayConfig holds the HTTP server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StorageConfig selects the record store backend for tasks and storyboards.
type StorageConfig struct {
	Driver string      `json:"driver"` // "dir" | "sqlite" | "postgres" | "leveldb" | "redis"
	Dir    string      `json:"dir,omitempty"`
	DSN    string      `json:"dsn,omitempty"` // sqlite file or postgres connection string
	Redis  RedisConfig `json:"redis,omitempty"`
}

// RedisConfig configures the redis record store.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// AssetsConfig selects where generated media bytes are written.
type AssetsConfig struct {
	Driver  string      `json:"driver"` // "local" | "minio"
	Dir     string      `json:"dir,omitempty"`
	BaseURL string      `json:"base_url,omitempty"`
	MinIO   MinIOConfig `json:"minio,omitempty"`
}

// MinIOConfig configures an S3-compatible asset bucket.
type MinIOConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Secure    bool   `json:"secure"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize  int    `json:"buffer_size"`
	LogLevel    string `json:"log_level,omitempty"`
	LogDir      string `json:"log_dir,omitempty"`
	NATSURL     string `json:"nats_url,omitempty"`
	NATSSubject string `json:"nats_subject,omitempty"`
}

// ProvidersConfig holds generative vendor settings.
type ProvidersConfig struct {
	Gemini GeminiConfig `json:"gemini"`
}

// GeminiConfig configures the Gemini image, speech, video and text models.
type GeminiConfig struct {
	APIKey       string   `json:"api_key,omitempty"` // Direct key, ${{ .Env.VAR }} template or ENC[age:...]
	ImageModel   string   `json:"image_model,omitempty"`
	SpeechModel  string   `json:"speech_model,omitempty"`
	VideoModel   string   `json:"video_model,omitempty"`
	TextModel    string   `json:"text_model,omitempty"`
	PollInterval Duration `json:"poll_interval,omitempty"`
	Timeout      Duration `json:"timeout,omitempty"`
}

// PipelineConfig tunes storyboard production.
type PipelineConfig struct {
	MaxAttempts        int      `json:"max_attempts"`
	BaseDelay          Duration `json:"base_delay"`
	MaxDelay           Duration `json:"max_delay"`
	Voices             []string `json:"voices"`
	DefaultStyle       string   `json:"default_style,omitempty"`
	DefaultAspectRatio string   `json:"default_aspect_ratio,omitempty"`
}

// RetentionConfig controls periodic pruning of finished tasks.
type RetentionConfig struct {
	Schedule string   `json:"schedule"`
	MaxAge   Duration `json:"max_age"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
