package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port     string `mapstructure:"port" validate:"required,numeric"`
	IP       string `mapstructure:"ip"`
	GRPCPort string `mapstructure:"grpc_port" validate:"omitempty,numeric"`

	Store      StoreConfig    `mapstructure:"store"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	JWT        JWTConfig      `mapstructure:"jwt"`
	Session    SessionConfig  `mapstructure:"session"`
	Events     EventsConfig   `mapstructure:"events"`
}

// StoreConfig choose message store backend
type StoreConfig struct {
	// Driver postgres (預設) 或 mongo
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=postgres mongo"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db" validate:"gte=0"`
	// Addr 單機模式位址, 留空時走 sentinel (.env REDIS_SENTINEL*)
	Addr             string        `mapstructure:"addr"`
	ChannelPrefix    string        `mapstructure:"channel_prefix"`
	IdentityCacheTTL time.Duration `mapstructure:"identity_cache_ttl"`
}

// JWTConfig definition token validation setting
type JWTConfig struct {
	Secret string        `mapstructure:"secret" validate:"required,min=16"`
	Issuer string        `mapstructure:"issuer"`
	Leeway time.Duration `mapstructure:"leeway"`
}

// SessionConfig definition per connection setting
type SessionConfig struct {
	HistoryLimit int           `mapstructure:"history_limit" validate:"gte=0,lte=500"`
	SendBuffer   int           `mapstructure:"send_buffer" validate:"gte=0"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// EventsConfig definition message event publisher
type EventsConfig struct {
	Driver        string        `mapstructure:"driver" validate:"omitempty,oneof=kafka rabbitmq"`
	Brokers       []string      `mapstructure:"brokers" validate:"required_if=Driver kafka"`
	Topic         string        `mapstructure:"topic"`
	URL           string        `mapstructure:"url" validate:"required_if=Driver rabbitmq"`
	Exchange      string        `mapstructure:"exchange"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

const (
	defaultHistoryLimit  = 50
	defaultSendBuffer    = 64
	defaultPingInterval  = 10 * time.Minute
	defaultWriteTimeout  = 10 * time.Second
	defaultChannelPrefix = "chat:room:"
	defaultTopic         = "chat.message.created"
	defaultExchange      = "chat.events"
)

// ApplyDefaults 補上 YAML 未設定的欄位
func (c *Chat) ApplyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	if c.Session.HistoryLimit == 0 {
		c.Session.HistoryLimit = defaultHistoryLimit
	}
	if c.Session.SendBuffer == 0 {
		c.Session.SendBuffer = defaultSendBuffer
	}
	if c.Session.PingInterval == 0 {
		c.Session.PingInterval = defaultPingInterval
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = defaultWriteTimeout
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = defaultChannelPrefix
	}
	if c.Events.Topic == "" {
		c.Events.Topic = defaultTopic
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = defaultExchange
	}
}
