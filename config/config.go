package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	HTTP       HTTPConfig       `yaml:"http"`
	Journal    JournalConfig    `yaml:"journal"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	History    HistoryConfig    `yaml:"history"`
	Pools      []PoolConfig     `yaml:"pools"`
	Depthfeed  DepthfeedConfig  `yaml:"depthfeed"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
}

type JournalConfig struct {
	Dir         string `yaml:"dir" env-default:"data/journal"`
	SegmentSize int64  `yaml:"segment_size" env-default:"67108864"`
}

type OutboxConfig struct {
	Dir string `yaml:"dir" env-default:"data/outbox"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers" env-default:"localhost:9092"`
	EventsTopic string   `yaml:"events_topic" env-default:"scalex.events"`
	DepthTopic  string   `yaml:"depth_topic" env-default:"scalex.depth"`
}

type HistoryConfig struct {
	Retention     time.Duration `yaml:"retention" env-default:"24h"`
	PruneInterval time.Duration `yaml:"prune_interval" env-default:"1m"`
}

type DepthfeedConfig struct {
	Interval time.Duration `yaml:"interval" env-default:"1s"`
}

// PoolConfig is one trading pool definition. Prices and quantities are in
// minor units of the quote and base asset respectively.
type PoolConfig struct {
	ID          string `yaml:"id"`
	BaseAsset   string `yaml:"base_asset"`
	QuoteAsset  string `yaml:"quote_asset"`
	TickSize    int64  `yaml:"tick_size"`
	LotSize     int64  `yaml:"lot_size"`
	MinQuantity int64  `yaml:"min_quantity"`
	MaxQuantity int64  `yaml:"max_quantity"`
	BaseUnit    int64  `yaml:"base_unit"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}
	return MustLoadByPath(path)
}

func MustLoadByPath(path string) *Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found " + path)
	}

	var config Config
	if err := cleanenv.ReadConfig(path, &config); err != nil {
		panic("failed to read config " + err.Error())
	}
	return &config
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
