package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// Signaling request budget per connection, sliding window. Zero limit
	// disables the check.
	MsgRateLimit    int           `mapstructure:"msg_rate_limit"`
	MsgRateInterval time.Duration `mapstructure:"msg_rate_interval"`

	// Media engine network settings.
	ListenIP    string `mapstructure:"listen_ip"`
	AnnouncedIP string `mapstructure:"announced_ip"`
	RTCMinPort  uint16 `mapstructure:"rtc_min_port"`
	RTCMaxPort  uint16 `mapstructure:"rtc_max_port"`

	// StartBitrate is the video starting bitrate hint in kbps.
	StartBitrate int `mapstructure:"start_bitrate"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("msg_rate_limit", 60)
	v.SetDefault("msg_rate_interval", "10s")
	v.SetDefault("listen_ip", "0.0.0.0")
	v.SetDefault("announced_ip", "")
	v.SetDefault("rtc_min_port", 10000)
	v.SetDefault("rtc_max_port", 59999)
	v.SetDefault("start_bitrate", 1000)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | RTC ports: %d-%d\n", cfg.Mode, cfg.Port, cfg.RTCMinPort, cfg.RTCMaxPort)
	return &cfg, nil
}
