package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Yquannn/multiplayer-phaser/game/coordinator"
	"github.com/Yquannn/multiplayer-phaser/game/room"
)

// EnvPrefix is prepended to every environment override, e.g.
// MULTIPLAYER_ROOMS_MAX_OCCUPANTS.
const EnvPrefix = "MULTIPLAYER"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// StaticDir is served at / for the game client. Empty disables it.
	StaticDir    string        `mapstructure:"static_dir"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RoomsConfig holds room lifecycle rules.
type RoomsConfig struct {
	MaxOccupants int    `mapstructure:"max_occupants"`
	EmptyPolicy  string `mapstructure:"empty_policy"`
	RejoinPolicy string `mapstructure:"rejoin_policy"`
	// EmptyRoomTTL is how long a room may stay empty before the sweeper
	// removes it. Zero disables the sweeper.
	EmptyRoomTTL  time.Duration `mapstructure:"empty_room_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// WebSocketConfig holds per-connection transport limits.
type WebSocketConfig struct {
	MaxMessageSize int64    `mapstructure:"max_message_size"`
	SendBuffer     int      `mapstructure:"send_buffer"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// NgrokConfig holds the optional public tunnel settings.
type NgrokConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"authtoken"`
	Domain    string `mapstructure:"domain"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Ngrok     NgrokConfig     `mapstructure:"ngrok"`
}

// Validate checks all configuration invariants and reports every violation
// at once.
func (c Config) Validate() error {
	var errs []string

	errs = append(errs, validateServer(c.Server)...)
	errs = append(errs, validateRooms(c.Rooms)...)
	errs = append(errs, validateWebSocket(c.WebSocket)...)
	errs = append(errs, validateLogging(c.Logging)...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) []string {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout must not be negative")
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.IdleTimeout < 0 {
		errs = append(errs, "server.idle_timeout must not be negative")
	}
	return errs
}

func validateRooms(r RoomsConfig) []string {
	var errs []string
	if r.MaxOccupants < 1 {
		errs = append(errs, fmt.Sprintf("rooms.max_occupants must be >= 1, got %d", r.MaxOccupants))
	}
	if !room.EmptyRoomPolicy(r.EmptyPolicy).Valid() {
		errs = append(errs, fmt.Sprintf("rooms.empty_policy must be one of [retain, delete], got %q", r.EmptyPolicy))
	}
	if !coordinator.RejoinPolicy(r.RejoinPolicy).Valid() {
		errs = append(errs, fmt.Sprintf("rooms.rejoin_policy must be one of [leave, reject], got %q", r.RejoinPolicy))
	}
	if r.EmptyRoomTTL < 0 {
		errs = append(errs, "rooms.empty_room_ttl must not be negative")
	}
	if r.EmptyRoomTTL > 0 && r.SweepInterval <= 0 {
		errs = append(errs, "rooms.sweep_interval must be positive when rooms.empty_room_ttl is set")
	}
	return errs
}

func validateWebSocket(w WebSocketConfig) []string {
	var errs []string
	if w.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_size must be >= 1, got %d", w.MaxMessageSize))
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	return errs
}

func validateLogging(l LoggingConfig) []string {
	var errs []string
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of [debug, info, warn, error], got %q", l.Level))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		errs = append(errs, fmt.Sprintf("logging.format must be one of [json, console], got %q", l.Format))
	}
	return errs
}

// Load builds the configuration from defaults, the optional YAML file at
// path and environment overrides, then validates it. An empty path skips
// the file.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	cfg, err := LoadFromViper(defaultViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

func defaultViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by hosting platforms and the ngrok CLI.
	v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	v.BindEnv("ngrok.enabled", EnvPrefix+"_NGROK_ENABLED", "NGROK_ENABLED")
	v.BindEnv("ngrok.authtoken", EnvPrefix+"_NGROK_AUTHTOKEN", "NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")
	v.BindEnv("ngrok.domain", EnvPrefix+"_NGROK_DOMAIN", "NGROK_DOMAIN")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.static_dir", "public")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("rooms.max_occupants", room.DefaultMaxOccupants)
	v.SetDefault("rooms.empty_policy", string(room.RetainPolicy))
	v.SetDefault("rooms.rejoin_policy", string(coordinator.LeavePolicy))
	v.SetDefault("rooms.empty_room_ttl", "0s")
	v.SetDefault("rooms.sweep_interval", "1m")

	v.SetDefault("websocket.max_message_size", 1024)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.allowed_origins", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.authtoken", "")
	v.SetDefault("ngrok.domain", "")
}
