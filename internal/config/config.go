package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"speedhockey/internal/codec"
	"speedhockey/internal/hockey"
)

var Config = Default()

type Configuration struct {
	LogLevel int `json:"logLevel" toml:"logLevel"`

	Address    string `json:"address" toml:"address"`
	CorsOrigin string `json:"corsOrigin" toml:"corsOrigin"`

	TickMs          int     `json:"tickMs" toml:"tickMs"`
	ArenaWidth      float64 `json:"arenaWidth" toml:"arenaWidth"`
	ArenaHeight     float64 `json:"arenaHeight" toml:"arenaHeight"`
	MaxStepDistance float64 `json:"maxStepDistance" toml:"maxStepDistance"`
	PaddleBounds    string  `json:"paddleBounds" toml:"paddleBounds"`

	Codec          string `json:"codec" toml:"codec"`
	SendQueueSize  int    `json:"sendQueueSize" toml:"sendQueueSize"`
	InputRateLimit int    `json:"inputRateLimit" toml:"inputRateLimit"`
	ReadLimit      int64  `json:"readLimit" toml:"readLimit"`
	WriteTimeoutMs int    `json:"writeTimeoutMs" toml:"writeTimeoutMs"`
}

func Default() Configuration {
	return Configuration{
		LogLevel:        int(slog.LevelInfo),
		Address:         ":3000",
		TickMs:          16,
		ArenaWidth:      960,
		ArenaHeight:     540,
		MaxStepDistance: 20,
		PaddleBounds:    string(hockey.BoundsArena),
		Codec:           "proto",
		SendQueueSize:   4,
		InputRateLimit:  120,
		ReadLimit:       4096,
		WriteTimeoutMs:  1000,
	}
}

// LoadConfig loads path (config.json when empty) into the global Config
func LoadConfig(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	Config = c
	return nil
}

// Load reads a JSON or TOML file over the defaults, then applies the
// environment (.env included). A missing file leaves the defaults in place.
func Load(path string) (Configuration, error) {
	c := Default()
	if path == "" {
		path = "config.json"
	}

	if err := c.readFile(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Info("no config file found, using default config", slog.String("path", path))
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("load .env: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return c, err
	}

	return c, c.Validate()
}

func (c *Configuration) readFile(path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		_, err := toml.DecodeFile(path, c)
		return err
	}

	cf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(cf, c)
}

func (c *Configuration) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Address = ":" + port
	}
	if addr := os.Getenv("SPEEDHOCKEY_ADDRESS"); addr != "" {
		c.Address = addr
	}
	if origin := os.Getenv("CORS_ORIGIN"); origin != "" {
		c.CorsOrigin = origin
	}
	if name := os.Getenv("SPEEDHOCKEY_CODEC"); name != "" {
		c.Codec = name
	}
	if v := os.Getenv("SPEEDHOCKEY_TICK_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SPEEDHOCKEY_TICK_MS: %w", err)
		}
		c.TickMs = ms
	}
	if v := os.Getenv("SPEEDHOCKEY_LOG_LEVEL"); v != "" {
		var level slog.Level
		if n, err := strconv.Atoi(v); err == nil {
			level = slog.Level(n)
		} else if err := level.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("SPEEDHOCKEY_LOG_LEVEL: %w", err)
		}
		c.LogLevel = int(level)
	}
	return nil
}

func (c Configuration) Validate() error {
	var errs []error
	if c.ArenaWidth <= 0 || c.ArenaHeight <= 0 {
		errs = append(errs, fmt.Errorf("arena must have a positive size, got %gx%g", c.ArenaWidth, c.ArenaHeight))
	}
	if c.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("tickMs must be positive, got %d", c.TickMs))
	}
	if c.MaxStepDistance <= 0 {
		errs = append(errs, fmt.Errorf("maxStepDistance must be positive, got %g", c.MaxStepDistance))
	}
	if _, err := hockey.ParseBounds(c.PaddleBounds); err != nil {
		errs = append(errs, err)
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if c.SendQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("sendQueueSize must be positive, got %d", c.SendQueueSize))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("readLimit must be positive, got %d", c.ReadLimit))
	}
	if c.InputRateLimit < 0 {
		errs = append(errs, fmt.Errorf("inputRateLimit must not be negative, got %d", c.InputRateLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Configuration) Level() slog.Level {
	return slog.Level(c.LogLevel)
}

func (c Configuration) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

func (c Configuration) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// AllowedOrigins returns nil when every origin is allowed
func (c Configuration) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CorsOrigin, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Hockey builds the match parameters. Call Validate first.
func (c Configuration) Hockey() hockey.Config {
	h := hockey.DefaultConfig()
	h.Arena = hockey.Arena{Width: c.ArenaWidth, Height: c.ArenaHeight}
	h.TickInterval = c.TickInterval()
	h.MaxStepDistance = c.MaxStepDistance
	h.Bounds, _ = hockey.ParseBounds(c.PaddleBounds)
	return h
}
