package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/wb-go/wbf/config"
)

type Config struct {
	Addr      string
	GinMode   string
	LogLevel  string
	MasterDSN string
	SlaveDSNs []string

	Comments CommentsConfig
	Client   ClientConfig
}

type CommentsConfig struct {
	MaxDepth  int
	MaxImages int
	PageSize  int
}

type ClientConfig struct {
	BaseURL         string
	UserID          string
	Timeout         time.Duration
	MutationTimeout time.Duration
	RetryMax        int
}

var defaults = map[string]any{
	"addr":                    ":8080",
	"gin_mode":                "release",
	"log_level":               "info",
	"master_dsn":              "",
	"slaveDSNs":               []string{},
	"comments.max_depth":      3,
	"comments.max_images":     4,
	"comments.page_size":      20,
	"client.base_url":         "http://localhost:8080",
	"client.user_id":          "",
	"client.timeout":          10 * time.Second,
	"client.mutation_timeout": 15 * time.Second,
	"client.retry_max":        3,
}

// New returns a wbf config with every key defaulted, ready for flags and
// files.
func New() *config.Config {
	cfg := config.New()
	for key, value := range defaults {
		cfg.SetDefault(key, value)
	}
	return cfg
}

// LoadFiles merges the given files into cfg. Missing files are skipped.
func LoadFiles(cfg *config.Config, paths ...string) error {
	for _, path := range paths {
		if err := cfg.LoadConfigFiles(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func Load(paths ...string) (*Config, error) {
	cfg := New()
	if err := LoadFiles(cfg, paths...); err != nil {
		return nil, err
	}
	return FromConfig(cfg)
}

func FromConfig(cfg *config.Config) (*Config, error) {
	c := &Config{
		Addr:      cfg.GetString("addr"),
		GinMode:   cfg.GetString("gin_mode"),
		LogLevel:  cfg.GetString("log_level"),
		MasterDSN: cfg.GetString("master_dsn"),
		SlaveDSNs: cfg.GetStringSlice("slaveDSNs"),
		Comments: CommentsConfig{
			MaxDepth:  cfg.GetInt("comments.max_depth"),
			MaxImages: cfg.GetInt("comments.max_images"),
			PageSize:  cfg.GetInt("comments.page_size"),
		},
		Client: ClientConfig{
			BaseURL:         cfg.GetString("client.base_url"),
			UserID:          cfg.GetString("client.user_id"),
			Timeout:         cfg.GetDuration("client.timeout"),
			MutationTimeout: cfg.GetDuration("client.mutation_timeout"),
			RetryMax:        cfg.GetInt("client.retry_max"),
		},
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// validate catches values the typed getters turned into zero or that make
// no sense, such as a page size of 0.
func (c *Config) validate() error {
	switch {
	case c.Comments.MaxDepth < 1:
		return fmt.Errorf("config comments.max_depth: must be at least 1, got %d", c.Comments.MaxDepth)
	case c.Comments.MaxImages < 0:
		return fmt.Errorf("config comments.max_images: must not be negative, got %d", c.Comments.MaxImages)
	case c.Comments.PageSize < 1:
		return fmt.Errorf("config comments.page_size: must be at least 1, got %d", c.Comments.PageSize)
	case c.Client.RetryMax < 0:
		return fmt.Errorf("config client.retry_max: must not be negative, got %d", c.Client.RetryMax)
	case c.Client.Timeout <= 0:
		return fmt.Errorf("config client.timeout: must be positive, got %s", c.Client.Timeout)
	case c.Client.MutationTimeout < 0:
		return fmt.Errorf("config client.mutation_timeout: must not be negative, got %s", c.Client.MutationTimeout)
	}
	return nil
}
