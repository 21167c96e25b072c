package config

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendDir    = "dir"
	BackendS3     = "s3"
)

type S3 struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	AccessKeySecret string `json:"access_key_secret,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	Scheme          string `json:"scheme,omitempty"`
	BucketName      string `json:"bucket_name,omitempty"`
	Region          string `json:"region,omitempty"`
	ObjectPrefix    string `json:"object_prefix,omitempty"`
}

type Backend struct {
	Type string `json:"type"`
	// Path is the badger directory or the root of a dir backend.
	Path string `json:"path,omitempty"`
	S3   S3     `json:"s3,omitempty"`
}

type Config struct {
	Listen        string  `json:"listen"`
	LogLevel      string  `json:"log_level"`
	LogFormat     string  `json:"log_format"`
	PurgeOnDelete bool    `json:"purge_on_delete"`
	Backend       Backend `json:"backend"`
}

func Default() Config {
	return Config{
		Listen:    ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Backend: Backend{
			Type: BackendBadger,
			Path: "./data/badger",
		},
	}
}

// Load reads a JSON config file on top of Default. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend.Type {
	case BackendMemory:
	case BackendBadger, BackendDir:
		if c.Backend.Path == "" {
			return fmt.Errorf("backend %s requires a path", c.Backend.Type)
		}
	case BackendS3:
		if c.Backend.S3.BucketName == "" || c.Backend.S3.Region == "" {
			return fmt.Errorf("invalid S3 configuration: missing 'bucket_name' or 'region'")
		}
	default:
		return fmt.Errorf("unsupported backend type %q", c.Backend.Type)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if c.Listen == "" {
		return fmt.Errorf("listen address is empty")
	}

	return nil
}
