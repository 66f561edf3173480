package platform

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file. Every field has a
// CLI flag or environment variable counterpart; the file is a convenience
// for credentials and policy tuning.
type FileConfig struct {
	Azure struct {
		SubscriptionID string `yaml:"subscription_id"`
		TenantID       string `yaml:"tenant_id"`
		ClientID       string `yaml:"client_id"`
		ClientSecret   string `yaml:"client_secret"`
	} `yaml:"azure"`

	Policy struct {
		ConsolidationThreshold float64 `yaml:"consolidation_threshold"`
		UpsizeThreshold        float64 `yaml:"upsize_threshold"`
	} `yaml:"policy"`

	ClickHouse struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Database string `yaml:"database"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"clickhouse"`
}

// LoadConfig parses the YAML configuration file at path.
func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c FileConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &c, nil
}

func GetEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func GetEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func GetEnvBool(key string, defaultVal bool) bool {
	if val, exists := os.LookupEnv(key); exists {
		if strings.ToLower(val) == "true" || val == "1" {
			return true
		}
		return false
	}
	return defaultVal
}
