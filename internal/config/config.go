package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIURL            string        `yaml:"api_url" validate:"required,url"`
	SPARQLURL         string        `yaml:"sparql_url" validate:"required,url"`
	TopoIDProperty    string        `yaml:"topo_id_property" validate:"required,startswith=P"`
	User              string        `yaml:"user"`
	Password          string        `yaml:"password" validate:"required_with=User"`
	HTTPTimeout       time.Duration `yaml:"http_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Workers           int           `yaml:"workers" validate:"gte=1,lte=64"`
	UpdateStops       bool          `yaml:"update_stops"`
	LogLevel          string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	NATSURL           string        `yaml:"nats_url" validate:"omitempty,url"`
	NATSSubjectPrefix string        `yaml:"nats_subject_prefix" validate:"required"`
	LedgerDSN         string        `yaml:"ledger_dsn"`
}

func Default() *Config {
	return &Config{
		APIURL:            "http://localhost:8181/api.php",
		SPARQLURL:         "http://localhost:8989/bigdata/sparql",
		TopoIDProperty:    "P1",
		HTTPTimeout:       30 * time.Second,
		Workers:           1,
		LogLevel:          "info",
		NATSSubjectPrefix: "transit_topo",
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file and the environment, in that order. Command line flags
// are applied by the caller, which then calls Validate.
func Load(path string) (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.APIURL = getenvDefault("WIKIBASE_API_URL", cfg.APIURL)
	cfg.SPARQLURL = getenvDefault("WIKIBASE_SPARQL_URL", cfg.SPARQLURL)
	cfg.TopoIDProperty = getenvDefault("TOPO_ID_PROPERTY", cfg.TopoIDProperty)
	cfg.User = getenvDefault("WIKIBASE_USER", cfg.User)
	cfg.Password = getenvDefault("WIKIBASE_PASSWORD", cfg.Password)

	if v := os.Getenv("HTTP_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SEC: %q", v)
		}
		cfg.HTTPTimeout = time.Duration(sec) * time.Second
	}

	// 0 disables throttling
	if v := os.Getenv("REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid REQUESTS_PER_SECOND: %q", v)
		}
		cfg.RequestsPerSecond = f
	}

	if v := os.Getenv("IMPORT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid IMPORT_WORKERS: %q", v)
		}
		cfg.Workers = n
	}

	if v := os.Getenv("UPDATE_EXISTING_STOPS"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid UPDATE_EXISTING_STOPS: %q", v)
		}
		cfg.UpdateStops = b
	}

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.LogLevel))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)

	// Empty disables import events.
	cfg.NATSURL = getenvDefault("NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)

	cfg.LedgerDSN = firstNonEmpty(os.Getenv("LEDGER_DSN"), os.Getenv("DATABASE_URL"), cfg.LedgerDSN)

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the final configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
