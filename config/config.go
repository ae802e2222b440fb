package config

import (
	"os"
	"strconv"

	"github.com/jsphweid/midiroll/constants"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	MediaDir      string  `yaml:"media_dir"`
	RollDir       string  `yaml:"roll_dir"`
	ChopLoss      float64 `yaml:"chop_loss"`
	Workers       int     `yaml:"workers"`
	MaxFiles      int     `yaml:"max_files"`
	SelfContained bool    `yaml:"self_contained"`
	Force         bool    `yaml:"force"`
	LogLevel      string  `yaml:"log_level"`
	ListenAddr    string  `yaml:"listen_addr"`

	// catalog is only used when an endpoint is set
	DynamoEndpoint string `yaml:"dynamodb_endpoint"`
	DynamoRegion   string `yaml:"dynamodb_region"`
	DynamoTable    string `yaml:"dynamodb_table"`
}

func Default() Config {
	return Config{
		MediaDir:     constants.GetMediaDir(),
		RollDir:      constants.GetRollDir(),
		ChopLoss:     constants.DefaultChopLoss,
		Workers:      4,
		LogLevel:     "info",
		ListenAddr:   ":8080",
		DynamoRegion: "localhost",
		DynamoTable:  "midiroll-rolls",
	}
}

// Load reads the YAML file at path (if any) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		dat, err := os.ReadFile(path)
		if err != nil {
			return c, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(dat, &c); err != nil {
			return c, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	if err := c.applyEnv(); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MEDIA_PATH"); v != "" {
		c.MediaDir = v
	}
	if v := os.Getenv("ROLL_PATH"); v != "" {
		c.RollDir = v
	}
	if v := os.Getenv("CHOP_LOSS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, "CHOP_LOSS")
		}
		c.ChopLoss = f
	}
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "WORKERS")
		}
		c.Workers = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DYNAMODB_ENDPOINT"); v != "" {
		c.DynamoEndpoint = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		c.DynamoTable = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.ChopLoss < 0 || c.ChopLoss >= 1 {
		return errors.Errorf("chop_loss must be in [0, 1), got %v", c.ChopLoss)
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be positive, got %v", c.Workers)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// ConfigureLogging applies the configured level to the standard logrus logger.
func (c Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
