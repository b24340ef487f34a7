package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"anpr-watch/internal/domain/anpr"
	"anpr-watch/internal/tracker"
	"anpr-watch/internal/utils"
)

const envPrefix = "ANPR"

// Required repeat counts per mode when tracker.required_repeats is unset.
const (
	DefaultRegisterRepeats = 7
	DefaultAlertRepeats    = 5
)

type Config struct {
	Mode     anpr.Mode      `mapstructure:"mode"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Plate    PlateConfig    `mapstructure:"plate"`
	Registry RegistryConfig `mapstructure:"registry"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Source   SourceConfig   `mapstructure:"source"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DB       DBConfig       `mapstructure:"db"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Log      LogConfig      `mapstructure:"log"`
}

type TrackerConfig struct {
	RequiredRepeats int            `mapstructure:"required_repeats"`
	RefreshPeriod   int            `mapstructure:"refresh_period"`
	Residual        int            `mapstructure:"residual"`
	Policy          tracker.Policy `mapstructure:"policy"`
}

type PlateConfig struct {
	Lengths       []int  `mapstructure:"lengths"`
	Substitutions string `mapstructure:"substitutions"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

type AlertConfig struct {
	Clip        string `mapstructure:"clip"`
	ControlPath string `mapstructure:"control_path"`
	SpawnPlayer bool   `mapstructure:"spawn_player"`
	PlayerCmd   string `mapstructure:"player_cmd"`
}

type SourceConfig struct {
	// Kind is "replay" (JSONL file) or "http" (frames pushed to the API).
	Kind     string        `mapstructure:"kind"`
	Path     string        `mapstructure:"path"`
	Width    int           `mapstructure:"width"`
	Height   int           `mapstructure:"height"`
	Interval time.Duration `mapstructure:"interval"`
	// Output, when set, receives one JSON outcome per frame.
	Output string `mapstructure:"output"`
}

type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
	Queue   int `mapstructure:"queue"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      int    `mapstructure:"qos"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(anpr.ModeAlert))
	v.SetDefault("tracker.required_repeats", 0)
	v.SetDefault("tracker.refresh_period", tracker.DefaultRefreshPeriod)
	v.SetDefault("tracker.residual", tracker.DefaultResidual)
	v.SetDefault("tracker.policy", string(tracker.PolicyExact))
	v.SetDefault("plate.lengths", utils.DefaultPlateLengths)
	v.SetDefault("plate.substitutions", "I:1,O:0,W:M")
	v.SetDefault("registry.path", "../registered.txt")
	v.SetDefault("alert.clip", "../sound/sound.mp3")
	v.SetDefault("alert.control_path", "")
	v.SetDefault("alert.spawn_player", false)
	v.SetDefault("alert.player_cmd", "mplayer")
	v.SetDefault("source.kind", "replay")
	v.SetDefault("source.path", "")
	v.SetDefault("source.output", "")
	v.SetDefault("source.width", 1280)
	v.SetDefault("source.height", 720)
	v.SetDefault("source.interval", 0)
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.queue", 8)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.retention_days", 30)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "anpr-watch")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.topic", "anpr/confirmations")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Flags declares the command line overrides. Unset flags leave file and
// environment values alone.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("anpr-watch", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("mode", "", "register or alert")
	fs.String("registry", "", "registry file path")
	fs.String("replay", "", "JSONL file of recorded engine output")
	fs.String("source", "", "frame source: replay or http")
	fs.String("http-addr", "", "status API listen address")
	fs.Int("workers", 0, "recognition workers (0 = synchronous loop)")
	fs.String("log-level", "", "debug, info, warn or error")
	return fs
}

var flagKeys = map[string]string{
	"mode":      "mode",
	"registry":  "registry.path",
	"replay":    "source.path",
	"source":    "source.kind",
	"http-addr": "http.addr",
	"workers":   "pipeline.workers",
	"log-level": "log.level",
}

// Load builds the config from defaults, an optional YAML file, ANPR_*
// environment variables and flags, in increasing priority.
func Load(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyModeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyModeDefaults() {
	if c.Tracker.RequiredRepeats != 0 {
		return
	}
	switch c.Mode {
	case anpr.ModeRegister:
		c.Tracker.RequiredRepeats = DefaultRegisterRepeats
	case anpr.ModeAlert:
		c.Tracker.RequiredRepeats = DefaultAlertRepeats
	}
}

func (c *Config) Validate() error {
	var errs []error
	if !c.Mode.Valid() {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", anpr.ModeRegister, anpr.ModeAlert, c.Mode))
	}
	if err := c.TrackerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Plate.Lengths) == 0 {
		errs = append(errs, errors.New("plate.lengths must not be empty"))
	}
	if _, err := utils.ParseSubstitutions(c.Plate.Substitutions); err != nil {
		errs = append(errs, fmt.Errorf("plate.substitutions: %w", err))
	}
	if c.Registry.Path == "" {
		errs = append(errs, errors.New("registry.path is required"))
	}
	switch c.Source.Kind {
	case "replay":
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source.path is required for replay"))
		}
	case "http":
	default:
		errs = append(errs, fmt.Errorf("source.kind must be replay or http, got %q", c.Source.Kind))
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, errors.New("pipeline.workers must not be negative"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

func (c *Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		RequiredRepeats: c.Tracker.RequiredRepeats,
		RefreshPeriod:   c.Tracker.RefreshPeriod,
		Residual:        c.Tracker.Residual,
		Policy:          c.Tracker.Policy,
	}
}

// Normalizer builds the plate normalizer. Validate has already checked the
// substitution table.
func (c *Config) Normalizer() *utils.Normalizer {
	subst, _ := utils.ParseSubstitutions(c.Plate.Substitutions)
	return utils.NewNormalizer(c.Plate.Lengths, subst)
}
