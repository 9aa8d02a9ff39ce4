package grid

import (
	"os"
	"strings"
	"time"

	"github.com/kardianos/osext"
	"github.com/mitchellh/mapstructure"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigSection is implemented by every top-level block of the settings
// file.
type ConfigSection interface {
	// SectionId returns the key of the section in the settings file and
	// in environment overrides.
	SectionId() string
	// ValidateAndDefault fills in defaults and reports invalid values.
	ValidateAndDefault() error
}

// Settings holds the configuration shared by all grid binaries. Each binary
// only reads the sections it needs.
type Settings struct {
	Broker     BrokerConfig     `yaml:"broker" mapstructure:"broker"`
	Supervisor SupervisorConfig `yaml:"supervisor" mapstructure:"supervisor"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// BrokerConfig configures the job/result broker.
type BrokerConfig struct {
	// StatusPort is the port of the HTTP status endpoint. Zero disables it.
	StatusPort int `yaml:"status_port" mapstructure:"status_port"`
}

func (c *BrokerConfig) SectionId() string { return "broker" }

func (c *BrokerConfig) ValidateAndDefault() error {
	if c.StatusPort < 0 || c.StatusPort >= 1<<16 {
		return errors.Errorf("status port %d is out of range", c.StatusPort)
	}
	return nil
}

// SupervisorConfig configures the process supervisor.
type SupervisorConfig struct {
	// BasePath holds the server and worker executables and the libraries
	// directory. Defaults to the directory of the running executable.
	BasePath string `yaml:"base_path" mapstructure:"base_path"`
}

func (c *SupervisorConfig) SectionId() string { return "supervisor" }

func (c *SupervisorConfig) ValidateAndDefault() error {
	if c.BasePath != "" {
		return nil
	}
	dir, err := osext.ExecutableFolder()
	if err != nil {
		return errors.Wrap(err, "finding the directory of the running executable")
	}
	c.BasePath = dir
	return nil
}

// WorkerConfig configures the worker polling loop.
type WorkerConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	ImmediateResults bool          `yaml:"immediate_results" mapstructure:"immediate_results"`
	RegisterAttempts int           `yaml:"register_attempts" mapstructure:"register_attempts"`
}

func (c *WorkerConfig) SectionId() string { return "worker" }

func (c *WorkerConfig) ValidateAndDefault() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(c.PollInterval < 0, "poll interval cannot be negative")
	catcher.NewWhen(c.RegisterAttempts < 0, "register attempts cannot be negative")
	if catcher.HasErrors() {
		return catcher.Resolve()
	}

	if c.PollInterval == 0 {
		c.PollInterval = DefaultWorkerPollInterval
	}
	if c.RegisterAttempts == 0 {
		c.RegisterAttempts = DefaultWorkerRegisterAttempts
	}
	return nil
}

// LoggingConfig configures the local logger of a binary.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// Prefix is the path prefix of the log file. An empty prefix logs to
	// standard error.
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

func (c *LoggingConfig) SectionId() string { return "logging" }

func (c *LoggingConfig) ValidateAndDefault() error {
	if c.Level == "" {
		c.Level = level.Info.String()
	}
	if level.FromString(c.Level) == level.Invalid {
		return errors.Errorf("invalid log level '%s'", c.Level)
	}
	return nil
}

func (s *Settings) sections() []ConfigSection {
	return []ConfigSection{&s.Broker, &s.Supervisor, &s.Worker, &s.Logging}
}

// NewSettings reads the settings file at filename, if given, applies
// environment overrides and fills in defaults.
func NewSettings(filename string) (*Settings, error) {
	settings := &Settings{}

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "reading settings file '%s'", filename)
		}
		if err = yaml.Unmarshal(data, settings); err != nil {
			return nil, errors.Wrapf(err, "parsing settings file '%s'", filename)
		}
	}

	if err := settings.ApplyEnvironment(os.Environ()); err != nil {
		return nil, errors.Wrap(err, "applying environment overrides")
	}

	if err := settings.ValidateAndDefault(); err != nil {
		return nil, errors.Wrap(err, "validating settings")
	}

	return settings, nil
}

// ValidateAndDefault validates every section.
func (s *Settings) ValidateAndDefault() error {
	catcher := grip.NewBasicCatcher()
	for _, section := range s.sections() {
		catcher.Wrapf(section.ValidateAndDefault(), "section '%s'", section.SectionId())
	}
	return catcher.Resolve()
}

// ApplyEnvironment overrides settings from variables of the form
// GRID_<SECTION>_<KEY>=value. Unknown sections are ignored.
func (s *Settings) ApplyEnvironment(env []string) error {
	known := map[string]bool{}
	for _, section := range s.sections() {
		known[section.SectionId()] = true
	}

	overrides := map[string]interface{}{}
	for _, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvironmentPrefix+"_") {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(name, EnvironmentPrefix+"_")), "_")
		if !ok || !known[section] {
			continue
		}
		values, _ := overrides[section].(map[string]interface{})
		if values == nil {
			values = map[string]interface{}{}
			overrides[section] = values
		}
		values[key] = value
	}

	if len(overrides) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           s,
	})
	if err != nil {
		return errors.Wrap(err, "creating settings decoder")
	}

	return errors.Wrap(decoder.Decode(overrides), "decoding environment overrides")
}

// EnvironmentKey returns the name of the environment variable that overrides
// the given key of the given section.
func EnvironmentKey(section, key string) string {
	return strings.ToUpper(strings.Join([]string{EnvironmentPrefix, section, key}, "_"))
}
