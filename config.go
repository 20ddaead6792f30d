package framefeed

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pion/logging"
)

// FeedConfig is the file form of a feed: which source to open, how the
// pipeline behaves and how verbose logging is. It is stored as TOML:
//
//	[source]
//	type = "TestPattern"
//
//	[source.params]
//	width = 640
//	height = 480
//	format = "BGRA32"
//	pattern = "MovingBox"
//
//	[pipeline]
//	backing_failure_threshold = 30
//
//	[log]
//	level = "info"
//	scopes = { framefeed-pipeline = "debug" }
type FeedConfig struct {
	Source   FeedSource   `toml:"source"`
	Pipeline FeedPipeline `toml:"pipeline"`
	Log      FeedLog      `toml:"log"`
}

type FeedSource struct {
	Type SourceType `toml:"type"`

	// Params are decoded onto the source type's default config.
	Params map[string]interface{} `toml:"params"`
}

type FeedPipeline struct {
	BackingFailureThreshold int `toml:"backing_failure_threshold"`
}

type FeedLog struct {
	Level  string            `toml:"level"`
	Scopes map[string]string `toml:"scopes"`
}

// DefaultFeedConfig returns a feed showing the default test pattern.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Source: FeedSource{
			Type: SourceTypeTestPattern,
		},
		Pipeline: FeedPipeline{
			BackingFailureThreshold: DefaultBackingFailureThreshold,
		},
		Log: FeedLog{
			Level: "info",
		},
	}
}

// SaveFeedConfig writes config as TOML.
func SaveFeedConfig(config FeedConfig, w io.Writer) error {
	return toml.NewEncoder(w).Encode(config)
}

// LoadFeedConfig reads a TOML feed config on top of DefaultFeedConfig.
// Unknown keys outside [source.params] are rejected.
func LoadFeedConfig(r io.Reader) (FeedConfig, error) {
	c := DefaultFeedConfig()

	md, err := toml.NewDecoder(r).Decode(&c)
	if err != nil {
		return c, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return c, fmt.Errorf("unknown feed config keys: %v", undecoded)
	}
	return c, nil
}

// LoadFeedConfigFile reads a TOML feed config from path.
func LoadFeedConfigFile(path string) (FeedConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return FeedConfig{}, err
	}
	defer f.Close()

	c, err := LoadFeedConfig(f)
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoggerFactory builds a pion logger factory with the configured levels.
func (c FeedConfig) LoggerFactory() (*logging.DefaultLoggerFactory, error) {
	f := logging.NewDefaultLoggerFactory()
	if c.Log.Level != "" {
		level, err := parseLogLevel(c.Log.Level)
		if err != nil {
			return nil, err
		}
		f.DefaultLogLevel = level
	}
	for scope, name := range c.Log.Scopes {
		level, err := parseLogLevel(name)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", scope, err)
		}
		f.ScopeLevels[scope] = level
	}
	return f, nil
}

// NewSource creates the configured frame source with loggers from
// loggerFactory. A nil loggerFactory selects c.LoggerFactory().
func (c FeedConfig) NewSource(loggerFactory logging.LoggerFactory) (FrameSource, error) {
	if loggerFactory == nil {
		f, err := c.LoggerFactory()
		if err != nil {
			return nil, err
		}
		loggerFactory = f
	}

	var params interface{}
	if c.Source.Params != nil {
		params = c.Source.Params
	}
	return CreateFrameSourceWithLogger(c.Source.Type, params, loggerFactory)
}

func parseLogLevel(name string) (logging.LogLevel, error) {
	switch strings.ToLower(name) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", name)
	}
}
