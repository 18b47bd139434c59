package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/horgh/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds a server's configuration.
type Config struct {
	ListenHost string `yaml:"listen-host" toml:"listen-host" validate:"omitempty,ipv4"`
	ListenPort int    `yaml:"listen-port" toml:"listen-port" validate:"min=0,max=65535"`

	// Server password. May be a bcrypt hash.
	Password string `yaml:"password" toml:"password"`

	// Whether clients must send PASS before registering. Ignored (false) when
	// there is no password.
	PasswordRequired bool `yaml:"password-required" toml:"password-required"`

	ServerName  string `yaml:"server-name" toml:"server-name" validate:"required,hostname_rfc1123"`
	Version     string `yaml:"version" toml:"version" validate:"required"`
	CreatedDate string `yaml:"created-date" toml:"created-date"`
	MOTD        string `yaml:"motd" toml:"motd"`

	MaxNickLength int `yaml:"max-nick-length" toml:"max-nick-length" validate:"min=1,max=64"`

	// Channels one client may be on at once.
	MaxChannels int `yaml:"max-channels" toml:"max-channels" validate:"min=1"`

	// Bytes of pending output before we drop a client.
	MaxSendQueue int `yaml:"max-sendq" toml:"max-sendq" validate:"min=512"`

	// Bytes of unterminated input before we drop a client. 0 for no limit.
	MaxLineLength int `yaml:"max-line-length" toml:"max-line-length" validate:"omitempty,min=512"`

	Backlog int `yaml:"backlog" toml:"backlog" validate:"min=10"`

	// Accept a bare LF as a line terminator.
	LenientFraming bool `yaml:"lenient-framing" toml:"lenient-framing"`

	// host:port to serve Prometheus metrics on. Blank to disable.
	MetricsListen string `yaml:"metrics-listen" toml:"metrics-listen"`

	Debug bool `yaml:"debug" toml:"debug"`
}

// Prefix for environment overrides. listen-port is IRCSERV_LISTEN_PORT.
const envPrefix = "IRCSERV_"

// configKeys are the keys we accept in key = value files and the
// environment.
var configKeys = []string{
	"listen-host",
	"listen-port",
	"password",
	"password-required",
	"server-name",
	"version",
	"created-date",
	"motd",
	"max-nick-length",
	"max-channels",
	"max-sendq",
	"max-line-length",
	"backlog",
	"lenient-framing",
	"metrics-listen",
	"debug",
}

func defaultConfig() *Config {
	return &Config{
		ListenHost:       "0.0.0.0",
		ListenPort:       6667,
		PasswordRequired: true,
		ServerName:       "irc.localhost",
		Version:          "ircserv-1.0",
		CreatedDate:      "at startup",
		MaxNickLength:    30,
		MaxChannels:      10,
		MaxSendQueue:     1024 * 1024,
		MaxLineLength:    4096,
		Backlog:          128,
		LenientFraming:   true,
	}
}

// loadConfig builds the configuration. Later sources win: defaults, then the
// config file (if any), then the environment (after loading envFile if it
// exists).
func loadConfig(file, envFile string) (*Config, error) {
	cfg := defaultConfig()

	if file != "" {
		if err := cfg.readFile(file); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("unable to load %s: %s", envFile, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readFile reads a config file. The format comes from the extension. Anything
// not yaml or toml is key = value.
func (c *Config) readFile(file string) error {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		buf, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("unable to read config: %s", err)
		}
		if err := yaml.Unmarshal(buf, c); err != nil {
			return fmt.Errorf("unable to parse config: %s: %s", file, err)
		}
		return nil

	case ".toml":
		if _, err := toml.DecodeFile(file, c); err != nil {
			return fmt.Errorf("unable to parse config: %s: %s", file, err)
		}
		return nil

	default:
		configMap, err := config.ReadStringMap(file)
		if err != nil {
			return err
		}
		for key, value := range configMap {
			if err := c.set(key, value); err != nil {
				return err
			}
		}
		return nil
	}
}

func (c *Config) applyEnv() error {
	for _, key := range configKeys {
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		value, exists := os.LookupEnv(name)
		if !exists {
			continue
		}
		if err := c.set(key, value); err != nil {
			return fmt.Errorf("%s: %s", name, err)
		}
	}
	return nil
}

// set assigns one key from its string form.
func (c *Config) set(key, value string) error {
	var err error

	switch key {
	case "listen-host":
		c.ListenHost = value
	case "listen-port":
		c.ListenPort, err = parseInt(key, value)
	case "password":
		c.Password = value
	case "password-required":
		c.PasswordRequired, err = parseBool(key, value)
	case "server-name":
		c.ServerName = value
	case "version":
		c.Version = value
	case "created-date":
		c.CreatedDate = value
	case "motd":
		// key = value files have no multi-line values. Use \n instead.
		c.MOTD = strings.ReplaceAll(value, `\n`, "\n")
	case "max-nick-length":
		c.MaxNickLength, err = parseInt(key, value)
	case "max-channels":
		c.MaxChannels, err = parseInt(key, value)
	case "max-sendq":
		c.MaxSendQueue, err = parseInt(key, value)
	case "max-line-length":
		c.MaxLineLength, err = parseInt(key, value)
	case "backlog":
		c.Backlog, err = parseInt(key, value)
	case "lenient-framing":
		c.LenientFraming, err = parseBool(key, value)
	case "metrics-listen":
		c.MetricsListen = value
	case "debug":
		c.Debug, err = parseBool(key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	return err
}

func parseInt(key, value string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid integer: %s", key, value)
	}
	return i, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("%s is not a valid boolean: %s", key, value)
	}
	return b, nil
}

// finalize checks the configuration and settles dependent values.
func (c *Config) finalize() error {
	if c.Password == "" {
		c.PasswordRequired = false
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %s", err)
	}

	// It goes out as a middle parameter in 004.
	if strings.ContainsAny(c.Version, " :") {
		return fmt.Errorf("invalid configuration: version may not contain spaces")
	}

	if c.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			return fmt.Errorf("invalid configuration: metrics-listen: %s", err)
		}
	}

	return nil
}
