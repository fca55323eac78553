// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2017-2023 The Spacemesh developers

package server

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/spacemeshos/noncemine/clock"
	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/miner"
	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
	"github.com/spacemeshos/noncemine/validator"
)

const (
	defaultDbDirName       = "db"
	defaultDataDirname     = "data"
	defaultLogDirname      = "logs"
	defaultRegistryName    = "registry.yaml"
	defaultMaxLogFiles     = 3
	defaultMaxLogFileSize  = 10
	defaultListenPort      = 8091
	defaultRegistrySync    = time.Minute
	defaultLogFilename     = "noncemine.log"
	defaultCommitmentCache = validator.DefaultCacheSize
)

type Role string

const (
	RoleMiner     Role = "miner"
	RoleValidator Role = "validator"
)

// Config defines the configuration options for a node.
//
// See loadConfig for further details regarding the
// configuration loading+parsing process.
//
//nolint:lll
type Config struct {
	Role           Role    `long:"role"           description:"Which side of the game to play"                                                   choice:"miner" choice:"validator"`
	Genesis        Genesis `long:"genesis-time"   description:"Genesis timestamp in RFC3339 format, required for validators"`
	Dir            string  `long:"dir"            description:"The base directory that contains the node's data, logs, configuration file, etc."`
	ConfigFile     string  `long:"configfile"     description:"Path to configuration file"                                                       short:"c"`
	DataDir        string  `long:"datadir"        description:"The directory to store the node's data within."                                   short:"b"`
	DbDir          string  `long:"dbdir"          description:"The directory to store DBs within"`
	LogDir         string  `long:"logdir"         description:"Directory to log output."`
	DebugLog       bool    `long:"debuglog"       description:"Enable debug logs"`
	JSONLog        bool    `long:"jsonlog"        description:"Whether to log in JSON format"`
	MaxLogFiles    int     `long:"maxlogfiles"    description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int     `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	RawListener    string  `long:"listen"         description:"The interface/port to listen for challenges on (miner)"                          short:"l"`
	MetricsPort    *uint16 `long:"metrics-port"   description:"The port to expose metrics"`
	DomainSize     uint64  `long:"domain-size"    description:"Number of candidate nonces, candidates are drawn from [0, domain-size)"`
	CommitmentsLRU int     `long:"commitments-cache" description:"Number of commitments cached in memory (validator)"`

	CPUProfile string `long:"cpuprofile" description:"Write CPU profile to the specified file"`
	Profile    string `long:"profile"    description:"Enable HTTP profiling on given port -- must be between 1024 and 65535"`

	Block     *clock.BlockConfig `group:"Block"`
	Miner     miner.Config       `group:"Miner"`
	Validator validator.Config   `group:"Validator"`
	Registry  RegistryConfig     `group:"Registry"`
}

//nolint:lll
type RegistryConfig struct {
	Path              string        `long:"registry"               description:"Path to the registry snapshot (YAML)"`
	SyncInterval      time.Duration `long:"registry-sync-interval" description:"How often the registry snapshot is reloaded"`
	VpermitStakeLimit float64       `long:"vpermit-stake-limit"    description:"Participants with a validator permit and more stake than this are not queried"`

	registry.Policy
}

type Genesis time.Time

// UnmarshalFlag implements flags.Unmarshaler.
func (g *Genesis) UnmarshalFlag(value string) error {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return err
	}
	*g = Genesis(t)
	return nil
}

func (g Genesis) Time() time.Time {
	return time.Time(g)
}

func (g Genesis) IsZero() bool {
	return time.Time(g).IsZero()
}

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	dir := "./noncemine"
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		dir = filepath.Join(cacheDir, "noncemine")
	}

	return &Config{
		Role:           RoleMiner,
		Dir:            dir,
		DataDir:        filepath.Join(dir, defaultDataDirname),
		DbDir:          filepath.Join(dir, defaultDbDirName),
		LogDir:         filepath.Join(dir, defaultLogDirname),
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		RawListener:    fmt.Sprintf("localhost:%d", defaultListenPort),
		DomainSize:     shared.DefaultDomainSize,
		CommitmentsLRU: defaultCommitmentCache,
		Block:          clock.DefaultBlockConfig(),
		Miner:          miner.DefaultConfig(),
		Validator:      validator.DefaultConfig(),
		Registry: RegistryConfig{
			Path:              filepath.Join(dir, defaultRegistryName),
			SyncInterval:      defaultRegistrySync,
			VpermitStakeLimit: registry.DefaultVpermitStakeLimit,
		},
	}
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config) (*Config, error) {
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads config from an ini file.
// It uses the provided `cfg` as a base config and overrides it with the values
// from the config file.
func ReadConfigFile(cfg *Config) (*Config, error) {
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	logging.FromContext(context.Background()).Sugar().Debugf("reading config from %s", cfg.ConfigFile)
	if err := flags.IniParse(cfg.ConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %v: %w", cfg.ConfigFile, err)
	}

	return cfg, nil
}

// SetupConfig expands paths and initializes filesystem.
func SetupConfig(cfg *Config) (*Config, error) {
	// If the provided base directory is not the default, we'll modify the
	// path to all of the files and directories that will live within it.
	defaultCfg := DefaultConfig()
	if cfg.Dir != defaultCfg.Dir {
		if cfg.DataDir == defaultCfg.DataDir {
			cfg.DataDir = filepath.Join(cfg.Dir, defaultDataDirname)
		}
		if cfg.LogDir == defaultCfg.LogDir {
			cfg.LogDir = filepath.Join(cfg.Dir, defaultLogDirname)
		}
		if cfg.DbDir == defaultCfg.DbDir {
			cfg.DbDir = filepath.Join(cfg.Dir, defaultDbDirName)
		}
		if cfg.Registry.Path == defaultCfg.Registry.Path {
			cfg.Registry.Path = filepath.Join(cfg.Dir, defaultRegistryName)
		}
	}

	if err := cfg.Block.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %v: %w", cfg.Dir, err)
	}

	// As soon as we're done parsing configuration options, ensure all paths
	// to directories and files are cleaned and expanded before attempting
	// to use them later on.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DbDir = cleanAndExpandPath(cfg.DbDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.Registry.Path = cleanAndExpandPath(cfg.Registry.Path)

	return cfg, nil
}

// LogFile describes the rotated log file.
func (c *Config) LogFile() logging.FileConfig {
	if c.LogDir == "" {
		return logging.FileConfig{}
	}
	return logging.FileConfig{
		Name:       filepath.Join(c.LogDir, defaultLogFilename),
		MaxSizeMB:  c.MaxLogFileSize,
		MaxBackups: c.MaxLogFiles,
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
