package main

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/utilitywarehouse/github-backup/pkg/backup"
	"gopkg.in/yaml.v3"
)

const (
	defaultBackupDir  = "backup"
	defaultLogFile    = "logfile.log"
	defaultLogLevel   = "info"
	defaultDetectMode = backup.DetectFetch

	// logFileStderr as log file sends logs to stderr
	logFileStderr = "-"
)

// Config holds the settings of a backup run. Every field can be set by a
// flag, an env variable or the optional yaml config file.
type Config struct {
	Token        string        `yaml:"token"`
	BackupDir    string        `yaml:"backup_dir"`
	LogFile      string        `yaml:"log_file"`
	LogLevel     string        `yaml:"log_level"`
	InstallRoot  string        `yaml:"install_root"`
	DetectMode   string        `yaml:"detect_mode"`
	RepoTimeout  time.Duration `yaml:"repo_timeout"`
	GitHubAPIURL string        `yaml:"github_api_url"`
	MetricsFile  string        `yaml:"metrics_file"`
}

// loadConfig builds config from yaml file (if any) and command flags.
// flags and env variables take precedence over the file, defaults are applied
// to whatever is still empty.
func loadConfig(c *cli.Command) (*Config, error) {
	conf := &Config{}
	if path := c.String("config"); path != "" {
		fileConf, err := parseConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to parse config file path:%s err:%w", path, err)
		}
		conf = fileConf
	}

	applyFlags(c, conf)

	if err := applyDefaults(conf); err != nil {
		return nil, err
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// applyFlags overrides config with flags explicitly set on command line or
// via env variables
func applyFlags(c *cli.Command, conf *Config) {
	stringFlags := map[string]*string{
		"token":          &conf.Token,
		"backup-dir":     &conf.BackupDir,
		"log-file":       &conf.LogFile,
		"log-level":      &conf.LogLevel,
		"install-root":   &conf.InstallRoot,
		"detect-mode":    &conf.DetectMode,
		"github-api-url": &conf.GitHubAPIURL,
		"metrics-file":   &conf.MetricsFile,
	}
	for name, field := range stringFlags {
		if c.IsSet(name) {
			*field = c.String(name)
		}
	}
	if c.IsSet("repo-timeout") {
		conf.RepoTimeout = c.Duration("repo-timeout")
	}
}

func applyDefaults(conf *Config) error {
	if conf.InstallRoot == "" {
		root, err := executableDir()
		if err != nil {
			return fmt.Errorf("unable to find installation root err:%w", err)
		}
		conf.InstallRoot = root
	}

	if conf.BackupDir == "" {
		conf.BackupDir = defaultBackupDir
	}
	if conf.LogFile == "" {
		conf.LogFile = defaultLogFile
	}
	if conf.LogLevel == "" {
		conf.LogLevel = defaultLogLevel
	}
	if conf.DetectMode == "" {
		conf.DetectMode = string(defaultDetectMode)
	}

	// relative paths are relative to installation root not CWD
	conf.BackupDir = resolvePath(conf.InstallRoot, conf.BackupDir)
	if conf.LogFile != logFileStderr {
		conf.LogFile = resolvePath(conf.InstallRoot, conf.LogFile)
	}
	if conf.MetricsFile != "" {
		conf.MetricsFile = resolvePath(conf.InstallRoot, conf.MetricsFile)
	}
	return nil
}

func (conf *Config) validate() error {
	if conf.Token == "" {
		return fmt.Errorf("access token is required, set --token or ACCESS_TOKEN")
	}
	if _, ok := levelStrings[strings.ToLower(conf.LogLevel)]; !ok {
		return fmt.Errorf("invalid log level %q", conf.LogLevel)
	}
	switch backup.DetectMode(conf.DetectMode) {
	case backup.DetectFetch, backup.DetectProbe:
	default:
		return fmt.Errorf("invalid detect mode %q, must be one of %s, %s", conf.DetectMode, backup.DetectFetch, backup.DetectProbe)
	}
	if conf.RepoTimeout < 0 {
		return fmt.Errorf("repo timeout cannot be negative")
	}
	return nil
}

func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

// executableDir returns directory of the running binary
func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func parseConfigFile(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = validateConfig(yamlFile)
	if err != nil {
		return nil, err
	}

	conf := &Config{}
	err = yaml.Unmarshal(yamlFile, conf)
	if err != nil {
		return nil, err
	}

	return conf, nil
}

func validateConfig(yamlData []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return err
	}

	// check config for unexpected keys
	if key := findUnexpectedKey(raw, getAllowedKeys(Config{})); key != "" {
		return fmt.Errorf("unexpected key: .%v", key)
	}

	return nil
}

// getAllowedKeys retrieves a list of allowed keys from the specified struct
func getAllowedKeys(config interface{}) []string {
	var allowedKeys []string
	typ := reflect.TypeOf(config)

	for i := 0; i < typ.NumField(); i++ {
		yamlTag := typ.Field(i).Tag.Get("yaml")
		if yamlTag != "" {
			allowedKeys = append(allowedKeys, yamlTag)
		}
	}
	return allowedKeys
}

func findUnexpectedKey(raw map[string]interface{}, allowedKeys []string) string {
	for key := range raw {
		if !slices.Contains(allowedKeys, key) {
			return key
		}
	}

	return ""
}
