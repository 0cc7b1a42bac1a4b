package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"github.com/utilitywarehouse/github-backup/pkg/backup"
	"github.com/utilitywarehouse/github-backup/pkg/identity"
)

const metricsNamespace = "github_backup"

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	// errIncomplete is returned when run finished but not every repository
	// was backed up
	errIncomplete = errors.New("backup incomplete")

	checkGitVersion = backup.CheckGitVersion
)

func newFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "token",
			Sources: cli.EnvVars("ACCESS_TOKEN", "GIT_TOKEN_CLASSIC"),
			Usage:   "GitHub access token used for API and git transfers.",
		},
		&cli.StringFlag{
			Name:    "backup-dir",
			Sources: cli.EnvVars("BACKUP_DIR"),
			Value:   defaultBackupDir,
			Usage:   "Directory mirrors are stored in, relative paths are resolved against install root.",
		},
		&cli.StringFlag{
			Name:    "log-file",
			Sources: cli.EnvVars("LOG_FILE"),
			Value:   defaultLogFile,
			Usage:   "Log file, relative paths are resolved against install root. '-' logs to stderr.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   defaultLogLevel,
			Usage:   "Log level",
		},
		&cli.StringFlag{
			Name:    "install-root",
			Sources: cli.EnvVars("INSTALL_ROOT"),
			Usage:   "Root for relative paths, defaults to the directory of the executable.",
		},
		&cli.StringFlag{
			Name:    "detect-mode",
			Sources: cli.EnvVars("DETECT_MODE"),
			Value:   string(defaultDetectMode),
			Usage:   "How updates of existing mirrors are detected, 'fetch' or 'probe' (dry-run fetch first).",
		},
		&cli.DurationFlag{
			Name:    "repo-timeout",
			Sources: cli.EnvVars("REPO_TIMEOUT"),
			Usage:   "Time allowed to back up a single repository, 0 means no limit.",
		},
		&cli.StringFlag{
			Name:    "github-api-url",
			Sources: cli.EnvVars("GITHUB_API_URL"),
			Usage:   "GitHub REST API url, for GitHub Enterprise eg. 'https://github.example.com/api/v3/'.",
		},
		&cli.StringFlag{
			Name:    "metrics-file",
			Sources: cli.EnvVars("METRICS_FILE"),
			Usage:   "If set run metrics are written to this file in prometheus text format.",
		},
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("GITHUB_BACKUP_CONFIG"),
			Usage:   "Path to optional yaml config file.",
		},
	}
}

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

// loadEnvFiles loads .env from the executable dir and CWD. variables already
// set in the environment are not overridden.
func loadEnvFiles() {
	var files []string
	if dir, err := executableDir(); err == nil {
		files = append(files, filepath.Join(dir, ".env"))
	}
	files = append(files, ".env")

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logger.Warn("unable to load env file", "path", f, "err", err)
		}
	}
}

// setupLogger sets log level and output, returned closer must be called
// once logging is done
func setupLogger(conf *Config) (io.Closer, error) {
	if v, ok := levelStrings[strings.ToLower(conf.LogLevel)]; ok {
		loggerLevel.Set(v)
	}

	var out io.WriteCloser = nopCloser{os.Stderr}
	if conf.LogFile != logFileStderr {
		if err := os.MkdirAll(filepath.Dir(conf.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("unable to create log dir err:%w", err)
		}
		f, err := os.OpenFile(conf.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("unable to open log file err:%w", err)
		}
		out = f
	}

	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
	slog.SetDefault(logger)

	return out, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// runBackup backs up every repository owned by the token's account
func runBackup(ctx context.Context, conf *Config) error {
	var registry *prometheus.Registry
	if conf.MetricsFile != "" {
		registry = prometheus.NewRegistry()
		backup.EnableMetrics(metricsNamespace, registry)
		defer func() {
			if err := prometheus.WriteToTextfile(conf.MetricsFile, registry); err != nil {
				logger.Error("unable to write metrics file", "path", conf.MetricsFile, "err", err)
			}
		}()
	}

	// git must never prompt for credentials, token is part of the remote url
	gitENV := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("HOME=%s", os.Getenv("HOME")),
		"GIT_TERMINAL_PROMPT=0",
	}
	runner := backup.NewGitRunner(logger.With("logger", "git"), gitENV)

	// fail before any repository is touched, with old git every update fails
	gitVersion, err := checkGitVersion(ctx, runner)
	if err != nil {
		return err
	}

	store := backup.NewStore(afero.NewOsFs(), conf.BackupDir)
	if err := store.EnsureDirectory(store.Root()); err != nil {
		return err
	}

	opts := []identity.Option{identity.WithLogger(logger.With("logger", "identity"))}
	if conf.GitHubAPIURL != "" {
		opts = append(opts, identity.WithBaseURL(conf.GitHubAPIURL))
	}
	client, err := identity.Authenticate(ctx, conf.Token, opts...)
	if err != nil {
		return err
	}
	logger.Info("authenticated", "login", client.Login(), "backup-dir", store.Root(), "git-version", gitVersion)

	engine, err := backup.NewEngine(
		store,
		runner,
		conf.Token,
		logger,
		backup.WithDetectMode(backup.DetectMode(conf.DetectMode)),
		backup.WithTimeout(conf.RepoTimeout),
	)
	if err != nil {
		return err
	}

	summary, err := backup.NewCoordinator(engine, logger).Run(ctx, client.OwnedRepositories())
	if err != nil {
		return err
	}
	if !summary.Complete() || summary.Failed > 0 {
		return fmt.Errorf("%w: processed:%d discovered:%d failed:%d",
			errIncomplete, summary.Processed, summary.Discovered, summary.Failed)
	}
	return nil
}

// exitCode maps run errors to process exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errIncomplete), errors.Is(err, context.Canceled):
		return 2
	default:
		return 1
	}
}

func main() {
	loadEnvFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "github-backup",
		Usage: "github-backup mirrors every repository owned by the authenticated GitHub account.",
		Flags: newFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}

			closer, err := setupLogger(conf)
			if err != nil {
				return err
			}
			defer closer.Close()

			err = runBackup(ctx, conf)
			if err != nil && !errors.Is(err, errIncomplete) {
				logger.Error("backup failed", "err", err)
			}
			return err
		},
	}

	err := cmd.Run(ctx, os.Args)
	if err != nil && !errors.Is(err, errIncomplete) {
		// logger might be writing to a file, make sure failure is visible
		fmt.Fprintf(os.Stderr, "github-backup: %v\n", err)
	}
	stop()
	os.Exit(exitCode(err))
}
