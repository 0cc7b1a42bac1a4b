// Package backup mirrors (bare clones) remote repositories to local disk and
// keeps those mirrors up to date on repeated runs.
//
// Every repository is stored as a bare mirror repository at
// `<root>/<owner>/<name>.git`. A repository without a local mirror is cloned
// with `git clone --mirror`, an existing mirror is updated with
// `git fetch --prune` after its remote url is refreshed with the current
// access token. The porcelain output of the fetch decides whether the mirror
// received new content. An existing directory which is not a bare repository
// fails with ErrFilesystem, an empty one is cloned into.
//
// Updates rely on `git fetch --porcelain`, git 2.41 or newer is required.
// CheckGitVersion verifies the installed version before any repository is
// synced.
//
// Repositories are synchronised strictly one at a time. At most one run may
// use a given root at a time, concurrent runs against the same root are not
// supported.
//
// # Logging:
//
// package takes slog reference for logging and prints logs up to 'trace' level
//
// Example:
//
//	loggerLevel  = new(slog.LevelVar)
//	levelStrings = map[string]slog.Level{
//		"trace": slog.Level(-8),
//		"debug": slog.LevelDebug,
//		"info":  slog.LevelInfo,
//		"warn":  slog.LevelWarn,
//		"error": slog.LevelError,
//	}
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//		Level: loggerLevel,
//	}))
//	loggerLevel.Set(levelStrings["trace"])
//
//	runner := backup.NewGitRunner(logger, nil)
//	if _, err := backup.CheckGitVersion(ctx, runner); err != nil {
//		panic(err)
//	}
//
//	store := backup.NewStore(afero.NewOsFs(), "/var/backup/github")
//	engine, err := backup.NewEngine(store, runner, token, logger)
//	if err != nil {
//		panic(err)
//	}
//	summary, err := backup.NewCoordinator(engine, logger).Run(ctx, repos)
package backup
