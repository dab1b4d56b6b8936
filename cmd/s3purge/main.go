package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/dev-tams/s3purge/internal/app"
	"github.com/dev-tams/s3purge/internal/config"
	"github.com/dev-tams/s3purge/internal/logger"
)

func main() {
	// .env must be loaded before flags read their EnvVars.
	if err := config.LoadDotEnv(); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "s3purge",
		Usage:     "find and delete object versions and delete markers in versioned buckets",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"S3PURGE_LOG_LEVEL"},
				Usage:   "debug, info, warn or error (default: config log.level, then info)",
			},
			&cli.StringFlag{
				Name:    "log-format",
				EnvVars: []string{"S3PURGE_LOG_FORMAT"},
				Usage:   "console or json (default: config log.format, then console)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				EnvVars: []string{"S3PURGE_VERBOSE"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "purge",
				Usage: "list matching object versions and delete them unless --dry-run is left on",
				Flags: purgeFlags(),
				Action: func(c *cli.Context) error {
					return runPurge(c, out, nil)
				},
			},
			{
				Name:  "list",
				Usage: "list matching object versions without deleting anything",
				Flags: selectionFlags(),
				Action: func(c *cli.Context) error {
					dryRun := true
					return runPurge(c, out, &dryRun)
				},
			},
			{
				Name:  "daemon",
				Usage: "run configured jobs on their schedules",
				Flags: []cli.Flag{
					configFlag(true),
					&cli.StringSliceFlag{
						Name:  "job",
						Usage: "limit to these job names (repeatable)",
					},
					&cli.DurationFlag{
						Name:    "run-timeout",
						EnvVars: []string{"S3PURGE_RUN_TIMEOUT"},
						Usage:   "maximum duration of one triggered run (0 = no limit)",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadValidatedConfig(c.String("config"))
					if err != nil {
						return err
					}
					log, err := newLogger(c, cfg)
					if err != nil {
						return err
					}
					return app.RunDaemon(c.Context, cfg, app.RunOptions{
						Jobs: c.StringSlice("job"),
						Out:  out,
						Log:  log,
					}, c.Duration("run-timeout"))
				},
			},
			{
				Name:  "manifest",
				Usage: "inspect manifest files written by purge runs",
				Subcommands: []*cli.Command{
					{
						Name:  "show",
						Usage: "print the object versions recorded in a manifest",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "from",
								Required: true,
								Usage:    "path to the manifest file",
							},
							&cli.StringFlag{
								Name:    "password",
								EnvVars: []string{"S3PURGE_MANIFEST_PASSWORD"},
								Usage:   "password for encrypted manifests",
							},
						},
						Action: func(c *cli.Context) error {
							return app.ShowManifest(c.String("from"), c.String("password"), out)
						},
					},
				},
			},
			{
				Name:  "validate",
				Usage: "check a config file",
				Flags: []cli.Flag{configFlag(true)},
				Action: func(c *cli.Context) error {
					cfg, err := loadValidatedConfig(c.String("config"))
					if err != nil {
						return err
					}
					color.New(color.FgGreen).Fprintf(out, "config OK: %d storage backend(s), %d job(s)\n", len(cfg.Storage), len(cfg.Jobs))
					return nil
				},
			},
		},
	}
}

func runPurge(c *cli.Context, out io.Writer, forceDryRun *bool) error {
	var (
		cfg  *config.Config
		opts = app.RunOptions{Out: out, DryRun: forceDryRun}
		err  error
	)

	if c.IsSet("config") {
		cfg, err = loadValidatedConfig(c.String("config"))
		if err != nil {
			return err
		}
		opts.Jobs = c.StringSlice("job")
		if forceDryRun == nil && c.IsSet("dry-run") {
			dryRun := c.Bool("dry-run")
			opts.DryRun = &dryRun
		}
	} else {
		cfg, err = adhocConfig(c)
		if err != nil {
			return err
		}
	}

	opts.Log, err = newLogger(c, cfg)
	if err != nil {
		return err
	}

	_, err = app.RunPurge(c.Context, cfg, opts)
	return err
}

func newLogger(c *cli.Context, cfg *config.Config) (zerolog.Logger, error) {
	level, format := c.String("log-level"), c.String("log-format")
	if cfg != nil {
		if level == "" {
			level = cfg.Log.Level
		}
		if format == "" {
			format = cfg.Log.Format
		}
	}
	if c.Bool("verbose") {
		level = "debug"
	}
	return logger.New(level, format, c.App.ErrWriter)
}

func loadValidatedConfig(cfgPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFlag(required bool) cli.Flag {
	usage := "path to config file"
	if !required {
		usage += " (replaces the selection flags)"
	}
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Required: required,
		EnvVars:  []string{"S3PURGE_CONFIG"},
		Usage:    usage,
	}
}
