package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/atelier/internal"
	pkgconfig "github.com/starford/atelier/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	// flags fill what the file leaves out and win over what it sets
	applyOverrides(cmd, cfg)
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cmd *cli.Command, cfg *internal.Config) {
	if v := cmd.String("remote"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := cmd.String("token"); v != "" {
		cfg.Identity.Token = v
		cfg.Identity.TokenFile = ""
	}
	if v := cmd.String("export-dir"); v != "" {
		cfg.Export.Target = internal.ExportTargetDir
		cfg.Export.Dir = v
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "atelier",
		Usage:  "Browse, like, export and generate AI creations from a remote collection",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "remote",
				Usage:   "Base URL of the remote collection API",
				Sources: cli.EnvVars("ATELIER_REMOTE_URL"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token for the remote API",
				Sources: cli.EnvVars("ATELIER_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "export-dir",
				Usage:   "Save exports to this directory",
				Sources: cli.EnvVars("ATELIER_EXPORT_DIR"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at the configured level on stderr for one-shot commands",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and event stream",
				Action: serve,
			},
			listCommand("list", "List your creations", "own"),
			listCommand("community", "List published creations", "community"),
			likeCommand(),
			deleteCommand(),
			exportCommand(),
			searchCommand(),
			viewCommand(),
			generateCommand(),
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
