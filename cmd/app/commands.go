package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/atelier/internal"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/console"
	"github.com/starford/atelier/internal/generate"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/remote"
)

var errMissingArg = errors.New("missing argument")

func scopeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "scope",
		Usage: "own or community",
		Value: string(remote.ScopeOwn),
	}
}

// openView loads the config, opens and mounts the single view for scope.
func openView(ctx context.Context, cmd *cli.Command, scope string) (*internal.Runtime, *collection.Controller, error) {
	sc, err := remote.ParseScope(scope)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelError
	if cmd.Bool("verbose") {
		level = cfg.App.LogLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	rt, err := internal.Open(ctx,
		internal.WithConfig(cfg),
		internal.WithLogger(logger),
		internal.WithNotices(&notice.WriterSink{W: os.Stderr}),
		internal.WithScopes(sc),
	)
	if err != nil {
		return nil, nil, err
	}
	if err := rt.Mount(ctx); err != nil {
		_ = rt.Close()
		return nil, nil, err
	}
	return rt, rt.View(sc), nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("%w: %s", errMissingArg, name)
	}
	return v, nil
}

func listCommand(name, usage, scope string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "all, article, blog-title, image or resume-review"},
			&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := models.ParseFilter(cmd.String("filter"))
			if err != nil {
				return err
			}
			rt, v, err := openView(ctx, cmd, scope)
			if err != nil {
				return err
			}
			defer rt.Close()

			v.SetFilter(f)
			if page := int(cmd.Int("page")); page != 1 {
				if err := v.SetPage(page); err != nil {
					return err
				}
			}
			console.RenderPage(os.Stdout, v.View(), v.UserID())
			return nil
		},
	}
}

func likeCommand() *cli.Command {
	return &cli.Command{
		Name:      "like",
		Usage:     "Like a creation, or remove your like",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{scopeFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "creation id")
			if err != nil {
				return err
			}
			rt, v, err := openView(ctx, cmd, cmd.String("scope"))
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := v.ToggleLike(ctx, id)
			if err != nil {
				return err
			}
			return p.Wait(ctx)
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete one of your creations",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "creation id")
			if err != nil {
				return err
			}
			rt, v, err := openView(ctx, cmd, string(remote.ScopeOwn))
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := v.Delete(ctx, id)
			if err != nil {
				return err
			}
			return p.Wait(ctx)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Save a creation to the export target",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			scopeFlag(),
			&cli.StringFlag{Name: "name", Aliases: []string{"o"}, Usage: "File name (default derived from the creation)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "creation id")
			if err != nil {
				return err
			}
			rt, v, err := openView(ctx, cmd, cmd.String("scope"))
			if err != nil {
				return err
			}
			defer rt.Close()

			r, err := v.ExportAs(ctx, id, cmd.String("name"))
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%d bytes\tsha256:%s\n", r.Destination, r.Size, r.Checksum)
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the cached collection",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			scopeFlag(),
			&cli.IntFlag{Name: "limit", Value: 20},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query, err := requireArg(cmd, "query")
			if err != nil {
				return err
			}
			rt, v, err := openView(ctx, cmd, cmd.String("scope"))
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := v.Search(query, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			console.RenderSearch(os.Stdout, results)
			return nil
		},
	}
}

func viewCommand() *cli.Command {
	return &cli.Command{
		Name:      "view",
		Usage:     "Open a creation in the terminal lightbox (←/→ to move, e to export, Esc to close)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			scopeFlag(),
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "creation id")
			if err != nil {
				return err
			}
			f, err := models.ParseFilter(cmd.String("filter"))
			if err != nil {
				return err
			}
			rt, v, err := openView(ctx, cmd, cmd.String("scope"))
			if err != nil {
				return err
			}
			defer rt.Close()

			v.SetFilter(f)
			return console.NewViewer(v, os.Stdin, os.Stdout).Run(ctx, id)
		},
	}
}

func generateCommand() *cli.Command {
	run := func(build func(cmd *cli.Command) (generate.Request, error)) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			req, err := build(cmd)
			if err != nil {
				return err
			}
			// fail on bad input before touching the network
			if err := req.Validate(); err != nil {
				return err
			}
			rt, v, err := openView(ctx, cmd, string(remote.ScopeOwn))
			if err != nil {
				return err
			}
			defer rt.Close()

			out, err := v.Generate(ctx, req)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
	}
	fileArg := func(cmd *cli.Command) (string, error) { return requireArg(cmd, "file") }

	return &cli.Command{
		Name:  "generate",
		Usage: "Create a new creation through the remote AI endpoints",
		Commands: []*cli.Command{
			{
				Name:  "article",
				Usage: "Write an article",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "topic", Required: true},
					&cli.IntFlag{Name: "length", Value: int64(generate.Lengths[0].Words), Usage: "800, 1200 or 1600"},
				},
				Action: run(func(cmd *cli.Command) (generate.Request, error) {
					return generate.Article{Topic: cmd.String("topic"), Words: int(cmd.Int("length"))}, nil
				}),
			},
			{
				Name:  "blog-title",
				Usage: "Suggest blog titles",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "keyword", Required: true},
					&cli.StringFlag{Name: "category", Value: generate.Categories[0]},
				},
				Action: run(func(cmd *cli.Command) (generate.Request, error) {
					return generate.BlogTitle{Keyword: cmd.String("keyword"), Category: cmd.String("category")}, nil
				}),
			},
			{
				Name:  "image",
				Usage: "Generate an image",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Required: true},
					&cli.StringFlag{Name: "style", Value: generate.Styles[0]},
					&cli.BoolFlag{Name: "publish", Usage: "Share with the community"},
				},
				Action: run(func(cmd *cli.Command) (generate.Request, error) {
					return generate.Image{
						Description: cmd.String("description"),
						Style:       cmd.String("style"),
						Publish:     cmd.Bool("publish"),
					}, nil
				}),
			},
			{
				Name:      "remove-background",
				Usage:     "Remove the background of an image",
				ArgsUsage: "<file>",
				Action: run(func(cmd *cli.Command) (generate.Request, error) {
					path, err := fileArg(cmd)
					return generate.RemoveBackground{ImagePath: path}, err
				}),
			},
			{
				Name:      "remove-object",
				Usage:     "Erase one object from an image",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "object", Required: true, Usage: "Single-word object name"},
				},
				Action: run(func(cmd *cli.Command) (generate.Request, error) {
					path, err := fileArg(cmd)
					return generate.RemoveObject{ImagePath: path, Object: cmd.String("object")}, err
				}),
			},
			{
				Name:      "resume-review",
				Usage:     "Review a resume (PDF)",
				ArgsUsage: "<file>",
				Action: run(func(cmd *cli.Command) (generate.Request, error) {
					path, err := fileArg(cmd)
					return generate.ResumeReview{ResumePath: path}, err
				}),
			},
		},
	}
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogger(logger))
}
