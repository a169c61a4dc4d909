package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"zahra/backend/internal/api/handler"
	"zahra/backend/internal/cache"
	"zahra/backend/internal/config"
	"zahra/backend/internal/ledger"
	"zahra/backend/internal/logger"
	"zahra/backend/internal/metrics"
	"zahra/backend/internal/models"
	"zahra/backend/internal/storage"
	"zahra/backend/internal/users"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:  "zahra-admin",
		Usage: "operator tools for the moderation ledger and donor records",
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "postgres connection string",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection string; cache entries are refreshed when set",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "warn",
			EnvVars: []string{"LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		migrateCmd,
		caseCmd,
		userCmd,
		linkCmd,
		tokenCmd,
	}

	return app.Run(args)
}

// services are built lazily so "token" works without a database.
type services struct {
	cases *ledger.Service
	users *users.Service
}

func openServices(cctx *cli.Context) (*services, error) {
	url := cctx.String("database-url")
	if url == "" {
		return nil, errors.New("--database-url or DATABASE_URL is required")
	}
	log := logger.Setup(os.Stderr, cctx.String("log-level"))

	db, err := storage.Open(url, log)
	if err != nil {
		return nil, err
	}

	var c cache.Cache = cache.NewMemory(100, config.CaseCacheTTL)
	if ru := cctx.String("redis-url"); ru != "" {
		opts, err := redis.ParseURL(ru)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		c = cache.NewRedis(redis.NewClient(opts), 0, time.Minute)
	}

	store := storage.NewStorageService(db)
	return &services{
		cases: ledger.NewService(store, c, metrics.Nop{}, log),
		users: users.NewService(store, c, metrics.Nop{}, log),
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArgs(cctx *cli.Context, n int, usage string) error {
	if cctx.Args().Len() < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "manage the database schema",
	Subcommands: []*cli.Command{
		{
			Name:  "up",
			Usage: "apply all pending migrations",
			Action: func(cctx *cli.Context) error {
				if err := storage.RunMigrations(cctx.String("database-url")); err != nil {
					return err
				}
				fmt.Println("schema is up to date")
				return nil
			},
		},
		{
			Name:  "down",
			Usage: "roll back the most recent migration",
			Action: func(cctx *cli.Context) error {
				m, err := storage.NewMigrator(cctx.String("database-url"))
				if err != nil {
					return err
				}
				defer m.Close()
				return m.Steps(-1)
			},
		},
		{
			Name:  "version",
			Usage: "print the applied schema version",
			Action: func(cctx *cli.Context) error {
				m, err := storage.NewMigrator(cctx.String("database-url"))
				if err != nil {
					return err
				}
				defer m.Close()
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty: %t)\n", v, dirty)
				return nil
			},
		},
	},
}

var caseCmd = &cli.Command{
	Name:  "case",
	Usage: "inspect and pardon moderation cases",
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			ArgsUsage: "<case-id>",
			Action: func(cctx *cli.Context) error {
				if err := requireArgs(cctx, 1, "case show <case-id>"); err != nil {
					return err
				}
				s, err := openServices(cctx)
				if err != nil {
					return err
				}
				c, err := s.cases.GetCase(context.Background(), cctx.Args().First())
				if err != nil {
					return err
				}
				return printJSON(c)
			},
		},
		{
			Name:      "list",
			ArgsUsage: "<community-id> <user-id>",
			Action: func(cctx *cli.Context) error {
				if err := requireArgs(cctx, 2, "case list <community-id> <user-id>"); err != nil {
					return err
				}
				s, err := openServices(cctx)
				if err != nil {
					return err
				}
				cases, err := s.cases.ListCasesForUser(context.Background(), cctx.Args().Get(0), cctx.Args().Get(1))
				if err != nil {
					return err
				}
				return printJSON(cases)
			},
		},
		{
			Name:      "pardon",
			ArgsUsage: "<case-id>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "community",
					Usage:    "community the case must belong to",
					Required: true,
				},
			},
			Action: func(cctx *cli.Context) error {
				if err := requireArgs(cctx, 1, "case pardon --community <id> <case-id>"); err != nil {
					return err
				}
				s, err := openServices(cctx)
				if err != nil {
					return err
				}
				c, err := s.cases.Pardon(context.Background(), cctx.Args().First(), cctx.String("community"))
				if err != nil {
					return err
				}
				fmt.Printf("case %s pardoned\n", c.DisplayID())
				return nil
			},
		},
	},
}

var userCmd = &cli.Command{
	Name:  "user",
	Usage: "manage user groups and donor records",
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			ArgsUsage: "<user-id>",
			Action: func(cctx *cli.Context) error {
				if err := requireArgs(cctx, 1, "user show <user-id>"); err != nil {
					return err
				}
				s, err := openServices(cctx)
				if err != nil {
					return err
				}
				p, err := s.users.GetProfile(context.Background(), cctx.Args().First())
				if err != nil {
					return err
				}
				return printJSON(p)
			},
		},
		{
			Name:      "add",
			ArgsUsage: "<user-id> <group>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "platform", Usage: "for the donor group: github or patreon"},
				&cli.StringFlag{Name: "platform-username", Usage: "account name on that platform"},
				&cli.StringFlag{Name: "notes", Usage: "free-form notes stored on the user"},
			},
			Action: func(cctx *cli.Context) error {
				if err := requireArgs(cctx, 2, "user add <user-id> <group>"); err != nil {
					return err
				}
				flag, err := models.ParseGroupFlag(cctx.Args().Get(1))
				if err != nil {
					return err
				}
				var notes *string
				if cctx.IsSet("notes") {
					n := cctx.String("notes")
					notes = &n
				}
				s, err := openServices(cctx)
				if err != nil {
					return err
				}

				ctx := context.Background()
				userID := cctx.Args().First()
				var u *models.User
				if p := cctx.String("platform"); p != "" && flag == models.FlagDonor {
					platform, err := models.ParsePlatform(p)
					if err != nil {
						return err
					}
					u, err = s.users.GrantDonor(ctx, userID, "", platform, cctx.String("platform-username"), notes)
					if err != nil {
						return err
					}
				} else {
					u, err = s.users.AddToGroup(ctx, userID, "", flag, notes)
					if err != nil {
						return err
					}
				}
				return printJSON(u)
			},
		},
		{
			Name:      "remove",
			ArgsUsage: "<user-id> <group>",
			Action: func(cctx *cli.Context) error {
				if err := requireArgs(cctx, 2, "user remove <user-id> <group>"); err != nil {
					return err
				}
				flag, err := models.ParseGroupFlag(cctx.Args().Get(1))
				if err != nil {
					return err
				}
				s, err := openServices(cctx)
				if err != nil {
					return err
				}
				u, err := s.users.RemoveFromGroup(context.Background(), cctx.Args().First(), flag)
				if err != nil {
					return err
				}
				return printJSON(u)
			},
		},
	},
}

var linkCmd = &cli.Command{
	Name:  "link",
	Usage: "manage identity links",
	Subcommands: []*cli.Command{
		{
			Name:      "deactivate",
			ArgsUsage: "<user-id> <platform>",
			Action: func(cctx *cli.Context) error {
				if err := requireArgs(cctx, 2, "link deactivate <user-id> <platform>"); err != nil {
					return err
				}
				platform, err := models.ParsePlatform(cctx.Args().Get(1))
				if err != nil {
					return err
				}
				s, err := openServices(cctx)
				if err != nil {
					return err
				}
				ok, err := s.users.Unlink(context.Background(), cctx.Args().First(), platform)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no active %s link for user %s", platform, cctx.Args().First())
				}
				fmt.Printf("%s link for %s deactivated\n", platform.Label(), cctx.Args().First())
				return nil
			},
		},
	},
}

var tokenCmd = &cli.Command{
	Name:  "token",
	Usage: "mint a bearer token for the admin HTTP API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "secret",
			EnvVars: []string{"API_JWT_SECRET"},
		},
		&cli.StringFlag{
			Name:  "subject",
			Value: "admin",
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Value: handler.DefaultTokenTTL,
		},
	},
	Action: func(cctx *cli.Context) error {
		tok, err := handler.IssueToken([]byte(cctx.String("secret")), cctx.String("subject"), cctx.Duration("ttl"))
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}
