package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up                apply pending migrations
  down              roll back the newest migration
  redo              roll back and re-apply the newest migration
  status            list migrations and whether they are applied
  to <version>      move the schema to YYYYMMDDHHMMSS
  create <title>    write a new migration under -dir
  validate          check the migrations under -dir

flags:
`

func main() {
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory for create and validate")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Args()[1:], *dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(command string, args []string, dir string) error {
	// create and validate work on files only and never need credentials.
	switch command {
	case "create":
		if len(args) == 0 {
			return errors.New("create needs a title")
		}
		path, err := migrate.CreateSQLMigration(dir, args[0])
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(dir); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = "migrate"

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "command": command})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql db: %w", err)
	}
	migrator, err := migrate.New(sqlDB, migrate.Source(), logg)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		return migrator.Up(ctx)
	case "down":
		return migrator.Down(ctx)
	case "redo":
		return migrator.Redo(ctx)
	case "to":
		if len(args) == 0 {
			return errors.New("to needs a version")
		}
		version, err := migrate.ParseVersion(args[0])
		if err != nil {
			return err
		}
		return migrator.To(ctx, version)
	case "status":
		rows, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(os.Stdout, rows)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printStatus(w io.Writer, rows []migrate.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED AT\tFILE")
	for _, row := range rows {
		applied := "pending"
		if row.Applied {
			applied = row.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", row.Version, applied, row.Path)
	}
	return tw.Flush()
}
