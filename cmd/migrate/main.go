package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"voxhall.org/internal/migrate"
)

const usageText = `usage: migrate [flags] <command>

commands:
  up         apply pending migrations
  down       roll back applied migrations
  seed       install seed data (permission catalog, default role)
  provision  up followed by seed; brings a fresh database to ready
  status     list applied migrations and seeds
`

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("VOXHALL_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or VOXHALL_PG_DSN")
	}
	cmd := flag.Arg(0)
	if cmd == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := run(ctx, migrate.NewManager(db, *migrationsPath, *seedsPath), cmd); err != nil {
		log.Fatalf("migrate %s: %v", cmd, err)
	}
}

func run(ctx context.Context, mgr *migrate.Manager, cmd string) error {
	switch cmd {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "seed":
		return mgr.Seed(ctx)
	case "provision":
		if err := mgr.Up(ctx); err != nil {
			return err
		}
		return mgr.Seed(ctx)
	case "status":
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("nothing applied")
			return nil
		}
		for _, item := range history {
			fmt.Println(item)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
