package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/erazemk/oder/internal/legacy"
)

const initUsage = `Usage: oder init [flags]

Flags:
  -u, -user <name>        admin username (default: Admin)
  -c, -config <path>      YAML config file
  -d, -db <path>          SQLite database path (default: oder.sqlite3)
  -h, -help               show this help and exit
`

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	var g globals
	g.register(fs)

	var adminUser string
	fs.StringVar(&adminUser, "user", "", "")
	fs.StringVar(&adminUser, "u", "", "")

	if err := parse(fs, args, initUsage, false); err != nil {
		return err
	}
	cfg, closeLog, err := g.load()
	if err != nil {
		return err
	}
	defer closeLog()
	if adminUser != "" {
		cfg.Auth.AdminUser = adminUser
	}

	if _, err := os.Stat(cfg.Database.Path); err == nil {
		return fmt.Errorf("database file %s already exists", cfg.Database.Path)
	}

	database, password, err := initDatabase(cfg.Database.Path, cfg.Auth.AdminUser)
	if err != nil {
		return err
	}
	database.Close()

	printInitResult(cfg.Database.Path, cfg.Auth.AdminUser, password)
	return nil
}

const importUsage = `Usage: oder import -f <file> [flags]

Loads pieces and orders from a JSON export. Records with the same id are
replaced; orders are stored as exported and reconciled on the next claim.

Flags:
  -f, -file <path>        export file (required)
  -c, -config <path>      YAML config file
  -d, -db <path>          SQLite database path (default: oder.sqlite3)
  -l, -log <path>         log file path
  -h, -help               show this help and exit
`

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	var g globals
	g.register(fs)

	var file string
	fs.StringVar(&file, "file", "", "")
	fs.StringVar(&file, "f", "", "")

	if err := parse(fs, args, importUsage, false); err != nil {
		return err
	}
	if file == "" {
		fs.Usage()
		return fmt.Errorf("-file is required")
	}

	cfg, closeLog, err := g.load()
	if err != nil {
		return err
	}
	defer closeLog()

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening export: %w", err)
	}
	defer f.Close()

	export, err := legacy.Parse(f, cfg.Custody.IDWidth)
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	svc, closeBackend, err := openService(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer closeBackend()

	if err := svc.Import(ctx, export.Assets, export.Orders); err != nil {
		return fmt.Errorf("importing: %w", err)
	}
	slog.Info("export imported", "file", file, "assets", len(export.Assets), "orders", len(export.Orders))
	return nil
}

const assetsUsage = `Usage: oder assets add -m <model> [flags] <id|from-to>...

Adds pieces of one model to the catalog. A range such as 0001-0020 adds
every id in it.

Flags:
  -m, -model <name>       model name (required)
  -c, -config <path>      YAML config file
  -d, -db <path>          SQLite database path (default: oder.sqlite3)
  -l, -log <path>         log file path
  -h, -help               show this help and exit
`

func cmdAssets(args []string) error {
	if len(args) == 0 || args[0] != "add" {
		fmt.Fprint(os.Stdout, assetsUsage)
		return fmt.Errorf("expected: assets add")
	}

	fs := flag.NewFlagSet("assets add", flag.ContinueOnError)
	var g globals
	g.register(fs)

	var modelName string
	fs.StringVar(&modelName, "model", "", "")
	fs.StringVar(&modelName, "m", "", "")

	if err := parse(fs, args[1:], assetsUsage, true); err != nil {
		return err
	}
	if strings.TrimSpace(modelName) == "" || fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("a model and at least one id are required")
	}

	cfg, closeLog, err := g.load()
	if err != nil {
		return err
	}
	defer closeLog()

	ids, err := expandIDs(fs.Args(), cfg.Custody.IDWidth)
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	svc, closeBackend, err := openService(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer closeBackend()

	assets, err := svc.ProvisionAssets(ctx, modelName, ids)
	if err != nil {
		return err
	}
	fmt.Printf("Added %d pieces of %s.\n", len(assets), modelName)
	return nil
}

// maxRange bounds how many ids a single range argument may produce.
const maxRange = 10000

// expandIDs turns arguments like "0007" and "0001-0020" into zero-padded ids.
func expandIDs(args []string, width int) ([]string, error) {
	var ids []string
	for _, arg := range args {
		from, to, isRange := strings.Cut(arg, "-")
		if !isRange {
			id, err := legacy.PadID(arg, width)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
			continue
		}

		lo, err1 := strconv.Atoi(from)
		hi, err2 := strconv.Atoi(to)
		if err1 != nil || err2 != nil || lo < 0 || hi < lo {
			return nil, fmt.Errorf("invalid id range %q", arg)
		}
		if hi-lo >= maxRange {
			return nil, fmt.Errorf("id range %q is larger than %d", arg, maxRange)
		}
		for n := lo; n <= hi; n++ {
			id, err := legacy.PadID(strconv.Itoa(n), width)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
