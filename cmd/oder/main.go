package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/erazemk/oder/internal/config"
)

const usage = `Usage: oder [command] [flags]

Commands:
  serve                   run the HTTP server (default)
  init                    create the database and the admin account
  import -f <file>        load a JSON export of pieces and orders
  assets add -m <model> <id|from-to>...
                          add pieces to the catalog

Common flags:
  -c, -config <path>      YAML config file (default: $ODER_CONFIG)
  -d, -db <path>          SQLite database path (default: oder.sqlite3)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

Run "oder <command> -h" for the flags of a command.
`

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = cmdServe(args)
	case "init":
		err = cmdInit(args)
	case "import":
		err = cmdImport(args)
	case "assets":
		err = cmdAssets(args)
	case "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the flags every command accepts.
type globals struct {
	configPath string
	dbPath     string
	logPath    string
}

func (g *globals) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "")
	fs.StringVar(&g.configPath, "c", "", "")
	fs.StringVar(&g.dbPath, "db", "", "")
	fs.StringVar(&g.dbPath, "d", "", "")
	fs.StringVar(&g.logPath, "log", "", "")
	fs.StringVar(&g.logPath, "l", "", "")
}

// load reads .env, the config file and the flag overrides, then sets up
// logging. The returned cleanup closes the log file.
func (g *globals) load() (*config.Config, func(), error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}

	path := g.configPath
	if path == "" {
		path = os.Getenv("ODER_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if g.dbPath != "" {
		cfg.Database.Path = g.dbPath
	}
	if g.logPath != "" {
		cfg.Log.Path = g.logPath
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, err
	}
	cleanup, err := setupLogger(cfg.Log.Path, level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cleanup, nil
}

// parse parses args, printing help text on -h. Leftover arguments are an
// error unless positional is set.
func parse(fs *flag.FlagSet, args []string, help string, positional bool) error {
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(os.Stdout, help) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !positional && fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return nil
}
