// Package main implements the buildcache CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/buildcache"
	"github.com/hupe1980/buildcache/internal/cli"
	"github.com/hupe1980/buildcache/internal/config"
	"github.com/hupe1980/buildcache/internal/logging"
	"github.com/hupe1980/buildcache/remote"
)

const (
	exitOK       = 0
	exitError    = 1
	exitNotFound = 2
)

var (
	errUsage  = errors.New("usage")
	errAbsent = errors.New("absent")
)

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stdout, err.Error())
			return exitOK
		}
		_, _ = fmt.Fprintln(stderr, err.Error())
		return exitError
	}

	logger := logging.New(logging.Options{
		Verbose: opts.Verbose,
		JSON:    opts.JSONLogs,
		Writer:  stderr,
	})

	cfg, err := loadConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return exitError
	}

	app := &app{cfg: cfg, logger: logger, stdout: stdout}
	if err := app.dispatch(ctx, opts.Args[0], opts.Args[1:]); err != nil {
		switch {
		case errors.Is(err, errAbsent):
			return exitNotFound
		case errors.Is(err, buildcache.ErrNotFound), errors.Is(err, remote.ErrNoSnapshot):
			_, _ = fmt.Fprintln(stderr, err.Error())
			return exitNotFound
		default:
			_, _ = fmt.Fprintln(stderr, err.Error())
			return exitError
		}
	}
	return exitOK
}

// loadConfig reads the config file and applies flag overrides. A missing
// default config file falls back to the built-in defaults.
func loadConfig(opts cli.Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || opts.ConfigExplicit {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = config.Default()
	}

	if opts.Location != "" {
		cfg.Location = opts.Location
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if opts.Codec != "" {
		cfg.Codec = opts.Codec
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type app struct {
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer
}

type command struct {
	minArgs, maxArgs int
	// cache is false for commands that never open the local store.
	cache bool
	run   func(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error
}

func (a *app) commands() map[string]command {
	return map[string]command{
		"files":      {0, 0, true, a.files},
		"get-file":   {1, 1, true, a.getFile},
		"put-file":   {2, 2, true, a.putFile},
		"get-plugin": {2, 2, true, a.getPlugin},
		"put-plugin": {3, 3, true, a.putPlugin},
		"clean":      {0, 0, false, nil},
		"export":     {1, 1, true, a.export},
		"import":     {1, 1, true, a.importFile},
		"push":       {0, 1, true, a.push},
		"pull":       {0, 1, true, a.pull},
		"snapshots":  {0, 0, false, a.snapshots},
		"prune":      {0, 1, false, a.prune},
	}
}

func (a *app) dispatch(ctx context.Context, name string, args []string) error {
	cmd, ok := a.commands()[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		return fmt.Errorf("%w: %s takes %d to %d arguments, got %d", errUsage, name, cmd.minArgs, cmd.maxArgs, len(args))
	}

	c, err := a.newCache()
	if err != nil {
		return err
	}

	if name == "clean" {
		if err := c.Clean(ctx); err != nil {
			return err
		}
		a.logger.Info("cache cleaned", "location", a.cfg.Location)
		return nil
	}

	if !cmd.cache {
		return cmd.run(ctx, nil, args)
	}

	if err := c.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			a.logger.Warn("close cache", "error", err)
		}
	}()
	return cmd.run(ctx, c, args)
}

func (a *app) newCache() (*buildcache.Cache[buildcache.File], error) {
	backend, err := a.cfg.OpenBackend()
	if err != nil {
		return nil, err
	}
	cd, err := a.cfg.OpenCodec()
	if err != nil {
		return nil, err
	}
	return buildcache.New[buildcache.File](a.cfg.Location,
		buildcache.WithBackend(backend),
		buildcache.WithCodec(cd),
		buildcache.WithLogger(buildcache.NewLogger(a.logger.Handler())),
	), nil
}

func (a *app) printJSON(v any) error {
	enc := gojson.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) files(ctx context.Context, c *buildcache.Cache[buildcache.File], _ []string) error {
	files, err := c.Read(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(files)
}

func (a *app) getFile(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error {
	rec, err := c.GetFile(ctx, args[0])
	if err != nil {
		return err
	}
	return a.printJSON(rec)
}

func (a *app) putFile(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error {
	var rec buildcache.File
	if err := gojson.Unmarshal([]byte(args[1]), &rec); err != nil {
		return fmt.Errorf("parse record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("%w: record must be a JSON object", errUsage)
	}
	if _, ok := rec["id"]; !ok {
		rec["id"] = args[0]
	}
	return c.PutFile(ctx, args[0], rec)
}

func (a *app) getPlugin(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error {
	var v any
	found, err := c.GetPlugin(ctx, args[0], args[1], &v)
	if err != nil {
		return err
	}
	if !found {
		return errAbsent
	}
	return a.printJSON(v)
}

func (a *app) putPlugin(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error {
	var v any
	if err := gojson.Unmarshal([]byte(args[2]), &v); err != nil {
		return fmt.Errorf("parse value: %w", err)
	}
	return c.PutPlugin(ctx, args[0], args[1], v)
}

func (a *app) export(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error {
	if args[0] == "-" {
		_, err := c.Export(ctx, a.stdout)
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if _, err := c.Export(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(args[0])
		return err
	}
	return f.Close()
}

func (a *app) importFile(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = c.Import(ctx, f)
	return err
}

func (a *app) push(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error {
	store, err := a.cfg.OpenRemote(ctx)
	if err != nil {
		return err
	}
	res, err := remote.Push(ctx, c, store, optional(args), remote.WithController(a.cfg.TransferController()))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "pushed %s (%d entries)\n", res.Name, res.Stats.Entries)
	return nil
}

func (a *app) pull(ctx context.Context, c *buildcache.Cache[buildcache.File], args []string) error {
	store, err := a.cfg.OpenRemote(ctx)
	if err != nil {
		return err
	}
	res, err := remote.Pull(ctx, c, store, optional(args), remote.WithController(a.cfg.TransferController()))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "pulled %s (%d entries)\n", res.Name, res.Stats.Entries)
	return nil
}

func (a *app) snapshots(ctx context.Context, _ *buildcache.Cache[buildcache.File], _ []string) error {
	store, err := a.cfg.OpenRemote(ctx)
	if err != nil {
		return err
	}
	names, err := remote.List(ctx, store)
	if err != nil {
		return err
	}
	latest, err := remote.LatestName(ctx, store)
	if err != nil && !errors.Is(err, remote.ErrNoSnapshot) {
		return err
	}
	for _, name := range names {
		marker := " "
		if name == latest {
			marker = "*"
		}
		_, _ = fmt.Fprintf(a.stdout, "%s %s\n", marker, name)
	}
	return nil
}

func (a *app) prune(ctx context.Context, _ *buildcache.Cache[buildcache.File], args []string) error {
	keep := a.cfg.Remote.Keep
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: KEEP must be an integer: %w", errUsage, err)
		}
		keep = n
	}

	store, err := a.cfg.OpenRemote(ctx)
	if err != nil {
		return err
	}
	deleted, err := remote.Prune(ctx, store, keep)
	if err != nil {
		return err
	}
	for _, name := range deleted {
		_, _ = fmt.Fprintf(a.stdout, "deleted %s\n", name)
	}
	return nil
}

func optional(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
