// Package cli parses buildcache command line flags.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const defaultConfig = "buildcache.toml"

// Commands lists the subcommands with their arguments, in usage order.
var Commands = []string{
	"files                      print every file record as JSON",
	"get-file ID                print one file record",
	"put-file ID JSON           store one file record",
	"get-plugin NAME KEY        print a plugin value",
	"put-plugin NAME KEY JSON   store a plugin value",
	"clean                      delete the cache",
	"export FILE                write a snapshot (- for stdout)",
	"import FILE                load a snapshot",
	"push [NAME]                upload a snapshot to the remote",
	"pull [NAME]                restore a snapshot from the remote",
	"snapshots                  list snapshots on the remote",
	"prune [KEEP]               delete old snapshots from the remote",
}

// Options holds parsed flags and the remaining arguments.
type Options struct {
	ConfigPath string
	// ConfigExplicit is set when -config was given; a missing file is then an error.
	ConfigExplicit bool
	Location       string
	Backend        string
	Codec          string
	Verbose        bool
	JSONLogs       bool
	Args           []string
}

// Parse parses args without the program name.
func Parse(args []string) (Options, error) {
	opts := Options{
		ConfigPath: defaultConfig,
	}

	fs := flag.NewFlagSet("buildcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Path to configuration file (.toml, .yaml or .yml)")
	fs.StringVar(&opts.ConfigPath, "c", opts.ConfigPath, "Path to configuration file (.toml, .yaml or .yml)")
	fs.StringVar(&opts.Location, "location", "", "Override the cache directory")
	fs.StringVar(&opts.Backend, "backend", "", "Override the storage backend (leveldb or sqlite)")
	fs.StringVar(&opts.Codec, "codec", "", "Override the value codec, e.g. go-json+zstd")
	fs.BoolVar(&opts.JSONLogs, "log-json", false, "Write logs as JSON")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("%w\n\n%s", err, Usage(fs))
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" || f.Name == "c" {
			opts.ConfigExplicit = true
		}
	})

	opts.Args = fs.Args()
	if len(opts.Args) == 0 {
		return Options{}, fmt.Errorf("missing command\n\n%s", Usage(fs))
	}
	return opts, nil
}

// Usage renders the flag defaults and command list of fs.
func Usage(fs *flag.FlagSet) string {
	if fs == nil {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "Usage: %s [flags] COMMAND [ARGS]\n\nCommands:\n", fs.Name())
	for _, c := range Commands {
		fmt.Fprintf(&buf, "  %s\n", c)
	}
	buf.WriteString("\nFlags:\n")
	out := fs.Output()
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(out)
	return buf.String()
}
