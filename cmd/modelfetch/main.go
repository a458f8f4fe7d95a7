package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Zmmoly/modelcache/config"
	"github.com/Zmmoly/modelcache/fetch"
	"github.com/Zmmoly/modelcache/utils"
	log "github.com/sirupsen/logrus"
)

const (
	programName string = "modelfetch"
)

type options struct {
	root            string
	assetsConfig    string
	stripPathPrefix string
	timeout         time.Duration
	progress        bool
	debug           bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run downloads every model listed in the asset document, returns the exit code
func run(args []string, stdout io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(stdout, "%s: %v\n", programName, err)
		return 2
	}

	log.SetLevel(log.WarnLevel)
	if opts.debug {
		log.SetLevel(log.DebugLevel)
	}

	fmt.Fprintf(stdout, "reading asset document %s\n", opts.assetsConfig)

	// the document is not seeded here, a missing one is an error
	if _, statErr := os.Stat(opts.assetsConfig); statErr != nil {
		fmt.Fprintf(stdout, "asset document %s is not found\n", opts.assetsConfig)
		return 1
	}

	source := config.NewAssetSource(opts.assetsConfig, nil)
	entries, err := source.Downloads()
	if err != nil {
		fmt.Fprintf(stdout, "failed to read asset document: %v\n", err)
		return 1
	}

	fetcher := fetch.NewHTTPFetcher(opts.timeout, nil)
	if opts.progress {
		fetcher.SetProgressFunc(newProgressPrinter(stdout))
	}

	available := 0
	failed := 0
	for _, entry := range entries {
		dest := utils.JoinPath(opts.root, utils.StripPathPrefix(entry.Path, opts.stripPathPrefix))

		if utils.IsNonEmptyFile(dest) {
			fmt.Fprintf(stdout, "already exists: %s\n", entry.Path)
			available++
			continue
		}

		name := utils.GetFileNameWithoutExtension(entry.Path)
		err := fetcher.Fetch(context.Background(), name, entry.URL, dest)
		if err != nil {
			fmt.Fprintf(stdout, "failed to download %s: %v\n", entry.Path, err)
			failed++
			continue
		}

		fmt.Fprintf(stdout, "downloaded %s\n", entry.Path)
		available++
	}

	fmt.Fprintf(stdout, "\n==== summary ====\n")
	fmt.Fprintf(stdout, "available: %d\n", available)
	if failed > 0 {
		fmt.Fprintf(stdout, "failed: %d\n", failed)
		if available == 0 {
			fmt.Fprintf(stdout, "every download failed, models will not be available\n")
			return 1
		}
	}

	return 0
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}

	flagSet := flag.NewFlagSet(programName, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.root, "root", ".", "Project root that asset paths are relative to")
	flagSet.StringVar(&opts.assetsConfig, "config", "", "Path to the asset document (default: <root>/assets-config.yml)")
	flagSet.StringVar(&opts.stripPathPrefix, "strip-prefix", "", "Prefix removed from asset paths before joining with root")
	flagSet.DurationVar(&opts.timeout, "timeout", config.FetchTimeoutDefault, "Timeout of a single download")
	flagSet.BoolVar(&opts.progress, "progress", false, "Print download progress")
	flagSet.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	err := flagSet.Parse(args)
	if err != nil {
		return nil, err
	}

	// the root can also be given positionally
	if flagSet.NArg() > 0 {
		opts.root = flagSet.Arg(0)
	}

	if len(opts.assetsConfig) == 0 {
		opts.assetsConfig = utils.JoinPath(opts.root, config.AssetsConfigFilenameDefault)
	}

	return opts, nil
}

func newProgressPrinter(out io.Writer) fetch.ProgressFunc {
	lastPercent := map[string]int64{}
	return func(name string, processed int64, total int64) {
		if total <= 0 {
			return
		}

		// every 10%
		percent := processed * 100 / total
		if last, ok := lastPercent[name]; ok && percent/10 == last/10 {
			return
		}

		lastPercent[name] = percent
		fmt.Fprintf(out, "  %s: %d%% (%d/%d bytes)\n", name, percent, processed, total)
	}
}
