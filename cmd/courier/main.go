package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/courier/internal/filter"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// Exit codes.
const (
	exitOK        = 0
	exitPartial   = 1 // some items were transferred before the failure
	exitFailed    = 2
	exitCancelled = 130
)

// options holds flag values shared by every command.
type options struct {
	configFile string
	verbose    bool
	quiet      bool
	noProgress bool
	logFile    string

	verify     bool
	bwLimit    string
	sshKeyFile string
	sshPort    int
	insecure   bool

	chain      *filter.Chain
	filterFile string
	minSize    string
	maxSize    string
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

func run() int {
	opts := &options{chain: filter.NewChain()}
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:           "courier",
		Short:         "Copy, move, archive and soft-delete files across local, SFTP and S3 volumes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "courier %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/courier/config.toml)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress display")
	pf.StringVar(&opts.logFile, "log", "", "write a structured JSON log to FILE (rotated)")
	pf.BoolVar(&opts.verify, "verify", false, "verify each copied file (BLAKE3)")
	pf.StringVar(&opts.bwLimit, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	pf.StringVar(&opts.sshKeyFile, "ssh-key", "", "SSH private key file (default: auto-detect)")
	pf.IntVar(&opts.sshPort, "ssh-port", 22, "SSH port")
	pf.BoolVar(&opts.insecure, "insecure", false, "skip SSH known_hosts verification")

	rootCmd.AddCommand(
		newTransferCmd(opts, false),
		newTransferCmd(opts, true),
		newArchiveCmd(opts),
		newDeleteCmd(opts),
		docsCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailed
	}
	return exitOK
}

// addFilterFlags registers the enumeration filters on a transfer command.
func addFilterFlags(fs *pflag.FlagSet, opts *options) {
	fs.Var(&filterFlag{chain: opts.chain}, "exclude", "exclude files matching PATTERN (repeatable)")
	fs.Var(&filterFlag{chain: opts.chain, include: true}, "include", "include files matching PATTERN (repeatable)")
	fs.StringVar(&opts.filterFile, "filter", "", "read filter rules from FILE")
	fs.StringVar(&opts.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	fs.StringVar(&opts.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
}

// buildFilter finishes the chain from the file and size flags. A nil chain
// means no filtering.
func buildFilter(opts *options) (*filter.Chain, error) {
	if opts.filterFile != "" {
		if err := opts.chain.LoadFile(opts.filterFile); err != nil {
			return nil, fmt.Errorf("load filter file: %w", err)
		}
	}
	if opts.minSize != "" {
		n, err := filter.ParseSize(opts.minSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --min-size: %w", err)
		}
		opts.chain.SetMinSize(n)
	}
	if opts.maxSize != "" {
		n, err := filter.ParseSize(opts.maxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-size: %w", err)
		}
		opts.chain.SetMaxSize(n)
	}
	if opts.chain.Empty() {
		return nil, nil
	}
	return opts.chain, nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
