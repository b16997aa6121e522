package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/listveil/listveil/pkg/classify"
	"github.com/listveil/listveil/pkg/config"
	"github.com/listveil/listveil/pkg/page"
	"github.com/listveil/listveil/pkg/rules"
)

// exitCode carries the wrapped process exit status out of the run command.
var exitCode int

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "listveil",
		Short:        "Hide list items matching stored patterns, and keep hiding them as the list changes",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := os.Setenv("LISTVEIL_CONFIG", configPath); err != nil {
					return fmt.Errorf("failed to set config path: %w", err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().SetNormalizeFunc(normalizeFlags)

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(filterCmd())
	rootCmd.AddCommand(patternsCmd())

	return rootCmd
}

// normalizeFlags maps underscore flag spellings onto their dashed names.
func normalizeFlags(f *flag.FlagSet, name string) flag.NormalizedName {
	return flag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func runCmd() *cobra.Command {
	var (
		url          string
		containerSel string
		itemSel      string
		marker       string
		pollEvery    time.Duration
		window       time.Duration
		apiAddr      string
		noAPI        bool
		backend      string
		storePath    string
		strict       bool
	)

	cmd := &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Watch a source and keep matching items hidden",
		Long: `Run watches an item source and reclassifies its items whenever the
source grows. With --url the source is a polled web page; with a trailing
command the source is that command's output, run under a pseudo-terminal
with matching lines withheld.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.Source.Kind = config.SourcePage
				cfg.Source.Page.URL = url
			}
			if flags.Changed("container") {
				cfg.Source.Page.ContainerSelector = containerSel
			}
			if flags.Changed("items") {
				cfg.Source.Page.ItemSelector = itemSel
			}
			if flags.Changed("marker") {
				cfg.Source.Page.MarkerClass = marker
			}
			if flags.Changed("poll") {
				cfg.Source.Page.PollInterval = pollEvery
			}
			if flags.Changed("window") {
				cfg.Watch.Window = window
			}
			if flags.Changed("api-addr") {
				cfg.API.Addr = apiAddr
			}
			if noAPI {
				cfg.API.Enabled = false
			}
			if flags.Changed("storage") {
				cfg.Storage.Backend = backend
			}
			if flags.Changed("storage-path") {
				cfg.Storage.Path = storePath
			}
			if flags.Changed("strict") {
				cfg.StrictPatterns = strict
			}
			if len(args) > 0 {
				cfg.Source.Kind = config.SourceExec
				cfg.Source.Exec.Command = args[0]
				cfg.Source.Exec.Args = args[1:]
			}

			deps, err := NewDependencies(cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			app := NewApplication(deps)
			err = app.Run(cmd.Context())
			exitCode = app.ExitCode()
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "page URL to watch")
	cmd.Flags().StringVar(&containerSel, "container", "", "selector of the watched container")
	cmd.Flags().StringVar(&itemSel, "items", "", "selector of the items inside the container")
	cmd.Flags().StringVar(&marker, "marker", "", "class token marking hidden items")
	cmd.Flags().DurationVar(&pollEvery, "poll", 0, "page refresh interval")
	cmd.Flags().DurationVar(&window, "window", 0, "debounce window before reclassifying")
	cmd.Flags().StringVar(&apiAddr, "api-addr", "", "control API listen address")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "disable the control API")
	cmd.Flags().StringVar(&backend, "storage", "", "pattern storage backend (file, sqlite, memory)")
	cmd.Flags().StringVar(&storePath, "storage-path", "", "pattern storage location")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail startup on unreadable stored patterns")

	return cmd
}

func filterCmd() *cobra.Command {
	var (
		patterns     []string
		containerSel string
		itemSel      string
		marker       string
	)

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Classify a page read from stdin and write it back out",
		Long: `Filter reads an HTML document from stdin, hides the items matching
the given patterns (or the stored ones when no -p flag is passed), and
writes the rewritten document to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if containerSel == "" {
				containerSel = cfg.Source.Page.ContainerSelector
			}
			if itemSel == "" {
				itemSel = cfg.Source.Page.ItemSelector
			}
			if marker == "" {
				marker = cfg.Source.Page.MarkerClass
			}
			if marker == "" {
				marker = page.DefaultMarkerClass
			}

			set, err := resolveMatchers(cfg, patterns)
			if err != nil {
				return err
			}

			doc, err := page.Parse(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to parse input: %w", err)
			}

			cSel, err := page.ParseSelector(containerSel)
			if err != nil {
				return fmt.Errorf("container selector: %w", err)
			}
			iSel, err := page.ParseSelector(itemSel)
			if err != nil {
				return fmt.Errorf("item selector: %w", err)
			}

			node := doc.Select(cSel)
			if node == nil {
				return fmt.Errorf("no element matches %q", containerSel)
			}

			doc.EnsureHideStyle(marker)
			container := page.NewContainer(doc, node, iSel, marker)
			classify.Classify(container.Items(), set)

			return doc.Render(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVarP(&patterns, "pattern", "p", nil, "pattern to hide (repeatable; default: stored patterns)")
	cmd.Flags().StringVar(&containerSel, "container", "", "selector of the container")
	cmd.Flags().StringVar(&itemSel, "items", "", "selector of the items inside the container")
	cmd.Flags().StringVar(&marker, "marker", "", "class token marking hidden items")

	return cmd
}

// resolveMatchers compiles the explicit patterns, or falls back to the
// persisted ones when none were given.
func resolveMatchers(cfg *config.Config, patterns []string) (*classify.MatcherSet, error) {
	if len(patterns) > 0 {
		set, bad := classify.Compile(patterns)
		if len(bad) > 0 {
			return nil, fmt.Errorf("invalid pattern %q: %v", bad[0].Raw, bad[0].Err)
		}
		return set, nil
	}

	store, cleanup, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return store.Matchers(), nil
}

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Manage the stored hide patterns",
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsAddCmd())
	cmd.AddCommand(patternsRemoveCmd())
	cmd.AddCommand(patternsClearCmd())

	return cmd
}

func patternsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			patterns := store.Patterns()
			if len(patterns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No patterns stored.")
				return nil
			}
			for _, p := range patterns {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func patternsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [pattern]",
		Short: "Store a new hide pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(args[0])
			if raw == "" {
				return fmt.Errorf("pattern is empty")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			before := store.Len()
			if _, err := store.Add(raw); err != nil {
				return err
			}
			if store.Len() == before {
				fmt.Fprintf(cmd.OutOrStdout(), "Pattern already stored: %s\n", raw)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", raw)
			return nil
		},
	}
}

func patternsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [pattern]",
		Short: "Remove a stored hide pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", strings.TrimSpace(args[0]))
			return nil
		},
	}
}

func patternsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clearing removes every stored pattern; pass --yes to confirm")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			n := store.Len()
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d patterns.\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing all patterns")

	return cmd
}

// openStore opens the pattern store named in cfg. The returned cleanup
// releases the storage backend.
func openStore(cfg *config.Config) (*rules.Store, func(), error) {
	kv, err := buildKV(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if closer, ok := kv.(io.Closer); ok {
			_ = closer.Close()
		}
	}

	policy := rules.PolicyExclude
	if cfg.StrictPatterns {
		policy = rules.PolicyStrict
	}

	store, err := rules.Open(kv, cfg.Storage.Key, policy, nil)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}
