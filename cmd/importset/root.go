package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importset/internal/config"
	"github.com/JonMunkholm/importset/internal/core"
	"github.com/JonMunkholm/importset/internal/logging"
	"github.com/JonMunkholm/importset/internal/publish"
	"github.com/JonMunkholm/importset/internal/store"
)

// app carries what every subcommand needs.
type app struct {
	cfg     *config.Config
	stdout  io.Writer
	stderr  io.Writer
	verbose bool
}

type buildOptions struct {
	imports    string
	upstream   string
	run        string
	downstream string
	workdir    string
	keep       bool
}

func newRootCmd(a *app) *cobra.Command {
	opts := buildOptions{
		imports: a.cfg.Build.ImportsPath,
		workdir: a.cfg.Build.WorkDir,
		keep:    a.cfg.Build.KeepAllSubs,
	}

	cmd := &cobra.Command{
		Use:   "importset",
		Short: "Build a downstream parameter set from an upstream run",
		Long: `Converts the tables of one upstream run archive (<upstream>.run.<run>.zip)
into a parameter set archive for the downstream model (<downstream>.set.<run>.zip),
following the parameter mappings of the imports catalog.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.setupLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd.Context(), opts)
		},
	}
	cmd.SetVersionTemplate("importset version {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &core.InputError{Kind: core.InputRequest, Err: err}
	})

	f := cmd.Flags()
	f.StringVarP(&opts.imports, "imports", "i", opts.imports, "mapping catalog CSV (env IMPORTSET_IMPORTS)")
	f.StringVarP(&opts.upstream, "upstream", "u", "", "upstream model name")
	f.StringVarP(&opts.run, "run", "r", "", "upstream run name")
	f.StringVarP(&opts.downstream, "downstream", "d", "", "downstream model name")
	f.StringVarP(&opts.workdir, "workdir", "w", opts.workdir, "directory holding the run archive and receiving the set (env IMPORTSET_WORKDIR)")
	f.BoolVar(&opts.keep, "keep", opts.keep, "keep every replication instead of only replication 0 (env IMPORTSET_KEEP)")
	// -v is left to cobra's --version flag.
	cmd.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "log debug detail to stderr")

	cmd.AddCommand(newServeCmd(a), newHistoryCmd(a))
	return cmd
}

func (a *app) setupLogging() {
	level := a.cfg.Logging.Level
	if a.verbose {
		level = "debug"
	}
	logging.Setup(a.stderr, level, a.cfg.Logging.Format)
}

func (a *app) runBuild(ctx context.Context, opts buildOptions) error {
	svc, cleanup, err := newService(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := svc.Run(ctx, core.BuildRequest{
		ImportsPath: opts.imports,
		Upstream:    opts.upstream,
		Run:         opts.run,
		Downstream:  opts.downstream,
		WorkDir:     opts.workdir,
		KeepAllSubs: opts.keep,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, result.Summary())
	return nil
}

// newService wires the optional history store and publisher from cfg.
// The returned cleanup releases the database pool.
func newService(ctx context.Context, cfg *config.Config, opts ...core.ServiceOption) (*core.Service, func(), error) {
	cleanup := func() {}

	if cfg.Database.Enabled() {
		st, err := store.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		cleanup = st.Close
		opts = append(opts, core.WithHistory(st))
		slog.Debug("build history enabled")
	}

	if cfg.Publish.Enabled() {
		pub, err := publish.New(cfg.Publish)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		opts = append(opts, core.WithPublisher(pub))
		slog.Debug("publishing enabled", "endpoint", cfg.Publish.Endpoint, "bucket", cfg.Publish.Bucket)
	}

	return core.NewService(core.NewBuilder(cfg.Build.MaxEntryBytes), opts...), cleanup, nil
}
