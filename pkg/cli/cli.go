package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Slach/systemlogs-timeline/pkg/client"
	"github.com/Slach/systemlogs-timeline/pkg/config"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/logging"
	"github.com/Slach/systemlogs-timeline/pkg/pprof"
	"github.com/Slach/systemlogs-timeline/pkg/render"
	"github.com/Slach/systemlogs-timeline/pkg/session"
	"github.com/Slach/systemlogs-timeline/pkg/timezone"
	"github.com/Slach/systemlogs-timeline/pkg/tree"
	"github.com/Slach/systemlogs-timeline/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const expandConcurrency = 4

// FetcherFactory builds the fetcher for the selected context. Tests replace it.
type FetcherFactory func(cfg config.Context, version string) (client.Fetcher, error)

// app is what every subcommand needs once flags and config are resolved.
type app struct {
	cli     *types.CLI
	version string
	session *session.Session
	fetcher client.Fetcher
	out     *render.Text
}

func (a *app) close() {
	if closer, ok := a.fetcher.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("can't close log fetcher")
		}
	}
}

func NewRootCommand(cli *types.CLI, version string) *cobra.Command {
	return newRootCommand(cli, version, client.New)
}

func newRootCommand(cli *types.CLI, version string, newFetcher FetcherFactory) *cobra.Command {
	var profiler *pprof.Profiler

	rootCmd := &cobra.Command{
		Use:           "systemlogs-timeline",
		Short:         "Systemlogs Timeline - trace-grouped browsing of unified system logs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.InitLogFile(cli, version); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			if cli.Pprof {
				p, err := pprof.Start(cli.PprofPath)
				if err != nil {
					return err
				}
				profiler = p
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			profiler.Stop()
		},
	}

	summariesCmd := &cobra.Command{
		Use:   "summaries",
		Short: "List traces one line each, expanding the requested ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cli, version, newFetcher, runSummaries)
		},
	}

	traceCmd := &cobra.Command{
		Use:   "trace <trace-id>",
		Short: "Show every entry of one trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cli, version, newFetcher, func(ctx context.Context, a *app) error {
				return runTrace(ctx, a, args[0])
			})
		},
	}

	var groupBy string
	flatCmd := &cobra.Command{
		Use:   "flat",
		Short: "List full log rows without trace grouping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cli, version, newFetcher, func(ctx context.Context, a *app) error {
				return runFlat(ctx, a, groupBy, cmd.OutOrStdout())
			})
		},
	}
	flatCmd.Flags().StringVar(&groupBy, "group-by", "", "Group rows by session or trace")

	var idsFlat bool
	idsCmd := &cobra.Command{
		Use:   "ids",
		Short: "Print the distinct user, group and message ids referenced by the loaded entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cli, version, newFetcher, func(ctx context.Context, a *app) error {
				return runIDs(ctx, a, idsFlat, cmd.OutOrStdout())
			})
		},
	}
	idsCmd.Flags().BoolVar(&idsFlat, "flat", false, "Collect ids from full log rows instead of trace summaries")

	// Add global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cli.ConfigPath, "config", "", "Path to config file (default: ~/.systemlogs-timeline/systemlogs-timeline.yml)")
	flags.StringVar(&cli.LogPath, "log", "", "Path to log file, - for stderr (default: ~/.systemlogs-timeline/systemlogs-timeline.log)")
	flags.StringVar(&cli.LogLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	flags.StringVar(&cli.FromTime, "from", "", "Start time (in any parsable format, see https://github.com/araddon/dateparse)")
	flags.StringVar(&cli.ToTime, "to", "", "End time (in any parsable format, see https://github.com/araddon/dateparse)")
	flags.StringVar(&cli.RangeOption, "range", "", "Relative time window (e.g. 1h, 24h, 7d)")
	flags.StringVar(&cli.ConnectTo, "connect", "", "Context name to use from config")
	flags.BoolVar(&cli.Pprof, "pprof", false, "Write CPU and memory profiles")
	flags.StringVar(&cli.PprofPath, "pprof-path", "", "Directory for profiles (default: ~/.systemlogs-timeline)")
	flags.StringVar(&cli.Color, "color", "auto", "Colored output: auto, always, never")
	flags.BoolVar(&cli.ShowRaw, "raw", false, "Print the raw payload under every entry")
	flags.StringSliceVar(&cli.Details, "details", nil, "Entry ids whose raw payload is printed")
	flags.StringVar(&cli.Timezone, "tz", "", "Timezone for timestamps: UTC, local or an IANA name")

	p := &cli.Filter
	flags.StringVar(&p.Sources, "sources", "", "Comma separated sources: client, api, logs_table, email, batch, batch_event")
	flags.StringSliceVar(&p.Types, "types", nil, "Entry types")
	flags.StringSliceVar(&p.Subtypes, "subtypes", nil, "Entry subtypes")
	flags.StringSliceVar(&p.Levels, "levels", nil, "Levels")
	flags.StringVar(&p.Search, "search", "", "Full text search")
	flags.Int64Var(&p.UserID, "user", 0, "User id, as actor or subject")
	flags.Int64Var(&p.GroupID, "group", 0, "Group id")
	flags.Int64Var(&p.MessageID, "message", 0, "Message id")
	flags.StringVar(&p.TraceID, "trace-id", "", "Only this trace")
	flags.StringVar(&p.SessionID, "session", "", "Browser session id")
	flags.StringVar(&p.IPAddress, "ip", "", "Client IP address")
	flags.StringVar(&p.Email, "email", "", "Email address")
	flags.StringVar(&p.Direction, "direction", "", "backward (newest first) or forward")
	flags.BoolVar(&p.ShowPolling, "show-polling", false, "Show polling api calls")
	flags.StringVar(&p.AppSource, "app", "", "Origin app: fd, mt or both")
	flags.BoolVar(&p.NoCollapse, "no-collapse", false, "Do not collapse adjacent duplicates")
	flags.IntVar(&p.Limit, "limit", 0, "Page size (default from config)")
	flags.IntVar(&p.Pages, "pages", 1, "Number of pages to load")
	flags.StringSliceVar(&p.Expand, "expand", nil, "Trace ids to expand")
	flags.BoolVar(&p.ExpandAll, "expand-all", false, "Expand every trace on the loaded pages")

	// Add subcommands
	rootCmd.AddCommand(summariesCmd, traceCmd, flatCmd, idsCmd)

	return rootCmd
}

// withApp loads the config, opens the fetcher and builds the session, then runs fn.
func withApp(cmd *cobra.Command, cli *types.CLI, version string, newFetcher FetcherFactory, fn func(context.Context, *app) error) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.Wrap(err, "failed to get user home directory")
	}
	cfg, err := config.Load(cli, filepath.Join(home, ".systemlogs-timeline"))
	if err != nil {
		return err
	}
	cfgContext, err := cfg.FindContext(cli.ConnectTo)
	if err != nil {
		return err
	}
	filter, err := BuildFilter(cfg.Defaults, cli)
	if err != nil {
		return err
	}
	loc, err := timezone.Load(cli.Timezone)
	if err != nil {
		return err
	}

	fetcher, err := newFetcher(cfgContext, version)
	if err != nil {
		return err
	}
	opts := session.OptionsFromConfig(cfg.Defaults)
	if cli.Filter.Limit > 0 {
		opts.PageLimit = cli.Filter.Limit
		opts.ListLimit = cli.Filter.Limit
	}

	sess := session.New(fetcher, filter, opts)
	for _, id := range cli.Details {
		if !sess.State().IsDetailsExpanded(id) {
			sess.ToggleDetails(id)
		}
	}
	a := &app{
		cli:     cli,
		version: version,
		fetcher: fetcher,
		session: sess,
		out: render.NewText(cmd.OutOrStdout(), render.Options{
			Color:    render.ColorEnabled(cli.Color, os.Stdout),
			ShowRaw:  cli.ShowRaw,
			Location: loc,
			Details:  sess.State().ExpandedDetails,
		}),
	}
	defer a.close()

	log.Debug().Str("context", cfgContext.Name).Str("kind", cfgContext.Kind).Str("command", cmd.Name()).Msg("running")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}

// loadPages fetches the first page and then up to pages-1 more.
func loadPages(ctx context.Context, a *app, first func(context.Context, bool) error) error {
	if err := first(ctx, false); err != nil {
		return err
	}
	for i := 1; i < a.cli.Filter.Pages; i++ {
		st := a.session.State()
		if !st.HasMore {
			break
		}
		if err := a.session.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

func runSummaries(ctx context.Context, a *app) error {
	if err := loadPages(ctx, a, a.session.FetchSummaries); err != nil {
		return err
	}

	var expand []string
	if a.cli.Filter.ExpandAll {
		for _, s := range a.session.State().Summaries {
			if !s.Standalone() {
				expand = append(expand, s.TraceID)
			}
		}
	} else {
		expand = a.cli.Filter.Expand
	}
	for _, n := range a.session.Tree() {
		if g, ok := n.(tree.PageLoadGroup); ok && containsTraceOf(g, expand) {
			a.session.ToggleGroup(g.GroupKey)
		}
	}
	if err := a.session.ExpandAll(ctx, expand, expandConcurrency); err != nil {
		return err
	}

	if err := a.out.Tree(a.session.Tree()); err != nil {
		return err
	}
	return a.out.Status(a.session.State())
}

// containsTraceOf reports whether a page-load group holds one of the traces to expand, so the
// expanded trace is not hidden inside a collapsed group.
func containsTraceOf(g tree.PageLoadGroup, traceIDs []string) bool {
	for _, child := range g.Children {
		if tg, ok := child.(tree.TraceGroup); ok && slices.Contains(traceIDs, tg.TraceID) {
			return true
		}
	}
	return false
}

func runTrace(ctx context.Context, a *app, traceID string) error {
	var bounds *session.Bounds
	if a.cli.FromTime != "" && a.cli.ToTime != "" {
		from, err := a.cli.ParseFromTime()
		if err != nil {
			return errors.Wrap(err, "--from")
		}
		to, err := a.cli.ParseToTime()
		if err != nil {
			return errors.Wrap(err, "--to")
		}
		bounds = &session.Bounds{Start: from, End: to}
	}

	a.session.Expand(ctx, traceID, bounds)
	st := a.session.State()
	entries := st.TraceChildren[traceID]
	if len(entries) == 0 {
		return errors.Errorf("no entries found for trace %s", traceID)
	}
	return a.out.Flat(tree.CollapseFlat(entries, st.Filter.CollapseDuplicates))
}

func runFlat(ctx context.Context, a *app, groupBy string, w io.Writer) error {
	if err := loadPages(ctx, a, a.session.FetchFlat); err != nil {
		return err
	}
	st := a.session.State()

	var buckets map[string][]logentry.LogEntry
	switch groupBy {
	case "":
		if err := a.out.Flat(st.CollapsedLogs()); err != nil {
			return err
		}
		return a.out.Status(st)
	case "session":
		buckets = st.LogsBySession()
	case "trace":
		buckets = st.LogsByTrace()
	default:
		return errors.Errorf("--group-by must be session or trace, got %q", groupBy)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s (%d)\n", k, len(buckets[k])); err != nil {
			return errors.Wrap(err, "can't write output")
		}
		if err := a.out.Flat(tree.CollapseFlat(buckets[k], st.Filter.CollapseDuplicates)); err != nil {
			return err
		}
	}
	return a.out.Status(st)
}

func runIDs(ctx context.Context, a *app, flat bool, w io.Writer) error {
	first := a.session.FetchSummaries
	if flat {
		first = a.session.FetchFlat
	}
	if err := loadPages(ctx, a, first); err != nil {
		return err
	}
	ids := a.session.State().EntityIDs()
	for _, line := range []struct {
		name string
		ids  []int64
	}{
		{"users", ids.UserIDs},
		{"groups", ids.GroupIDs},
		{"messages", ids.MessageIDs},
	} {
		values := make([]string, 0, len(line.ids))
		for _, id := range line.ids {
			values = append(values, strconv.FormatInt(id, 10))
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", line.name, strings.Join(values, ",")); err != nil {
			return errors.Wrap(err, "can't write output")
		}
	}
	return nil
}
