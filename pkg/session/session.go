// Package session drives a browsing session: it owns the state snapshot, turns the filter into
// log service queries and folds the results back in through models.Reduce.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/client"
	"github.com/Slach/systemlogs-timeline/pkg/config"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/models"
	"github.com/Slach/systemlogs-timeline/pkg/timerange"
	"github.com/Slach/systemlogs-timeline/pkg/tree"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options are the page sizes used for the three kinds of query.
type Options struct {
	PageLimit  int
	TraceLimit int
	ListLimit  int
}

// OptionsFromConfig takes the limits from the config defaults.
func OptionsFromConfig(d config.Defaults) Options {
	return Options{
		PageLimit:  d.PageLimit,
		TraceLimit: d.TraceLimit,
		ListLimit:  d.ListLimit,
	}
}

func (o Options) withDefaults() Options {
	if o.PageLimit <= 0 {
		o.PageLimit = config.DefaultPageLimit
	}
	if o.TraceLimit <= 0 {
		o.TraceLimit = config.DefaultTraceLimit
	}
	if o.ListLimit <= 0 {
		o.ListLimit = config.DefaultListLimit
	}
	return o
}

// Bounds are the precise time span of a trace, when the caller knows it.
type Bounds struct {
	Start time.Time
	End   time.Time
}

type Session struct {
	fetcher client.Fetcher
	opts    Options

	mu    sync.Mutex
	state models.State
}

func New(fetcher client.Fetcher, filter models.Filter, opts Options) *Session {
	return &Session{
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		state:   models.NewState(filter),
	}
}

// State returns the current snapshot.
func (s *Session) State() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies ev and returns the resulting snapshot.
func (s *Session) Dispatch(ev models.Event) models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = models.Reduce(s.state, ev)
	return s.state
}

// Tree assembles the presentation tree of the current snapshot.
func (s *Session) Tree() []tree.Node {
	return s.State().Tree()
}

func (s *Session) Clear() {
	s.Dispatch(models.Clear{})
}

// ToggleGroup flips a trace group or page-load group without fetching.
func (s *Session) ToggleGroup(key string) {
	s.Dispatch(models.ToggleExpanded{Key: key})
}

func (s *Session) ToggleDetails(id string) {
	s.Dispatch(models.ToggleDetails{ID: id})
}

func (s *Session) Collapse(traceID string) {
	s.Dispatch(models.SetExpanded{Key: traceID, Expanded: false})
}

// queryParams maps the filter onto the fetch contract. Display-only fields are not sent.
func queryParams(f models.Filter) client.Params {
	return client.Params{
		Sources:   f.Sources,
		Start:     f.TimeRange,
		Direction: string(f.Direction),
		Types:     f.Types,
		Subtypes:  f.Subtypes,
		Levels:    f.Levels,
		Search:    f.Search,
		UserID:    f.UserID,
		GroupID:   f.GroupID,
		MessageID: f.MessageID,
		TraceID:   f.TraceID,
		SessionID: f.SessionID,
		IP:        f.IPAddress,
		Email:     f.Email,
	}
}

// begin marks a page fetch as started and captures what it needs. An append is refused while
// another page is loading or when the last page was short.
func (s *Session) begin(appendPage bool, limit int) (client.Params, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appendPage && (s.state.Loading || !s.state.HasMore) {
		return client.Params{}, 0, false
	}
	s.state = models.Reduce(s.state, models.FetchStarted{})
	params := queryParams(s.state.Filter)
	params.Limit = limit
	switch {
	case appendPage && !s.state.LastTimestamp.IsZero():
		params.End = s.state.LastTimestamp
	case !appendPage && !s.state.Filter.Until.IsZero():
		params.End = s.state.Filter.Until
	}
	return params, s.state.Generation, true
}

// FetchSummaries loads one page of trace summaries, replacing the current ones or appending
// to them. A failure is recorded in the state and the loaded summaries are kept.
func (s *Session) FetchSummaries(ctx context.Context, appendPage bool) error {
	params, gen, ok := s.begin(appendPage, s.opts.PageLimit)
	if !ok {
		return nil
	}
	params.Summary = true

	log.Debug().Bool("append", appendPage).Time("end", params.End).Msg("fetching trace summaries")
	resp, err := s.fetcher.Fetch(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("can't fetch trace summaries")
		s.Dispatch(models.FetchFailed{Generation: gen, Message: err.Error()})
		return err
	}
	st := s.Dispatch(models.SummariesLoaded{
		Generation: gen,
		Summaries:  resp.Summaries,
		Stats:      resp.Stats,
		Append:     appendPage,
		Limit:      params.Limit,
	})
	if st.Generation != gen {
		log.Debug().Int("summaries", len(resp.Summaries)).Msg("filter changed during fetch, summaries dropped")
		return nil
	}
	log.Debug().Int("summaries", len(resp.Summaries)).Msg("trace summaries loaded")
	return nil
}

// FetchFlat loads one page of full log rows for the flat view.
func (s *Session) FetchFlat(ctx context.Context, appendPage bool) error {
	params, gen, ok := s.begin(appendPage, s.opts.ListLimit)
	if !ok {
		return nil
	}

	log.Debug().Bool("append", appendPage).Time("end", params.End).Msg("fetching logs")
	resp, err := s.fetcher.Fetch(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("can't fetch logs")
		s.Dispatch(models.FetchFailed{Generation: gen, Message: err.Error()})
		return err
	}
	logs := resp.Logs
	if logs == nil {
		logs = []logentry.LogEntry{}
	}
	st := s.Dispatch(models.ListLoaded{
		Generation: gen,
		Logs:       logs,
		Stats:      resp.Stats,
		Append:     appendPage,
		Limit:      params.Limit,
	})
	if st.Generation != gen {
		log.Debug().Int("logs", len(logs)).Msg("filter changed during fetch, logs dropped")
		return nil
	}
	log.Debug().Int("logs", len(logs)).Msg("logs loaded")
	return nil
}

// LoadMore requests the next page of whichever view is loaded. It does nothing while a page
// is loading or when the last page was short.
func (s *Session) LoadMore(ctx context.Context) error {
	st := s.State()
	if st.Loading || !st.HasMore {
		return nil
	}
	if len(st.Summaries) == 0 && len(st.List) > 0 {
		return s.FetchFlat(ctx, true)
	}
	return s.FetchSummaries(ctx, true)
}

// Expand opens a trace group and loads its detail unless it is cached or already loading.
func (s *Session) Expand(ctx context.Context, traceID string, bounds *Bounds) {
	s.Dispatch(models.SetExpanded{Key: traceID, Expanded: true})
	s.FetchTraceChildren(ctx, traceID, bounds)
}

// FetchTraceChildren loads the entries of one trace into the cache. At most one fetch per trace
// is in flight. Without bounds, the span of the trace's summary is used when one is loaded,
// else the active time range. A failure caches an empty list, so the trace shows no children
// instead of retrying on every expand.
func (s *Session) FetchTraceChildren(ctx context.Context, traceID string, bounds *Bounds) {
	if traceID == "" {
		return
	}

	s.mu.Lock()
	if s.state.Cached(traceID) || s.state.IsLoading(traceID) {
		s.mu.Unlock()
		return
	}
	s.state = models.Reduce(s.state, models.TraceLoading{TraceID: traceID})
	gen := s.state.Generation
	filter := s.state.Filter
	var parentID logentry.FlexString
	for _, summary := range s.state.Summaries {
		if summary.TraceID == traceID {
			parentID = summary.FirstLog.ID
			if bounds == nil && !summary.FirstTimestamp.IsZero() && !summary.LastTimestamp.IsZero() {
				bounds = &Bounds{Start: summary.FirstTimestamp, End: summary.LastTimestamp}
			}
			break
		}
	}
	s.mu.Unlock()

	params := client.Params{
		Sources: filter.Sources,
		Start:   filter.TimeRange,
		TraceID: traceID,
		Limit:   s.opts.TraceLimit,
	}
	if bounds != nil && !bounds.Start.IsZero() {
		params.Start = timerange.FormatISO(bounds.Start)
		params.End = bounds.End
	}

	logger := log.With().Str("trace_id", traceID).Logger()
	logger.Debug().Str("start", params.Start).Msg("fetching trace detail")
	var logs []logentry.LogEntry
	resp, err := s.fetcher.Fetch(ctx, params)
	if err != nil {
		logger.Warn().Err(err).Msg("can't fetch trace detail")
	} else {
		logs = tree.WithoutEntry(resp.Logs, parentID)
	}
	if st := s.Dispatch(models.TraceLoaded{Generation: gen, TraceID: traceID, Logs: logs}); st.Generation != gen {
		logger.Debug().Msg("filter changed during fetch, trace detail dropped")
	}
}

// ExpandAll expands several traces, fetching at most concurrency of them at once.
func (s *Session) ExpandAll(ctx context.Context, traceIDs []string, concurrency int) error {
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, traceID := range traceIDs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.Expand(ctx, traceID, nil)
			return nil
		})
	}
	return g.Wait()
}
