// internal/agent/agent.go
package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/signalnine/rowdelta/internal/config"
	"github.com/signalnine/rowdelta/internal/logging"
	"github.com/signalnine/rowdelta/internal/results"
)

// query is the per-query state owned by the agent loop
type query struct {
	cfg      config.QueryConfig
	source   Source
	ordering results.Ordering
	log      logging.Logger
	last     results.Snapshot
	counter  uint64
	pending  *pendingItem
}

// pendingItem is an item whose send was not acknowledged. The collector may
// have stored it anyway, so it is resent unchanged before anything newer.
type pendingItem struct {
	item     results.LogItem
	snapshot results.Snapshot
}

// Agent runs scheduled queries, diffs each result against the previous one
// and sends the changes to the collector
type Agent struct {
	cfg     *config.AgentConfig
	client  *http.Client
	log     logging.Logger
	now     func() time.Time
	queries []*query
	epoch   uint64
}

// Option customizes an Agent
type Option func(*Agent)

// WithSource replaces the command source of the named query.
func WithSource(name string, src Source) Option {
	return func(a *Agent) {
		for _, q := range a.queries {
			if q.cfg.Name == name {
				q.source = src
			}
		}
	}
}

// WithClock sets the time source used for log item timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates a new agent
func New(cfg *config.AgentConfig, logger logging.Logger, opts ...Option) *Agent {
	transport := &http.Transport{}
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	a := &Agent{
		cfg: cfg,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		log: logger,
		now: time.Now,
	}
	for _, qc := range cfg.Queries {
		a.queries = append(a.queries, &query{
			cfg:      qc,
			source:   CommandSource{Args: qc.Command, Timeout: cfg.CommandTimeout},
			ordering: results.Fixed(qc.Columns...),
			log:      logger.With("query", qc.Name),
		})
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Epoch returns the logging epoch of this run.
func (a *Agent) Epoch() uint64 {
	return a.epoch
}

// Start begins a new epoch. Without a state file the epoch stays zero.
func (a *Agent) Start() error {
	if a.cfg.StateFile == "" {
		return nil
	}
	epoch, err := NextEpoch(a.cfg.StateFile)
	if err != nil {
		return fmt.Errorf("advance epoch: %w", err)
	}
	a.epoch = epoch
	return nil
}

// Run starts the agent loop
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	a.log.InfoCtx(ctx, "Agent starting",
		"identifier", a.cfg.HostIdentifier,
		"collector", a.cfg.CollectorURL,
		"interval", a.cfg.PollInterval,
		"queries", len(a.queries),
		"epoch", a.epoch)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	if err := a.RunOnce(ctx); err != nil {
		a.log.Error("Collection error", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Agent shutting down")
			return nil
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.log.Error("Collection error", "err", err)
			}
		}
	}
}

// RunOnce executes every query once. A failing query does not stop the
// others; all failures are returned joined.
func (a *Agent) RunOnce(ctx context.Context) error {
	var errs []error
	for _, q := range a.queries {
		if err := a.collect(ctx, q); err != nil {
			errs = append(errs, fmt.Errorf("query %s: %w", q.cfg.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) collect(ctx context.Context, q *query) error {
	if p := q.pending; p != nil {
		q.log.Info("Resending unacknowledged item", "counter", p.item.Counter)
		if err := a.send(ctx, q, p.item); err != nil {
			return fmt.Errorf("resend counter %d: %w", p.item.Counter, err)
		}
		q.pending = nil
		q.last = p.snapshot
		q.counter++
	}

	current, err := q.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("run source: %w", err)
	}
	if q.cfg.Unique {
		current = UniqueRows(current)
	}

	diff := results.Diff(q.last, current)
	if diff.Empty() {
		q.log.Debug("No changes", "rows", len(current))
		q.last = current
		return nil
	}

	meta := results.MetadataAt(q.cfg.Name, a.cfg.HostIdentifier, a.now(), a.epoch, q.counter)
	item := results.NewLogItem(diff, meta)

	if err := a.send(ctx, q, item); err != nil {
		q.pending = &pendingItem{item: item, snapshot: current}
		return fmt.Errorf("send: %w", err)
	}

	q.last = current
	q.counter++
	return nil
}

func (a *Agent) send(ctx context.Context, q *query, item results.LogItem) error {
	url := a.cfg.CollectorURL
	contentType := "application/json"
	var body []byte
	if q.cfg.Format == config.FormatEvents {
		url = strings.TrimSuffix(url, "/") + "/events"
		contentType = "application/x-ndjson"
		for _, e := range item.Events() {
			body = append(body, results.EncodeEvent(e, q.ordering)...)
			body = append(body, '\n')
		}
	} else {
		body = results.EncodeLogItem(item, q.ordering)
	}

	q.log.Info("Sending changes",
		"added", len(item.Results.Added),
		"removed", len(item.Results.Removed),
		"counter", item.Counter,
		"size", humanize.Bytes(uint64(len(body))))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("collector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
