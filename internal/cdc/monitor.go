package cdc

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wildmix/scribe/internal/scribeerr"
	"github.com/wildmix/scribe/internal/store"
	"github.com/wildmix/scribe/internal/telemetry"
)

// Monitor drives the CDC ingestion loop: it owns the upstream connection
// and capture source, reconnecting on transient failure, and hands
// observed batches of Change to a CommitBuilder.
//
// Run splits the loop into two cooperating goroutines joined by an
// unbuffered channel: one owns the upstream connection and polls it; the
// other drains the channel and does the (potentially slower) work of
// finalizing and storing commits. Each batch carries its own reply channel,
// so the poll goroutine blocks until the commit goroutine reports whether
// that batch was durably stored and HEAD advanced, and only then
// acknowledges the batch upstream (src.Ack) before polling again. This
// keeps the upstream source's acknowledged position strictly behind local
// durability — per SPEC_FULL.md §4.5, a batch is never acknowledged before
// it is stored and HEAD is advanced — while still running poll I/O and
// commit I/O as two goroutines, and keeping exactly one goroutine writing
// to the store at a time (the single-writer invariant in SPEC_FULL.md §5).
type Monitor struct {
	cfg     Config
	st      *store.Store
	logger  *slog.Logger
	builder *CommitBuilder
	metrics *telemetry.CDCMetrics

	mu    sync.Mutex
	state State
}

// New returns a Monitor ready to Run. The store must already be open and
// migrated. Metric registration failure is logged and otherwise ignored —
// a Monitor must be able to run with telemetry disabled or misconfigured.
func New(cfg Config, st *store.Store, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.WithDefaults()
	metrics, err := telemetry.NewCDCMetrics()
	if err != nil {
		logger.Warn("cdc metrics registration failed, continuing without them", "error", err)
		metrics = nil
	}
	return &Monitor{
		cfg:     cfg,
		st:      st,
		logger:  logger,
		builder: NewCommitBuilder(st, cfg.AuthorID, cfg.AuthorRole, cfg.ProcessName, cfg.ProcessSource),
		metrics: metrics,
		state:   StateDisconnected,
	}
}

// State returns the Monitor's current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.logger.Debug("cdc state transition", "state", s.String())
}

// Run connects, sets up capture, and polls until ctx is canceled. It
// reconnects with jittered exponential backoff on transient upstream
// errors (scribeerr.IsRetryable) up to cfg.MaxReconnectAttempts consecutive
// failures, at which point it gives up and returns the last error.
func (m *Monitor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			m.setState(StateStopping)
			return nil
		}

		err := m.runOnce(ctx)
		if err == nil {
			return nil // ctx canceled cleanly inside runOnce
		}
		if !scribeerr.IsRetryable(err) {
			m.setState(StateDisconnected)
			return err
		}

		if m.State() == StateRunning {
			attempt = 0 // this connection reached polling, so the failure streak restarts
		}
		attempt++
		if attempt > m.cfg.MaxReconnectAttempts {
			return fmt.Errorf("cdc: giving up after %d reconnect attempts: %w", attempt-1, err)
		}
		m.setState(StateDisconnected)
		delay := backoffDelay(attempt, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay)
		m.logger.Warn("cdc upstream error, reconnecting", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base * time.Duration(1<<min(attempt, 20))
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return d/2 + jitter
}

// runOnce performs one connect-setup-run cycle. A nil return means ctx was
// canceled; a non-nil return is an upstream error for Run to classify.
func (m *Monitor) runOnce(ctx context.Context) error {
	m.setState(StateConnecting)
	pool, err := pgxpool.New(ctx, m.cfg.ConnString)
	if err != nil {
		return scribeerr.Wrap(scribeerr.KindPgConnect, "connect to upstream database", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return scribeerr.Wrap(scribeerr.KindPgConnect, "ping upstream database", err)
	}

	var src source
	switch m.cfg.Mode {
	case ModeLogical:
		src = newLogicalSource(pool, m.cfg.ConnString, m.cfg.SlotName, m.cfg.PublicationName, m.cfg.Tables)
	default:
		src = newTriggerSource(pool, m.cfg.Tables)
	}

	m.setState(StateSetup)
	if err := src.Setup(ctx); err != nil {
		_ = src.Close(ctx)
		return err
	}

	m.setState(StateRunning)
	err = m.pollLoop(ctx, src)
	_ = src.Close(ctx)
	return err
}

// batchMsg carries one polled batch to the commit goroutine together with a
// reply channel the commit goroutine uses to report whether the batch was
// durably applied, so the poll goroutine knows when it is safe to Ack.
type batchMsg struct {
	changes []Change
	done    chan error
}

// pollLoop implements the two-task cooperative model: pollTask owns src and
// feeds Change batches into changes, waiting for each batch's outcome before
// acknowledging it upstream and moving on; commitTask drains changes and
// applies each batch through the CommitBuilder. Either task returning an
// error or ctx being canceled stops both via the errgroup's
// shared context.
func (m *Monitor) pollLoop(ctx context.Context, src source) error {
	changes := make(chan batchMsg)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(changes)
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				pollCtx, cancel := context.WithTimeout(gctx, m.cfg.PollInterval*5)
				start := time.Now()
				var span trace.Span
				if m.metrics != nil {
					pollCtx, span = m.metrics.StartPollSpan(pollCtx)
				}
				batch, err := src.Poll(pollCtx)
				if span != nil {
					span.End()
				}
				cancel()
				if m.metrics != nil {
					m.metrics.RecordPollDuration(gctx, time.Since(start).Seconds())
				}
				if err != nil {
					return err
				}
				if len(batch) == 0 {
					continue
				}

				done := make(chan error, 1)
				select {
				case changes <- batchMsg{changes: batch, done: done}:
				case <-gctx.Done():
					return nil
				}

				select {
				case err := <-done:
					if err != nil {
						return err
					}
				case <-gctx.Done():
					return nil
				}

				// The batch is now durably stored and HEAD has advanced;
				// only now is it safe to tell the upstream source it need
				// not redeliver these changes.
				if err := src.Ack(gctx); err != nil {
					return scribeerr.Wrap(scribeerr.KindDB, "acknowledge cdc batch upstream", err)
				}
			}
		}
	})

	g.Go(func() error {
		for msg := range changes {
			batch := msg.changes
			msg.done <- m.applyBatch(gctx, batch)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// applyBatch finalizes and stores one polled batch as a commit, advancing
// HEAD, and records its telemetry. A non-nil return means the batch was NOT
// durably applied and must not be acknowledged upstream.
func (m *Monitor) applyBatch(gctx context.Context, batch []Change) error {
	msg := fmt.Sprintf("cdc batch of %d change(s)", len(batch))

	commitCtx := gctx
	var span trace.Span
	if m.metrics != nil {
		commitCtx, span = m.metrics.StartCommitSpan(gctx)
	}
	env, err := m.builder.Apply(commitCtx, batch, msg)
	if span != nil {
		span.End()
	}
	if err != nil {
		return scribeerr.Wrap(scribeerr.KindDB, "apply cdc commit batch", err)
	}

	if m.metrics != nil && env != nil {
		now := time.Now()
		for _, c := range batch {
			m.metrics.RecordCommit(gctx, 1, c.Table)
			if !c.ObservedAt.IsZero() {
				m.metrics.RecordIngestionLag(gctx, now.Sub(c.ObservedAt).Seconds())
			}
		}
	}
	m.logger.Info("cdc commit applied", "changes", len(batch))
	return nil
}

// SetupOrCleanup connects to the upstream once, runs Setup (or, if cleanup
// is true, Cleanup) for the configured mode, and disconnects without
// entering the poll loop. It backs `scribe watch -S` and `scribe watch -C`.
func (m *Monitor) SetupOrCleanup(ctx context.Context, cleanup bool) error {
	pool, err := pgxpool.New(ctx, m.cfg.ConnString)
	if err != nil {
		return scribeerr.Wrap(scribeerr.KindPgConnect, "connect to upstream database", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return scribeerr.Wrap(scribeerr.KindPgConnect, "ping upstream database", err)
	}

	var src source
	switch m.cfg.Mode {
	case ModeLogical:
		src = newLogicalSource(pool, m.cfg.ConnString, m.cfg.SlotName, m.cfg.PublicationName, m.cfg.Tables)
	default:
		src = newTriggerSource(pool, m.cfg.Tables)
	}
	defer func() { _ = src.Close(ctx) }()

	if cleanup {
		return src.Cleanup(ctx)
	}
	return src.Setup(ctx)
}

// Stop transitions the Monitor toward StateStopping. Actual shutdown still
// depends on the Run caller canceling the context passed to Run; Stop only
// records intent for State() observers (e.g. a status command).
func (m *Monitor) Stop() {
	m.setState(StateStopping)
}
