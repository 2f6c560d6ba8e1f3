package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/givety/givety-indexer/services/indexer/entities"
	"github.com/givety/givety-indexer/services/indexer/store"
)

// Options tune the ingest loop.
type Options struct {
	ListenAddr    string
	StartBlock    uint64
	BatchSize     uint64
	PollInterval  time.Duration
	Confirmations uint64
}

// Service indexes Givety contract events into the entity store and serves
// the read models.
type Service struct {
	store     store.Store
	projector *Projector
	reader    *StoreReadModel
	feed      *Feed
	metrics   *Metrics
	server    *Server
	source    EventSource
	opts      Options

	// mu serialises projection.
	mu sync.Mutex
}

// NewService creates a service over st. source may be nil for a service that
// only replays recorded events and serves queries.
func NewService(st store.Store, source EventSource, opts Options) *Service {
	if opts.BatchSize == 0 {
		opts.BatchSize = 2000
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	metrics := NewMetrics()
	svc := &Service{
		store:     st,
		projector: NewProjector(st, metrics),
		reader:    NewStoreReadModel(st),
		feed:      NewFeed(metrics),
		metrics:   metrics,
		source:    source,
		opts:      opts,
	}
	svc.server = NewServer(svc, opts.ListenAddr)
	return svc
}

// Reader returns the query side.
func (s *Service) Reader() ReadModel {
	return s.reader
}

func (s *Service) Feed() *Feed {
	return s.feed
}

func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the HTTP API handler.
func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// Apply projects one event and publishes the resulting update. Duplicate
// events return a nil update.
func (s *Service) Apply(ctx context.Context, ev Event) (*Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	update, err := s.projector.HandleEvent(ctx, ev)
	if err != nil || update == nil {
		return nil, err
	}
	s.feed.Publish(*update)
	return update, nil
}

// Replay applies recorded events in order. It stops at the first failure and
// reports how many events were newly applied.
func (s *Service) Replay(ctx context.Context, events []Event) (int, error) {
	applied := 0
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		update, err := s.Apply(ctx, ev)
		if err != nil {
			return applied, err
		}
		if update != nil {
			applied++
		}
	}
	return applied, nil
}

// Status summarises indexing progress.
type Status struct {
	Cursor    uint64           `json:"cursor"`
	HasCursor bool             `json:"hasCursor"`
	Global    *entities.Global `json:"global"`
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	cursor, ok, err := s.store.Cursor(ctx)
	if err != nil {
		return Status{}, err
	}
	g, err := s.reader.Global(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Cursor: cursor, HasCursor: ok, Global: g}, nil
}

// Start serves the HTTP API in the background and indexes until ctx is
// cancelled or the ingest loop fails.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		log.Info().Str("addr", s.opts.ListenAddr).Msg("serving query API")
		if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.feed.Close()
		if err := s.server.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown")
		}
	}()

	if s.source == nil {
		<-ctx.Done()
		return nil
	}
	err := s.Index(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Index polls the source until ctx is cancelled. Projection errors stop the
// loop; source errors are retried on the next tick.
func (s *Service) Index(ctx context.Context) error {
	if s.source == nil {
		return errors.New("no event source configured")
	}
	next, err := s.resumeBlock(ctx)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Uint64("from", next).Msg("indexing")

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		next, err = s.poll(ctx, next)
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// resumeBlock is the block to fetch first. The cursor block is fetched again;
// events already applied in it are skipped.
func (s *Service) resumeBlock(ctx context.Context) (uint64, error) {
	cursor, ok, err := s.store.Cursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	if ok && cursor >= s.opts.StartBlock {
		return cursor, nil
	}
	return s.opts.StartBlock, nil
}

// poll fetches and applies every range between next and the safe head.
func (s *Service) poll(ctx context.Context, next uint64) (uint64, error) {
	logger := log.Ctx(ctx)
	head, err := s.source.SafeHead(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("read safe head")
		return next, nil
	}
	for next <= head {
		if err := ctx.Err(); err != nil {
			return next, err
		}
		to := next + s.opts.BatchSize - 1
		if to > head {
			to = head
		}
		events, err := s.source.Fetch(ctx, next, to)
		if err != nil {
			logger.Warn().Err(err).Uint64("from", next).Uint64("to", to).Msg("fetch events")
			return next, nil
		}
		for _, ev := range events {
			if _, err := s.Apply(ctx, ev); err != nil {
				return next, err
			}
		}
		if err := s.store.SaveCursor(ctx, to); err != nil {
			return next, fmt.Errorf("save cursor: %w", err)
		}
		logger.Debug().Uint64("from", next).Uint64("to", to).Int("events", len(events)).Msg("indexed range")
		next = to + 1
	}
	return next, nil
}
