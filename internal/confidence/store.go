// Package confidence maintains decaying, consistency-weighted scores
// for behavioral patterns observed in developer activity. Observations
// flow in through Ingest, are mapped to pattern keys by extractors, and
// update persistent Pattern records whose confidence is always derived
// from sample count and evidence consistency.
package confidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/storage"
	"github.com/sparkengine/spark/internal/types"
)

// actorName identifies this component in emitted events.
const actorName = "engine"

type opKind int

const (
	opIngest opKind = iota
	opDecay
)

type request struct {
	kind  opKind
	ctx   context.Context
	obs   *types.Observation
	now   time.Time
	reply chan response
}

type response struct {
	keys    []string
	decayed int
	err     error
}

// Store holds the in-memory pattern state backed by persistent storage.
// All mutations flow through a single writer goroutine so updates land
// in arrival order; readers take a consistent snapshot under RWMutex.
type Store struct {
	cfg     config.LearningConfig
	storage storage.Storage

	mu       sync.RWMutex
	patterns map[string]*types.Pattern
	running  bool

	requests chan request
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a confidence store. Call Start before ingesting.
func New(cfg config.LearningConfig, store storage.Storage) *Store {
	return &Store{
		cfg:      cfg,
		storage:  store,
		patterns: make(map[string]*types.Pattern),
		requests: make(chan request),
	}
}

// Start hydrates the in-memory state from storage and launches the
// writer loop.
func (s *Store) Start(ctx context.Context) error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if running {
		return fmt.Errorf("confidence store is already running")
	}

	patterns, err := s.storage.ListPatterns(ctx, types.PatternFilter{})
	if err != nil {
		return fmt.Errorf("loading patterns: %w", err)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("confidence store is already running")
	}
	s.patterns = make(map[string]*types.Pattern, len(patterns))
	for _, p := range patterns {
		s.patterns[p.Key] = p
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)
	return nil
}

// Stop signals the writer loop and waits for it to drain.
func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("confidence store is not running")
	}
	s.running = false
	doneCh := s.doneCh
	close(s.stopCh)
	s.mu.Unlock()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns whether the writer loop is active.
func (s *Store) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Store) loop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case req := <-s.requests:
			var resp response
			switch req.kind {
			case opIngest:
				resp.keys, resp.err = s.handleIngest(req.ctx, req.obs)
			case opDecay:
				resp.decayed, resp.err = s.handleDecay(req.ctx, req.now)
			}
			req.reply <- resp
		}
	}
}

// submit hands a request to the writer loop and waits for its reply.
func (s *Store) submit(ctx context.Context, req request) (response, error) {
	s.mu.RLock()
	running, doneCh := s.running, s.doneCh
	s.mu.RUnlock()
	if !running {
		return response{}, fmt.Errorf("confidence store is not running")
	}

	req.reply = make(chan response, 1)

	select {
	case s.requests <- req:
	case <-doneCh:
		return response{}, fmt.Errorf("confidence store is stopped")
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-doneCh:
		// The loop may have replied just before exiting.
		select {
		case resp := <-req.reply:
			return resp, nil
		default:
		}
		return response{}, fmt.Errorf("confidence store is stopped")
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// Ingest applies one observation to every pattern it supports and
// returns the updated pattern keys. Observations with an unrecognized
// source return ErrUnrecognizedObservation, which callers log and move
// past.
func (s *Store) Ingest(ctx context.Context, obs *types.Observation) ([]string, error) {
	resp, err := s.submit(ctx, request{kind: opIngest, ctx: ctx, obs: obs})
	if err != nil {
		return nil, err
	}
	return resp.keys, resp.err
}

// Decay runs one maintenance pass at the given time: every pattern not
// reinforced within the staleness window has its confidence multiplied
// by the decay factor. Patterns are never removed. Returns the number
// of patterns decayed.
func (s *Store) Decay(ctx context.Context, now time.Time) (int, error) {
	resp, err := s.submit(ctx, request{kind: opDecay, ctx: ctx, now: now})
	if err != nil {
		return 0, err
	}
	return resp.decayed, resp.err
}

// Score returns the current confidence for a pattern key.
func (s *Store) Score(key string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrPatternNotFound, key)
	}
	return p.Confidence, nil
}

// Get returns a copy of the pattern for a key.
func (s *Store) Get(key string) (*types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrPatternNotFound, key)
	}
	return clonePattern(p), nil
}

// Patterns returns a filtered snapshot ordered by confidence descending
// then key ascending.
func (s *Store) Patterns(filter types.PatternFilter) []*types.Pattern {
	s.mu.RLock()
	out := make([]*types.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		if filter.Category != nil && p.Category != *filter.Category {
			continue
		}
		if filter.MinConfidence != nil && p.Confidence < *filter.MinConfidence {
			continue
		}
		out = append(out, clonePattern(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Key < out[j].Key
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (s *Store) handleIngest(ctx context.Context, obs *types.Observation) ([]string, error) {
	extractions, err := Extract(obs)
	if err != nil {
		if errors.Is(err, types.ErrUnrecognizedObservation) {
			fmt.Fprintf(os.Stderr, "Warning: dropping observation %s: %v\n", obs.ID, err)
		}
		return nil, err
	}
	if len(extractions) == 0 {
		return nil, nil
	}

	updated := make([]string, 0, len(extractions))
	for _, ex := range extractions {
		if err := s.applyExtraction(ctx, obs, ex); err != nil {
			return updated, fmt.Errorf("updating pattern %s: %w", ex.Key, err)
		}
		updated = append(updated, ex.Key)
	}
	return updated, nil
}

// applyExtraction folds one extraction into its pattern: bump the
// sample count, append to the bounded evidence window, rescore, persist,
// then commit to memory. Memory is only updated after a successful
// write so the map never drifts ahead of the database.
func (s *Store) applyExtraction(ctx context.Context, obs *types.Observation, ex Extraction) error {
	s.mu.RLock()
	existing := s.patterns[ex.Key]
	s.mu.RUnlock()

	var next *types.Pattern
	prevLevel := types.ConfidenceVeryLow
	if existing == nil {
		next = &types.Pattern{
			Key:       ex.Key,
			Category:  ex.Category,
			Label:     ex.Label,
			FirstSeen: obs.Timestamp,
			LastSeen:  obs.Timestamp,
		}
	} else {
		prevLevel = existing.Level()
		next = clonePattern(existing)
		if obs.Timestamp.After(next.LastSeen) {
			next.LastSeen = obs.Timestamp
		}
	}

	next.SampleCount++
	next.EvidenceWindow = append(next.EvidenceWindow, types.Evidence{
		ObservationID: obs.ID,
		Weight:        ex.Weight,
		SeenAt:        obs.Timestamp,
	})
	if len(next.EvidenceWindow) > s.cfg.EvidenceWindowSize {
		next.EvidenceWindow = next.EvidenceWindow[len(next.EvidenceWindow)-s.cfg.EvidenceWindowSize:]
	}
	rescore(s.cfg, next)

	if err := s.storage.UpsertPattern(ctx, next); err != nil {
		return err
	}

	s.mu.Lock()
	s.patterns[next.Key] = next
	s.mu.Unlock()

	if newLevel := next.Level(); newLevel != prevLevel {
		s.emitThresholdEvent(ctx, next, prevLevel, newLevel)
	}
	return nil
}

func (s *Store) handleDecay(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	staleBefore := now.Add(-time.Duration(s.cfg.StalenessDays) * 24 * time.Hour)

	s.mu.RLock()
	stale := make([]*types.Pattern, 0)
	fresh := 0
	for _, p := range s.patterns {
		if p.LastSeen.Before(staleBefore) && p.Confidence > 0 {
			stale = append(stale, clonePattern(p))
		} else {
			fresh++
		}
	}
	s.mu.RUnlock()

	sort.Slice(stale, func(i, j int) bool { return stale[i].Key < stale[j].Key })

	decayed := 0
	for _, next := range stale {
		prevLevel := next.Level()
		next.Confidence *= s.cfg.DecayFactor

		if err := s.storage.UpsertPattern(ctx, next); err != nil {
			return decayed, fmt.Errorf("persisting decayed pattern %s: %w", next.Key, err)
		}

		s.mu.Lock()
		s.patterns[next.Key] = next
		s.mu.Unlock()

		if newLevel := next.Level(); newLevel != prevLevel {
			s.emitThresholdEvent(ctx, next, prevLevel, newLevel)
		}
		decayed++
	}

	if decayed > 0 {
		event := events.NewSimpleEvent(events.EventTypeDecayApplied, "", "", actorName,
			events.SeverityInfo, fmt.Sprintf("Decay pass reduced %d stale pattern(s)", decayed))
		err := event.SetDecayAppliedData(events.DecayAppliedData{
			PatternsDecayed:  decayed,
			PatternsSkipped:  fresh,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		})
		if err == nil {
			err = s.storage.StoreEvent(ctx, event)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record decay event: %v\n", err)
		}
	}

	return decayed, nil
}

func (s *Store) emitThresholdEvent(ctx context.Context, p *types.Pattern, from, to types.ConfidenceLevel) {
	event, err := events.NewPatternThresholdEvent(actorName, events.SeverityInfo,
		fmt.Sprintf("Pattern %s moved from %s to %s (%.2f)", p.Key, from, to, p.Confidence),
		events.PatternThresholdData{
			PatternKey:    p.Key,
			Category:      string(p.Category),
			Confidence:    p.Confidence,
			PreviousLevel: string(from),
			NewLevel:      string(to),
			SampleCount:   p.SampleCount,
		})
	if err == nil {
		err = s.storage.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record threshold event for %s: %v\n", p.Key, err)
	}
}

func clonePattern(p *types.Pattern) *types.Pattern {
	c := *p
	c.EvidenceWindow = append([]types.Evidence(nil), p.EvidenceWindow...)
	return &c
}
