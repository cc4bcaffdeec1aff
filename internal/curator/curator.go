// Package curator turns successfully validated runs into ranked,
// deduplicated discoveries. Each discovery's value score is a fixed
// weighted sum of component scores with configurable weights;
// deduplication groups structurally similar artifacts that were
// derived from overlapping pattern sets and features the most
// valuable member of each group.
package curator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/storage"
	"github.com/sparkengine/spark/internal/types"
)

// actorName identifies this component in emitted events.
const actorName = "curator"

// defaultDedupCacheSize bounds the signature cache when the config
// leaves it unset.
const defaultDedupCacheSize = 256

// alignmentSampleLimit caps how many prior discoveries are consulted
// when estimating how well a category matches the user's taste.
const alignmentSampleLimit = 50

// groupEntry tracks the best known member of one dedup group. Every
// signature key belonging to the group shares the same entry, so a
// demotion through one key is visible through all of them.
type groupEntry struct {
	ID        string
	BestID    string
	BestValue float64
}

// Curator scores, deduplicates, and persists discoveries produced by
// completed exploration runs. It is not safe for concurrent use; the
// engine curates one session at a time.
type Curator struct {
	cfg    config.CurationConfig
	store  storage.Storage
	groups *lru.Cache[string, *groupEntry]
	now    func() time.Time
}

// New creates a curator. Zero-value weights fall back to the stock
// ranking weights so a partially filled config still curates sensibly.
func New(cfg config.CurationConfig, store storage.Storage) *Curator {
	if cfg.Weights.Sum() == 0 {
		cfg.Weights = config.DefaultRankingWeights()
	}
	size := cfg.DedupCacheSize
	if size <= 0 {
		size = defaultDedupCacheSize
	}
	// lru.New only fails on a non-positive size, which is guarded above.
	cache, _ := lru.New[string, *groupEntry](size)
	return &Curator{
		cfg:    cfg,
		store:  store,
		groups: cache,
		now:    time.Now,
	}
}

// curation carries per-call state so one Curate pass sees its own
// earlier candidates when judging novelty and duplicate grouping.
type curation struct {
	session      *types.Session
	goals        map[string]*types.Goal
	now          time.Time
	alignments   map[types.GoalCategory]float64
	seenCategory map[types.GoalCategory]int
	seenCombos   map[string]bool
}

// candidate is one succeeded run on its way to becoming a discovery.
type candidate struct {
	run       *types.Run
	discovery *types.Discovery
	combos    []string
	completed time.Time
}

// Curate converts the session's succeeded runs into persisted, ranked
// discoveries. Runs in any other terminal state never yield a
// discovery; their outcomes feed pattern reinforcement elsewhere. The
// returned slice is ordered by value score descending, novelty
// descending, then run completion ascending.
func (c *Curator) Curate(ctx context.Context, session *types.Session, runs []*types.Run) ([]*types.Discovery, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}

	cur := &curation{
		session:      session,
		goals:        make(map[string]*types.Goal, len(session.Goals)),
		now:          c.now(),
		alignments:   make(map[types.GoalCategory]float64),
		seenCategory: make(map[types.GoalCategory]int),
		seenCombos:   make(map[string]bool),
	}
	for i := range session.Goals {
		cur.goals[session.Goals[i].ID] = &session.Goals[i]
	}

	var cands []*candidate
	for _, run := range runs {
		if run.State != types.RunSucceeded {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cand, err := c.buildCandidate(ctx, cur, run)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			continue
		}
		if cand.discovery.ValueScore < c.cfg.MinValueScore {
			continue
		}
		cands = append(cands, cand)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].discovery, cands[j].discovery
		if a.ValueScore != b.ValueScore {
			return a.ValueScore > b.ValueScore
		}
		if a.NoveltyScore != b.NoveltyScore {
			return a.NoveltyScore > b.NoveltyScore
		}
		return cands[i].completed.Before(cands[j].completed)
	})

	if c.cfg.MaxPerSession > 0 && len(cands) > c.cfg.MaxPerSession {
		cands = cands[:c.cfg.MaxPerSession]
	}

	result := make([]*types.Discovery, 0, len(cands))
	for _, cand := range cands {
		if err := c.assignGroup(ctx, cand); err != nil {
			return nil, err
		}
		if err := c.store.SaveDiscovery(ctx, cand.discovery); err != nil {
			return nil, fmt.Errorf("saving discovery for run %s: %w", cand.run.ID, err)
		}
		c.emitCurated(ctx, cand.discovery)
		result = append(result, cand.discovery)
	}
	return result, nil
}

// buildCandidate scores one succeeded run. It returns nil when the run
// recorded no artifact, which can happen if the artifact row was lost;
// curation continues without it.
func (c *Curator) buildCandidate(ctx context.Context, cur *curation, run *types.Run) (*candidate, error) {
	goal, ok := cur.goals[run.GoalID]
	if !ok {
		return nil, fmt.Errorf("run %s references goal %s not in session %s", run.ID, run.GoalID, cur.session.ID)
	}
	if run.ArtifactRef == "" {
		return nil, nil
	}
	artifact, err := c.store.GetArtifact(ctx, run.ArtifactRef)
	if err != nil {
		return nil, fmt.Errorf("loading artifact %s: %w", run.ArtifactRef, err)
	}
	if artifact == nil {
		return nil, nil
	}

	relevance, err := c.patternRelevance(ctx, goal.DerivedFrom)
	if err != nil {
		return nil, err
	}
	alignment, err := c.categoryAlignment(ctx, cur, goal.Category)
	if err != nil {
		return nil, err
	}

	difficulty := classifyDifficulty(artifact)
	sig := artifactSignature(goal.Category, artifact)

	combos := make([]string, 0, len(goal.DerivedFrom))
	joined := false
	for _, key := range goal.DerivedFrom {
		combo := sig + "|" + key
		if c.groups.Contains(combo) || cur.seenCombos[combo] {
			joined = true
		}
		combos = append(combos, combo)
	}
	for _, combo := range combos {
		cur.seenCombos[combo] = true
	}

	novelty := 1.0
	if joined {
		novelty = 0.4
	}
	novelty -= 0.15 * float64(cur.seenCategory[goal.Category])
	if novelty < 0.1 {
		novelty = 0.1
	}
	cur.seenCategory[goal.Category]++

	completed := cur.now
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}

	w := c.cfg.Weights
	value := w.Technical*technicalValue(run.Metrics) +
		w.Relevance*relevance +
		w.Actionability*difficulty.ActionabilityWeight() +
		w.Impact*impactScore(goal.Category, artifact) +
		w.Novelty*novelty +
		w.Alignment*alignment +
		w.Recency*recencyScore(completed, cur.now)

	return &candidate{
		run: run,
		discovery: &types.Discovery{
			ID:           types.NewDiscoveryID(),
			RunID:        run.ID,
			SessionID:    cur.session.ID,
			Title:        discoveryTitle(goal.Description),
			Description:  artifact.Summary,
			Category:     goal.Category,
			DerivedFrom:  append([]string(nil), goal.DerivedFrom...),
			ValueScore:   clamp01(value),
			NoveltyScore: novelty,
			Difficulty:   difficulty,
			CreatedAt:    cur.now,
		},
		combos:    combos,
		completed: completed,
	}, nil
}

// patternRelevance is the mean confidence of the patterns a goal was
// derived from. Unknown keys contribute zero rather than failing the
// whole curation pass.
func (c *Curator) patternRelevance(ctx context.Context, keys []string) (float64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	total := 0.0
	for _, key := range keys {
		p, err := c.store.GetPattern(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("loading pattern %s: %w", key, err)
		}
		if p != nil {
			total += p.Confidence
		}
	}
	return total / float64(len(keys)), nil
}

// categoryAlignment reflects how past discoveries in the same category
// were rated by the user. No rated history reads as neutral.
func (c *Curator) categoryAlignment(ctx context.Context, cur *curation, category types.GoalCategory) (float64, error) {
	if v, ok := cur.alignments[category]; ok {
		return v, nil
	}
	cat := category
	prior, err := c.store.ListDiscoveries(ctx, types.DiscoveryFilter{Category: &cat, Limit: alignmentSampleLimit})
	if err != nil {
		return 0, fmt.Errorf("loading %s discoveries: %w", category, err)
	}
	total, rated := 0.0, 0
	for _, d := range prior {
		if d.UserFeedback == nil {
			continue
		}
		total += float64(d.UserFeedback.Rating-1) / 4.0
		rated++
	}
	score := 0.5
	if rated > 0 {
		score = total / float64(rated)
	}
	cur.alignments[category] = score
	return score, nil
}

// assignGroup places a candidate in a dedup group. Candidates arrive
// in value order, so within one batch the group opener is always its
// best member; a cross-batch joiner can still displace a previously
// featured discovery when it scores strictly higher.
func (c *Curator) assignGroup(ctx context.Context, cand *candidate) error {
	d := cand.discovery
	var entry *groupEntry
	for _, combo := range cand.combos {
		if e, ok := c.groups.Get(combo); ok {
			entry = e
			break
		}
	}

	if entry == nil {
		entry = &groupEntry{
			ID:        fmt.Sprintf("group-%s", uuid.New().String()[:8]),
			BestID:    d.ID,
			BestValue: d.ValueScore,
		}
		d.DedupGroupID = entry.ID
		d.Featured = true
	} else {
		d.DedupGroupID = entry.ID
		if d.ValueScore > entry.BestValue {
			if err := c.demote(ctx, entry.BestID); err != nil {
				return err
			}
			d.Featured = true
			c.emitDeduplicated(ctx, d, entry)
			entry.BestID = d.ID
			entry.BestValue = d.ValueScore
		} else {
			c.emitDeduplicated(ctx, d, entry)
		}
	}

	for _, combo := range cand.combos {
		c.groups.Add(combo, entry)
	}
	return nil
}

// demote clears the featured flag on a group's previous best member.
// The row may already be gone to retention; the new member simply
// takes over in that case.
func (c *Curator) demote(ctx context.Context, id string) error {
	prev, err := c.store.GetDiscovery(ctx, id)
	if err != nil {
		return fmt.Errorf("loading featured discovery %s: %w", id, err)
	}
	if prev == nil || !prev.Featured {
		return nil
	}
	prev.Featured = false
	if err := c.store.UpdateDiscovery(ctx, prev); err != nil {
		return fmt.Errorf("demoting discovery %s: %w", id, err)
	}
	return nil
}

// RecordFeedback attaches a user rating to a discovery. Ratings never
// rewrite the stored value score; they modulate rank at read time
// through RankScore.
func (c *Curator) RecordFeedback(ctx context.Context, discoveryID string, rating int, note string) (*types.Feedback, error) {
	discovery, err := c.store.GetDiscovery(ctx, discoveryID)
	if err != nil {
		return nil, fmt.Errorf("loading discovery %s: %w", discoveryID, err)
	}
	if discovery == nil {
		return nil, types.ErrDiscoveryNotFound
	}

	feedback := &types.Feedback{
		DiscoveryID: discoveryID,
		Rating:      rating,
		Note:        note,
		RecordedAt:  c.now(),
	}
	if err := c.store.RecordFeedback(ctx, feedback); err != nil {
		return nil, err
	}

	discovery.UserFeedback = feedback
	event := events.NewSimpleEvent(events.EventTypeFeedbackRecorded, discovery.SessionID, discovery.RunID,
		actorName, events.SeverityInfo,
		fmt.Sprintf("discovery %s rated %d", discoveryID, rating))
	err = event.SetFeedbackRecordedData(events.FeedbackRecordedData{
		DiscoveryID:   discoveryID,
		Rating:        rating,
		OldValueScore: discovery.ValueScore,
		NewValueScore: RankScore(discovery),
	})
	if err == nil {
		err = c.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record feedback event for %s: %v\n", discoveryID, err)
	}
	return feedback, nil
}

// CleanupExpired trims non-featured, unrated discoveries older than
// the configured retention period. A zero retention keeps everything
// forever.
func (c *Curator) CleanupExpired(ctx context.Context) (int, error) {
	if c.cfg.DiscoveryRetentionDays <= 0 {
		return 0, nil
	}
	cutoff := c.now().AddDate(0, 0, -c.cfg.DiscoveryRetentionDays)
	return c.store.DeleteDiscoveriesBefore(ctx, cutoff)
}

func (c *Curator) emitCurated(ctx context.Context, d *types.Discovery) {
	event, err := events.NewDiscoveryCuratedEvent(d.SessionID, d.RunID, actorName, events.SeverityInfo,
		fmt.Sprintf("discovery %s curated (value %.2f)", d.ID, d.ValueScore),
		events.DiscoveryCuratedData{
			DiscoveryID:  d.ID,
			RunID:        d.RunID,
			ValueScore:   d.ValueScore,
			NoveltyScore: d.NoveltyScore,
			Featured:     d.Featured,
			DedupGroupID: d.DedupGroupID,
		})
	if err == nil {
		err = c.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record curation event for %s: %v\n", d.ID, err)
	}
}

func (c *Curator) emitDeduplicated(ctx context.Context, d *types.Discovery, entry *groupEntry) {
	event := events.NewSimpleEvent(events.EventTypeDiscoveryDeduplicated, d.SessionID, d.RunID,
		actorName, events.SeverityInfo,
		fmt.Sprintf("discovery %s joined dedup group %s", d.ID, entry.ID))
	err := event.SetDiscoveryDeduplicatedData(events.DiscoveryDeduplicatedData{
		DiscoveryID:  d.ID,
		DuplicateOf:  entry.BestID,
		DedupGroupID: entry.ID,
		Similarity:   1.0,
	})
	if err == nil {
		err = c.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record dedup event for %s: %v\n", d.ID, err)
	}
}
