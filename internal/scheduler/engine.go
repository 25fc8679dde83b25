package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/timetable-engine/internal/domain"
)

// ErrNoValidSchedule is returned when no attempt places a single block,
// including when no attempt runs at all because ctx is already done.
var ErrNoValidSchedule = errors.New("could not find a valid schedule")

// Recorder receives per-attempt and per-run observability events. It is
// defined here, by the consumer, rather than by the concrete metrics
// package — the engine depends only on the shape it actually uses.
type Recorder interface {
	ObserveAttempt(unassigned int, score float64)
	ObserveRun(attempts int, coverage float64, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveAttempt(int, float64)          {}
func (noopRecorder) ObserveRun(int, float64, time.Duration) {}

// Config tunes one Schedule run.
type Config struct {
	MaxAttempts              int
	MaxLocalSearchIterations int
	// Concurrency, when greater than 1, runs independent construction
	// attempts on a fixed-size worker pool instead of one at a time. Each
	// attempt still owns fully independent state; results merge under a
	// mutex using the same isBetter comparison the sequential path uses.
	// The default of 1 reproduces the deterministic sequential algorithm
	// exactly; anything higher is an explicit, documented opt-in.
	Concurrency int
	Logger      *zap.Logger
	Metrics     Recorder
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.MaxLocalSearchIterations <= 0 {
		c.MaxLocalSearchIterations = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = noopRecorder{}
	}
	return c
}

// Engine is the scheduling engine: multi-restart greedy construction plus
// pairwise local search over a fixed room pool.
type Engine struct {
	rooms     []domain.Room
	roomsByID map[string]domain.Room
	cfg       Config
}

// NewEngine constructs an Engine over a fixed room pool.
func NewEngine(rooms []domain.Room, cfg Config) *Engine {
	byID := make(map[string]domain.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID()] = r
	}
	return &Engine{rooms: rooms, roomsByID: byID, cfg: cfg.withDefaults()}
}

// Schedule runs the multi-restart greedy-construction-plus-local-search
// algorithm over the blocks exploded from the given study plans, and
// returns the best attempt found. ctx is checked between attempts and
// between local-search iterations; on cancellation the best attempt
// found so far is returned rather than an internal timeout firing.
func (e *Engine) Schedule(ctx context.Context, plans []domain.StudyPlan) (domain.SchedulingAttempt, error) {
	start := time.Now()
	blocks := BuildBlocks(plans)

	var best *domain.SchedulingAttempt
	if e.cfg.Concurrency > 1 {
		best = e.scheduleConcurrent(ctx, blocks)
	} else {
		best = e.scheduleSequential(ctx, blocks)
	}

	coverage := 0.0
	attempts := e.cfg.MaxAttempts
	if best != nil && len(blocks) > 0 {
		coverage = 1.0 - float64(len(best.Unassigned))/float64(len(blocks))
	}
	e.cfg.Metrics.ObserveRun(attempts, coverage, time.Since(start))

	if best == nil || len(best.Assignments) == 0 {
		return domain.SchedulingAttempt{}, ErrNoValidSchedule
	}
	return *best, nil
}

func (e *Engine) scheduleSequential(ctx context.Context, blocks []domain.Block) *domain.SchedulingAttempt {
	cm := NewConstraintManager(blocks)
	var best *domain.SchedulingAttempt

	for attemptIdx := 0; attemptIdx < e.cfg.MaxAttempts; attemptIdx++ {
		if ctx.Err() != nil {
			break
		}
		attempt := e.runOneAttempt(ctx, blocks, cm)
		e.cfg.Logger.Debug("scheduling attempt",
			zap.Int("attempt", attemptIdx),
			zap.Int("unassigned", len(attempt.Unassigned)),
			zap.Float64("score", attempt.Score))
		e.cfg.Metrics.ObserveAttempt(len(attempt.Unassigned), attempt.Score)

		if isBetter(attempt, best) {
			attemptCopy := attempt
			best = &attemptCopy
		}

		if len(attempt.Unassigned) == 0 && attempt.Score >= 0.95 {
			break
		}
		if len(attempt.Unassigned) == 0 && attempt.Score >= 0.70 {
			repaired := e.localSearch(ctx, attempt, cm, e.cfg.MaxLocalSearchIterations)
			if isBetter(repaired, best) {
				repairedCopy := repaired
				best = &repairedCopy
			}
		}
	}
	return best
}

func (e *Engine) scheduleConcurrent(ctx context.Context, blocks []domain.Block) *domain.SchedulingAttempt {
	var (
		mu   sync.Mutex
		best *domain.SchedulingAttempt
		wg   sync.WaitGroup
	)

	sem := make(chan struct{}, e.cfg.Concurrency)
	for attemptIdx := 0; attemptIdx < e.cfg.MaxAttempts; attemptIdx++ {
		if ctx.Err() != nil {
			break
		}
		attemptIdx := attemptIdx
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			cm := NewConstraintManager(blocks)
			attempt := e.runOneAttempt(ctx, blocks, cm)
			if len(attempt.Unassigned) == 0 && attempt.Score >= 0.70 && attempt.Score < 0.95 {
				attempt = e.localSearch(ctx, attempt, cm, e.cfg.MaxLocalSearchIterations)
			}
			e.cfg.Logger.Debug("scheduling attempt (concurrent)",
				zap.Int("attempt", attemptIdx),
				zap.Int("unassigned", len(attempt.Unassigned)),
				zap.Float64("score", attempt.Score))
			e.cfg.Metrics.ObserveAttempt(len(attempt.Unassigned), attempt.Score)

			mu.Lock()
			defer mu.Unlock()
			if isBetter(attempt, best) {
				attemptCopy := attempt
				best = &attemptCopy
			}
		}()
	}
	wg.Wait()
	return best
}

func (e *Engine) runOneAttempt(ctx context.Context, blocks []domain.Block, cm *ConstraintManager) domain.SchedulingAttempt {
	ordered := sortBlocksByPriority(blocks, e.rooms)
	assignments := make(map[string]domain.Assignment, len(blocks))
	var unassigned []string

	for _, block := range ordered {
		if ctx.Err() != nil {
			unassigned = append(unassigned, block.ID)
			continue
		}
		if !e.scheduleSingleBlock(block, cm, assignments) {
			unassigned = append(unassigned, block.ID)
		}
	}

	return domain.SchedulingAttempt{
		Assignments: assignments,
		Unassigned:  unassigned,
		Score:       e.rebuildAndScore(cm, assignments),
	}
}

// scheduleSingleBlock places one block greedily: among every valid
// (room, slot) pair it keeps the one with the highest soft-constraint
// score, breaking ties by iteration order.
func (e *Engine) scheduleSingleBlock(block domain.Block, cm *ConstraintManager, assignments map[string]domain.Assignment) bool {
	rooms := SuitableRooms(block, e.rooms)

	found := false
	var bestRoomID string
	var bestSlot domain.TimeSlot
	bestScore := 0.0

	for _, room := range rooms {
		for _, slot := range AvailableSlots(block, room, assignments, cm.state) {
			if ok, _ := cm.CheckAll(block, room, slot, assignments); !ok {
				continue
			}
			score := cm.EvaluateSoft(block, room, slot)
			if !found || score > bestScore {
				found = true
				bestScore = score
				bestRoomID = room.ID()
				bestSlot = slot
			}
		}
	}

	if !found {
		return false
	}
	assignments[block.ID] = domain.Assignment{BlockID: block.ID, RoomID: bestRoomID, Slot: bestSlot}
	return true
}

// sortBlocksByPriority orders blocks hardest-to-place first: single-group
// blocks before multi-group, fewer suitable rooms before more, fewer
// available slots across those rooms before more, and finally by
// blockPriority descending.
func sortBlocksByPriority(blocks []domain.Block, rooms []domain.Room) []domain.Block {
	type scored struct {
		block         domain.Block
		singleGroup   bool
		possibleRooms int
		totalSlots    int
		priority      float64
	}

	items := make([]scored, len(blocks))
	for i, b := range blocks {
		suitable := SuitableRooms(b, rooms)
		totalSlots := 0
		for _, r := range suitable {
			totalSlots += len(AvailableSlots(b, r, nil, nil))
		}
		items[i] = scored{
			block:         b,
			singleGroup:   b.SingleGroup(),
			possibleRooms: len(suitable),
			totalSlots:    totalSlots,
			priority:      blockPriority(b),
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, c := items[i], items[j]
		if a.singleGroup != c.singleGroup {
			return a.singleGroup
		}
		if a.possibleRooms != c.possibleRooms {
			return a.possibleRooms < c.possibleRooms
		}
		if a.totalSlots != c.totalSlots {
			return a.totalSlots < c.totalSlots
		}
		return a.priority > c.priority
	})

	ordered := make([]domain.Block, len(items))
	for i, it := range items {
		ordered[i] = it.block
	}
	return ordered
}

// blockPriority is the single authoritative priority formula for a
// block: preferred rooms, single-group status, lecture-vs-practical
// kind, lab requirement, and student count all push a block earlier.
func blockPriority(b domain.Block) float64 {
	score := 0.0
	if len(b.PreferredRooms) > 0 {
		score += 10
	}
	if b.SingleGroup() {
		score += 20
	}
	if b.Type == domain.BlockTypeLecture {
		score += 15
	}
	if b.RequiredRoomType == domain.RoomTypeLab {
		score += 8
	}
	score += float64(b.StudentCount) / 100.0
	return score
}

// isBetter compares two attempts: fewer unassigned blocks always wins;
// on a tie, the strictly higher score wins. A nil best loses to anything.
func isBetter(candidate domain.SchedulingAttempt, best *domain.SchedulingAttempt) bool {
	if best == nil {
		return true
	}
	if len(candidate.Unassigned) != len(best.Unassigned) {
		return len(candidate.Unassigned) < len(best.Unassigned)
	}
	return candidate.Score > best.Score
}

func (e *Engine) rebuildAndScore(cm *ConstraintManager, assignments map[string]domain.Assignment) float64 {
	if len(assignments) == 0 {
		return 0
	}
	cm.state.Rebuild(assignments)
	total := 0.0
	for id, a := range assignments {
		block, ok := cm.state.Block(id)
		if !ok {
			continue
		}
		total += cm.EvaluateSoft(block, e.roomsByID[a.RoomID], a.Slot)
	}
	return total / float64(len(assignments))
}

// localSearch repairs a fully-covered but imperfectly-scored attempt
// with pairwise room and time swaps, committing a swap only when it
// strictly improves the attempt's average score, and stopping as soon as
// a full pass finds no improving swap.
func (e *Engine) localSearch(ctx context.Context, attempt domain.SchedulingAttempt, cm *ConstraintManager, maxIterations int) domain.SchedulingAttempt {
	current := domain.SchedulingAttempt{
		Assignments: cloneAssignments(attempt.Assignments),
		Unassigned:  append([]string(nil), attempt.Unassigned...),
		Score:       attempt.Score,
	}

	ids := make([]string, 0, len(current.Assignments))
	for id := range current.Assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for iter := 0; iter < maxIterations; iter++ {
		if ctx.Err() != nil {
			break
		}
		improved := false

	pairs:
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				id1, id2 := ids[i], ids[j]
				a1, a2 := current.Assignments[id1], current.Assignments[id2]
				block1, ok1 := cm.state.Block(id1)
				block2, ok2 := cm.state.Block(id2)
				if !ok1 || !ok2 {
					continue
				}
				room1, room2 := e.roomsByID[a1.RoomID], e.roomsByID[a2.RoomID]

				if canSwapRooms(block1, block2, room1, room2) {
					swapped := cloneAssignments(current.Assignments)
					swapped[id1] = domain.Assignment{BlockID: id1, RoomID: a2.RoomID, Slot: a1.Slot}
					swapped[id2] = domain.Assignment{BlockID: id2, RoomID: a1.RoomID, Slot: a2.Slot}
					if score := e.rebuildAndScore(cm, swapped); score > current.Score {
						current.Assignments = swapped
						current.Score = score
						improved = true
						break pairs
					}
				}

				if canSwapTimes(cm, block1, block2, room1, room2, a1.Slot, a2.Slot) {
					swapped := cloneAssignments(current.Assignments)
					swapped[id1] = domain.Assignment{BlockID: id1, RoomID: a1.RoomID, Slot: a2.Slot}
					swapped[id2] = domain.Assignment{BlockID: id2, RoomID: a2.RoomID, Slot: a1.Slot}
					if score := e.rebuildAndScore(cm, swapped); score > current.Score {
						current.Assignments = swapped
						current.Score = score
						improved = true
						break pairs
					}
				}
			}
		}

		if !improved {
			break
		}
	}

	return current
}

// canSwapRooms reports whether two blocks' rooms may be exchanged: both
// blocks must require the same room type, and each room must have enough
// capacity for the other block's student count.
func canSwapRooms(b1, b2 domain.Block, r1, r2 domain.Room) bool {
	if b1.RequiredRoomType != b2.RequiredRoomType {
		return false
	}
	if r1.Capacity() < b2.StudentCount || r2.Capacity() < b1.StudentCount {
		return false
	}
	return true
}

// canSwapTimes reports whether two blocks' time slots may be exchanged.
// It checks each swapped placement against an empty assignment map —
// pairwise only, blind to every other booking in the schedule. This
// mirrors a latent gap in the source algorithm (documented, not fixed):
// a time swap that looks clean in isolation can still collide with a
// third block's room or staff booking.
func canSwapTimes(cm *ConstraintManager, b1, b2 domain.Block, r1, r2 domain.Room, slot1, slot2 domain.TimeSlot) bool {
	empty := map[string]domain.Assignment{}
	if ok, _ := cm.CheckAll(b1, r1, slot2, empty); !ok {
		return false
	}
	if ok, _ := cm.CheckAll(b2, r2, slot1, empty); !ok {
		return false
	}
	return true
}

func cloneAssignments(src map[string]domain.Assignment) map[string]domain.Assignment {
	dst := make(map[string]domain.Assignment, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
