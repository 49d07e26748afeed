package cluster

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spend-intake/internal/debug"
)

// Builder turns a record table into groups. A Builder holds no per-pass
// state and may be reused and shared.
type Builder struct {
	opts    Options
	logger  *zap.Logger
	auditor Auditor
}

// NewBuilder validates opts and returns a Builder. logger and auditor may be
// nil.
func NewBuilder(opts Options, logger *zap.Logger, auditor Auditor) (*Builder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Gate == "" {
		opts.Gate = GateSubstring
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &Builder{
		opts:    opts,
		logger:  debug.OrNop(logger),
		auditor: auditor,
	}, nil
}

// Options returns the effective options.
func (b *Builder) Options() Options {
	return b.opts
}

// Build validates spends, computes every record's match list in parallel,
// then groups records sequentially in input order.
func (b *Builder) Build(ctx context.Context, records []Record) (*Result, error) {
	defer debug.Timing(b.logger, "cluster build")()

	if err := ValidateRecords(records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Result{Groups: []Group{}}, nil
	}

	matches, failures, err := b.MatchAll(ctx, records)
	if err != nil {
		return nil, err
	}

	groups, err := b.group(records, matches)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Clustering complete",
		zap.Int("records", len(records)),
		zap.Int("groups", len(groups)),
		zap.Int("scoring_failures", len(failures)),
		zap.Int("threshold", b.opts.Threshold),
		zap.String("gate", string(b.opts.Gate)))

	return &Result{Groups: groups, Matches: matches, Failures: failures}, nil
}

// MatchAll computes the match list of every record. Lists are written to
// their own slot by each task and returned only after every task is done.
// A record whose list failed gets an empty list, an audit entry and an entry
// in the returned failures. The only error returned is ctx's.
func (b *Builder) MatchAll(ctx context.Context, records []Record) ([][]Match, []*ScoringError, error) {
	names := make([]preparedName, len(records))
	for i, rec := range records {
		names[i] = prepare(rec.Name)
	}

	lists := make([][]Match, len(records))
	errs := make([]error, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lists[i], errs[i] = b.matchesFor(i, names)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var failures []*ScoringError
	for i, err := range errs {
		if err == nil {
			continue
		}
		se := &ScoringError{Index: i, Name: records[i].Name, Err: err}
		failures = append(failures, se)
		lists[i] = nil

		b.logger.Warn("Scoring failed, treating record as unmatched",
			zap.Int("record", i),
			zap.String("name", records[i].Name),
			zap.Error(err))
		b.auditor.Audit(AuditEntry{
			Kind:   AuditScoringFailure,
			Record: i,
			Detail: fmt.Sprintf("match list unavailable, grouped as singleton: %v", err),
		})
	}

	return lists, failures, nil
}

// matchesFor scores record i against every other record. It only reads
// names.
func (b *Builder) matchesFor(i int, names []preparedName) (list []Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			list = nil
			err = fmt.Errorf("panic while scoring: %v", r)
		}
	}()

	self := names[i]
	if self.err != nil {
		return nil, self.err
	}

	for j, other := range names {
		if j == i || other.err != nil {
			continue
		}
		if !b.opts.Gate.admits(self, other) {
			continue
		}
		score := similarity(self, other)
		if score >= b.opts.Threshold {
			list = append(list, Match{Index: j, Score: score})
		}
	}

	if b.opts.Gate == GateAll && b.opts.Limit > 0 && len(list) > b.opts.Limit {
		sort.SliceStable(list, func(x, y int) bool {
			return list[x].Score > list[y].Score
		})
		list = list[:b.opts.Limit]
	}
	return list, nil
}

// group walks records in input order. Each unvisited record forms a group
// with its not-yet-grouped matches; the highest spend wins representative,
// lowest index on ties.
func (b *Builder) group(records []Record, matches [][]Match) ([]Group, error) {
	n := len(records)
	visited := make([]bool, n)
	groups := make([]Group, 0, n)

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}

		candidates := []int{i}
		seen := map[int]bool{i: true}
		for _, m := range matches[i] {
			if m.Index < 0 || m.Index >= n || m.Index == i {
				return nil, fmt.Errorf("%w: record %d lists %d", ErrInvalidMatch, i, m.Index)
			}
			if seen[m.Index] {
				continue
			}
			seen[m.Index] = true
			if visited[m.Index] {
				b.auditor.Audit(AuditEntry{
					Kind:    AuditAlreadyGrouped,
					Record:  i,
					Related: []int{m.Index},
					Detail:  "match already belongs to an earlier group",
				})
				continue
			}
			candidates = append(candidates, m.Index)
		}

		rep := candidates[0]
		for _, c := range candidates[1:] {
			if records[c].Spend > records[rep].Spend ||
				(records[c].Spend == records[rep].Spend && c < rep) {
				rep = c
			}
		}

		members := make([]int, 0, len(candidates)-1)
		for _, c := range candidates {
			visited[c] = true
			if c != rep {
				members = append(members, c)
			}
		}
		sort.Ints(members)

		total := records[rep].Spend
		for _, m := range members {
			total += records[m].Spend
		}

		groups = append(groups, Group{
			Representative: rep,
			Origin:         i,
			Members:        members,
			TotalSpend:     total,
		})
	}

	return groups, nil
}
