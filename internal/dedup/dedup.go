// Package dedup collapses candidates that share a LinkedIn identity into a
// single survivor while keeping an audit trail of what was absorbed.
package dedup

import (
	"sort"

	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/candidate"
)

// Group is the audit record for one identity key that matched more than one
// candidate. Subordinate duplicates are kept, never deleted.
type Group struct {
	IdentityKey string
	Survivor    *candidate.Record
	Duplicates  []*candidate.Record
}

// Size returns the total number of records in the group, survivor included.
func (g *Group) Size() int {
	return 1 + len(g.Duplicates)
}

// Deduplicate groups records by identity key and resolves each group to one
// survivor. Records without an identity key form singleton groups and are
// never merged with anything: absence of a key is not a match. Survivors win
// by completeness score; ties go to the earliest-ingested file, then the
// earliest row, so results never depend on iteration order.
func Deduplicate(records []*candidate.Record, logger *zap.Logger) ([]*candidate.Record, []*Group) {
	if logger == nil {
		logger = zap.NewNop()
	}

	groups := make(map[string][]*candidate.Record)
	var order []string
	var keyless []*candidate.Record

	for _, rec := range records {
		key := rec.IdentityKey()
		if key == "" {
			keyless = append(keyless, rec)
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	var survivors []*candidate.Record
	var report []*Group

	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			survivors = append(survivors, group[0])
			continue
		}

		sort.SliceStable(group, func(i, j int) bool {
			si, sj := group[i].CompletenessScore(), group[j].CompletenessScore()
			if si != sj {
				return si > sj
			}
			if group[i].FileIndex != group[j].FileIndex {
				return group[i].FileIndex < group[j].FileIndex
			}
			return group[i].RowIndex < group[j].RowIndex
		})

		survivors = append(survivors, group[0])
		report = append(report, &Group{
			IdentityKey: key,
			Survivor:    group[0],
			Duplicates:  group[1:],
		})

		logger.Debug("resolved duplicate group",
			zap.String("identity_key", key),
			zap.Int("group_size", len(group)),
			zap.String("survivor_file", group[0].SourceFile),
		)
	}

	survivors = append(survivors, keyless...)

	if len(report) > 0 {
		logger.Info("deduplication completed",
			zap.Int("input_records", len(records)),
			zap.Int("survivors", len(survivors)),
			zap.Int("duplicate_groups", len(report)),
		)
	}

	return survivors, report
}
