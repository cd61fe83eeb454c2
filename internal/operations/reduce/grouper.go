package reduce

import (
	"sort"

	"github.com/linxule/docetl/internal/record"
)

// group is one reduce key plus the ordered records sharing it. Groups are
// immutable once formed and consumed by exactly one strategy.
type group struct {
	key     any
	records []record.Record
}

// groupByKey stable-sorts records by the reduce key and run-length groups
// adjacent equal keys. Every input record lands in exactly one group; groups
// come out in ascending key order. Records missing the key field group under
// a nil key, which sorts first.
func groupByKey(records []record.Record, key string) []group {
	if len(records) == 0 {
		return nil
	}

	sorted := make([]record.Record, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(i, j int) bool {
		ki, _ := sorted[i].Key(key)
		kj, _ := sorted[j].Key(key)

		return record.CompareValues(ki, kj) < 0
	})

	var groups []group

	for _, rec := range sorted {
		kv, _ := rec.Key(key)

		if len(groups) == 0 || !record.KeysEqual(groups[len(groups)-1].key, kv) {
			groups = append(groups, group{key: kv})
		}

		last := &groups[len(groups)-1]
		last.records = append(last.records, rec)
	}

	return groups
}

// projectGroup restricts every record in the group to the declared input
// field set. Projection happens per group, after grouping, so it never
// affects group membership.
func projectGroup(g group, inputSchema map[string]string) group {
	if len(inputSchema) == 0 {
		return g
	}

	projected := make([]record.Record, len(g.records))
	for i, rec := range g.records {
		projected[i] = rec.Project(inputSchema)
	}

	return group{key: g.key, records: projected}
}
