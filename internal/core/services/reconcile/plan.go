package reconcile

import (
	"sort"

	"discord-interactions-server/internal/core/domain"
)

// plan is the full diff of one pass, computed before any state is touched.
type plan struct {
	creates    []*domain.Descriptor
	deletes    []*domain.Descriptor
	updates    []update
	superseded []*domain.Descriptor
}

type update struct {
	desired *domain.Descriptor
	remote  *domain.Descriptor
}

// buildPlan partitions names into create, delete and update sets. Desired state is the
// queue plus cache entries reconciled from earlier queues. When a name is queued more than
// once the last entry wins and the earlier ones are reported as superseded.
func buildPlan(queue []*domain.Descriptor, cache map[string]*domain.Descriptor, remote []*domain.Descriptor) plan {
	var p plan

	desired := make(map[string]*domain.Descriptor)
	for _, d := range cache {
		if d.Desired() {
			desired[d.Name()] = d
		}
	}

	queued := make(map[string]*domain.Descriptor, len(queue))
	for _, d := range queue {
		if prev, ok := queued[d.Name()]; ok {
			p.superseded = append(p.superseded, prev)
		}
		queued[d.Name()] = d
		desired[d.Name()] = d
	}

	remoteByName := make(map[string]*domain.Descriptor, len(remote))
	for _, r := range remote {
		if prev, ok := remoteByName[r.Name()]; ok && prev != r {
			p.deletes = append(p.deletes, prev)
		}
		remoteByName[r.Name()] = r
	}

	for _, name := range sortedKeys(desired) {
		d := desired[name]
		r, exists := remoteByName[name]
		if !exists {
			p.creates = append(p.creates, d)
			continue
		}
		p.updates = append(p.updates, update{desired: d, remote: r})
	}

	for _, name := range sortedKeys(remoteByName) {
		if _, ok := desired[name]; !ok {
			p.deletes = append(p.deletes, remoteByName[name])
		}
	}

	return p
}

func sortedKeys(m map[string]*domain.Descriptor) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
