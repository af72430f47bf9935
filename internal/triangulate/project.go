package triangulate

import (
	"dossier/internal/core"
)

// Project restricts sealed clusters to the records that survived balancing
// and reconciles the per-record flags. Clusters keep their sealed IDs, so
// numbering stays in sealing order even when earlier clusters die. A record
// stays triangulated only while some surviving cluster or bucket still
// spans two domains around it; dangling disputed_by links are pruned but
// stance and controversy stay, since the contradiction itself was real.
// The evidence comes back re-sorted into presentation order.
func Project(paraphrase, structured []core.Cluster, evs []core.Evidence) ([]core.Cluster, []core.Cluster, []core.Evidence) {
	byID := make(map[string]int, len(evs))
	for i, ev := range evs {
		byID[ev.ID] = i
	}

	out := make([]core.Evidence, len(evs))
	copy(out, evs)
	for i := range out {
		out[i].IsTriangulated = false
		out[i].ClusterID = ""
		out[i].DisputedBy = pruneIDs(out[i].DisputedBy, byID)
	}

	keptParaphrase := projectSet(paraphrase, byID, out, func(c core.Cluster, members []int) bool {
		return len(members) >= 2
	}, true)
	keptStructured := projectSet(structured, byID, out, func(c core.Cluster, members []int) bool {
		return len(members) >= 2 && len(distinctDomains(members, out)) >= 2
	}, false)

	core.SortEvidence(out)
	return keptParaphrase, keptStructured, out
}

// projectSet rebuilds one cluster list against the surviving records. keep
// decides whether a shrunken cluster is still a cluster; assignID controls
// whether members get the cluster id stamped (paraphrase clusters own the
// field, structured buckets do not).
func projectSet(clusters []core.Cluster, byID map[string]int, evs []core.Evidence, keep func(core.Cluster, []int) bool, assignID bool) []core.Cluster {
	var out []core.Cluster
	for _, c := range clusters {
		var members []int
		for _, id := range c.MemberIDs {
			if idx, ok := byID[id]; ok {
				members = append(members, idx)
			}
		}
		if !keep(c, members) {
			continue
		}

		projected := buildCluster(c.ID, members, evs)
		projected.Key = c.Key
		projected.NeedsReview = c.NeedsReview

		for _, idx := range members {
			if assignID {
				evs[idx].ClusterID = projected.ID
			}
			if projected.Triangulated() {
				evs[idx].IsTriangulated = true
			}
		}
		out = append(out, projected)
	}
	return out
}

func pruneIDs(ids []string, byID map[string]int) []string {
	if len(ids) == 0 {
		return nil
	}
	var out []string
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
