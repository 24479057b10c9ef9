package syncagent

import (
	"sort"

	"github.com/secretkeep/secretkeep/pkg/secret"
)

// Reconcile merges two snapshots by description. When both sides hold a
// description, the copy with the newer Created or Changed entry wins and
// local wins ties. A tombstone wins over an active copy unless that copy
// was modified after the tombstoned one. The result is sorted and keeps
// tombstones so that deletions reach other peers.
func Reconcile(local, remote []secret.Secret) []secret.Secret {
	byDesc := make(map[string]secret.Secret, len(local)+len(remote))
	for _, s := range remote {
		byDesc[s.Description] = s.Clone()
	}
	for _, l := range local {
		r, ok := byDesc[l.Description]
		if !ok || prefer(l, r) {
			byDesc[l.Description] = l.Clone()
		}
	}

	out := make([]secret.Secret, 0, len(byDesc))
	for _, s := range byDesc {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return secret.Less(out[i], out[j]) })
	return out
}

// prefer reports whether a beats b.
func prefer(a, b secret.Secret) bool {
	am, bm := a.LastModified(), b.LastModified()
	switch {
	case a.Deleted == b.Deleted:
		return !am.Before(bm)
	case a.Deleted:
		return !bm.After(am)
	default:
		return am.After(bm)
	}
}
