package catalogs

import "sort"

// Changes lists prototypes that differ between two catalog sets.
type Changes struct {
	Added    []Ref
	Removed  []Ref
	Modified []Ref
}

func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Touched reports whether the prototype was added, removed or modified.
func (c Changes) Touched(ref Ref) bool {
	for _, list := range [][]Ref{c.Added, c.Removed, c.Modified} {
		for _, r := range list {
			if r == ref {
				return true
			}
		}
	}
	return false
}

// Diff compares per-prototype digests.
func Diff(old, cur *Catalogs) Changes {
	var ch Changes
	if old == nil {
		old = newCatalogs("")
	}
	for ref, d := range cur.Digests {
		od, ok := old.Digests[ref]
		switch {
		case !ok:
			ch.Added = append(ch.Added, ref)
		case od != d:
			ch.Modified = append(ch.Modified, ref)
		}
	}
	for ref := range old.Digests {
		if _, ok := cur.Digests[ref]; !ok {
			ch.Removed = append(ch.Removed, ref)
		}
	}
	sortRefs(ch.Added)
	sortRefs(ch.Removed)
	sortRefs(ch.Modified)
	return ch
}

// Reload loads the same directory again and reports what changed.
func Reload(old *Catalogs) (*Catalogs, Changes, error) {
	cur, err := Load(old.Dir)
	if err != nil {
		return nil, Changes{}, err
	}
	return cur, Diff(old, cur), nil
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].ID < refs[j].ID
	})
}
