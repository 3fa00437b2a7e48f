package harness

import (
	"fmt"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

// check evaluates one expectation against the final model.
func (h *Harness) check(m *model.Model, e Expectation) error {
	if e.Type == ExpectHistory {
		undo, redo := h.history.Len()
		if undo != e.Undo || redo != e.Redo {
			return fmt.Errorf("expected undo=%d redo=%d, got undo=%d redo=%d", e.Undo, e.Redo, undo, redo)
		}
		return nil
	}

	info, memberName, err := h.member(e.Member)
	if err != nil {
		return err
	}
	shard, err := model.Read[*model.DynamicShard](m, info)
	if err != nil {
		return err
	}
	coll, isColl := shard.Collection(memberName)
	rel, isRel := shard.Relation(memberName)

	switch e.Type {
	case ExpectCount:
		n := 0
		switch {
		case isColl:
			n = coll.Len()
		case isRel:
			n = rel.Len()
		default:
			return scenarioErrorf("shard %s has no member %q", info.Name, memberName)
		}
		if n != e.Count {
			return fmt.Errorf("%s: expected %d, got %d", e.Member, e.Count, n)
		}

	case ExpectEntity, ExpectAbsent:
		if !isColl {
			return scenarioErrorf("shard %s has no collection %q", info.Name, memberName)
		}
		ent, err := h.ref(e.Ref)
		if err != nil {
			return err
		}
		rec, found := coll.Lookup(ent)
		if e.Type == ExpectAbsent {
			if found {
				return fmt.Errorf("%s: %s (%s) exists", e.Member, e.Ref, ent)
			}
			return nil
		}
		if !found {
			return fmt.Errorf("%s: %s (%s) does not exist", e.Member, e.Ref, ent)
		}
		want, err := bagOf(coll.Info(), e.Props)
		if err != nil {
			return err
		}
		return matchFields(e.Ref, rec, want)

	case ExpectLinked, ExpectUnlinked:
		if !isRel {
			return scenarioErrorf("shard %s has no relation %q", info.Name, memberName)
		}
		parent, err := h.ref(e.Parent)
		if err != nil {
			return err
		}
		child, err := h.ref(e.Child)
		if err != nil {
			return err
		}
		linked := rel.Contains(parent, child)
		if e.Type == ExpectLinked && !linked {
			return fmt.Errorf("%s: %s -> %s is not linked", e.Member, e.Parent, e.Child)
		}
		if e.Type == ExpectUnlinked && linked {
			return fmt.Errorf("%s: %s -> %s is linked", e.Member, e.Parent, e.Child)
		}
	}
	return nil
}

// matchFields checks that rec holds every field of want. A null in want
// requires the field to be absent.
func matchFields(ref string, rec model.Record, want value.Object) error {
	for _, name := range want.SortedKeys() {
		w := want[name]
		got, ok := rec.Get(name)
		if value.IsNull(w) {
			if ok && !value.IsNull(got) {
				return fmt.Errorf("%s.%s: expected no value, got %v", ref, name, value.ToAny(got))
			}
			continue
		}
		if !ok {
			return fmt.Errorf("%s.%s: expected %v, field is absent", ref, name, value.ToAny(w))
		}
		if !value.Equal(w, got) {
			return fmt.Errorf("%s.%s: expected %v, got %v", ref, name, value.ToAny(w), value.ToAny(got))
		}
	}
	return nil
}
