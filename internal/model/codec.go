package model

import (
	"fmt"

	"github.com/roach88/tessera/internal/value"
)

// EncodeChanges converts changes into a property bag. Empty sets and frames
// are omitted. The layout is:
//
//	{"frames": [{"shard": "library", "members": [
//	    {"member": "books", "changes": [{"action": "added", "entity": "book/…", "new": {…}}]},
//	    {"member": "written_by", "changes": [{"action": "linked", "parent": "…", "child": "…"}]}
//	]}]}
func EncodeChanges(c *ModelChanges) value.Object {
	frames := value.Array{}
	for _, f := range c.frames {
		if !f.HasChanges() {
			continue
		}
		members := value.Array{}
		for _, s := range f.sets {
			if !s.HasChanges() {
				continue
			}
			members = append(members, value.Object{
				"member":  value.String(s.Member().MemberName()),
				"changes": encodeSet(s),
			})
		}
		frames = append(frames, value.Object{
			"shard":   value.String(f.shard.Name),
			"members": members,
		})
	}
	return value.Object{"frames": frames}
}

func encodeSet(s ChangeSet) value.Array {
	out := value.Array{}
	switch set := s.(type) {
	case *CollectionChangeSet:
		for _, c := range set.entries {
			entry := value.Object{
				"action": value.String(c.Action.String()),
				"entity": value.String(c.Entity.String()),
			}
			if c.Old != nil {
				entry["old"] = c.Old.Bag()
			}
			if c.New != nil {
				entry["new"] = c.New.Bag()
			}
			out = append(out, entry)
		}
	case *RelationChangeSet:
		for _, c := range set.entries {
			out = append(out, value.Object{
				"action": value.String(c.Action.String()),
				"parent": value.String(c.Parent.String()),
				"child":  value.String(c.Child.String()),
			})
		}
	}
	return out
}

// DecodeChanges rebuilds changes from a bag produced by EncodeChanges,
// resolving shards and members through reg.
func DecodeChanges(reg *Registry, bag value.Object) (*ModelChanges, error) {
	out := NewModelChanges()
	frames, err := arrayField(bag, "frames")
	if err != nil {
		return nil, err
	}
	for i, fv := range frames {
		fobj, ok := fv.(value.Object)
		if !ok {
			return nil, fmt.Errorf("frames[%d]: expected object", i)
		}
		frame, err := decodeFrame(reg, fobj)
		if err != nil {
			return nil, fmt.Errorf("frames[%d]: %w", i, err)
		}
		if err := out.Add(frame); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeFrame(reg *Registry, bag value.Object) (*ChangesFrame, error) {
	name, err := bag.GetString("shard")
	if err != nil {
		return nil, err
	}
	info, err := reg.Shard(name)
	if err != nil {
		return nil, err
	}
	frame := NewChangesFrame(info)
	members, err := arrayField(bag, "members")
	if err != nil {
		return nil, err
	}
	for _, mv := range members {
		mobj, ok := mv.(value.Object)
		if !ok {
			return nil, fmt.Errorf("shard %q: expected member object", name)
		}
		memberName, err := mobj.GetString("member")
		if err != nil {
			return nil, err
		}
		member, ok := info.Member(memberName)
		if !ok {
			return nil, &Error{Code: ErrCodeUnknownMember, Message: fmt.Sprintf("unknown member %s.%s", name, memberName)}
		}
		changes, err := arrayField(mobj, "changes")
		if err != nil {
			return nil, err
		}
		set, _ := frame.Set(member)
		for j, cv := range changes {
			cobj, ok := cv.(value.Object)
			if !ok {
				return nil, fmt.Errorf("%s changes[%d]: expected object", member, j)
			}
			if err := decodeChange(set, cobj); err != nil {
				return nil, fmt.Errorf("%s changes[%d]: %w", member, j, err)
			}
		}
	}
	return frame, nil
}

func decodeChange(set ChangeSet, bag value.Object) error {
	actionName, err := bag.GetString("action")
	if err != nil {
		return err
	}
	action, err := ParseAction(actionName)
	if err != nil {
		return err
	}
	switch s := set.(type) {
	case *CollectionChangeSet:
		e, err := entityField(bag, "entity")
		if err != nil {
			return err
		}
		c := CollectionChange{Action: action, Entity: e}
		if c.Old, err = propertiesField(s.info, bag, "old"); err != nil {
			return err
		}
		if c.New, err = propertiesField(s.info, bag, "new"); err != nil {
			return err
		}
		return s.Append(c)
	case *RelationChangeSet:
		parent, err := entityField(bag, "parent")
		if err != nil {
			return err
		}
		child, err := entityField(bag, "child")
		if err != nil {
			return err
		}
		return s.Append(RelationChange{Action: action, Parent: parent, Child: child})
	}
	return fmt.Errorf("unsupported change set %T", set)
}

// MarshalChanges encodes changes as canonical JSON.
func MarshalChanges(c *ModelChanges) ([]byte, error) {
	return value.MarshalCanonical(EncodeChanges(c))
}

// UnmarshalChanges decodes JSON produced by MarshalChanges.
func UnmarshalChanges(reg *Registry, data []byte) (*ModelChanges, error) {
	v, err := value.UnmarshalJSON(data)
	if err != nil {
		return nil, err
	}
	bag, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("changes: expected object, got %s", value.KindOf(v))
	}
	return DecodeChanges(reg, bag)
}

// DigestChanges returns the domain-separated digest of the canonical encoding.
func DigestChanges(c *ModelChanges) (string, error) {
	return value.Digest(value.DomainChanges, EncodeChanges(c))
}

func arrayField(bag value.Object, key string) (value.Array, error) {
	v, ok := bag.Get(key)
	if !ok {
		return nil, fmt.Errorf("field %q: missing", key)
	}
	arr, ok := v.(value.Array)
	if !ok {
		return nil, fmt.Errorf("field %q: expected list, got %s", key, value.KindOf(v))
	}
	return arr, nil
}

func entityField(bag value.Object, key string) (Entity, error) {
	s, err := bag.GetString(key)
	if err != nil {
		return Entity{}, err
	}
	return ParseEntity(s)
}

func propertiesField(info *CollectionInfo, bag value.Object, key string) (Properties, error) {
	v, ok := bag.Get(key)
	if !ok {
		return nil, nil
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("field %q: expected object, got %s", key, value.KindOf(v))
	}
	return info.Decode(obj)
}
