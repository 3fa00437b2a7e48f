package model

type tracking struct{}

func (tracking) DecorateCollection(d *Decorator, m CollectionMutator) CollectionMutator {
	changes := d.Changes()
	if changes == nil {
		return m
	}
	return &trackedCollection{next: m, set: changes.frameFor(d.Shard()).Collection(m.Info())}
}

func (tracking) DecorateRelation(d *Decorator, m RelationMutator) RelationMutator {
	changes := d.Changes()
	if changes == nil {
		return m
	}
	return &trackedRelation{next: m, set: changes.frameFor(d.Shard()).Relation(m.Info())}
}

// trackedCollection appends a change entry after every successful mutation.
type trackedCollection struct {
	next CollectionMutator
	set  *CollectionChangeSet
}

func (t *trackedCollection) Info() *CollectionInfo            { return t.next.Info() }
func (t *trackedCollection) Len() int                         { return t.next.Len() }
func (t *trackedCollection) Contains(e Entity) bool           { return t.next.Contains(e) }
func (t *trackedCollection) Get(e Entity) (Properties, error) { return t.next.Get(e) }

func (t *trackedCollection) Add(e Entity, p Properties) error {
	if err := t.next.Add(e, p); err != nil {
		return err
	}
	return t.set.Append(CollectionChange{Action: ActionAdded, Entity: e, New: p})
}

func (t *trackedCollection) Modify(e Entity, fn func(Properties) (Properties, error)) error {
	var before, after Properties
	err := t.next.Modify(e, func(old Properties) (Properties, error) {
		p, err := fn(old)
		before, after = old, p
		return p, err
	})
	if err != nil {
		return err
	}
	return t.set.Append(CollectionChange{Action: ActionModified, Entity: e, Old: before, New: after})
}

func (t *trackedCollection) Remove(e Entity) error {
	old, err := t.next.Get(e)
	if err != nil {
		return err
	}
	if err := t.next.Remove(e); err != nil {
		return err
	}
	return t.set.Append(CollectionChange{Action: ActionRemoved, Entity: e, Old: old})
}

// trackedRelation appends Linked/Unlinked entries after every successful mutation.
type trackedRelation struct {
	next RelationMutator
	set  *RelationChangeSet
}

func (t *trackedRelation) Info() *RelationInfo                { return t.next.Info() }
func (t *trackedRelation) Len() int                           { return t.next.Len() }
func (t *trackedRelation) Contains(parent, child Entity) bool { return t.next.Contains(parent, child) }

func (t *trackedRelation) Add(parent, child Entity) error {
	if err := t.next.Add(parent, child); err != nil {
		return err
	}
	return t.set.Append(RelationChange{Action: ActionLinked, Parent: parent, Child: child})
}

func (t *trackedRelation) Remove(parent, child Entity) error {
	if err := t.next.Remove(parent, child); err != nil {
		return err
	}
	return t.set.Append(RelationChange{Action: ActionUnlinked, Parent: parent, Child: child})
}
