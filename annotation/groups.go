package annotation

// GroupKey identifies one logical object split across several records.
type GroupKey struct {
	Group int
	ID    int
}

// Instance is one logical object: the indices of its records in the
// annotation slice the index was built from.
type Instance struct {
	Key     GroupKey
	Members []int
}

// GroupIndex maps (group, id) to the annotations sharing it. Annotations
// with group 0 are never merged with anything.
type GroupIndex struct {
	instances []*Instance
	byKey     map[GroupKey]*Instance
}

// Groups builds the index over anns, keeping first-appearance order.
func Groups(anns []Annotation) *GroupIndex {
	idx := &GroupIndex{byKey: make(map[GroupKey]*Instance)}
	for i, a := range anns {
		m := a.Meta()
		key := GroupKey{Group: m.Group, ID: m.ID}
		if m.Group == 0 {
			idx.instances = append(idx.instances, &Instance{Key: key, Members: []int{i}})
			continue
		}
		inst, ok := idx.byKey[key]
		if !ok {
			inst = &Instance{Key: key}
			idx.byKey[key] = inst
			idx.instances = append(idx.instances, inst)
		}
		inst.Members = append(inst.Members, i)
	}
	return idx
}

// Instances returns the logical objects in first-appearance order.
func (g *GroupIndex) Instances() []*Instance {
	return g.instances
}

// Lookup returns the member indices for a non-zero group.
func (g *GroupIndex) Lookup(group, id int) []int {
	if inst, ok := g.byKey[GroupKey{Group: group, ID: id}]; ok {
		return inst.Members
	}
	return nil
}

// AttributeConflict returns the first instance whose members disagree on
// attribute key, comparing only members that carry it.
func (g *GroupIndex) AttributeConflict(anns []Annotation, key string) (*Instance, bool) {
	for _, inst := range g.instances {
		var first *Value
		for _, i := range inst.Members {
			v, ok := anns[i].Meta().Attributes[key]
			if !ok {
				continue
			}
			if first == nil {
				first = &v
			} else if !first.Equal(v) {
				return inst, true
			}
		}
	}
	return nil, false
}
