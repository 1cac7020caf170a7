package dataset

import (
	"fmt"

	"github.com/model-collapse/annoconv/dserrors"
)

// Category is one label in the registry.
type Category struct {
	Name string
	// Parent is a free-form super-category kept for round-trips. It does not
	// take part in equality.
	Parent string
}

// Categories is the ordered, deduplicated label vocabulary of a dataset. An
// annotation's Label is an index into it.
type Categories struct {
	items  []Category
	index  map[string]int
	strict bool
	frozen bool
}

// NewCategories returns a registry holding names in order. Repeated names
// collapse onto their first occurrence.
func NewCategories(names ...string) *Categories {
	c := &Categories{index: make(map[string]int)}
	for _, n := range names {
		c.add(n, "")
	}
	return c
}

// NewStrictCategories returns a registry whose Add rejects repeated names.
func NewStrictCategories() *Categories {
	c := NewCategories()
	c.strict = true
	return c
}

// Add appends name if absent and returns its index. It is idempotent
// unless the registry is strict.
func (c *Categories) Add(name string) (int, error) {
	return c.AddWithParent(name, "")
}

// AddWithParent is Add with a super-category.
func (c *Categories) AddWithParent(name, parent string) (int, error) {
	if c.frozen {
		return 0, dserrors.CorruptData("category registry is attached to a dataset and cannot change").
			WithDetail("label", name)
	}
	if i, ok := c.index[name]; ok {
		if c.strict {
			return i, dserrors.DuplicateLabel(name)
		}
		return i, nil
	}
	return c.add(name, parent), nil
}

func (c *Categories) add(name, parent string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	c.items = append(c.items, Category{Name: name, Parent: parent})
	c.index[name] = len(c.items) - 1
	return len(c.items) - 1
}

// IndexOf returns the index of name.
func (c *Categories) IndexOf(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Name returns the label at index i.
func (c *Categories) Name(i int) (string, bool) {
	if i < 0 || i >= len(c.items) {
		return "", false
	}
	return c.items[i].Name, true
}

// At returns the category at index i.
func (c *Categories) At(i int) Category {
	return c.items[i]
}

// Len returns the number of labels.
func (c *Categories) Len() int {
	return len(c.items)
}

// Valid reports whether label is a usable index.
func (c *Categories) Valid(label int) bool {
	return label >= 0 && label < len(c.items)
}

// Names returns the labels in order.
func (c *Categories) Names() []string {
	out := make([]string, len(c.items))
	for i, it := range c.items {
		out[i] = it.Name
	}
	return out
}

// Frozen reports whether the registry is attached to a dataset.
func (c *Categories) Frozen() bool {
	return c.frozen
}

// Equal compares the ordered name sequences.
func (c *Categories) Equal(o *Categories) bool {
	if c.Len() != o.Len() {
		return false
	}
	for i := range c.items {
		if c.items[i].Name != o.items[i].Name {
			return false
		}
	}
	return true
}

// Clone returns an unfrozen copy with the same strictness.
func (c *Categories) Clone() *Categories {
	out := &Categories{
		items:  append([]Category(nil), c.items...),
		index:  make(map[string]int, len(c.index)),
		strict: c.strict,
	}
	for k, v := range c.index {
		out.index[k] = v
	}
	return out
}

func (c *Categories) String() string {
	return fmt.Sprintf("%q", c.Names())
}
