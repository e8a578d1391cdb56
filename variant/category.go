package variant

import (
	"fmt"
	"strings"
)

// Category is one classification tag. A variant can carry several.
type Category uint8

const (
	Category1 Category = 1 << iota
	Category2
	Category3
	Category4
	CategorySupport
)

// AllCategories lists the tags in output order.
var AllCategories = []Category{Category1, Category2, Category3, Category4, CategorySupport}

var categoryNames = map[Category]string{
	Category1:       "1",
	Category2:       "2",
	Category3:       "3",
	Category4:       "4",
	CategorySupport: "support",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// ParseCategory parses the output of Category.String. A "Category" prefix
// is accepted, so "Category2" and "2" are equivalent.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "Category"), "category"))
	for c, n := range categoryNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// CategorySet is a set of independent category tags.
type CategorySet uint8

// NewCategorySet returns a set holding cats.
func NewCategorySet(cats ...Category) CategorySet {
	var s CategorySet
	for _, c := range cats {
		s |= CategorySet(c)
	}
	return s
}

// Has reports whether c is in the set.
func (s CategorySet) Has(c Category) bool { return s&CategorySet(c) != 0 }

// With returns s ∪ {c}.
func (s CategorySet) With(c Category) CategorySet { return s | CategorySet(c) }

// Without returns the set difference s \ o.
func (s CategorySet) Without(o CategorySet) CategorySet { return s &^ o }

// Empty reports whether the set holds no tags.
func (s CategorySet) Empty() bool { return s == 0 }

// List returns the tags in output order.
func (s CategorySet) List() []Category {
	var l []Category
	for _, c := range AllCategories {
		if s.Has(c) {
			l = append(l, c)
		}
	}
	return l
}

// Strings returns the tag names in output order.
func (s CategorySet) Strings() []string {
	var l []string
	for _, c := range s.List() {
		l = append(l, c.String())
	}
	return l
}

func (s CategorySet) String() string { return "{" + strings.Join(s.Strings(), ",") + "}" }
