package shape

import (
	"fmt"
	"slices"
)

// MovieReview is a review keyed by title, one per (title, reviewer).
var MovieReview = Shape{
	Name:       "movie_review",
	Account:    "MovieAccountState",
	KeyField:   "title",
	OwnerField: "reviewer",
	Fields: []Field{
		{Name: "reviewer", Kind: KindPubkey},
		{Name: "rating", Kind: KindU8, Ranged: true, Min: 1, Max: 5},
		{Name: "title", Kind: KindString, MaxLen: 20},
		{Name: "description", Kind: KindString, MaxLen: 50},
	},
}

// StudentInfo is a student introduction keyed by name.
var StudentInfo = Shape{
	Name:       "student_info",
	Account:    "Student",
	KeyField:   "name",
	OwnerField: "creator",
	Fields: []Field{
		{Name: "name", Kind: KindString, MaxLen: 20},
		{Name: "intro", Kind: KindString, MaxLen: 50},
		{Name: "creator", Kind: KindPubkey},
	},
}

// Registry holds the shapes available to the record manager, by name.
type Registry struct {
	shapes map[string]*Shape
}

// NewRegistry returns a registry holding the built-in shapes.
func NewRegistry() *Registry {
	r := &Registry{shapes: make(map[string]*Shape)}
	for _, s := range []Shape{MovieReview, StudentInfo} {
		r.shapes[s.Name] = &s
	}
	return r
}

// Add registers s after checking it. Names must be unique.
func (r *Registry) Add(s Shape) error {
	if err := s.Check(); err != nil {
		return err
	}
	if _, dup := r.shapes[s.Name]; dup {
		return fmt.Errorf("shape %s: already registered", s.Name)
	}
	r.shapes[s.Name] = &s
	return nil
}

// Lookup returns the shape called name.
func (r *Registry) Lookup(name string) (*Shape, error) {
	s, ok := r.shapes[name]
	if !ok {
		return nil, fmt.Errorf("unknown shape %q", name)
	}
	return s, nil
}

// Names returns the registered shape names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.shapes))
	for n := range r.shapes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
