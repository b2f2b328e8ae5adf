package visibility

import "fmt"

// Filter checks entry visibility on behalf of one authorization set. Filters
// are immutable and safe to share between concurrent scans.
type Filter struct {
	priority int
	set      AuthorizationSet
}

// Filters returns one filter per set of the minimized chain, prioritized in
// first-seen order.
func Filters(chain Chain) []Filter {
	minimized := Minimize(chain)
	filters := make([]Filter, len(minimized))
	for i, s := range minimized {
		filters[i] = Filter{priority: i, set: AuthorizationSet{Entity: s.Entity, Labels: NewLabels(s.Labels...)}}
	}
	return filters
}

func (f Filter) Priority() int { return f.priority }

func (f Filter) Entity() string { return f.set.Entity }

func (f Filter) Labels() Labels { return f.set.Labels }

// Accepts reports whether the filter's labels satisfy e.
func (f Filter) Accepts(e Expression) bool {
	return e.Evaluate(f.set.Labels)
}

func (f Filter) String() string {
	return fmt.Sprintf("filter(%d, %s)", f.priority, f.set)
}

// Visible reports whether an entry labelled with expression passes every
// filter. With no filters only public entries are visible.
func Visible(filters []Filter, expression string) (bool, error) {
	e, err := Parse(expression)
	if err != nil {
		return false, err
	}
	if len(filters) == 0 {
		return e.Evaluate(nil), nil
	}
	for _, f := range filters {
		if !f.Accepts(e) {
			return false, nil
		}
	}
	return true, nil
}
