package routing

import "regexp"

// QueueBinding declares that requests whose path matches Pattern should
// be admitted through the concurrency manager named Name, rather than
// the default. Unlike model-name mapping, queue and route-rule patterns
// are full regular expressions (spec.md §4.4), not single-wildcard globs.
type QueueBinding struct {
	Pattern *regexp.Regexp
	Name    string
}

// QueueSelector maps an inbound path to the name of the concurrency
// manager that should admit it. Bindings are declared in order; the
// first whose pattern matches wins. DefaultName is used when none match.
type QueueSelector struct {
	bindings    []QueueBinding
	defaultName string
}

// NewQueueSelector builds a selector from an ordered binding list and the
// default manager name (used when no binding matches).
func NewQueueSelector(bindings []QueueBinding, defaultName string) *QueueSelector {
	return &QueueSelector{bindings: bindings, defaultName: defaultName}
}

// Select returns the manager name an inbound path should be submitted to.
func (s *QueueSelector) Select(path string) string {
	for _, b := range s.bindings {
		if b.Pattern.MatchString(path) {
			return b.Name
		}
	}
	return s.defaultName
}
