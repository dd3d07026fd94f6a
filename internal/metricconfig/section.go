package metricconfig

// Section is an ordered set of key/value pairs.
// Keys keep the position of their first declaration; a later Set only replaces the value.
type Section struct {
	keys   []string
	values map[string]string
}

// NewSection creates an empty section.
func NewSection() *Section {
	return &Section{values: make(map[string]string)}
}

// SectionOf builds a section from alternating key/value arguments.
func SectionOf(pairs ...string) *Section {
	s := NewSection()
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Set(pairs[i], pairs[i+1])
	}
	return s
}

// Set stores value under key.
func (s *Section) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns the value stored under key.
func (s *Section) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys in declaration order.
func (s *Section) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Len returns the number of keys.
func (s *Section) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Merge applies every pair of other on top of s.
func (s *Section) Merge(other *Section) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		s.Set(k, other.values[k])
	}
}
