package core

// State is the mutable key/value scratchpad shared by reference across all
// stages of one chain invocation. Writes are last-writer-wins; by convention
// a stage writes under its declared output key.
//
// State carries no synchronization. Sharing one State between chains that run
// concurrently is outside the contract.
type State map[string]any

// NewState returns an empty State.
func NewState() State { return State{} }

// Merge copies every entry of src into s, overwriting existing keys.
func (s State) Merge(src map[string]any) {
	for k, v := range src {
		s[k] = v
	}
}

// Get returns the value stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (s State) GetString(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Clone returns a shallow copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
