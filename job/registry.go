package job

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps job names to definitions.
// It is populated at construction and read-only afterwards, so it is safe for
// concurrent use without locking.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry builds a registry from definitions.
// Later definitions replace earlier ones with the same name.
func NewRegistry(defs ...Definition) *Registry {
	m := make(map[string]Definition, len(defs))
	for _, def := range defs {
		m[def.Name] = def.withDefaults()
	}

	return &Registry{defs: m}
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, notFound(name)
	}

	return def, nil
}

// Names returns all registered job names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	return len(r.defs)
}

// PayloadMatches reports whether name is registered and payload carries every
// required key. Keys mapped to nil count as present.
func (r *Registry) PayloadMatches(name string, payload Payload) bool {
	return r.Validate(name, payload) == nil
}

// Validate is PayloadMatches with a reason: ErrJobNotFound or ErrPayloadMismatch.
func (r *Registry) Validate(name string, payload Payload) error {
	def, err := r.Get(name)
	if err != nil {
		return err
	}

	var missing []string
	for _, key := range def.RequiredKeys {
		if !IsKeyPresent(payload, key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: job %q is missing %s", ErrPayloadMismatch, name, strings.Join(missing, ", "))
	}

	return nil
}

// Resolve materializes the callback tree of def.
// Every call builds a fresh tree. Unknown callback names at any depth and jobs
// reachable from their own callbacks fail with a *CallbackError.
func (r *Registry) Resolve(def Definition) (*Resolved, error) {
	return r.resolve(def, []string{def.Name})
}

func (r *Registry) resolve(def Definition, path []string) (*Resolved, error) {
	out := &Resolved{Definition: def}

	for _, cb := range def.Callbacks() {
		if containsName(path, cb.Name) {
			return nil, &CallbackError{
				Job:      def.Name,
				Slot:     string(cb.Slot),
				Callback: cb.Name,
				Path:     clonePath(path),
				Err:      ErrCallbackCycle,
			}
		}

		child, err := r.Get(cb.Name)
		if err != nil {
			return nil, &CallbackError{
				Job:      def.Name,
				Slot:     string(cb.Slot),
				Callback: cb.Name,
				Path:     clonePath(path),
				Err:      err,
			}
		}

		resolved, err := r.resolve(child, append(clonePath(path), cb.Name))
		if err != nil {
			return nil, err
		}

		switch cb.Slot {
		case SlotOnStart:
			out.Start = resolved
		case SlotOnSuccess:
			out.Success = resolved
		case SlotOnFail:
			out.Fail = resolved
		}
	}

	return out, nil
}

func containsName(path []string, name string) bool {
	for _, p := range path {
		if p == name {
			return true
		}
	}

	return false
}

func clonePath(path []string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)

	return out
}
