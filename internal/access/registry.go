// Package access implements the capability bitmask model that decides which
// API calls a registered key may make.
//
// Every capability (an API name such as "WalletJournal") belongs to a section
// ("account", "char", "corp") and owns one bit, or a fixed group of bits, of
// that section's mask. A key's active mask is the OR of the capabilities it
// has been granted.
package access

import (
	"fmt"
	"sort"
	"strings"
)

// KeyInfoAPI is always active for every key and is never stored in a mask.
const KeyInfoAPI = "APIKeyInfo"

// Entry is one row of the capability reference table.
type Entry struct {
	API         string `json:"api"`
	Section     string `json:"section"`
	Mask        int64  `json:"mask"`
	Description string `json:"description"`
}

// DefaultEntries is used when the reference table is empty.
func DefaultEntries() []Entry {
	return []Entry{{
		API:         KeyInfoAPI,
		Section:     "account",
		Mask:        1,
		Description: "Key type, access mask and the characters it covers.",
	}}
}

// Registry is an immutable view of the capability table.
// It is safe for concurrent use without locking.
type Registry struct {
	entries []Entry
	// section -> lower(api) -> entry
	bySection map[string]map[string]Entry
	sections  []string
}

// NewRegistry validates entries and builds a registry. An empty slice yields
// the default registry.
func NewRegistry(entries []Entry) (*Registry, error) {
	if len(entries) == 0 {
		entries = DefaultEntries()
	}

	r := &Registry{
		entries:   make([]Entry, 0, len(entries)),
		bySection: make(map[string]map[string]Entry),
	}
	used := make(map[string]int64)

	for _, e := range entries {
		e.API = strings.TrimSpace(e.API)
		e.Section = strings.ToLower(strings.TrimSpace(e.Section))
		if e.API == "" || e.Section == "" {
			return nil, fmt.Errorf("access mask entry %q/%q: api and section are required", e.Section, e.API)
		}
		if e.Mask <= 0 {
			return nil, fmt.Errorf("access mask entry %s/%s: mask must be positive", e.Section, e.API)
		}

		apis, ok := r.bySection[e.Section]
		if !ok {
			apis = make(map[string]Entry)
			r.bySection[e.Section] = apis
			r.sections = append(r.sections, e.Section)
		}
		name := strings.ToLower(e.API)
		if _, dup := apis[name]; dup {
			return nil, fmt.Errorf("access mask entry %s/%s: duplicate api", e.Section, e.API)
		}
		if used[e.Section]&e.Mask != 0 {
			return nil, fmt.Errorf("%w: %s/%s (mask %d)", ErrOverlappingMask, e.Section, e.API, e.Mask)
		}
		used[e.Section] |= e.Mask

		apis[name] = e
		r.entries = append(r.entries, e)
	}

	sort.Strings(r.sections)
	sort.Slice(r.entries, func(i, j int) bool {
		if r.entries[i].Section != r.entries[j].Section {
			return r.entries[i].Section < r.entries[j].Section
		}
		return r.entries[i].Mask < r.entries[j].Mask
	})

	return r, nil
}

// Entries returns a copy of every entry, ordered by section then mask.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Sections returns the known section names, sorted.
func (r *Registry) Sections() []string {
	out := make([]string, len(r.sections))
	copy(out, r.sections)
	return out
}

// Lookup returns the entry for api in section.
func (r *Registry) Lookup(section, api string) (Entry, bool) {
	e, ok := r.bySection[strings.ToLower(section)][strings.ToLower(api)]
	return e, ok
}

// APIsToMask resolves API names to the OR of their masks.
//
// names is either a comma-separated string or a []string. When section is
// empty every section is searched: a name found in no section is unknown, a
// name found in more than one section is ambiguous. Unknown names are
// reported before ambiguous ones.
func (r *Registry) APIsToMask(names any, section string) (int64, error) {
	list, err := nameList(names)
	if err != nil {
		return 0, err
	}
	section = strings.ToLower(strings.TrimSpace(section))

	var (
		mask      int64
		unknown   []string
		ambiguous []string
	)
	for _, name := range list {
		if section != "" {
			e, ok := r.Lookup(section, name)
			if !ok {
				unknown = append(unknown, name)
				continue
			}
			mask |= e.Mask
			continue
		}

		var found []Entry
		for _, s := range r.sections {
			if e, ok := r.Lookup(s, name); ok {
				found = append(found, e)
			}
		}
		switch len(found) {
		case 0:
			unknown = append(unknown, name)
		case 1:
			mask |= found[0].Mask
		default:
			ambiguous = append(ambiguous, name)
		}
	}

	if len(unknown) > 0 {
		return 0, &ResolutionError{Kind: ErrUnknownCapability, Names: unknown, Section: section}
	}
	if len(ambiguous) > 0 {
		return 0, &ResolutionError{Kind: ErrAmbiguousCapability, Names: ambiguous}
	}
	return mask, nil
}

// MaskToAPIs returns the names of every capability in section whose bits are
// all set in mask, ordered by ascending mask. mask may be any integer type or
// a slice of integers, which are ORed together first.
func (r *Registry) MaskToAPIs(mask any, section string) ([]string, error) {
	m, err := maskValue(mask)
	if err != nil {
		return nil, err
	}
	section = strings.ToLower(strings.TrimSpace(section))
	if section == "" {
		return nil, ErrSectionRequired
	}

	var names []string
	for _, e := range r.entries {
		if e.Section == section && m&e.Mask == e.Mask {
			names = append(names, e.API)
		}
	}
	return names, nil
}

// SectionFor returns the section an entry with api would be found in when
// exactly one section knows it.
func (r *Registry) SectionFor(api string) (string, error) {
	var found []string
	for _, s := range r.sections {
		if _, ok := r.Lookup(s, api); ok {
			found = append(found, s)
		}
	}
	switch len(found) {
	case 0:
		return "", &ResolutionError{Kind: ErrUnknownCapability, Names: []string{api}}
	case 1:
		return found[0], nil
	default:
		return "", &ResolutionError{Kind: ErrAmbiguousCapability, Names: []string{api}}
	}
}

func nameList(names any) ([]string, error) {
	var raw []string
	switch v := names.(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidNameList, names)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no names given", ErrInvalidNameList)
	}
	return out, nil
}

func maskValue(mask any) (int64, error) {
	switch v := mask.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case []int:
		var m int64
		for _, x := range v {
			m |= int64(x)
		}
		return m, nil
	case []int64:
		var m int64
		for _, x := range v {
			m |= x
		}
		return m, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidMaskType, mask)
	}
}
