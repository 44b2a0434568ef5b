// Package mapping loads the human-authored table that ties function names
// to virtual addresses in an executable.
//
// The description is TOML with one [[function]] record per entry:
//
//	[[function]]
//	name = "main"
//	address = 0x401000
//	size = 0x40
//
// size is optional. A missing size is reported as zero and left for the
// executable model to infer. An explicit size must be positive.
package mapping

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrMalformedMapping is returned when a description does not follow the
// mapping schema or declares the same name twice.
var ErrMalformedMapping = errors.New("malformed mapping")

// File is the on-disk shape of a mapping description.
type File struct {
	Functions []Record `toml:"function" json:"function" jsonschema:"title=Functions,description=One record per mapped function"`
}

// Record is a single [[function]] table as written by the user.
type Record struct {
	Name    *string `toml:"name" json:"name" jsonschema:"required,minLength=1,title=Name,description=Function name as passed on the command line"`
	Address *uint64 `toml:"address" json:"address" jsonschema:"required,title=Address,description=Absolute virtual address of the first instruction"`
	Size    *uint64 `toml:"size" json:"size,omitempty" jsonschema:"minimum=1,title=Size,description=Length of the function in bytes"`
}

// Entry is a validated mapping record.
type Entry struct {
	Name    string
	Address uint64
	Size    uint64 // 0 when the description does not state one
}

// End returns the first address past the entry, or Address when the size
// is unknown.
func (e Entry) End() uint64 {
	return e.Address + e.Size
}

// Mapping is an immutable name to address table.
type Mapping struct {
	byName  map[string]Entry
	entries []Entry
}

// Load reads and parses the mapping description at path.
func Load(path string) (*Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	return Parse(string(raw))
}

// Parse decodes a TOML mapping description.
func Parse(text string) (*Mapping, error) {
	var doc File
	md, err := toml.Decode(text, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMapping, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrMalformedMapping, strings.Join(keys, ", "))
	}

	m := &Mapping{byName: make(map[string]Entry, len(doc.Functions))}
	for i, rec := range doc.Functions {
		if rec.Name == nil || *rec.Name == "" {
			return nil, fmt.Errorf("%w: function #%d has no name", ErrMalformedMapping, i+1)
		}
		name := *rec.Name
		if rec.Address == nil {
			return nil, fmt.Errorf("%w: function %q has no address", ErrMalformedMapping, name)
		}
		if _, dup := m.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate function %q", ErrMalformedMapping, name)
		}
		e := Entry{Name: name, Address: *rec.Address}
		if rec.Size != nil {
			if *rec.Size == 0 {
				return nil, fmt.Errorf("%w: function %q has size 0", ErrMalformedMapping, name)
			}
			e.Size = *rec.Size
		}
		if e.End() < e.Address {
			return nil, fmt.Errorf("%w: function %q wraps the address space", ErrMalformedMapping, name)
		}
		m.byName[name] = e
		m.entries = append(m.entries, e)
	}

	sort.Slice(m.entries, func(i, j int) bool {
		if m.entries[i].Address != m.entries[j].Address {
			return m.entries[i].Address < m.entries[j].Address
		}
		return m.entries[i].Name < m.entries[j].Name
	})
	return m, nil
}

// Lookup returns the entry declared for name. A false result means the name
// is not statically known; it is not an error.
func (m *Mapping) Lookup(name string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	e, ok := m.byName[name]
	return e, ok
}

// Entries returns all entries ordered by address.
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len reports the number of entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}
