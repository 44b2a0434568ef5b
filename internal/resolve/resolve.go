// Package resolve decides which symbol source is authoritative for a
// function name.
//
// Two sources may describe the same function: the debug database emitted by
// the toolchain, and the hand-written mapping. A name found in the debug
// database always wins. The mapping is consulted only for names the debug
// database does not know.
package resolve

import (
	"fmt"
	"log/slog"
	"sort"

	"fndisasm/internal/debugdb"
	"fndisasm/internal/mapping"
)

// Source tags where a resolution came from.
type Source int

const (
	SourceNone Source = iota
	SourceDebug
	SourceMapping
)

func (s Source) String() string {
	switch s {
	case SourceDebug:
		return "debug"
	case SourceMapping:
		return "mapping"
	default:
		return "none"
	}
}

// Database is the debug symbol source consumed by the resolver.
type Database interface {
	Lookup(name string) (debugdb.Symbol, bool)
	Symbols() []debugdb.Symbol
}

// Resolution is the authoritative location of one function.
type Resolution struct {
	Name   string
	Addr   uint64
	Size   uint64 // 0 when no source states one
	Source Source
}

// Resolver merges a mapping and an optional debug database.
type Resolver struct {
	mapping *mapping.Mapping
	db      Database
	starts  []uint64 // sorted, deduplicated start addresses of every effective symbol
}

// New returns a resolver. Either source may be nil.
func New(m *mapping.Mapping, db Database) *Resolver {
	r := &Resolver{mapping: m, db: db}

	seen := make(map[uint64]bool)
	add := func(addr uint64) {
		if !seen[addr] {
			seen[addr] = true
			r.starts = append(r.starts, addr)
		}
	}
	if db != nil {
		for _, s := range db.Symbols() {
			add(s.Addr)
		}
	}
	for _, e := range m.Entries() {
		if db != nil {
			if s, ok := db.Lookup(e.Name); ok {
				if s.Addr != e.Address {
					slog.Debug("Debug database overrides mapping", "name", e.Name,
						"debug", fmt.Sprintf("%#x", s.Addr), "mapping", fmt.Sprintf("%#x", e.Address))
				}
				continue
			}
		}
		add(e.Address)
	}
	sort.Slice(r.starts, func(i, j int) bool { return r.starts[i] < r.starts[j] })
	return r
}

// Resolve returns the authoritative location of name. A false result means
// no source knows the name.
func (r *Resolver) Resolve(name string) (Resolution, bool) {
	if r.db != nil {
		if s, ok := r.db.Lookup(name); ok {
			return Resolution{Name: name, Addr: s.Addr, Size: s.Size, Source: SourceDebug}, true
		}
	}
	if e, ok := r.mapping.Lookup(name); ok {
		return Resolution{Name: name, Addr: e.Address, Size: e.Size, Source: SourceMapping}, true
	}
	return Resolution{}, false
}

// Next returns the lowest known symbol start strictly above addr.
func (r *Resolver) Next(addr uint64) (uint64, bool) {
	i := sort.Search(len(r.starts), func(i int) bool { return r.starts[i] > addr })
	if i == len(r.starts) {
		return 0, false
	}
	return r.starts[i], true
}

// Names returns every name either source can resolve.
func (r *Resolver) Names() []string {
	seen := make(map[string]bool)
	var names []string
	if n, ok := r.db.(interface{ Names() []string }); ok {
		for _, name := range n.Names() {
			seen[name] = true
			names = append(names, name)
		}
	} else if r.db != nil {
		for _, s := range r.db.Symbols() {
			if !seen[s.Name] {
				seen[s.Name] = true
				names = append(names, s.Name)
			}
		}
	}
	for _, e := range r.mapping.Entries() {
		if !seen[e.Name] {
			seen[e.Name] = true
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}
