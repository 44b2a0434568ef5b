// Package debugdb reads compiler-emitted symbol information into a
// name to address/size table.
//
// DWARF subprogram entries are preferred. Files without DWARF fall back to
// their native symbol table (ELF .symtab/.dynsym, COFF symbols, Mach-O
// nlist). Mangled C++ and Rust names are also indexed by their demangled
// forms so either spelling resolves.
package debugdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/ianlancetaylor/demangle"
)

// ErrNoSymbols is returned when a debug file carries neither DWARF nor a
// symbol table.
var ErrNoSymbols = errors.New("no debug symbols")

// Symbol is one function known to the debug database.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64 // 0 when unknown
}

// End returns the first address past the symbol.
func (s Symbol) End() uint64 {
	return s.Addr + s.Size
}

// DB is an immutable symbol table.
type DB struct {
	syms   []Symbol
	byName map[string]int // index into syms; aliases point at their symbol
}

// New builds a database from syms. When a name repeats, the first
// occurrence wins.
func New(syms ...Symbol) *DB {
	seen := make(map[string]bool, len(syms))
	db := &DB{byName: make(map[string]int, len(syms))}
	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		if seen[s.Name] {
			slog.Debug("Duplicate debug symbol ignored", "name", s.Name, "addr", fmt.Sprintf("%#x", s.Addr))
			continue
		}
		seen[s.Name] = true
		db.syms = append(db.syms, s)
	}
	sort.SliceStable(db.syms, func(i, j int) bool { return db.syms[i].Addr < db.syms[j].Addr })

	for i, s := range db.syms {
		db.byName[s.Name] = i
	}
	// Real names take priority over demangled aliases.
	for i, s := range db.syms {
		for _, alias := range aliases(s.Name) {
			if _, taken := db.byName[alias]; !taken {
				db.byName[alias] = i
			}
		}
	}
	return db
}

// aliases returns the demangled spellings of a mangled name.
func aliases(name string) []string {
	full := demangle.Filter(name)
	if full == name {
		return nil
	}
	out := []string{full}
	if short := demangle.Filter(name, demangle.NoParams); short != full && short != name {
		out = append(out, short)
	}
	return out
}

// Lookup returns the symbol for name, accepting mangled or demangled
// spellings.
func (db *DB) Lookup(name string) (Symbol, bool) {
	if db == nil {
		return Symbol{}, false
	}
	i, ok := db.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return db.syms[i], true
}

// Symbols returns every symbol ordered by address.
func (db *DB) Symbols() []Symbol {
	if db == nil {
		return nil
	}
	out := make([]Symbol, len(db.syms))
	copy(out, db.syms)
	return out
}

// Len reports the number of distinct symbols.
func (db *DB) Len() int {
	if db == nil {
		return 0
	}
	return len(db.syms)
}

// Open reads and parses the debug file at path.
func Open(path string) (*DB, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read debug file: %w", err)
	}
	db, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return db, nil
}

// Names returns every name the database answers to, aliases included.
func (db *DB) Names() []string {
	if db == nil {
		return nil
	}
	names := make([]string, 0, len(db.byName))
	for name := range db.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
