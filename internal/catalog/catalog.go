// Package catalog is the static price table for registrable events.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"eventpay/internal/gateway"
)

// MinorUnitsPerMajor converts catalog prices to the gateway's minor units.
const MinorUnitsPerMajor = 100

// ErrUnknownEvent is returned when a name resolves to no catalog entry.
var ErrUnknownEvent = errors.New("unknown event")

//go:embed catalog.yaml
var defaultCatalog []byte

// Entry is one registrable event. Price is in major units and 0 means free.
type Entry struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"name" json:"name"`
	Price       int64  `yaml:"price" json:"price"`
}

func (e Entry) IsFree() bool {
	return e.Price == 0
}

type file struct {
	Currency string  `yaml:"currency"`
	Events   []Entry `yaml:"events"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	currency string
	entries  []Entry
	byID     map[string]Entry
	byName   map[string]Entry
}

// New validates entries and builds the lookup indexes.
func New(currency string, entries []Entry) (*Catalog, error) {
	c := &Catalog{
		currency: currency,
		entries:  make([]Entry, 0, len(entries)),
		byID:     make(map[string]Entry, len(entries)),
		byName:   make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		e.DisplayName = strings.TrimSpace(e.DisplayName)
		switch {
		case e.ID == "" || e.DisplayName == "":
			return nil, fmt.Errorf("catalog entry %q: id and name are required", e.ID)
		case e.Price < 0:
			return nil, fmt.Errorf("catalog entry %q: negative price", e.ID)
		case strings.ContainsRune(e.DisplayName, gateway.EventNameSeparator):
			return nil, fmt.Errorf("catalog entry %q: name %q contains %q", e.ID, e.DisplayName, gateway.EventNameSeparator)
		}
		if _, dup := c.byID[key(e.ID)]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate id", e.ID)
		}
		if _, dup := c.byName[key(e.DisplayName)]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate name %q", e.ID, e.DisplayName)
		}
		c.byID[key(e.ID)] = e
		c.byName[key(e.DisplayName)] = e
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Parse reads a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Events) == 0 {
		return nil, errors.New("parse catalog: no events defined")
	}
	return New(f.Currency, f.Events)
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (c *Catalog) Currency() string {
	return c.currency
}

// Entries returns the catalog in file order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Lookup resolves a stable id first, then a display name. Matching ignores case
// and surrounding whitespace.
func (c *Catalog) Lookup(name string) (Entry, error) {
	if e, ok := c.byID[key(name)]; ok {
		return e, nil
	}
	if e, ok := c.byName[key(name)]; ok {
		return e, nil
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// PriceOf returns the major-unit price of a stable event id.
func (c *Catalog) PriceOf(eventID string) (int64, error) {
	e, ok := c.byID[key(eventID)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, eventID)
	}
	return e.Price, nil
}

// TotalPrice sums the major-unit price of the named events. Each event is
// charged once even if named twice. Any unresolvable name fails the whole sum
// so a renamed event can never silently become free.
func (c *Catalog) TotalPrice(names []string) (int64, error) {
	entries, err := c.resolve(names)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Price
	}
	return total, nil
}

// Canonical maps names to display names, dropping duplicates and keeping order.
func (c *Catalog) Canonical(names []string) ([]string, error) {
	entries, err := c.resolve(names)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.DisplayName
	}
	return out, nil
}

func (c *Catalog) resolve(names []string) ([]Entry, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]Entry, 0, len(names))
	var unknown []string
	for _, n := range names {
		e, err := c.Lookup(n)
		if err != nil {
			unknown = append(unknown, n)
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, strings.Join(unknown, ", "))
	}
	return out, nil
}
