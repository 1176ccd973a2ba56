// Package catalog holds the ordered list of class labels a model can predict.
// Position i in a Catalog names position i of the model's output vector.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidCatalog is returned when a label list cannot back a model output.
var ErrInvalidCatalog = errors.New("invalid catalog")

// defaultLabels are the classes of the reference leaf model, in output order.
var defaultLabels = []string{
	"bear_oak",
	"boxelder",
	"eastern_poison_ivy",
	"eastern_poison_oak",
	"fragrant_sumac",
	"jack_in_the_pulpit",
	"poison_sumac",
	"virginia_creeper",
	"western_poison_ivy",
	"western_poison_oak",
}

// Catalog is an immutable, index-aligned label list.
type Catalog struct {
	labels []string
	names  []string
}

// New validates labels and returns a Catalog holding a copy of them.
func New(labels []string) (*Catalog, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidCatalog)
	}

	seen := make(map[string]int, len(labels))
	c := &Catalog{
		labels: make([]string, len(labels)),
		names:  make([]string, len(labels)),
	}
	for i, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, fmt.Errorf("%w: empty label at index %d", ErrInvalidCatalog, i)
		}
		if j, ok := seen[label]; ok {
			return nil, fmt.Errorf("%w: duplicate label %q at index %d and %d", ErrInvalidCatalog, label, j, i)
		}
		seen[label] = i
		c.labels[i] = label
		c.names[i] = DisplayName(label)
	}
	return c, nil
}

// Default returns the catalog of the reference leaf model.
func Default() *Catalog {
	c, err := New(defaultLabels)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultLabels returns a copy of the reference label list.
func DefaultLabels() []string {
	return append([]string(nil), defaultLabels...)
}

// Len returns the number of classes.
func (c *Catalog) Len() int { return len(c.labels) }

// Label returns the identifier at index i.
func (c *Catalog) Label(i int) string { return c.labels[i] }

// Name returns the display name at index i.
func (c *Catalog) Name(i int) string { return c.names[i] }

// Labels returns a copy of all identifiers in output order.
func (c *Catalog) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Index returns the position of label, or -1.
func (c *Catalog) Index(label string) int {
	for i, l := range c.labels {
		if l == label {
			return i
		}
	}
	return -1
}

// DisplayName turns an underscore-delimited label into capitalized words:
// "eastern_poison_ivy" becomes "Eastern Poison Ivy". Each word keeps only its
// first rune upper case, and every underscore becomes one space.
func DisplayName(label string) string {
	lower := cases.Lower(language.Und)
	words := strings.Split(label, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToTitle(r)) + lower.String(w[size:])
	}
	return strings.Join(words, " ")
}
