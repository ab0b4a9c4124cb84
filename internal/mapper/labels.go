package mapper

import (
	"strings"

	"golang.org/x/text/width"

	"github.com/ginjaninja78/excelsync/internal/config"
)

// =============================================================================
// LABEL TABLE
// =============================================================================

// labelEntry is one label -> field pair of the lookup table.
type labelEntry struct {
	label string
	field string
}

// LabelTable resolves cleaned subject labels to canonical fields. It is
// built once from mapping tables and is read-only afterwards, so a single
// instance is shared by concurrent Map calls.
type LabelTable struct {
	entries  []labelEntry
	exact    map[string]string
	totals   map[string]string
	repeated map[string][]string

	labelHeaders  []string
	amountHeaders []string
}

// NewLabelTable builds the lookup structures for tables.
//
// Exact lookup uses the coordinate labels followed by the aliases; when a
// label occurs more than once the later entry wins. Substring fallback
// walks the same list in order and the first containing entry wins.
func NewLabelTable(tables *config.MappingTables) *LabelTable {
	lt := &LabelTable{
		exact:         make(map[string]string),
		totals:        make(map[string]string),
		repeated:      make(map[string][]string),
		labelHeaders:  tables.LabelHeaders,
		amountHeaders: tables.AmountHeaders,
	}

	add := func(label, field string) {
		key := CleanLabel(label)
		if key == "" || field == "" {
			return
		}
		lt.entries = append(lt.entries, labelEntry{label: key, field: field})
		lt.exact[key] = field
	}
	for _, c := range tables.Coordinates {
		add(c.Label, c.Field)
	}
	for _, a := range tables.Labels {
		add(a.Label, a.Field)
	}

	for _, t := range tables.Totals {
		lt.totals[CleanLabel(t.Label)] = t.Field
	}
	for _, r := range tables.Repeated {
		lt.repeated[CleanLabel(r.Label)] = r.Fields
	}

	return lt
}

// Len returns the number of label entries.
func (lt *LabelTable) Len() int {
	return len(lt.entries)
}

// lookup resolves label by exact match first, then by containment when
// fallback is enabled. The second return value reports a fallback hit.
func (lt *LabelTable) lookup(label string, fallback bool) (field, matched string, viaFallback bool) {
	if f, ok := lt.exact[label]; ok {
		return f, label, false
	}
	if !fallback {
		return "", "", false
	}
	for _, e := range lt.entries {
		if strings.Contains(label, e.label) || strings.Contains(e.label, label) {
			return e.field, e.label, true
		}
	}
	return "", "", false
}

// emphasisMarkers are bracket characters that only decorate a label.
var emphasisMarkers = strings.NewReplacer("【", "", "】", "")

// CleanLabel removes emphasis brackets and surrounding white space, and
// folds full-width and half-width variants to their canonical width.
func CleanLabel(label string) string {
	label = emphasisMarkers.Replace(label)
	label = width.Fold.String(label)
	return strings.TrimSpace(label)
}
