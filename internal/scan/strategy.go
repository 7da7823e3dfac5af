package scan

import (
	"encoding/json"
	"strings"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// MatchStrategy decides whether one metadata record references a data
// extension, and explains how. Each source type is assigned a fixed
// strategy list so the precision/recall tradeoff per source is an explicit
// choice rather than emergent string checks.
type MatchStrategy interface {
	Match(de core.DataExtension, rec core.Record) (detail string, ok bool)
}

// Attr selects which data-extension attribute a structured field is
// compared against.
type Attr int

const (
	AttrObjectID Attr = iota
	AttrKey
	AttrName
)

func attrValue(de core.DataExtension, attr Attr) string {
	switch attr {
	case AttrObjectID:
		return de.ObjectID
	case AttrKey:
		return de.CustomerKey
	default:
		return de.Name
	}
}

// ExactField compares one explicit reference field against one
// data-extension attribute with case-insensitive equality. The most
// reliable strategy; preferred wherever the schema exposes typed
// reference fields.
type ExactField struct {
	Field  string
	Attr   Attr
	Detail string
}

func (m ExactField) Match(de core.DataExtension, rec core.Record) (string, bool) {
	want := attrValue(de, m.Attr)
	if want == "" {
		return "", false
	}
	if got := core.FirstString(rec, m.Field); got != "" && strings.EqualFold(got, want) {
		return m.Detail, true
	}
	return "", false
}

// TextContains searches an embedded text body (SQL) for the data
// extension's key or name, case-insensitively. Needed because queries often
// reference a data extension only inside a FROM/JOIN clause.
type TextContains struct {
	Field string
	// What names the text body in match details, e.g. "SQL".
	What string
}

func (m TextContains) Match(de core.DataExtension, rec core.Record) (string, bool) {
	text := core.FirstString(rec, m.Field)
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	if de.CustomerKey != "" && strings.Contains(lower, strings.ToLower(de.CustomerKey)) {
		return "Referenced in " + m.What + " (by Key)", true
	}
	if de.Name != "" && strings.Contains(lower, strings.ToLower(de.Name)) {
		return "Referenced in " + m.What + " (by Name)", true
	}
	return "", false
}

// SerializedContains serializes the whole record and searches it for the
// data extension's key. A deliberately coarse fallback for sources without
// reliable typed reference fields: it trades precision for recall, because
// a false negative in a deletion-safety audit is far costlier than a false
// positive surfaced for review.
type SerializedContains struct{}

func (SerializedContains) Match(de core.DataExtension, rec core.Record) (string, bool) {
	if de.CustomerKey == "" {
		return "", false
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		// Unserializable record; skip it rather than failing the scan.
		return "", false
	}
	if strings.Contains(strings.ToLower(string(blob)), strings.ToLower(de.CustomerKey)) {
		return "Referenced in serialized definition (by Key)", true
	}
	return "", false
}
