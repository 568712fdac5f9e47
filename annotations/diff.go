package annotations

import (
	"annotation-server/core"
)

// EditKind is the type of a single edit.
type EditKind int

const (
	Insert EditKind = iota
	Update
	Remove
)

func (k EditKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Remove:
		return "remove"
	}
	return "unknown"
}

// Edit is one operation of an EditScript. Annotation is the zero value for
// removals.
type Edit struct {
	Kind       EditKind
	ID         string
	Annotation core.Annotation
}

// EditScript transforms one annotation sequence into another. It has set
// semantics; the order of edits carries no meaning.
type EditScript []Edit

// Diff computes the edits that turn prev into next, keyed by annotation id.
// An id present in both sequences always yields an Update with the new
// record. When an id repeats within a sequence the first occurrence wins.
func Diff(prev, next []core.Annotation) EditScript {
	inPrev := idSet(prev)
	inNext := idSet(next)

	var script EditScript
	emitted := make(map[string]struct{}, len(next))
	for _, a := range next {
		if _, done := emitted[a.ID]; done {
			continue
		}
		emitted[a.ID] = struct{}{}
		if _, ok := inPrev[a.ID]; ok {
			script = append(script, Edit{Kind: Update, ID: a.ID, Annotation: a})
		} else {
			script = append(script, Edit{Kind: Insert, ID: a.ID, Annotation: a})
		}
	}

	for _, a := range prev {
		if _, ok := inNext[a.ID]; ok {
			continue
		}
		if _, done := emitted[a.ID]; done {
			continue
		}
		emitted[a.ID] = struct{}{}
		script = append(script, Edit{Kind: Remove, ID: a.ID})
	}
	return script
}

func idSet(as []core.Annotation) map[string]struct{} {
	set := make(map[string]struct{}, len(as))
	for _, a := range as {
		set[a.ID] = struct{}{}
	}
	return set
}

// IsEmpty reports whether the script has no edits.
func (s EditScript) IsEmpty() bool {
	return len(s) == 0
}

func (s EditScript) ids(kind EditKind) []string {
	var ids []string
	for _, e := range s {
		if e.Kind == kind {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

func (s EditScript) Inserted() []string { return s.ids(Insert) }
func (s EditScript) Updated() []string  { return s.ids(Update) }
func (s EditScript) Removed() []string  { return s.ids(Remove) }

// SourceDiff converts the script into the renderer's feature-level diff.
func (s EditScript) SourceDiff() core.SourceDiff {
	var diff core.SourceDiff
	for _, e := range s {
		switch e.Kind {
		case Insert:
			diff.Add = append(diff.Add, e.Annotation.Feature())
		case Update:
			diff.Update = append(diff.Update, e.Annotation.Feature())
		case Remove:
			diff.Remove = append(diff.Remove, e.ID)
		}
	}
	return diff
}
