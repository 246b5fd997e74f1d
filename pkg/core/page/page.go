// Package page models the host page as immutable snapshot data: the
// interactive elements currently rendered, their geometry and labelling,
// and a compact textual description used for periodic context updates.
//
// A Snapshot is captured fresh for every match attempt. Element IDs are
// lookup handles into the live document, never owning references; holding
// a snapshot across attempts is a bug because the document mutates
// underneath it.
package page

import (
	"sort"
	"strings"
)

// Rect is an element's rendered bounding box in viewport coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the rect has no rendered area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Intersects reports whether two rects overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && r.X+r.W > o.X && r.Y < o.Y+o.H && r.Y+r.H > o.Y
}

// Element is one candidate page element, flattened to the attributes the
// matcher needs. Producers report computed style, so Opacity is the
// effective value after inheritance.
type Element struct {
	// ID is the lookup handle into the live document.
	ID string `json:"id"`

	Tag       string `json:"tag"`
	Role      string `json:"role,omitempty"`
	InputType string `json:"input_type,omitempty"`

	// Labelling sources, in the order the matcher prefers them.
	Label         string `json:"label,omitempty"` // associated <label> element
	AriaLabel     string `json:"aria_label,omitempty"`
	Title         string `json:"title,omitempty"`
	Placeholder   string `json:"placeholder,omitempty"`
	Value         string `json:"value,omitempty"`
	Text          string `json:"text,omitempty"`           // visible text content
	AncestorLabel string `json:"ancestor_label,omitempty"` // label found walking up a few ancestors

	Href      string  `json:"href,omitempty"`
	Disabled  bool    `json:"disabled,omitempty"`
	Hidden    bool    `json:"hidden,omitempty"` // display:none or visibility:hidden
	Opacity   float64 `json:"opacity"`
	Clickable bool    `json:"clickable,omitempty"` // exposes a click handler
	Focused   bool    `json:"focused,omitempty"`

	// Order is the element's document position, used as a stable tie-break.
	Order  int  `json:"order"`
	Bounds Rect `json:"bounds"`
}

// Visible reports whether the element is actually rendered inside the
// viewport: non-zero size, not hidden, not fully transparent.
func (e Element) Visible(viewport Rect) bool {
	if e.Hidden || e.Opacity <= 0 {
		return false
	}
	if e.Bounds.Empty() {
		return false
	}
	return e.Bounds.Intersects(viewport)
}

// Interactive reports whether the element can meaningfully receive the
// user's action. Form controls, buttons, and ARIA-interactive roles qualify
// automatically; anchors need a destination; anything else needs a click
// handler.
func (e Element) Interactive() bool {
	if e.Disabled {
		return false
	}
	switch strings.ToLower(e.Tag) {
	case "button", "input", "select", "textarea", "option":
		return true
	case "a":
		return e.Href != ""
	}
	switch strings.ToLower(e.Role) {
	case "button", "link", "tab", "menuitem", "menuitemcheckbox", "menuitemradio",
		"option", "checkbox", "radio", "switch", "combobox", "textbox", "searchbox":
		return true
	}
	return e.Clickable
}

// DisplayText returns the best human-readable name for the element,
// preferring explicit accessible labels over visible content.
func (e Element) DisplayText() string {
	for _, s := range []string{
		e.Label, e.AriaLabel, e.Title,
		e.Placeholder, e.Value,
		e.Text, e.AncestorLabel,
	} {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return ""
}

// Snapshot is one capture of the page at a point in time.
type Snapshot struct {
	Viewport    Rect      `json:"viewport"`
	Heading     string    `json:"heading,omitempty"`
	Breadcrumbs []string  `json:"breadcrumbs,omitempty"`
	Elements    []Element `json:"elements"`
}

// Candidates returns the visible, interactive elements in document order.
func (s Snapshot) Candidates() []Element {
	out := make([]Element, 0, len(s.Elements))
	for _, e := range s.Elements {
		if e.Visible(s.Viewport) && e.Interactive() && e.DisplayText() != "" {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Describe renders the snapshot as the compact context string sent to the
// upstream model: heading, breadcrumbs, visible action labels, and active
// form fields. The session controller diffs successive descriptions and
// only pushes changes.
func (s Snapshot) Describe() string {
	var b strings.Builder
	if h := strings.TrimSpace(s.Heading); h != "" {
		b.WriteString("Page: ")
		b.WriteString(h)
	}
	if len(s.Breadcrumbs) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Location: ")
		b.WriteString(strings.Join(s.Breadcrumbs, " > "))
	}

	var actions, fields []string
	for _, e := range s.Candidates() {
		name := e.DisplayText()
		switch strings.ToLower(e.Tag) {
		case "input", "select", "textarea":
			if e.Focused {
				name += " (focused)"
			}
			fields = append(fields, name)
		default:
			actions = append(actions, name)
		}
	}
	if len(actions) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Actions: ")
		b.WriteString(strings.Join(actions, ", "))
	}
	if len(fields) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Form fields: ")
		b.WriteString(strings.Join(fields, ", "))
	}
	return b.String()
}
