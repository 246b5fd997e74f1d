// Package highlight owns the on-page highlight overlay: applying a new
// highlight set, auto-clearing it after a hold duration, and guaranteeing
// that at most one set is ever visible.
package highlight

import (
	"sync"
	"time"

	"github.com/voicepilot-ai/voicepilot/pkg/core/match"
)

// DefaultHoldDuration is how long a highlight set stays visible before it
// clears itself.
const DefaultHoldDuration = 5 * time.Second

// Surface is the rendering side of the overlay. Implementations draw and
// remove outlines for element IDs and bring an element into view.
type Surface interface {
	// Outline draws the highlight decoration on the given elements. The
	// previous decoration, if any, has always been removed first.
	Outline(ids []string) error

	// Remove clears any decoration currently drawn.
	Remove()

	// ScrollIntoView brings the element into the visible viewport.
	ScrollIntoView(id string)
}

// Controller applies highlight sets to a Surface and enforces exclusivity:
// a new Apply replaces whatever is showing, and every set expires on its
// own after the hold duration.
type Controller struct {
	surface Surface
	hold    time.Duration

	mu      sync.Mutex
	active  []string
	gen     uint64
	expiry  *time.Timer
}

// New creates a controller over the given surface. A non-positive hold
// falls back to DefaultHoldDuration.
func New(surface Surface, hold time.Duration) *Controller {
	if hold <= 0 {
		hold = DefaultHoldDuration
	}
	return &Controller{surface: surface, hold: hold}
}

// Apply shows the given candidates, replacing any current highlight set,
// and scrolls the best candidate into view. The set auto-clears after the
// hold duration unless replaced first.
func (c *Controller) Apply(candidates []match.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.Element.ID
	}

	c.mu.Lock()
	c.clearLocked()
	if err := c.surface.Outline(ids); err != nil {
		c.mu.Unlock()
		return err
	}
	c.active = ids
	c.gen++
	gen := c.gen
	c.expiry = time.AfterFunc(c.hold, func() { c.expire(gen) })
	c.mu.Unlock()

	c.surface.ScrollIntoView(ids[0])
	return nil
}

// Clear removes the current highlight set. Safe to call when nothing is
// showing.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Active returns the element IDs currently highlighted.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.active))
	copy(out, c.active)
	return out
}

// expire clears the set only if it is still the one the timer was armed
// for; a newer Apply supersedes the pending expiry.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.clearLocked()
}

func (c *Controller) clearLocked() {
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	if len(c.active) > 0 {
		c.surface.Remove()
		c.active = nil
	}
}
