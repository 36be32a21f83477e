package suggest

// Cursor tracks the highlighted suggestion. Position -1 means none.
type Cursor struct {
	pos int
	n   int
}

// NewCursor returns a cursor over n suggestions with nothing highlighted.
func NewCursor(n int) *Cursor {
	return &Cursor{pos: -1, n: max(n, 0)}
}

// Pos returns the highlighted index, or -1.
func (c *Cursor) Pos() int { return c.pos }

// Next moves down, wrapping from the last suggestion to the first.
func (c *Cursor) Next() int {
	if c.n == 0 {
		return c.pos
	}
	if c.pos < c.n-1 {
		c.pos++
	} else {
		c.pos = 0
	}
	return c.pos
}

// Prev moves up, wrapping from the first suggestion (or none) to the last.
func (c *Cursor) Prev() int {
	if c.n == 0 {
		return c.pos
	}
	if c.pos > 0 {
		c.pos--
	} else {
		c.pos = c.n - 1
	}
	return c.pos
}

// Reset clears the highlight and sets the new list length.
func (c *Cursor) Reset(n int) {
	c.pos = -1
	c.n = max(n, 0)
}

// Submit returns raw when nothing is highlighted, otherwise the resolved text
// of the highlighted suggestion.
func (c *Cursor) Submit(raw string, list []Suggestion) string {
	if c.pos < 0 || c.pos >= len(list) {
		return raw
	}
	return Resolve(list[c.pos])
}
