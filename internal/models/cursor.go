package models

// PageCursor tracks the server-side offset of a session.
type PageCursor struct {
	Offset    int
	PageSize  int
	Exhausted bool
}

// Advance moves the cursor past n consumed server records.
func (c *PageCursor) Advance(n int, exhausted bool) {
	c.Offset += n
	c.Exhausted = exhausted
}

// Reset rewinds the cursor to the start of the sequence.
func (c *PageCursor) Reset() {
	c.Offset = 0
	c.Exhausted = false
}
