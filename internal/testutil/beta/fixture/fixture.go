// Package fixture declares message types whose unqualified names collide with the
// ones in its sibling fixture package.
package fixture

// Ping is a minimal message.
type Ping struct {
	From any
}

// Sender returns the publisher of the ping.
func (p *Ping) Sender() any { return p.From }
