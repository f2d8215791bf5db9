package primitives

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Fingerprint returns a short deterministic hash of the model's shape:
// structure, retained flags, event enum and per-node actions. Two models
// compiled from equivalent definitions share a fingerprint.
func (m *Model) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(m.Structure())
	sb.WriteString("|")
	for _, e := range m.Events {
		sb.WriteString(e.Protocol)
		sb.WriteString(".")
		sb.WriteString(e.Method.Signature())
		sb.WriteString(";")
	}
	for _, r := range m.Regions {
		fmt.Fprintf(&sb, "|r%d:%s:%d:%t", r.ID, r.Name, r.Initial, r.Retained)
	}
	for _, n := range m.Nodes {
		fmt.Fprintf(&sb, "|n%d", n.ID)
		for _, e := range m.Events {
			if a, ok := n.Actions[e.ID]; ok {
				fmt.Fprintf(&sb, ":%d%v", e.ID, a.Transitions)
			}
		}
		for _, g := range n.Guards {
			fmt.Fprintf(&sb, ":g%s%v", g.Name, g.Transitions)
		}
		fmt.Fprintf(&sb, ":e%d:x%d", len(n.Entry), len(n.Exit))
	}
	hash := sha256.Sum256([]byte(sb.String()))
	return fmt.Sprintf("%x", hash[:8])
}
