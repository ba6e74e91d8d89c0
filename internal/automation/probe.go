// internal/automation/probe.go
package automation

import (
	"context"
)

// ChainReport records which candidate of a chain currently resolves.
type ChainReport struct {
	Chain     string `json:"chain"`
	Adopted   string `json:"adopted,omitempty"`
	Found     bool   `json:"found"`
	Tried     int    `json:"candidates"`
	FailsWith string `json:"failsWith,omitempty"`
}

// Report is the outcome of Probe.
type Report struct {
	Recipient string        `json:"recipient"`
	Chains    []ChainReport `json:"chains"`
}

// OK reports whether every chain found a candidate.
func (r Report) OK() bool {
	for _, c := range r.Chains {
		if !c.Found {
			return false
		}
	}
	return true
}

// Probe evaluates every chain once against the current tree, without waiting and
// without dispatching any event, and reports which candidate each would adopt.
func (s *Script) Probe(ctx context.Context, recipient string) Report {
	r := Report{Recipient: recipient}
	for _, c := range []Chain{
		s.searchChain(),
		s.contactChain(recipient),
		s.headerChain(),
		s.composerChain(),
		s.sendChain(),
	} {
		name, ok := c.Peek(ctx, s.page)
		cr := ChainReport{Chain: c.Name, Adopted: name, Found: ok, Tried: len(c.Candidates)}
		if !ok {
			cr.FailsWith = c.Kind.Error()
		}
		r.Chains = append(r.Chains, cr)
	}
	return r
}
