// Package models defines data structures for ledgerd
package models

// Authority ranks the actors that may write a ledger attribute. A write
// from a lower authority never overwrites a field already set by an
// equal-or-higher authority unless the caller explicitly overrides.
type Authority int

const (
	AuthorityUnknown Authority = iota
	AuthorityProvider
	AuthorityCalculated
	AuthorityRule
	AuthorityUser
)

func (a Authority) String() string {
	switch a {
	case AuthorityProvider:
		return "provider"
	case AuthorityCalculated:
		return "calculated"
	case AuthorityRule:
		return "rule"
	case AuthorityUser:
		return "user"
	default:
		return "unknown"
	}
}

// ParseAuthority maps a stored authority tag back to its rank.
func ParseAuthority(s string) Authority {
	switch s {
	case "provider":
		return AuthorityProvider
	case "calculated":
		return AuthorityCalculated
	case "rule":
		return AuthorityRule
	case "user":
		return AuthorityUser
	default:
		return AuthorityUnknown
	}
}

// CostBasisSource ranks who supplied a holding's cost basis.
type CostBasisSource string

const (
	CostBasisProvider   CostBasisSource = "provider"
	CostBasisCalculated CostBasisSource = "calculated"
	CostBasisManual     CostBasisSource = "manual"
)

// Rank returns the precedence of the source: manual > calculated > provider.
// An empty/unknown source ranks below all of them.
func (s CostBasisSource) Rank() int {
	switch s {
	case CostBasisProvider:
		return 1
	case CostBasisCalculated:
		return 2
	case CostBasisManual:
		return 3
	default:
		return 0
	}
}
