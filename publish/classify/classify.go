// Package classify derives a contract's role from its selector fingerprint.
package classify

import (
	"fmt"
	"strings"

	"github.com/cosmo-local-credit/doug/publish/artifact"
)

// Canonical signatures and their selectors.
const (
	SigSetMainAddress = "setMainAddress(address)"
	SigAddContract    = "addContract(bytes32,address)"
	SigRemoveContract = "removeContract(bytes32)"
	SigContracts      = "contracts(bytes32)"

	SelSetMainAddress = "db9771f5"
	SelAddContract    = "5188f996"
	SelRemoveContract = "a43e04d8"
	SelContracts      = "ec56a373"
)

// Role is the part a compiled contract plays in a deployment.
type Role int

const (
	Unclassified Role = iota
	Registry
	Entity
	PlainContract
)

var roleNames = map[Role]string{
	Unclassified:  "unclassified",
	Registry:      "registry",
	Entity:        "entity",
	PlainContract: "contract",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown role %q", s)
}

// Classify assigns a role. A signal only counts when the ABI declares the
// function and the compiler's selector for it matches exactly.
func Classify(a *artifact.CompiledArtifact) Role {
	if a == nil {
		return Unclassified
	}
	switch {
	case has(a, SigAddContract, SelAddContract) &&
		has(a, SigRemoveContract, SelRemoveContract) &&
		has(a, SigContracts, SelContracts):
		return Registry
	case has(a, SigSetMainAddress, SelSetMainAddress):
		if a.HasConstructor() {
			return Entity
		}
		return PlainContract
	default:
		return Unclassified
	}
}

// Name is Classify as an artifact.RoleFunc.
func Name(a *artifact.CompiledArtifact) string {
	return Classify(a).String()
}

func has(a *artifact.CompiledArtifact, signature, selector string) bool {
	if _, ok := a.Function(signature); !ok {
		return false
	}
	got, ok := a.Selector(signature)
	return ok && got == selector
}
