package llm

import (
	"strings"

	"github.com/BaSui01/localroute/types"
)

// Provider is the token a caller passes when constructing a client.
type Provider string

const (
	ProviderClaude    Provider = "claude"
	ProviderAnthropic Provider = "anthropic"
	ProviderCodex     Provider = "codex"
	ProviderOpenAI    Provider = "openai"
)

// Family groups provider tokens by vendor wire format.
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyOpenAI    Family = "openai"
)

// Providers lists every accepted token.
var Providers = []Provider{ProviderClaude, ProviderAnthropic, ProviderCodex, ProviderOpenAI}

// ParseProvider validates a provider token. Matching is case-sensitive and
// there is no default: unknown tokens yield a CONFIGURATION error.
func ParseProvider(token string) (Provider, error) {
	switch p := Provider(token); p {
	case ProviderClaude, ProviderAnthropic, ProviderCodex, ProviderOpenAI:
		return p, nil
	}
	names := make([]string, len(Providers))
	for i, p := range Providers {
		names[i] = string(p)
	}
	return "", types.Errorf(types.ErrConfiguration,
		"unknown provider %q, expected one of %s", token, strings.Join(names, ", "))
}

// Family returns the vendor family of p.
func (p Provider) Family() Family {
	switch p {
	case ProviderCodex, ProviderOpenAI:
		return FamilyOpenAI
	default:
		return FamilyAnthropic
	}
}

// Target is the vendor family combined with a routing decision,
// e.g. "local-anthropic".
type Target struct {
	Family Family
	Route  Route
}

func (t Target) String() string {
	return string(t.Route) + "-" + string(t.Family)
}

// TargetFor resolves the target for a provider and credential.
func TargetFor(p Provider, credential string) Target {
	return Target{Family: p.Family(), Route: Classify(credential)}
}
