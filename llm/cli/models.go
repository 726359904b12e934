package cli

import (
	"sort"
	"strings"

	"github.com/BaSui01/localroute/llm"
)

// Template is the per-family command shape: `<Executable> <Args...> [<ModelFlag> <alias>]`.
type Template struct {
	Executable string   `yaml:"executable" toml:"executable" json:"executable" env:"EXECUTABLE"`
	Args       []string `yaml:"args" toml:"args" json:"args" env:"ARGS"`
	ModelFlag  string   `yaml:"model_flag" toml:"model_flag" json:"model_flag" env:"MODEL_FLAG"`
}

// DefaultTemplate returns the stock command for a vendor family.
func DefaultTemplate(f llm.Family) Template {
	switch f {
	case llm.FamilyOpenAI:
		return Template{Executable: "codex", Args: []string{"--print"}, ModelFlag: "--model"}
	default:
		return Template{Executable: "claude", Args: []string{"--print"}, ModelFlag: "--model"}
	}
}

// 厂商模型 ID → CLI 可接受的别名
var (
	anthropicAliases = map[string]string{
		"claude-3-opus-20240229":     "opus",
		"claude-3-sonnet-20240229":   "sonnet",
		"claude-3-haiku-20240307":    "haiku",
		"claude-3-5-sonnet-20240620": "sonnet",
		"claude-3-5-sonnet-20241022": "sonnet",
		"claude-3-5-haiku-20241022":  "haiku",
		"claude-3-7-sonnet-20250219": "sonnet",
	}
	anthropicTiers = []string{"opus", "sonnet", "haiku"}
	openaiTiers    = []string{"davinci", "cushman"}

	openaiAliases = map[string]string{
		"code-davinci-002": "davinci",
		"code-cushman-001": "cushman",
	}
)

// ResolveModel maps a vendor model ID to the alias the family's CLI accepts.
// IDs not in the table fall back to the tier named in the ID
// (opus/sonnet/haiku, davinci/cushman). Anything else is returned unchanged.
func ResolveModel(f llm.Family, model string) string {
	aliases, tiers := anthropicAliases, anthropicTiers
	if f == llm.FamilyOpenAI {
		aliases, tiers = openaiAliases, openaiTiers
	}
	if alias, ok := aliases[model]; ok {
		return alias
	}
	lower := strings.ToLower(model)
	for _, tier := range tiers {
		if strings.Contains(lower, tier) {
			return tier
		}
	}
	return model
}

// KnownModels lists the vendor model IDs with an explicit alias, sorted.
func KnownModels(f llm.Family) []string {
	table := anthropicAliases
	if f == llm.FamilyOpenAI {
		table = openaiAliases
	}
	out := make([]string, 0, len(table))
	for id := range table {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
