package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		want       Route
	}{
		{"bare nines", "999999999999", RouteLocal},
		{"single nine", "9", RouteLocal},
		{"vendor prefix", "sk-ant-999999999999", RouteLocal},
		{"real key", "sk-ant-api03-abc123", RouteRemote},
		{"empty", "", RouteRemote},
		{"trailing dash", "sk-ant-999-", RouteRemote},
		{"only dashes", "---", RouteRemote},
		{"mixed digits", "sk-99989", RouteRemote},
		{"nines in middle", "sk-999-abc", RouteRemote},
		{"leading dash", "-99", RouteLocal},
		{"non ascii tail", "sk-９９", RouteRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.credential))
			assert.Equal(t, tt.want == RouteLocal, IsSentinel(tt.credential))
		})
	}
}

func TestClassify_MatchesSegmentRule(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cred := rapid.StringOfN(rapid.SampledFrom([]rune("9-a0Zk_")), 0, 24, -1).Draw(rt, "credential")

		parts := strings.Split(cred, "-")
		last := parts[len(parts)-1]
		want := last != "" && strings.Trim(last, "9") == ""

		if got := Classify(cred) == RouteLocal; got != want {
			rt.Fatalf("Classify(%q) local=%v, want %v", cred, got, want)
		}
	})
}

func TestClassify_SentinelWithAnyPrefix(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prefix := rapid.StringMatching(`[a-z0-9-]{0,16}`).Draw(rt, "prefix")
		n := rapid.IntRange(1, 40).Draw(rt, "nines")

		cred := prefix + "-" + strings.Repeat("9", n)
		assert.Equal(rt, RouteLocal, Classify(cred))
	})
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "", MaskCredential(""))
	assert.Equal(t, "***", MaskCredential("abc"))
	assert.Equal(t, "***9999", MaskCredential("sk-ant-99999999"))
}
