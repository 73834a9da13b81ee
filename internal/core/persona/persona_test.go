package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	code, ok := Normalize(" enfp ")
	assert.True(t, ok)
	assert.Equal(t, "ENFP", code)

	for _, bad := range []string{"", "ABCD", "ENF", "ENFPX", "XNTJ"} {
		assert.False(t, Valid(bad), bad)
	}
	assert.Len(t, Codes(), 16)
}

func TestFamilyOf(t *testing.T) {
	tests := map[string]Family{
		"INTJ": Analyst, "ENTP": Analyst,
		"INFP": Diplomat, "ENFJ": Diplomat,
		"ISTJ": Sentinel, "ESFJ": Sentinel,
		"ISTP": Explorer, "ESFP": Explorer,
		"nope": "",
	}
	for code, want := range tests {
		assert.Equal(t, want, FamilyOf(code), code)
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(map[string]string{"intj": "Custom strategist.", "bogus": "ignored"})

	p, ok := c.Get("INTJ")
	require.True(t, ok)
	assert.Equal(t, "Custom strategist.", p.Prompt)
	assert.Equal(t, "Architect", p.Name)

	p, ok = c.Get("esfp")
	require.True(t, ok)
	assert.Equal(t, Explorer, p.Family)
	assert.Contains(t, p.Prompt, "Entertainer (ESFP)")

	_, ok = c.Get("XXXX")
	assert.False(t, ok)

	all := c.All()
	assert.Len(t, all, 16)
	assert.Equal(t, "ENFJ", all[0].Code)
}
