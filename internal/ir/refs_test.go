package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		token string
		name  string
		attr  string
		ok    bool
	}{
		{"ref://bucket/arn", "bucket", "arn", true},
		{"ref://bucket", "bucket", "", true},
		{"ref://cdn/origin/path", "cdn", "origin/path", true},
		{"ref://", "", "", false},
		{"param://bucket", "", "", false},
		{"plain string", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			name, attr, ok := ParseRef(tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.attr, attr)
		})
	}
}

func TestExtractRefs(t *testing.T) {
	props := map[string]any{
		"origin": "ref://bucket/domain",
		"alias": map[string]any{
			"dnsName": "ref://cdn/domainName",
		},
		"list":  []any{"ref://cert/arn", "literal"},
		"plain": "nothing",
		"count": 3,
	}

	refs := ExtractRefs(props)
	assert.ElementsMatch(t, []string{
		"ref://bucket/domain",
		"ref://cdn/domainName",
		"ref://cert/arn",
	}, refs)
}

func TestParamName(t *testing.T) {
	name, ok := ParamName("param://environment")
	assert.True(t, ok)
	assert.Equal(t, "environment", name)

	_, ok = ParamName("param://")
	assert.False(t, ok)
	_, ok = ParamName("ref://x")
	assert.False(t, ok)
}
