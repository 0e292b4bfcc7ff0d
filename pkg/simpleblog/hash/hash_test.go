package hash_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blog/pkg/simpleblog/hash"
)

func TestHashRoundTrip(t *testing.T) {
	encoded, err := hash.Hash("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, hash.Verify(encoded, "correct horse battery staple"))
	assert.False(t, hash.Verify(encoded, "Correct horse battery staple"))
	assert.False(t, hash.Verify(encoded, ""))
}

func TestHashSaltsEachCall(t *testing.T) {
	a, err := hash.Hash("secret")
	require.NoError(t, err)
	b, err := hash.Hash("secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, hash.Verify(a, "secret"))
	assert.True(t, hash.Verify(b, "secret"))
}

func TestHashEncodingShape(t *testing.T) {
	encoded, err := hash.Hash("secret")
	require.NoError(t, err)

	parts := strings.Split(encoded, ":")
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.NotEmpty(t, parts[1])
}

func TestVerifyNeverPanicsOnGarbage(t *testing.T) {
	inputs := []string{
		"",
		"no-separator",
		":",
		"!!!not-base64!!!:AAAA",
		"AAAA:!!!not-base64!!!",
		"AAAA:AAAA:AAAA",
	}
	for _, in := range inputs {
		assert.False(t, hash.Verify(in, "secret"), "input %q", in)
	}
}
