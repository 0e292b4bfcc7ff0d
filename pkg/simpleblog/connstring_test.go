package simpleblog_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blog/pkg/simpleblog"
)

func TestParseConnectionString(t *testing.T) {
	cs, err := simpleblog.ParseConnectionString("xxx=yyy;ccc=ddd;fff=ssss")
	require.NoError(t, err)

	assert.Equal(t, 3, cs.Len())

	value, err := cs.Property("xxx")
	require.NoError(t, err)
	assert.Equal(t, "yyy", value)

	value, err = cs.Property("fff")
	require.NoError(t, err)
	assert.Equal(t, "ssss", value)
}

func TestParseConnectionStringPercentEncoded(t *testing.T) {
	key := `key%%&&&&`
	value := `!"£$%^`
	raw := url.QueryEscape(key) + "=" + url.QueryEscape(value)

	cs, err := simpleblog.ParseConnectionString(raw)
	require.NoError(t, err)
	require.Equal(t, 1, cs.Len())

	got, err := cs.Property(key)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func TestParseConnectionStringEmptySegments(t *testing.T) {
	cs, err := simpleblog.ParseConnectionString("a=1;;b=2;")
	require.NoError(t, err)
	assert.Equal(t, 2, cs.Len())
}

func TestParseConnectionStringErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "pair without separator", raw: "a=1;nonsense"},
		{name: "bad percent encoding in key", raw: "a%zz=1"},
		{name: "bad percent encoding in value", raw: "a=%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := simpleblog.ParseConnectionString(tt.raw)
			assert.ErrorIs(t, err, simpleblog.ErrMalformedConnectionString)
		})
	}
}

func TestPropertyNotFound(t *testing.T) {
	cs, err := simpleblog.ParseConnectionString("path=/tmp/store")
	require.NoError(t, err)

	_, err = cs.Property("missing")
	assert.ErrorIs(t, err, simpleblog.ErrPropertyNotFound)
}
