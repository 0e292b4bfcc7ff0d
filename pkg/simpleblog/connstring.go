package simpleblog

import (
	"fmt"
	"net/url"
	"strings"
)

// ConnectionString is an immutable key/value map parsed from a raw
// configuration string of the form "key1=value1;key2=value2". Keys and
// values are percent-decoded independently.
type ConnectionString struct {
	raw        string
	properties map[string]string
}

// ParseConnectionString parses raw into a ConnectionString. Malformed pairs
// or invalid percent-encoding fail with ErrMalformedConnectionString; pairs
// are never silently dropped. Empty segments between separators are ignored.
func ParseConnectionString(raw string) (*ConnectionString, error) {
	properties := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		rawKey, rawValue, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("%w: pair %q has no separator", ErrMalformedConnectionString, pair)
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformedConnectionString, rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q: %v", ErrMalformedConnectionString, rawValue, err)
		}
		properties[key] = value
	}
	return &ConnectionString{raw: raw, properties: properties}, nil
}

// Property returns the decoded value for name. A missing key is a hard
// error wrapping ErrPropertyNotFound.
func (c *ConnectionString) Property(name string) (string, error) {
	value, ok := c.properties[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrPropertyNotFound, name)
	}
	return value, nil
}

// Len returns the number of parsed properties.
func (c *ConnectionString) Len() int {
	return len(c.properties)
}

// String returns the raw connection string the descriptor was parsed from.
func (c *ConnectionString) String() string {
	return c.raw
}
