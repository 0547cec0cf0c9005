package buildinfo

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestInfoUsesStampedValues(t *testing.T) {
    defer func(v, c, b string) { Version, Commit, BuiltAt = v, c, b }(Version, Commit, BuiltAt)
    Version, Commit, BuiltAt = "1.2.3", "abc123", "2024-05-02T00:00:00Z"
    assert.Equal(t, map[string]string{"version": "1.2.3", "commit": "abc123", "builtAt": "2024-05-02T00:00:00Z"}, Info())
}
