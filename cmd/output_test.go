package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutputFormat(t *testing.T) {
	for _, f := range []string{"table", "json", "yaml"} {
		assert.NoError(t, validateOutputFormat(f), f)
	}

	err := validateOutputFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestWriteStructured(t *testing.T) {
	value := map[string]interface{}{"name": "search", "tools": 3}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeStructured(&buf, OutputFormatJSON, value))

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "search", decoded["name"])
		assert.Equal(t, float64(3), decoded["tools"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeStructured(&buf, OutputFormatYAML, value))
		assert.Contains(t, buf.String(), "name: search")
		assert.Contains(t, buf.String(), "tools: 3")
	})

	t.Run("table is rejected", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, writeStructured(&buf, OutputFormatTable, value))
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
