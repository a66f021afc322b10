package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, zerolog.InfoLevel, "json")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("term", "MFT").Msg("entry added")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "MFT", line["term"])
	assert.Equal(t, "entry added", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, zerolog.DebugLevel, "")
	require.NoError(t, err)

	log.Debug().Str("term", "MFT").Msg("entry added")
	out := buf.String()
	assert.Contains(t, out, "entry added")
	assert.Contains(t, out, "term=MFT")
	assert.NotContains(t, out, "{")
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, zerolog.InfoLevel, "xml")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, lvl)

	lvl, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
