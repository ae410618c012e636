package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestSetupWriterLevels(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "warn", false))

	log.Info().Msg("hidden")
	log.Warn().Str("provider", "google").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", gjson.GetBytes(lines[0], "message").String())
	assert.Equal(t, "google", gjson.GetBytes(lines[0], "provider").String())
	assert.True(t, gjson.GetBytes(lines[0], "time").Exists())
}

func TestSetupWriterEmptyLevelDefaultsToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "", false))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	SetVerbose(true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupWriterRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, SetupWriter(&bytes.Buffer{}, "loud", false))
}
