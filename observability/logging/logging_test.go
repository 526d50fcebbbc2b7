package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf))
	logger.Warn("ledger call rolled back", slog.String("operation", "withdraw"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "WARN", line["severity"])
	require.Equal(t, "ledger call rolled back", line["message"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, "withdraw", line["operation"])
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("jwt", "secret").Value.String())
	require.Equal(t, "withdraw", MaskField("operation", "withdraw").Value.String())
	require.Equal(t, " ", MaskField("jwt", " ").Value.String())
	require.Equal(t, "abc", MaskField("Request_ID", "abc").Value.String())
}
