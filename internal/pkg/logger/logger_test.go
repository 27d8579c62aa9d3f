package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestLogRedactsEmailFields(t *testing.T) {
	buf := capture(t)

	Info("contact resolved", "email", "alice@example.com", "detail", "search for bob@example.org failed")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "contact resolved", entry["msg"])
	assert.Equal(t, "al***@example.com", entry["email"])
	assert.Equal(t, "search for bo***@example.org failed", entry["detail"])
}

func TestLogRedactsEncodedAddresses(t *testing.T) {
	buf := capture(t)

	Warn("mautic search failed",
		"origin", "https://simplify-erp.de/unsubscribe?email=carol%40example.com",
		"body", `{"errors":[{"message":"no contact dave@example.net"}]}`)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "https://simplify-erp.de/unsubscribe?email=ca***@example.com", entry["origin"])
	assert.Equal(t, `{"errors":[{"message":"no contact da***@example.net"}]}`, entry["body"])
}

func TestLogLevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Info("dropped")
	Warn("kept", "status", 503)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "503", entry["status"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel(""))
}
