package monitoring

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLSink_AppendsOneLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	sink, err := NewJSONLSink(path)
	require.NoError(t, err)

	l := NewAuditLog(10, sink)
	l.Append(InterventionEntry{SessionID: "a", Reason: ReasonSemanticLoop, SavingsUSD: 0.05})
	l.Append(InterventionEntry{SessionID: "b", Reason: ReasonDataLeak, Snippet: "[REDACTED]"})
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []InterventionEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e InterventionEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, ReasonSemanticLoop, got[0].Reason)
	assert.Equal(t, "[REDACTED]", got[1].Snippet)
}

func TestNewJSONLSink_EmptyPath(t *testing.T) {
	_, err := NewJSONLSink("")
	assert.Error(t, err)
}
