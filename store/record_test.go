package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMarshalJSONLastActivityMillisecondPrecision(t *testing.T) {
	rec := Record{Target: "http://b.example", LastActivity: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "2026-01-02T03:04:05.000Z", raw["last_activity"])
}

func TestRecordMarshalJSONLastActivityTruncatesSubMillisecond(t *testing.T) {
	rec := Record{Target: "http://b.example", LastActivity: time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)}
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "2026-01-02T03:04:05.123Z", raw["last_activity"])
}

func TestRecordRoundTripsLastActivityThroughJSON(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 123000000, time.UTC)
	rec := Record{Target: "http://b.example", LastActivity: want}

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(b, &got))
	assert.True(t, want.Equal(got.LastActivity))
}
