package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakewatch/quakewatch/internal/api/models"
	"github.com/quakewatch/quakewatch/internal/earthquake"
)

func TestTimestamp_MarshalsUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	ts := models.Timestamp(time.Date(2016, 1, 29, 19, 25, 12, 0, loc))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2016-01-30T03:25:12Z"`, string(data))
}

func TestTimestamp_RoundTrip(t *testing.T) {
	var ts models.Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-02-01T14:05:00Z"`), &ts))
	assert.True(t, ts.Time().Equal(time.Date(2024, 2, 1, 14, 5, 0, 0, time.UTC)))

	require.Error(t, json.Unmarshal([]byte(`1706796300`), &ts))
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestNewTimestamp(t *testing.T) {
	assert.Nil(t, models.NewTimestamp(nil))

	now := time.Now()
	ts := models.NewTimestamp(&now)
	require.NotNil(t, ts)
	assert.True(t, ts.Time().Equal(now))
}

func TestNewQuery(t *testing.T) {
	q := models.NewQuery(earthquake.DefaultQueryConfig())

	assert.Equal(t, "6", q.MinMagnitude)
	assert.Equal(t, "magnitude", q.OrderBy)
	assert.Equal(t, 20, q.Limit)
}

func TestRefreshRequest_OptionalFields(t *testing.T) {
	var req models.RefreshRequest
	require.NoError(t, json.Unmarshal([]byte(`{"limit": 5}`), &req))

	require.NotNil(t, req.Limit)
	assert.Equal(t, 5, *req.Limit)
	assert.Nil(t, req.MinMagnitude)
	assert.Nil(t, req.OrderBy)
}
