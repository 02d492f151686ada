package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 0.0, Percent(0, 3))
	assert.Equal(t, 33.3, Percent(1, 3))
	assert.Equal(t, 66.7, Percent(2, 3))
	assert.Equal(t, 100.0, Percent(3, 3))
	assert.Equal(t, 6.2, Percent(1, 16))
	assert.Equal(t, 18.8, Percent(3, 16))
	assert.Equal(t, 1.2, Percent(1, 80))
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusStarting.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusIdle.Terminal())
	assert.True(t, StatusStopped.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
}

func TestProgress_JSONShape(t *testing.T) {
	b, err := json.Marshal(NewProgress(1, 4, "Hades", StatusRunning))
	require.NoError(t, err)
	assert.JSONEq(t, `{"current":1,"total":4,"game":"Hades","status":"running","percent":25}`, string(b))
}

func TestResult_AbsentFieldsAreNull(t *testing.T) {
	b, err := json.Marshal(Result{SearchName: "Zzqx", MatchedName: "Zzqx"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"search_name":"Zzqx","matched_name":"Zzqx","price":null,"price_value":null,"url":null,"match_confidence":0}`, string(b))
}
