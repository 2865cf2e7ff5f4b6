package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskOccurrenceJSONUsesCamelCase(t *testing.T) {
	occ := TaskOccurrence{
		InstanceDate:        "2026-06-01",
		RecurringInstanceID: InstanceID(3, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)),
		Completed:           true,
	}

	data, err := json.Marshal(occ)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"instanceDate":"2026-06-01"`)
	assert.Contains(t, string(data), `"recurringInstanceId":"3:2026-06-01"`)
	assert.Contains(t, string(data), `"completed":true`)
}
