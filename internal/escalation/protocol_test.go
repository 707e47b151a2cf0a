package escalation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalateActionJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		action EscalateAction
		want   string
	}{
		{"run", RunAction(), `{"action":"run"}`},
		{"escalate", EscalateActionValue(), `{"action":"escalate"}`},
		{"deny bare", DenyAction(""), `{"action":"deny"}`},
		{"deny with reason", DenyAction("rm is forbidden"), `{"action":"deny","reason":"rm is forbidden"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.action)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var back EscalateAction
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.action, back)
		})
	}
}

func TestEscalateActionZeroValueIsDeny(t *testing.T) {
	var a EscalateAction
	assert.True(t, a.IsDeny())
	assert.False(t, a.IsRun())
	assert.False(t, a.IsEscalate())

	// The zero value must not be serializable either: a forgotten assignment
	// shows up as an error, never as something a client could act on.
	_, err := json.Marshal(a)
	require.Error(t, err)
}

func TestEscalateActionRejectsUnknownTag(t *testing.T) {
	var a EscalateAction
	err := json.Unmarshal([]byte(`{"action":"approve"}`), &a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
	assert.True(t, a.IsDeny())
}

func TestEscalateResponseDecodeMalformed(t *testing.T) {
	var resp EscalateResponse
	require.Error(t, json.Unmarshal([]byte(`{"action":{"action":42}}`), &resp))
	assert.True(t, resp.Action.IsDeny())
}
