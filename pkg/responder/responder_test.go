package responder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordResponder_Intents(t *testing.T) {
	k := NewKeywordResponder()
	ctx := context.Background()

	tests := []struct {
		name     string
		text     string
		intent   string
		escalate bool
	}{
		{"emergency", "there is smoke coming from the battery", IntentEmergency, true},
		{"invoice", "where is my invoice for last month", IntentInvoice, false},
		{"subscription", "I want to upgrade my plan", IntentSubscription, false},
		{"nearest station", "where can i swap near me", IntentNearestStation, false},
		{"battery swap", "my charging keeps failing", IntentBatterySwap, false},
		{"leave", "how do I apply for a day off", IntentLeave, false},
		{"unrelated", "what is the weather tomorrow", IntentUnrelated, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := k.Respond(ctx, "DRV001", tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, reply.Intent)
			assert.Equal(t, tt.escalate, reply.Escalate)
			assert.NotEmpty(t, reply.Text)
		})
	}
}

func TestKeywordResponder_InvoiceOutranksBatterySwap(t *testing.T) {
	k := NewKeywordResponder()

	reply, err := k.Respond(context.Background(), "DRV001", "I need the invoice for my last battery swap")
	require.NoError(t, err)
	assert.Equal(t, IntentInvoice, reply.Intent)
}

func TestKeywordResponder_CaseInsensitive(t *testing.T) {
	k := NewKeywordResponder()

	reply, err := k.Respond(context.Background(), "DRV001", "FIRE near the dock")
	require.NoError(t, err)
	assert.Equal(t, IntentEmergency, reply.Intent)
	assert.True(t, reply.Escalate)
}
