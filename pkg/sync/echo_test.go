package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-support-chat/pkg/models"
)

func TestEchoBuffer_PlaceholderReplacedByConfirmedCopy(t *testing.T) {
	b := NewEchoBuffer()

	b.Echo(models.RoleDriver, "my battery won't charge")

	rendered := b.Render()
	require.Len(t, rendered, 1)
	assert.Zero(t, rendered[0].ID)

	b.Confirm([]models.Message{
		driverMsg(1, "my battery won't charge", time.Now()),
		{ID: 2, Sender: models.RoleAssistant, Text: "Try another station."},
	})

	rendered = b.Render()
	require.Len(t, rendered, 2)
	assert.Equal(t, int64(1), rendered[0].ID)
	assert.Equal(t, int64(2), rendered[1].ID)
}

func TestEchoBuffer_UnconfirmedPlaceholderStaysAppended(t *testing.T) {
	b := NewEchoBuffer()

	b.Confirm([]models.Message{driverMsg(1, "hello", time.Now())})
	b.Echo(models.RoleDriver, "still waiting on this one")

	rendered := b.Render()
	require.Len(t, rendered, 2)
	assert.Equal(t, int64(1), rendered[0].ID)
	assert.Zero(t, rendered[1].ID)
	assert.Equal(t, "still waiting on this one", rendered[1].Text)
}

func TestEchoBuffer_RepeatedTextDropsOnePlaceholderPerConfirmation(t *testing.T) {
	b := NewEchoBuffer()

	b.Echo(models.RoleDriver, "ok")
	b.Echo(models.RoleDriver, "ok")

	b.Confirm([]models.Message{driverMsg(1, "ok", time.Now())})

	rendered := b.Render()
	require.Len(t, rendered, 2)
	assert.Equal(t, int64(1), rendered[0].ID)
	assert.Zero(t, rendered[1].ID)

	b.Confirm([]models.Message{driverMsg(2, "ok", time.Now())})
	rendered = b.Render()
	require.Len(t, rendered, 2)
	assert.Equal(t, int64(2), rendered[1].ID)
}

func TestEchoBuffer_SenderMustMatch(t *testing.T) {
	b := NewEchoBuffer()

	b.Echo(models.RoleAgent, "on my way")
	b.Confirm([]models.Message{driverMsg(1, "on my way", time.Now())})

	// A driver message with the same text does not confirm an agent echo.
	rendered := b.Render()
	require.Len(t, rendered, 2)
	assert.Equal(t, models.RoleAgent, rendered[1].Sender)
	assert.Zero(t, rendered[1].ID)
}
