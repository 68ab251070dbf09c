package elicitation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

func TestFormElicitation_CompleteValidates(t *testing.T) {
	c := New(nil)

	schema := map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
	}

	el, err := c.RequestForm(context.Background(), "user-1", "svc", "tool", schema, 5)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, c.CompleteForm(el.ElicitationID, map[string]any{"name": "alice"}))
	}()

	resp, status, err := c.Await(context.Background(), el.ElicitationID)
	require.NoError(t, err)
	assert.Equal(t, model.ElicitationCompleted, status)
	assert.Equal(t, "alice", resp.FormData["name"])
}

func TestFormElicitation_RejectsInvalidPayload(t *testing.T) {
	c := New(nil)

	schema := map[string]any{
		"type":     "object",
		"required": []any{"name"},
	}

	el, err := c.RequestForm(context.Background(), "user-1", "svc", "tool", schema, 5)
	require.NoError(t, err)

	err = c.CompleteForm(el.ElicitationID, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, model.ErrSchemaValidationFailed, model.CodeOf(err))
}

func TestApprovalElicitation_Deny(t *testing.T) {
	c := New(nil)

	el, err := c.RequestApproval(context.Background(), "user-1", "svc", "tool", 5)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, c.CompleteApproval(el.ElicitationID, model.DecisionDeny))
	}()

	_, status, err := c.Await(context.Background(), el.ElicitationID)
	require.Error(t, err)
	assert.Equal(t, model.ElicitationDeclined, status)
	assert.Equal(t, model.ErrElicitationDeclined, model.CodeOf(err))
}

func TestElicitation_CanceledWhenAwaitContextExpires(t *testing.T) {
	c := New(nil)

	el, err := c.RequestApproval(context.Background(), "user-1", "svc", "tool", 0)
	require.NoError(t, err)
	// timeoutSeconds<=0 falls back to the 300s default; force an immediate
	// deadline instead by awaiting with a context that's already expired.
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	_, status, err := c.Await(ctx, el.ElicitationID)
	require.Error(t, err)
	assert.Equal(t, model.ElicitationCanceled, status)
}

func TestAwait_UnknownElicitation(t *testing.T) {
	c := New(nil)
	_, _, err := c.Await(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, model.ErrElicitationNotFound, model.CodeOf(err))
}
