package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Tool {
	return Tool{
		Name:   "echo",
		Schema: ArgSchema{"message": {Type: "string", Required: true}},
		Handler: func(ctx context.Context, args map[string]any) (*Envelope, error) {
			return TextEnvelope(args["message"].(string)), nil
		},
	}
}

func TestCallUnknownTool(t *testing.T) {
	d := New()
	_, err := d.Call(context.Background(), "missing", nil)
	var uerr *UnknownToolError
	require.ErrorAs(t, err, &uerr)
}

func TestCallMissingRequiredField(t *testing.T) {
	d := New()
	d.Register(echoTool())
	_, err := d.Call(context.Background(), "echo", map[string]any{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "message", verr.Field)
}

func TestCallWrongType(t *testing.T) {
	d := New()
	d.Register(echoTool())
	_, err := d.Call(context.Background(), "echo", map[string]any{"message": 5})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCallSuccess(t *testing.T) {
	d := New()
	d.Register(echoTool())
	env, err := d.Call(context.Background(), "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	require.False(t, env.IsError)
	require.Len(t, env.Content, 1)
	assert.Equal(t, "hi", env.Content[0].Text)
}

func TestCallHandlerErrorBecomesFailingEnvelope(t *testing.T) {
	d := New()
	d.Register(Tool{
		Name: "fails",
		Handler: func(ctx context.Context, args map[string]any) (*Envelope, error) {
			return nil, errors.New("boom")
		},
	})
	env, err := d.Call(context.Background(), "fails", nil)
	require.NoError(t, err)
	require.True(t, env.IsError)
	assert.Contains(t, env.Content[0].Text, "boom")
}

func TestCallHandlerPanicBecomesFailingEnvelope(t *testing.T) {
	d := New()
	d.Register(Tool{
		Name: "panics",
		Handler: func(ctx context.Context, args map[string]any) (*Envelope, error) {
			panic("kaboom")
		},
	})
	env, err := d.Call(context.Background(), "panics", nil)
	require.NoError(t, err)
	require.True(t, env.IsError)
	assert.Contains(t, env.Content[0].Text, "kaboom")
}
