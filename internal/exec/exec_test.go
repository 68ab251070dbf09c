package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/elicitation"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store/memory"
	"github.com/unicitynetwork/unicity-orchestrator/internal/userstore"
)

type fakeResolver struct {
	tool *model.Tool
	svc  *model.Service
	err  error
}

func (f fakeResolver) Resolve(_ context.Context, _ string) (*model.Tool, *model.Service, error) {
	return f.tool, f.svc, f.err
}

type fakeCaller struct {
	result any
	err    error
	calls  int
}

func (f *fakeCaller) CallTool(_ context.Context, _, _ string, _ map[string]any) (any, error) {
	f.calls++
	return f.result, f.err
}

func testTool() (*model.Tool, *model.Service) {
	tool := &model.Tool{ToolID: "svc-1:do_thing", ToolName: "do_thing", ServiceID: "svc-1"}
	svc := &model.Service{ServiceID: "svc-1", Name: "svc-one", AutoApprove: map[string]struct{}{}}
	return tool, svc
}

func TestExecute_AutoApproveSkipsElicitation(t *testing.T) {
	tool, svc := testTool()
	svc.AutoApprove = map[string]struct{}{"do_thing": {}}

	caller := &fakeCaller{result: map[string]any{
		"content": []any{map[string]any{"type": "text", "text": "ok"}},
	}}
	st := memory.New()
	users := userstore.New(st)
	c := New(fakeResolver{tool: tool, svc: svc}, caller, st, elicitation.New(nil), users)

	out, err := c.Execute(context.Background(), Request{
		UserID: "u1",
		Prefs:  model.DefaultPreferences("u1"),
		ToolID: tool.ToolID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, caller.calls)

	m := out.(map[string]any)
	content := m["content"].([]any)
	block := content[0].(map[string]any)
	assert.Equal(t, "[svc-one] ok", block["text"])
}

func TestExecute_BlockedServiceDenied(t *testing.T) {
	tool, svc := testTool()
	caller := &fakeCaller{}
	st := memory.New()
	users := userstore.New(st)
	c := New(fakeResolver{tool: tool, svc: svc}, caller, st, elicitation.New(nil), users)

	prefs := model.DefaultPreferences("u1")
	prefs.BlockedServices = map[string]struct{}{"svc-one": {}}

	_, err := c.Execute(context.Background(), Request{UserID: "u1", Prefs: prefs, ToolID: tool.ToolID})
	require.Error(t, err)
	assert.Equal(t, model.ErrPermissionDenied, model.CodeOf(err))
	assert.Equal(t, 0, caller.calls)
}

func TestExecute_DefaultAllowModeProceeds(t *testing.T) {
	tool, svc := testTool()
	caller := &fakeCaller{result: map[string]any{"content": []any{}}}
	st := memory.New()
	users := userstore.New(st)
	c := New(fakeResolver{tool: tool, svc: svc}, caller, st, elicitation.New(nil), users)

	prefs := model.DefaultPreferences("u1")
	prefs.DefaultApprovalMode = model.ApprovalModeAllow

	_, err := c.Execute(context.Background(), Request{UserID: "u1", Prefs: prefs, ToolID: tool.ToolID})
	require.NoError(t, err)
	assert.Equal(t, 1, caller.calls)
}

func TestExecute_DefaultDenyModeBlocks(t *testing.T) {
	tool, svc := testTool()
	caller := &fakeCaller{}
	st := memory.New()
	users := userstore.New(st)
	c := New(fakeResolver{tool: tool, svc: svc}, caller, st, elicitation.New(nil), users)

	prefs := model.DefaultPreferences("u1")
	prefs.DefaultApprovalMode = model.ApprovalModeDeny

	_, err := c.Execute(context.Background(), Request{UserID: "u1", Prefs: prefs, ToolID: tool.ToolID})
	require.Error(t, err)
	assert.Equal(t, model.ErrPermissionDenied, model.CodeOf(err))
}

func TestExecute_TransportErrorRetriesOnce(t *testing.T) {
	tool, svc := testTool()
	svc.AutoApprove = map[string]struct{}{"do_thing": {}}

	calls := 0
	caller := &retryCaller{fail: 1}
	_ = calls
	st := memory.New()
	users := userstore.New(st)
	c := New(fakeResolver{tool: tool, svc: svc}, caller, st, elicitation.New(nil), users)

	out, err := c.Execute(context.Background(), Request{
		UserID: "u1",
		Prefs:  model.DefaultPreferences("u1"),
		ToolID: tool.ToolID,
	})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Equal(t, 2, caller.calls)
}

type retryCaller struct {
	fail  int
	calls int
}

func (r *retryCaller) CallTool(_ context.Context, _, _ string, _ map[string]any) (any, error) {
	r.calls++
	if r.calls <= r.fail {
		return nil, model.NewError(model.ErrTransportError, "boom").WithRetryable(true)
	}
	return map[string]any{"content": []any{}}, nil
}
