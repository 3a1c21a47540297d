package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiation/riggerhire/internal/actor/repositoryimpl"
	"github.com/tiation/riggerhire/internal/actorsync"
	"github.com/tiation/riggerhire/internal/dispatch"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/internal/payment"
	"github.com/tiation/riggerhire/internal/store/storeimpl"
	"github.com/tiation/riggerhire/pkg/storage"
)

func newServer(t *testing.T) *server.MCPServer {
	t.Helper()
	s, _ := newServerWithStorage(t)
	return s
}

func newServerWithStorage(t *testing.T) (*server.MCPServer, *storage.LocalStorage) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	e := engine.New(
		storeimpl.NewYAMLStore(local),
		repositoryimpl.NewYAMLRepository(local),
		payment.NewSimulated(payment.SimulatedConfig{SuccessRate: 1}),
		actorsync.NewQueue(local),
	)
	return NewServer(dispatch.New(e), "test"), local
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "tool %s not registered", name)
	result, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	c, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return c.Text
}

func TestNewServer_RegistersEveryKind(t *testing.T) {
	s := newServer(t)
	for _, k := range dispatch.Kinds() {
		tool := s.GetTool(string(k))
		require.NotNil(t, tool, "missing tool %s", k)
		assert.Contains(t, tool.Tool.InputSchema.Required, argActorID)
		assert.Contains(t, tool.Tool.InputSchema.Required, argActorRole)
	}
	review := s.GetTool(string(dispatch.KindReviewApplication))
	assert.Contains(t, review.Tool.InputSchema.Properties, "decision")
	assert.Contains(t, review.Tool.InputSchema.Required, "decision")
}

func TestTools_PostAndApply(t *testing.T) {
	s := newServer(t)

	result := callTool(t, s, "post_task", map[string]any{
		"actor_id":      "req-1",
		"actor_role":    "requester",
		"title":         "Dogman for precast panels",
		"hourlyRate":    58.0,
		"maxApplicants": 1.0,
	})
	require.False(t, result.IsError, text(t, result))
	var posted struct {
		ID            string `json:"id"`
		MaxApplicants int    `json:"maxApplicants"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &posted))
	assert.Equal(t, 1, posted.MaxApplicants)

	result = callTool(t, s, "submit_application", map[string]any{
		"actor_id":   "w1",
		"actor_role": "worker",
		"taskId":     posted.ID,
		"message":    "HRW dogging ticket",
	})
	require.False(t, result.IsError, text(t, result))

	result = callTool(t, s, "submit_application", map[string]any{
		"actor_id":   "w2",
		"actor_role": "worker",
		"taskId":     posted.ID,
	})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "CapacityExceeded")
}

func TestTools_ErrorsAreToolResults(t *testing.T) {
	s := newServer(t)

	result := callTool(t, s, "start_task", map[string]any{
		"actor_id":   "w1",
		"actor_role": "worker",
		"taskId":     "missing",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "NotFound")

	result = callTool(t, s, "get_task", map[string]any{
		"actor_id":   "w1",
		"actor_role": "worker",
		"taskId":     "t1",
		"unexpected": true,
	})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "InvalidArgument")
}

func TestTools_InternalErrorsHideCause(t *testing.T) {
	s, local := newServerWithStorage(t)
	require.NoError(t, local.Write(context.Background(), "tasks/broken.yaml", []byte("applications: []\n")))

	result := callTool(t, s, "get_task", map[string]any{
		"actor_id":   "w1",
		"actor_role": "worker",
		"taskId":     "broken",
	})
	assert.True(t, result.IsError)
	assert.Equal(t, "[internal] server error", text(t, result))
}
