package clarifier

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/claimflow/pkg/claim"
	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
	"github.com/codeready-toolchain/claimflow/pkg/mail"
	"github.com/codeready-toolchain/claimflow/pkg/store"
)

type fakeBackend struct {
	jsonResult json.RawMessage
	jsonErr    error
}

func (f *fakeBackend) ChatJSON(ctx context.Context, system string, blocks []llmclient.ContentBlock, schemaName string, schema map[string]any) (json.RawMessage, error) {
	return f.jsonResult, f.jsonErr
}

func (f *fakeBackend) ChatTurn(ctx context.Context, agentID string, msgs []llmclient.Message, tools []llmclient.ToolSchema) (string, []llmclient.ToolCall, error) {
	return "", nil, nil
}

// unreachableSender returns a Sender pointed at a port nothing listens on,
// so Send fails fast with a connection error instead of hanging.
func unreachableSender(t *testing.T) *mail.Sender {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	return mail.NewSender(mail.Config{SmtpHost: "127.0.0.1", SmtpPort: addr.Port, SmtpFrom: "claims@example.com"})
}

func newTestClarifierDeps(t *testing.T) (*store.Store, string) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	claimID := "claim-1"
	require.NoError(t, st.AppendConversation(claimID, claim.ConversationEntry{
		Role: claim.RoleUser, Content: "My windshield cracked in a hailstorm.", Timestamp: time.Now(),
	}))
	return st, claimID
}

func TestRun_LLMErrorPropagates(t *testing.T) {
	st, claimID := newTestClarifierDeps(t)
	llm := llmclient.New(&fakeBackend{jsonErr: assert.AnError})
	sender := unreachableSender(t)

	err := Run(context.Background(), llm, st, sender, claimID, "jane.doe@example.com")
	assert.Error(t, err)
}

func TestRun_EmptyHTMLReturnsError(t *testing.T) {
	st, claimID := newTestClarifierDeps(t)
	llm := llmclient.New(&fakeBackend{
		jsonResult: json.RawMessage(`{"subject":"Quick clarification needed","html":""}`),
	})
	sender := unreachableSender(t)

	err := Run(context.Background(), llm, st, sender, claimID, "jane.doe@example.com")
	assert.Error(t, err)
}

func TestRun_SendFailurePropagates(t *testing.T) {
	st, claimID := newTestClarifierDeps(t)
	llm := llmclient.New(&fakeBackend{
		jsonResult: json.RawMessage(`{"subject":"Quick clarification needed","html":"<p>What happened?</p>"}`),
	})
	sender := unreachableSender(t)

	err := Run(context.Background(), llm, st, sender, claimID, "jane.doe@example.com")
	assert.Error(t, err, "Send should fail against an unreachable SMTP host")
}
