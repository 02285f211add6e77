package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/pkg/docstore"
)

// testServer wires only the documentation store; handlers touching the
// LLM or the database are not exercised here.
func testServer(t *testing.T) *WSServer {
	t.Helper()

	ds, err := docstore.New(filepath.Join(t.TempDir(), "documentation.json"))
	require.NoError(t, err)

	_, err = ds.Add("calc.py", "def add(): pass", 15, []models.FunctionDoc{
		{
			Function: "add",
			Documentation: models.Documentation{
				Description: "Adds two numbers.",
				Returns:     "The sum",
			},
		},
	})
	require.NoError(t, err)

	return &WSServer{docs: ds}
}

func dial(t *testing.T, s *WSServer) *websocket.Conn {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	ws := httptest.NewServer(mux)
	t.Cleanup(ws.Close)

	url := "ws" + strings.TrimPrefix(ws.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestSearchMessage(t *testing.T) {
	conn := dial(t, testServer(t))

	require.NoError(t, conn.WriteJSON(Message{Type: "search", Content: "add"}))

	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "results", reply.Type)
	assert.Equal(t, "add", reply.Content)
	assert.NotEmpty(t, reply.Data)
}

func TestExportMessage(t *testing.T) {
	conn := dial(t, testServer(t))

	require.NoError(t, conn.WriteJSON(Message{Type: "export", Content: "markdown"}))

	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "export", reply.Type)
	assert.Contains(t, reply.Content, "## `add`")
}

func TestUnknownMessageType(t *testing.T) {
	conn := dial(t, testServer(t))

	require.NoError(t, conn.WriteJSON(Message{Type: "bogus"}))

	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Content, "unknown message type")
}

func TestClearMessage(t *testing.T) {
	s := testServer(t)
	conn := dial(t, s)

	require.NoError(t, conn.WriteJSON(Message{Type: "clear"}))

	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "cleared", reply.Type)
	assert.Empty(t, s.docs.All().Files)
}
