package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/models"
	"github.com/tOgg1/storechat/internal/testutil"
)

func newTestClient(t *testing.T, handler http.Handler, tokens auth.TokenProvider) *Client {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:           server.URL + "/api",
		Tokens:            tokens,
		RequestsPerSecond: 1000,
		Burst:             1000,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Tokens: auth.StaticTokenProvider("t")})
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "ftp://example.com", Tokens: auth.StaticTokenProvider("t")})
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "https://example.com"})
	require.Error(t, err)
}

func TestListConversationsSendsBearer(t *testing.T) {
	var gotAuth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]models.Conversation{
			{ID: "c1", CustomerID: "u1", SellerID: "s1", SellerName: "Acme"},
		})
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider("tok-1"))
	convs, err := client.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "Acme", convs[0].SellerName)
	require.Equal(t, "Bearer tok-1", gotAuth.Load())
}

func TestListMessagesEscapesID(t *testing.T) {
	var gotPath atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.EscapedPath())
		_ = json.NewEncoder(w).Encode([]models.Message{{ID: "m1", ConversationID: "a/b"}})
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider("tok"))
	msgs, err := client.ListMessages(context.Background(), "a/b")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "/api/conversations/a%2Fb/messages", gotPath.Load())
}

func TestSendMessage(t *testing.T) {
	created := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Message{
			ID:        "m9",
			SenderID:  "u1",
			Content:   body.Content,
			CreatedAt: created,
		})
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider("tok"))
	msg, err := client.SendMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)
	require.Equal(t, "m9", msg.ID)
	require.Equal(t, "c1", msg.ConversationID)
	require.Equal(t, "hello", msg.Content)
	require.True(t, created.Equal(msg.CreatedAt))
}

func TestSendMessageRejectsIncompleteResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":"hello"}`))
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider("tok"))
	_, err := client.SendMessage(context.Background(), "c1", "hello")
	require.ErrorIs(t, err, models.ErrMissingID)
}

func TestDeleteConversationUsesQuery(t *testing.T) {
	var gotID atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		gotID.Store(r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider("tok"))
	require.NoError(t, client.DeleteConversation(context.Background(), "c7"))
	require.Equal(t, "c7", gotID.Load())
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider("tok"))
	_, err := client.ListConversations(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, auth.ErrUnauthorized))

	var status *StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusUnauthorized, status.StatusCode)
}

func TestUnauthorizedMessageBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Unauthorized"}`, http.StatusForbidden)
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider("tok"))
	_, err := client.ListConversations(context.Background())
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestServerErrorIsNotAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider("tok"))
	_, err := client.ListMessages(context.Background(), "c1")
	require.Error(t, err)
	require.False(t, errors.Is(err, auth.ErrUnauthorized))

	var status *StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, "boom", status.Body)
}

func TestMissingTokenSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	client := newTestClient(t, mux, auth.StaticTokenProvider(""))
	_, err := client.ListConversations(context.Background())
	require.ErrorIs(t, err, auth.ErrNoToken)
	require.Zero(t, calls.Load())
}
