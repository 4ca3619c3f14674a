package utils

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessagePostsMultipartForm(t *testing.T) {
	var gotAuth, gotSign, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/seller/message", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotSign = r.FormValue("replySign")
		gotText = r.FormValue("message")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWBChatClient(srv.URL, 5*time.Second)
	err := client.SendMessage(context.Background(), "store-token", "sign-123", "Добрый день!")
	require.NoError(t, err)

	assert.Equal(t, "store-token", gotAuth)
	assert.Equal(t, "sign-123", gotSign)
	assert.Equal(t, "Добрый день!", gotText)
}

func TestSendMessageNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewWBChatClient(srv.URL, 5*time.Second).
		SendMessage(context.Background(), "t", "s", "m")
	require.Error(t, err)

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, http.StatusNotFound, sendErr.StatusCode)
	assert.Contains(t, sendErr.Body, "chat not found")
}

func TestSendMessageContextCancelled(t *testing.T) {
	// The handler must drain the body or the server never notices the
	// client's disconnect; release unblocks it regardless so Close cannot
	// wait on the connection forever.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewWBChatClient(srv.URL, 5*time.Second).SendMessage(ctx, "t", "s", "m")
	assert.Error(t, err)
}
