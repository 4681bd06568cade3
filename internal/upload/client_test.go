package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/voicenote/internal/config"
	"github.com/audiolibrelab/voicenote/internal/packager"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.UploadConfig{
		BaseURL:      srv.URL,
		UploadPath:   "/api/media/upload",
		MessagesPath: "/api/messages",
		Token:        "secret",
		Timeout:      5,
	})
}

func voicePayload(t *testing.T) *packager.Payload {
	t.Helper()
	p, err := packager.Package([]byte("OggS"), "audio/ogg; codecs=opus", "audio-1.ogg", true)
	require.NoError(t, err)
	return p
}

func TestUpload(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/media/upload", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"mediaUrl":"https://cdn.example.com/m/1.ogg","mediaType":"audio"}`))
	})

	res, err := client.Upload(context.Background(), voicePayload(t))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/m/1.ogg", res.MediaURL)
	assert.Equal(t, packager.MediaAudio, res.MediaType)

	assert.Equal(t, "audio-1.ogg", body["fileName"])
	assert.Equal(t, "audio/ogg; codecs=opus", body["fileType"])
	assert.Equal(t, float64(4), body["fileSize"])
	assert.Equal(t, "T2dnUw==", body["fileData"])
	assert.NotContains(t, body, "ResolvedMediaKind")
}

func TestUpload_MissingMediaTypeFallsBackToPayloadKind(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"mediaUrl":"https://cdn.example.com/m/2.ogg"}`))
	})

	res, err := client.Upload(context.Background(), voicePayload(t))
	require.NoError(t, err)
	assert.Equal(t, packager.MediaAudio, res.MediaType)
}

func TestUpload_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte(`{"error":"file too large"}`))
	})

	_, err := client.Upload(context.Background(), voicePayload(t))
	require.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "HTTP 413")
	assert.Contains(t, err.Error(), "file too large")
}

func TestUpload_NoMediaURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	_, err := client.Upload(context.Background(), voicePayload(t))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestUpload_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(config.UploadConfig{BaseURL: srv.URL, UploadPath: "/upload", Timeout: 1})

	_, err := client.Upload(context.Background(), voicePayload(t))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSendMessage(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg-1","status":"sent"}`))
	})

	sent, err := client.SendMessage(context.Background(), OutgoingMessage{
		ConversationID: "conv-42",
		Caption:        "listen",
		Media:          &Media{URL: "https://cdn.example.com/m/1.ogg", Kind: packager.MediaAudio},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", sent.ID)

	assert.Equal(t, "conv-42", body["conversationId"])
	assert.Equal(t, "listen", body["caption"])
	assert.Equal(t, "https://cdn.example.com/m/1.ogg", body["mediaUrl"])
	assert.Equal(t, "audio", body["mediaType"])
	assert.NotContains(t, body, "content")
}

func TestSendMessage_TextOnlyOmitsMedia(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg-2"}`))
	})

	_, err := client.SendMessage(context.Background(), OutgoingMessage{ConversationID: "conv-42", Content: "hi"})
	require.NoError(t, err)
	assert.NotContains(t, body, "mediaUrl")
	assert.NotContains(t, body, "mediaType")
}

func TestSendMessage_Validation(t *testing.T) {
	client := NewClient(config.UploadConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := client.SendMessage(context.Background(), OutgoingMessage{})
	assert.Error(t, err)

	_, err = client.SendMessage(context.Background(), OutgoingMessage{
		ConversationID: "conv-42",
		Media:          &Media{URL: "u", Kind: "sticker"},
	})
	assert.ErrorIs(t, err, ErrInvalidMediaKind)
}
