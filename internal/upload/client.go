// Package upload talks to the chat backend: media upload and outgoing messages.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/audiolibrelab/voicenote/internal/config"
	"github.com/audiolibrelab/voicenote/internal/metrics"
	"github.com/audiolibrelab/voicenote/internal/packager"
)

// ErrTransport wraps every failure talking to the backend
var ErrTransport = errors.New("upload transport error")

// ErrInvalidMediaKind is returned for a message whose media type is outside the enumerated set
var ErrInvalidMediaKind = errors.New("invalid media type")

// UploadResult is the backend's answer to an upload
type UploadResult struct {
	MediaURL  string             `json:"mediaUrl"`
	MediaType packager.MediaKind `json:"mediaType"`
}

// Media attaches uploaded media to a message
type Media struct {
	URL  string
	Kind packager.MediaKind
}

// OutgoingMessage is a chat message; Media is nil for text-only messages
type OutgoingMessage struct {
	ConversationID string
	Content        string
	Caption        string
	Media          *Media
}

type messageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content,omitempty"`
	Caption        string `json:"caption,omitempty"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	MediaType      string `json:"mediaType,omitempty"`
}

// SentMessage is the backend's answer to a message
type SentMessage struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Client struct {
	http         *resty.Client
	uploadPath   string
	messagesPath string
}

// NewClient creates a backend client from the upload config
func NewClient(cfg config.UploadConfig) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.GetTimeout()).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "voicenote")
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &Client{
		http:         c,
		uploadPath:   cfg.UploadPath,
		messagesPath: cfg.MessagesPath,
	}
}

// Upload transmits a packaged payload and returns where the backend stored it
func (c *Client) Upload(ctx context.Context, p *packager.Payload) (*UploadResult, error) {
	if p == nil {
		return nil, packager.ErrEmptyPayload
	}

	var result UploadResult
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(p).
		SetResult(&result).
		SetError(&apiErr).
		Post(c.uploadPath)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.IsError() {
		metrics.UploadsTotal.WithLabelValues("http_error").Inc()
		return nil, fmt.Errorf("%w: upload returned HTTP %d%s", ErrTransport, resp.StatusCode(), apiErr.detail())
	}
	if result.MediaURL == "" {
		metrics.UploadsTotal.WithLabelValues("http_error").Inc()
		return nil, fmt.Errorf("%w: upload response has no media URL", ErrTransport)
	}
	if !result.MediaType.Valid() {
		result.MediaType = p.ResolvedMediaKind
	}

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	slog.Info("Media uploaded", "file", p.FileName, "bytes", p.ByteSize, "url", result.MediaURL, "kind", result.MediaType)
	return &result, nil
}

// SendMessage posts a message, optionally referencing uploaded media
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) (*SentMessage, error) {
	if msg.ConversationID == "" {
		return nil, errors.New("conversation id is required")
	}

	req := messageRequest{
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Caption:        msg.Caption,
	}
	if msg.Media != nil {
		if !msg.Media.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMediaKind, msg.Media.Kind)
		}
		req.MediaURL = msg.Media.URL
		req.MediaType = string(msg.Media.Kind)
	}

	var sent SentMessage
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&sent).
		SetError(&apiErr).
		Post(c.messagesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: message returned HTTP %d%s", ErrTransport, resp.StatusCode(), apiErr.detail())
	}

	slog.Info("Message sent", "conversation", msg.ConversationID, "id", sent.ID, "with_media", msg.Media != nil)
	return &sent, nil
}

func (e errorResponse) detail() string {
	switch {
	case e.Error != "":
		return ": " + e.Error
	case e.Message != "":
		return ": " + e.Message
	}
	return ""
}
