package handlers

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"tuitionflow/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "line-channel-secret"

type fakeLinker struct {
	phones map[string][]string
	linked map[string]string
}

func (f *fakeLinker) LinkLineUser(_ context.Context, phone, userID string) ([]string, error) {
	names, ok := f.phones[phone]
	if !ok {
		return nil, services.ErrStudentNotFound
	}
	f.linked[phone] = userID
	return names, nil
}

type fakeReplier struct {
	mu      sync.Mutex
	replies map[string]string
}

func (f *fakeReplier) ReplyText(_ context.Context, token, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[token] = text
	return nil
}

func newHandler() (*LineWebhookHandler, *fakeLinker, *fakeReplier) {
	linker := &fakeLinker{
		phones: map[string][]string{"919876543210": {"Anshu"}},
		linked: map[string]string{},
	}
	replier := &fakeReplier{replies: map[string]string{}}
	return NewLineWebhookHandler(secret, linker, replier), linker, replier
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := computeSignature(secret, body)
	assert.True(t, validateSignature(secret, body, sig))
	assert.False(t, validateSignature("other", body, sig))
	assert.False(t, validateSignature(secret, []byte(`{}`), sig))
}

func TestHandleChecksSignature(t *testing.T) {
	h, _, _ := newHandler()
	app := fiber.New()
	app.Post("/webhook/line", h.Handle)

	body := []byte(`{"events":[]}`)
	tests := []struct {
		name      string
		signature string
		status    int
	}{
		{"missing", "", fiber.StatusBadRequest},
		{"wrong", computeSignature("nope", body), fiber.StatusUnauthorized},
		{"valid", computeSignature(secret, body), fiber.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/webhook/line", bytes.NewReader(body))
			if tc.signature != "" {
				req.Header.Set("X-Line-Signature", tc.signature)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestProcessLinksParentPhone(t *testing.T) {
	h, linker, replier := newHandler()
	body := []byte(`{"destination":"x","events":[
		{"type":"message","replyToken":"r1","timestamp":1,"source":{"type":"user","userId":"U1"},
		 "message":{"type":"text","id":"1","text":"+91 98765 43210"}},
		{"type":"message","replyToken":"r2","timestamp":2,"source":{"type":"user","userId":"U2"},
		 "message":{"type":"text","id":"2","text":"911111111111"}},
		{"type":"message","replyToken":"r3","timestamp":3,"source":{"type":"user","userId":"U3"},
		 "message":{"type":"text","id":"3","text":"hello"}},
		{"type":"follow","replyToken":"r4","timestamp":4,"source":{"type":"user","userId":"U4"}}
	]}`)

	h.process(context.Background(), body)

	assert.Equal(t, "U1", linker.linked["919876543210"])
	assert.Contains(t, replier.replies["r1"], "Anshu")
	assert.Equal(t, linkNotFound, replier.replies["r2"])
	assert.Equal(t, linkInstructions, replier.replies["r3"])
	assert.Equal(t, linkInstructions, replier.replies["r4"])
}
