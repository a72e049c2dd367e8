package notification

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onsi/gomega"
)

func TestWebhookSenderSignsBody(t *testing.T) {
	g := gomega.NewWithT(t)

	var gotSignature string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Parabase-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "topsecret")
	err := sender.Send(context.Background(), "cron.failed", "job failed", "details here",
		map[string]any{"jobId": "abc"})
	g.Expect(err).ToNot(gomega.HaveOccurred())

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	g.Expect(gotSignature).To(gomega.Equal("sha256=" + hex.EncodeToString(mac.Sum(nil))))

	var payload map[string]any
	g.Expect(json.Unmarshal(gotBody, &payload)).To(gomega.Succeed())
	g.Expect(payload["type"]).To(gomega.Equal("cron.failed"))
	g.Expect(payload["text"]).To(gomega.Equal("details here"))
}

func TestWebhookSenderNon2xx(t *testing.T) {
	g := gomega.NewWithT(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "").Send(context.Background(), "t", "x", "y", nil)
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestWebhookSenderDisabled(t *testing.T) {
	g := gomega.NewWithT(t)

	err := NewWebhookSender("", "secret").Send(context.Background(), "t", "x", "y", nil)
	g.Expect(err).ToNot(gomega.HaveOccurred())
}
