package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSMSTransportSendsJSONPayload(t *testing.T) {
	var gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewHTTPSMSTransport(server.URL, "secret-key", "+15555550100")
	err := transport.Send("[CRITICAL] stop_loss_triggered: AAPL down 6%")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Contains(t, gotBody, "stop_loss_triggered")
}

func TestHTTPSMSTransportFailsOnNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	transport := NewHTTPSMSTransport(server.URL, "", "+15555550100")
	err := transport.Send("hello")
	assert.Error(t, err)
}

func TestHTTPSMSTransportRequiresWebhookURL(t *testing.T) {
	transport := NewHTTPSMSTransport("", "", "")
	err := transport.Send("hello")
	assert.Error(t, err)
}
