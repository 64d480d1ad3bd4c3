package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFast2SMSClient_Defaults(t *testing.T) {
	client := NewFast2SMSClient("api-key", "", "", 0)
	assert.Equal(t, defaultBaseURL, client.BaseURL)
	assert.Equal(t, "TXTIND", client.SenderID)
	assert.Equal(t, "v3", client.Route)
	assert.Equal(t, defaultTimeout, client.HTTPClient.Timeout)
}

func TestFast2SMSClient_Send(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "test-api-key", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body fast2smsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "v3", body.Route)
			assert.Equal(t, "TXTIND", body.SenderID)
			assert.Equal(t, "9876543210", body.Numbers)
			assert.Contains(t, body.Message, "123456")

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"return":true,"request_id":"abc","message":["SMS sent successfully."]}`))
		}))
		defer server.Close()

		client := NewFast2SMSClient("test-api-key", server.URL, "", time.Second)
		assert.NoError(t, client.Send(context.Background(), "9876543210", OTPMessage("123456")))
	})

	t.Run("provider rejection forwards message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"return":false,"status_code":412,"message":"Invalid Authentication, Check Authorization Key"}`))
		}))
		defer server.Close()

		client := NewFast2SMSClient("bad-key", server.URL, "", time.Second)
		err := client.Send(context.Background(), "9876543210", "hi")
		require.Error(t, err)

		msg, ok := ProviderMessage(err)
		assert.True(t, ok)
		assert.Equal(t, "Invalid Authentication, Check Authorization Key", msg)
	})

	t.Run("ok status without return flag is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"return":false}`))
		}))
		defer server.Close()

		client := NewFast2SMSClient("key", server.URL, "", time.Second)
		err := client.Send(context.Background(), "9876543210", "hi")
		require.Error(t, err)
		_, ok := ProviderMessage(err)
		assert.False(t, ok)
	})

	t.Run("unreadable body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`<html>bad gateway</html>`))
		}))
		defer server.Close()

		client := NewFast2SMSClient("key", server.URL, "", time.Second)
		assert.Error(t, client.Send(context.Background(), "9876543210", "hi"))
	})

	t.Run("missing api key", func(t *testing.T) {
		client := NewFast2SMSClient("", "http://127.0.0.1:0", "", time.Second)
		assert.Error(t, client.Send(context.Background(), "9876543210", "hi"))
	})

	t.Run("unreachable provider", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		client := NewFast2SMSClient("key", url, "", time.Second)
		err := client.Send(context.Background(), "9876543210", "hi")
		require.Error(t, err)
		_, ok := ProviderMessage(err)
		assert.False(t, ok)
	})
}
