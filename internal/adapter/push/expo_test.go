package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpoSendReportsUnregisteredTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer gw", r.Header.Get("Authorization"))
		var msgs []Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msgs))
		require.Len(t, msgs, 2)
		require.Equal(t, "Hi", msgs[0].Title)
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"a"},{"status":"error","details":{"error":"DeviceNotRegistered"}}]}`))
	}))
	defer srv.Close()

	client := NewExpoClient(srv.URL, "gw", srv.Client())
	invalid, err := client.Send(context.Background(), []Message{
		{To: "ExponentPushToken[a]", Title: "Hi"},
		{To: "ExponentPushToken[b]", Title: "Hi"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ExponentPushToken[b]"}, invalid)
}

func TestExpoSendGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
	}))
	defer srv.Close()

	_, err := NewExpoClient(srv.URL, "", srv.Client()).Send(context.Background(), []Message{{To: "t"}})
	require.ErrorContains(t, err, "boom")
}

func TestExpoSendNothing(t *testing.T) {
	invalid, err := NewExpoClient("http://127.0.0.1:1", "", nil).Send(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, invalid)
}
