package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/firebase/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "firebase-token", "cle": "0123456789abcdef"})
	})
	mux.HandleFunc("/conseillers/c-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "c-1", "firstName": "Nils", "lastName": "Tavernier", "notificationsSonores": true})
	})
	mux.HandleFunc("/conseillers/c-1/jeunes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "j-1", "firstName": "Kenji", "lastName": "Jirac"},
			{"id": "j-2", "firstName": "Jacques", "lastName": "Durand"},
		})
	})
	mux.HandleFunc("/conseillers/c-1/preferences", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]bool
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["notificationsSonores"] {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchCredentials(t *testing.T) {
	srv := newTestServer(t)

	creds, err := NewClient(srv.URL+"/", "secret").FetchCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "firebase-token", creds.Token)
	assert.Equal(t, "0123456789abcdef", creds.CleChiffrement)

	_, err = NewClient(srv.URL, "wrong").FetchCredentials(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestConseillerAndPortfolio(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(srv.URL, "secret")
	ctx := context.Background()

	conseiller, err := client.GetConseiller(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, conseiller.NotificationsSonores)
	assert.Equal(t, "Nils", conseiller.FirstName)

	jeunes, err := client.GetJeunes(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, jeunes, 2)
	assert.Equal(t, "j-2", jeunes[1].ID)

	require.NoError(t, client.SetNotificationsSonores(ctx, "c-1", false))
	assert.Error(t, client.SetNotificationsSonores(ctx, "c-1", true))
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t)

	_, err := NewClient(srv.URL, "secret").GetConseiller(context.Background(), "unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
