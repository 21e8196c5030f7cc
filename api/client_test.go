package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumtrust/go-trust-client/artifact"
)

func TestListMine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/credentials/mine", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"cred-1","kind":"credential","status":"active"},
			{"id":"cred-2","kind":"credential","status":"verified"}
		]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("token-123"))
	artifacts, err := client.ListMine(context.Background(), artifact.KindCredential)

	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "cred-1", artifacts[0].ID)
	assert.Equal(t, artifact.StatusVerified, artifacts[1].Status)
}

func TestCreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/dids", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "quantum", payload["method"])

		w.Write([]byte(`{"id":"did-1","kind":"did","status":"active"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("t"))
	created, err := client.Create(context.Background(), artifact.KindDID, []byte(`{"method":"quantum","publicKey":"pk"}`))

	require.NoError(t, err)
	assert.Equal(t, "did-1", created.ID)
	assert.Equal(t, artifact.StatusActive, created.Status)
}

func TestVerifyNormalizesOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/doc-1/verify", r.URL.Path)

		var opts map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		// ZKP applies only to credentials; the client drops it for documents.
		assert.NotContains(t, opts, "useZkp")
		assert.Equal(t, true, opts["useAI"])

		w.Write([]byte(`{"id":"doc-1","kind":"document","status":"verified"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("t"))
	updated, err := client.Verify(context.Background(), artifact.KindDocument, "doc-1",
		artifact.VerifyOptions{UseZKP: true, UseAI: true})

	require.NoError(t, err)
	assert.Equal(t, artifact.StatusVerified, updated.Status)
}

func TestRevoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/credentials/cred-1/revoke", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key compromised", body["reason"])

		w.Write([]byte(`{"id":"cred-1","kind":"credential","status":"revoked"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("t"))
	updated, err := client.Revoke(context.Background(), artifact.KindCredential, "cred-1", "key compromised")

	require.NoError(t, err)
	assert.Equal(t, artifact.StatusRevoked, updated.Status)
}

func TestDeleteFlags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/documents/doc-1", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("unpin"))
		assert.Equal(t, "", r.URL.Query().Get("updateAnchor"))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("t"))
	err := client.Delete(context.Background(), artifact.KindDocument, "doc-1", artifact.DeleteFlags{Unpin: true})

	assert.NoError(t, err)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		category Category
		message  string
	}{
		{
			name:     "401 maps to not authorized",
			status:   http.StatusUnauthorized,
			body:     `{"detail":"token expired"}`,
			category: CategoryNotAuthorized,
			message:  "token expired",
		},
		{
			name:     "403 maps to not authorized",
			status:   http.StatusForbidden,
			body:     `{}`,
			category: CategoryNotAuthorized,
			message:  "403",
		},
		{
			name:     "422 maps to application with server detail",
			status:   http.StatusUnprocessableEntity,
			body:     `{"detail":"credential type is required"}`,
			category: CategoryApplication,
			message:  "credential type is required",
		},
		{
			name:     "500 without detail falls back to status line",
			status:   http.StatusInternalServerError,
			body:     `boom`,
			category: CategoryApplication,
			message:  "500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, StaticToken("t"))
			_, err := client.ListMine(context.Background(), artifact.KindCredential)

			require.Error(t, err)
			assert.Equal(t, tt.category, CategoryOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNetworkError(t *testing.T) {
	// Server that is already closed: the transport fails with no response.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, StaticToken("t"))
	_, err := client.ListMine(context.Background(), artifact.KindDID)

	require.Error(t, err)
	assert.Equal(t, CategoryNetwork, CategoryOf(err))
}

func TestSentinelHelpers(t *testing.T) {
	assert.True(t, IsNotAuthorized(NewNotAuthorizedError("")))
	assert.True(t, IsNoProvider(NewNoProviderError()))
	assert.True(t, IsUserRejected(NewUserRejectedError()))
	assert.False(t, IsNotAuthorized(NewApplicationError("nope")))
}
