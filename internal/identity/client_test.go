package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FindByPhone(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/users/findBy", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"id":12345,"name":"Jane"}]`))
	}))
	defer ts.Close()

	id, err := NewClient(ts.URL+"/", nil).FindByPhone(context.Background(), "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "12345", id)
	assert.Equal(t, map[string]string{"phone": "9876543210"}, got)
}

func TestClient_FindByEmailStringID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"u-77"}]`))
	}))
	defer ts.Close()

	id, err := NewClient(ts.URL, nil).FindByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-77", id)
}

func TestClient_FindByNoMatch(t *testing.T) {
	for _, body := range []string{`[]`, `[null]`, `[{}]`, `[{"id":null}]`} {
		t.Run(body, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer ts.Close()

			id, err := NewClient(ts.URL, nil).FindByEmail(context.Background(), "x@y.z")
			require.NoError(t, err)
			assert.Empty(t, id)
		})
	}
}

func TestClient_FindByFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found status", http.StatusNotFound, `[]`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"malformed", http.StatusOK, `{"id":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			id, err := NewClient(ts.URL, nil).FindByPhone(context.Background(), "1")
			assert.ErrorIs(t, err, ErrLookupFailed)
			assert.Empty(t, id)
		})
	}
}

func TestClient_GetUser(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/users/12345", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":12345,"phone":9876543210,"email":"Jane@Example.com"}`))
	}))
	defer ts.Close()

	user, err := NewClient(ts.URL, nil).GetUser(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "12345", Phone: "9876543210", Email: "Jane@Example.com"}, user)
}

func TestClient_GetUserFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-200", http.StatusBadGateway, `{}`},
		{"null body", http.StatusOK, `null`},
		{"invalid json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL, nil).GetUser(context.Background(), "1")
			assert.ErrorIs(t, err, ErrLookupFailed)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, nil).FindByPhone(context.Background(), "1")
	assert.ErrorIs(t, err, ErrLookupFailed)
}
