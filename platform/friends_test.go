package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriends(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/players/p1/friends", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"f1","name":"bob"},{"id":"f2","name":"carol"}]`))
	}))
	defer srv.Close()

	fc := NewFriendsClient(srv.URL, zerolog.Nop())
	friends := fc.Friends(context.Background(), "p1")

	require.Len(t, friends, 2)
	assert.Equal(t, Friend{ID: "f1", Name: "bob"}, friends[0])
}

func TestFriends_FailuresComeBackEmpty(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		baseURL func(t *testing.T) string
	}{
		{
			name:    "unset base url",
			baseURL: func(*testing.T) string { return "" },
		},
		{
			name: "unreachable host",
			baseURL: func(*testing.T) string {
				// closed immediately; nothing listens there anymore
				srv := httptest.NewServer(http.NotFoundHandler())
				srv.Close()
				return srv.URL
			},
		},
		{
			name: "server error",
			baseURL: func(t *testing.T) string {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
				}))
				t.Cleanup(srv.Close)
				return srv.URL
			},
		},
		{
			name: "malformed payload",
			baseURL: func(t *testing.T) string {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.Write([]byte(`{not json`))
				}))
				t.Cleanup(srv.Close)
				return srv.URL
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fc := NewFriendsClient(tc.baseURL(t), zerolog.Nop())

			friends := fc.Friends(context.Background(), "p1")

			assert.NotNil(t, friends, "callers always get a slice")
			assert.Empty(t, friends)
		})
	}
}
