package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPublisher(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewHTTPPublisher(srv.URL).Publish(context.Background(), []byte("<jobs/>"))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "application/xml", gotContentType)
	assert.Equal(t, "<jobs/>", string(gotBody))
}

func TestHTTPPublisher_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPPublisher(srv.URL).Publish(context.Background(), []byte("<jobs/>"))
	assert.Error(t, err)
}

func TestFilePublisher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")

	err := NewFilePublisher(path).Publish(context.Background(), []byte("<jobs/>"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<jobs/>", string(data))
}
