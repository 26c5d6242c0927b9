package artifact

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/plot.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	data, ct, err := f.Fetch(t.Context(), srv.URL+"/files/plot.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "image/png", ct)

	_, _, err = f.Fetch(t.Context(), srv.URL+"/files/none.png")
	assert.ErrorContains(t, err, "unexpected status 404")
}
