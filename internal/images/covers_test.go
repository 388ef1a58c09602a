package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const duneVolume = `{
  "kind": "books#volumes",
  "totalItems": 1,
  "items": [{
    "id": "B1hSG45JCX4C",
    "volumeInfo": {
      "title": "Dune",
      "authors": ["Frank Herbert"],
      "description": "Set on the desert planet Arrakis.",
      "pageCount": 896,
      "categories": ["Fiction"],
      "imageLinks": {"thumbnail": "http://books.google.com/books/content?id=B1hSG45JCX4C&img=1"}
    }
  }]
}`

type fakeServers struct {
	google      *httptest.Server
	openLibrary *httptest.Server
	googleHits  atomic.Int32
	lastQuery   atomic.Value
}

func newFakeServers(t *testing.T, googleBody string, olStatus int) *fakeServers {
	t.Helper()
	f := &fakeServers{}
	f.google = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.googleHits.Add(1)
		f.lastQuery.Store(r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(googleBody))
	}))
	f.openLibrary = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(olStatus)
	}))
	t.Cleanup(f.google.Close)
	t.Cleanup(f.openLibrary.Close)
	return f
}

func (f *fakeServers) lookup(t *testing.T) *CoverLookup {
	t.Helper()
	c, err := NewCoverLookup(context.Background(), "",
		option.WithEndpoint(f.google.URL+"/"),
		option.WithHTTPClient(f.google.Client()),
	)
	require.NoError(t, err)
	c.OpenLibraryBase = f.openLibrary.URL
	return c
}

func TestFetchCoverGoogleBooks(t *testing.T) {
	f := newFakeServers(t, duneVolume, http.StatusNotFound)
	c := f.lookup(t)

	info, err := c.FetchCover(context.Background(), "978-0441013593", "Dune", "Frank Herbert")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "http://books.google.com/books/content?id=B1hSG45JCX4C&img=1", info.URL)
	assert.Equal(t, 896, info.PageCount)
	assert.Equal(t, "Set on the desert planet Arrakis.", info.Description)
	assert.Equal(t, []string{"Fiction"}, info.Categories)
	assert.Equal(t, "isbn:9780441013593", f.lastQuery.Load())

	_, err = c.FetchCover(context.Background(), "9780441013593", "", "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.googleHits.Load(), "second lookup is served from cache")
}

func TestFetchCoverOpenLibraryFallback(t *testing.T) {
	f := newFakeServers(t, `{"kind":"books#volumes","totalItems":0}`, http.StatusOK)
	c := f.lookup(t)

	info, err := c.FetchCover(context.Background(), "0441013597", "Dune", "")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, f.openLibrary.URL+"/b/isbn/0441013597-L.jpg?default=false", info.URL)
}

func TestFetchCoverNotFound(t *testing.T) {
	f := newFakeServers(t, `{"kind":"books#volumes","totalItems":0}`, http.StatusNotFound)
	c := f.lookup(t)

	info, err := c.FetchCover(context.Background(), "", "Some Obscure Zine", "Nobody")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Equal(t, `intitle:"Some Obscure Zine" inauthor:"Nobody"`, f.lastQuery.Load())
}

func TestFetchCoverNothingToSearch(t *testing.T) {
	f := newFakeServers(t, duneVolume, http.StatusNotFound)
	info, err := f.lookup(t).FetchCover(context.Background(), "", " ", "Frank Herbert")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Zero(t, f.googleHits.Load())
}
