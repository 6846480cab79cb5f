package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPager_FollowsNextLink(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.RequestURI() {
		case "/list":
			json.NewEncoder(w).Encode(ListResponse{
				Value:    []map[string]any{{"id": "a"}, {"id": "b"}},
				NextLink: server.URL + "/list?page=2",
			})
		default:
			json.NewEncoder(w).Encode(ListResponse{
				Value: []map[string]any{{"id": "c"}},
			})
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t)

	items, err := client.NewPager("tenant-a", server.URL+"/list").All(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0]["id"])
	assert.Equal(t, "c", items[2]["id"])
}

func TestPager_NextIsLazy(t *testing.T) {
	var requests int
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		resp := ListResponse{Value: []map[string]any{{"id": fmt.Sprintf("item-%d", requests)}}}
		if requests == 1 {
			resp.NextLink = server.URL + "/next"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, _ := newTestClient(t)
	pager := client.NewPager("tenant-a", server.URL)

	page, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, 1, requests)
	assert.True(t, pager.More())

	page, err = pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.False(t, pager.More())
}

func TestPager_MidSequenceFailureReturnsPartial(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/list" {
			json.NewEncoder(w).Encode(ListResponse{
				Value:    []map[string]any{{"id": "a"}, {"id": "b"}},
				NextLink: server.URL + "/broken",
			})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, _ := newTestClient(t)

	items, err := client.NewPager("tenant-a", server.URL+"/list").All(context.Background())

	require.Error(t, err)
	var partial *PartialError
	require.True(t, errors.As(err, &partial))
	assert.Len(t, partial.Items, 2)
	assert.Len(t, items, 2)
}

func TestPager_FirstPageFailureHasNoPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := newTestClient(t)

	items, err := client.NewPager("tenant-a", server.URL).All(context.Background())

	require.Error(t, err)
	var partial *PartialError
	assert.False(t, errors.As(err, &partial))
	assert.Nil(t, items)
}
