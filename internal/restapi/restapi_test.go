package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
)

func TestAssetCreateSetsContentTypeAndReturnsAsset(t *testing.T) {
	var gotContentType, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/v1/projects/proj-1/branches/main/assets", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.Asset{UniqueID: 42, Name: "a.md"})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token", "projectsync-test/1.0")
	asset, err := c.AssetCreate(context.Background(), "proj-1", "main", ports.AssetCreateRequest{
		Name:     "a.md",
		Type:     model.AssetTypeText,
		Filename: "a.md",
		File:     []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.UniqueID(42), asset.UniqueID)
	assert.Equal(t, "text/plain; charset=utf-8", gotContentType)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestAssetCreateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(apiError{Error: "name already taken"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "projectsync-test/1.0")
	_, err := c.AssetCreate(context.Background(), "proj-1", "main", ports.AssetCreateRequest{Name: "a.md"})
	assert.ErrorContains(t, err, "name already taken")
}

func TestProjectAssetsPassesViewQueryParam(t *testing.T) {
	var gotView string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotView = r.URL.Query().Get("view")
		_ = json.NewEncoder(w).Encode([]model.Asset{{UniqueID: 1}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "projectsync-test/1.0")
	assets, err := c.ProjectAssets(context.Background(), "proj-1", "main", "full")
	require.NoError(t, err)
	assert.Equal(t, "full", gotView)
	assert.Len(t, assets, 1)
}
