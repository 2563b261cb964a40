package v0_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	v0 "github.com/stacklok/depsync/internal/api/v0"
	"github.com/stacklok/depsync/internal/store"
	storemocks "github.com/stacklok/depsync/internal/store/mocks"
	pkgsync "github.com/stacklok/depsync/internal/sync"
	"github.com/stacklok/depsync/internal/sync/coordinator"
	"github.com/stacklok/depsync/internal/sync/coordinator/mocks"
)

func seededStore(t *testing.T) store.VersionStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, v := range []string{"1.10.0", "1.2.0", "1.9.0"} {
		require.NoError(t, s.PutPublished(ctx, "acme/lib", v, at))
	}
	require.NoError(t, s.PutRejected(ctx, "left-pad", "0.0.1", at))
	return s
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestListRepositories(t *testing.T) {
	t.Parallel()
	router := v0.Router(seededStore(t), nil)

	rr := get(t, router, "/repositories")
	require.Equal(t, http.StatusOK, rr.Code)

	var response []v0.RepositoryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	require.Len(t, response, 2)

	byID := map[string]v0.RepositoryResponse{}
	for _, r := range response {
		byID[r.Repository] = r
	}
	assert.Equal(t, 3, byID["acme/lib"].Published)
	assert.Equal(t, "1.10.0", byID["acme/lib"].LatestVersion)
	assert.Equal(t, 1, byID["left-pad"].Rejected)
	assert.Empty(t, byID["left-pad"].LatestVersion)
	require.NotNil(t, byID["acme/lib"].LastActivity)
}

func TestListRepositories_StoreError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	mockStore := storemocks.NewMockVersionStore(ctrl)
	mockStore.EXPECT().ListRepositories(gomock.Any()).Return(nil, errors.New("database is locked"))

	rr := get(t, v0.Router(mockStore, nil), "/repositories")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "locked", "internal errors are not leaked")
}

func TestListVersions(t *testing.T) {
	t.Parallel()
	router := v0.Router(seededStore(t), nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		want       *v0.VersionsResponse
	}{
		{
			name:       "published oldest first",
			path:       "/versions?repository=acme/lib",
			wantStatus: http.StatusOK,
			want: &v0.VersionsResponse{
				Repository: "acme/lib",
				Published:  []string{"1.2.0", "1.9.0", "1.10.0"},
				Rejected:   []string{},
			},
		},
		{
			name:       "rejected only",
			path:       "/versions?repository=left-pad",
			wantStatus: http.StatusOK,
			want: &v0.VersionsResponse{
				Repository: "left-pad",
				Published:  []string{},
				Rejected:   []string{"0.0.1"},
			},
		},
		{
			name:       "missing parameter",
			path:       "/versions",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown repository",
			path:       "/versions?repository=acme/unknown",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := get(t, router, tt.path)
			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.want == nil {
				return
			}
			var got v0.VersionsResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, *tt.want, got)
		})
	}
}

func TestLatestRun(t *testing.T) {
	t.Parallel()

	t.Run("no run yet", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		coord := mocks.NewMockCoordinator(ctrl)
		coord.EXPECT().LastRun().Return(nil)

		rr := get(t, v0.Router(store.NewMemoryStore(), coord), "/runs/latest")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("summary with failures", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		coord := mocks.NewMockCoordinator(ctrl)
		coord.EXPECT().LastRun().Return(&coordinator.RunSummary{
			RunID: "run-42",
			Reports: []coordinator.RepositoryReport{
				{
					Repository: "acme/lib",
					Synced:     true,
					Result: &pkgsync.Result{Outcomes: []pkgsync.VersionOutcome{
						{Version: "1.0.0", State: pkgsync.StatePublished},
						{Version: "1.1.0", State: pkgsync.StatePublishDeferred},
					}},
				},
				{
					Repository: "acme/gone",
					Synced:     true,
					Err:        &pkgsync.Error{Stage: pkgsync.StageDiscovery, Message: "failed to discover versions"},
				},
			},
		})

		rr := get(t, v0.Router(store.NewMemoryStore(), coord), "/runs/latest")
		require.Equal(t, http.StatusOK, rr.Code)

		var got v0.RunResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "run-42", got.RunID)
		assert.Equal(t, map[string]int{"published": 1, "publish-deferred": 1}, got.Totals)
		assert.Equal(t, []v0.RunFailureItem{
			{Repository: "acme/gone", Stage: "discovery", Error: "failed to discover versions"},
		}, got.Failures)
	})
}

func TestHealthRouter(t *testing.T) {
	t.Parallel()
	router := v0.HealthRouter(nil)

	assert.Equal(t, http.StatusOK, get(t, router, "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/version").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/readiness").Code, "nil reporter is never ready")
}
