package sources

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/httpclient"
)

type stubLister struct {
	versions []string
	err      error
}

func (s stubLister) ListVersions(context.Context, string) ([]string, error) {
	return s.versions, s.err
}

func TestRegistryDiscoverer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		lister        stubLister
		want          []CandidateVersion
		wantPermanent *bool
	}{
		{
			name:   "versions become candidates without locators",
			lister: stubLister{versions: []string{"1.0.0", "1.1.0", "1.3.0"}},
			want:   []CandidateVersion{{Name: "1.0.0"}, {Name: "1.1.0"}, {Name: "1.3.0"}},
		},
		{
			name:   "no versions",
			lister: stubLister{versions: nil},
			want:   []CandidateVersion{},
		},
		{
			name:          "unknown package is permanent",
			lister:        stubLister{err: httpclient.NewHTTPError(http.StatusNotFound, "u", "404")},
			wantPermanent: boolPtr(true),
		},
		{
			name:          "network failure is transient",
			lister:        stubLister{err: errors.New("connection reset")},
			wantPermanent: boolPtr(false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := NewRegistryDiscoverer(tt.lister)
			got, err := d.ListVersions(context.Background(), config.Repository{ID: "left-pad", Kind: config.KindRegistry})
			if tt.wantPermanent != nil {
				var discoveryErr *DiscoveryError
				require.True(t, errors.As(err, &discoveryErr))
				assert.Equal(t, *tt.wantPermanent, discoveryErr.Permanent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscovererFactory(t *testing.T) {
	t.Parallel()

	registry := NewRegistryDiscoverer(stubLister{})
	factory := NewDiscovererFactory(nil, registry)

	d, err := factory.CreateDiscoverer(config.KindRegistry)
	require.NoError(t, err)
	assert.Same(t, registry, d)

	_, err = factory.CreateDiscoverer(config.KindSourceControl)
	require.Error(t, err, "nil discoverers are unsupported")

	_, err = factory.CreateDiscoverer("crates")
	require.EqualError(t, err, "unsupported repository kind: crates")
}

func boolPtr(b bool) *bool {
	return &b
}
