package pagination_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-voice/internal/common/pagination"
	"nexus-voice/internal/pkg/config"
)

func TestParseQueryParams(t *testing.T) {
	cfg := pagination.DefaultConfig()
	tests := []struct {
		name    string
		query   string
		want    pagination.Params
		wantErr string
	}{
		{name: "defaults", query: "", want: pagination.Params{Page: 1, Limit: 20}},
		{name: "explicit", query: "?page=3&limit=50", want: pagination.Params{Page: 3, Limit: 50}},
		{name: "max limit", query: "?limit=100", want: pagination.Params{Page: 1, Limit: 100}},
		{name: "zero page", query: "?page=0", wantErr: "page must be a positive integer"},
		{name: "text page", query: "?page=two", wantErr: "page must be a positive integer"},
		{name: "limit too large", query: "?limit=101", wantErr: "limit must be between 1 and 100"},
		{name: "negative limit", query: "?limit=-5", wantErr: "limit must be between 1 and 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pagination.ParseQueryParams(httptest.NewRequest("GET", "/x"+tt.query, nil), cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParams_Offset(t *testing.T) {
	assert.Equal(t, 0, pagination.Params{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, 20, pagination.Params{Page: 2, Limit: 20}.Offset())
	assert.Equal(t, 20, pagination.Params{Page: 3, Limit: 10}.Offset())
}

func TestNewMetadata(t *testing.T) {
	tests := []struct {
		name      string
		params    pagination.Params
		total     int64
		wantPages int
		wantNext  bool
	}{
		{name: "empty", params: pagination.Params{Page: 1, Limit: 20}, total: 0, wantPages: 1},
		{name: "partial page", params: pagination.Params{Page: 1, Limit: 20}, total: 10, wantPages: 1},
		{name: "exact pages", params: pagination.Params{Page: 1, Limit: 20}, total: 40, wantPages: 2, wantNext: true},
		{name: "one over", params: pagination.Params{Page: 2, Limit: 20}, total: 41, wantPages: 3, wantNext: true},
		{name: "last page", params: pagination.Params{Page: 5, Limit: 20}, total: 100, wantPages: 5},
		{name: "past the end", params: pagination.Params{Page: 9, Limit: 20}, total: 100, wantPages: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := pagination.NewMetadata(tt.params, tt.total)
			assert.Equal(t, tt.wantPages, m.TotalPages)
			assert.Equal(t, tt.wantNext, m.HasNext)
			assert.Equal(t, tt.total, m.Total)
		})
	}
}

func TestNewResponse_EncodesEmptyData(t *testing.T) {
	resp := pagination.NewResponse[string](nil, pagination.Params{Page: 1, Limit: 20}, 0)

	body, err := json.Marshal(resp)

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[],"pagination":{"total":0,"page":1,"limit":20,"total_pages":1,"has_next":false}}`, string(body))
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		def, max string
		want     pagination.Config
		fallback string
	}{
		{name: "defaults", want: pagination.DefaultConfig()},
		{name: "custom", def: "50", max: "200", want: pagination.Config{DefaultLimit: 50, MaxLimit: 200}},
		{name: "default clamped to max", def: "80", max: "40", want: pagination.Config{DefaultLimit: 40, MaxLimit: 40}},
		{name: "invalid max", max: "0", want: pagination.DefaultConfig(), fallback: "max_limit"},
		{name: "invalid default", def: "lots", want: pagination.DefaultConfig(), fallback: "default_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PAGINATION_DEFAULT_LIMIT", tt.def)
			t.Setenv("PAGINATION_MAX_LIMIT", tt.max)
			m := config.NewMetrics(prometheus.NewRegistry())

			got := pagination.LoadConfig(nil, m)

			assert.Equal(t, tt.want, got)
			if tt.fallback != "" {
				assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("pagination", tt.fallback)))
			}
		})
	}
}
