package history

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

	"nexus-voice/internal/common/pagination"
	"nexus-voice/internal/domain/entity"
)

type fakeStore struct {
	records []entity.InteractionRecord
	total   int64
	err     error

	gotUser          string
	gotLimit, gotOff int
	gotWindow        time.Duration
}

func (f *fakeStore) ListInteractions(_ context.Context, userID string, limit, offset int) ([]entity.InteractionRecord, int64, error) {
	f.gotUser, f.gotLimit, f.gotOff = userID, limit, offset
	return f.records, f.total, f.err
}

func (f *fakeStore) InteractionStats(_ context.Context, userID string, window time.Duration) (*entity.InteractionStats, error) {
	f.gotUser, f.gotWindow = userID, window
	if f.err != nil {
		return nil, f.err
	}
	return &entity.InteractionStats{
		UserID: userID,
		ByType: []entity.InteractionTypeStats{{Type: entity.InteractionTTS, Count: 2, AvgDurationMS: 400, Successes: 2}},
		Total:  entity.InteractionTypeStats{Count: 2, AvgDurationMS: 400, Successes: 2},
	}, nil
}

func serve(t *testing.T, store *fakeStore, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	Register(mux, &Handler{Store: store})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestListInteractions(t *testing.T) {
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeStore{
		total: 45,
		records: []entity.InteractionRecord{{
			ID:          7,
			Interaction: entity.Interaction{UserID: "user01", SessionID: "s1", Type: entity.InteractionTTS, Content: "hi", Duration: 1500 * time.Millisecond, Success: true},
			CreatedAt:   at,
		}},
	}

	rec := serve(t, store, http.MethodGet, "/api/users/user01/interactions?page=3&limit=20")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user01", store.gotUser)
	assert.Equal(t, 20, store.gotLimit)
	assert.Equal(t, 40, store.gotOff)

	var body pagination.Response[InteractionDTO]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, pagination.Metadata{Total: 45, Page: 3, Limit: 20, TotalPages: 3}, body.Pagination)
	require.Len(t, body.Data, 1)
	assert.Equal(t, InteractionDTO{
		ID: 7, SessionID: "s1", Type: "tts", Content: "hi", DurationMS: 1500, Success: true,
		CreatedAt: "2026-06-01T08:00:00Z",
	}, body.Data[0])
}

func TestListInteractions_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		storeErr   error
		wantStatus int
	}{
		{name: "bad page", target: "/api/users/user01/interactions?page=0", wantStatus: http.StatusBadRequest},
		{name: "limit over max", target: "/api/users/user01/interactions?limit=500", wantStatus: http.StatusBadRequest},
		{name: "validation from store", target: "/api/users/%20/interactions",
			storeErr: &entity.ValidationError{Field: "user_id", Message: "is required"}, wantStatus: http.StatusBadRequest},
		{name: "store down", target: "/api/users/user01/interactions",
			storeErr: entity.NewError(entity.KindConnectionLost, "list interactions", errors.New("conn refused")), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeStore{err: tt.storeErr}, http.MethodGet, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestStats(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantUser   string
		wantWindow time.Duration
	}{
		{name: "defaults", target: "/api/interactions/stats", wantStatus: http.StatusOK, wantWindow: 30 * 24 * time.Hour},
		{name: "user and days", target: "/api/interactions/stats?user_id=user01&days=7", wantStatus: http.StatusOK, wantUser: "user01", wantWindow: 7 * 24 * time.Hour},
		{name: "days zero", target: "/api/interactions/stats?days=0", wantStatus: http.StatusBadRequest},
		{name: "days too large", target: "/api/interactions/stats?days=400", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			rec := serve(t, store, http.MethodGet, tt.target)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantUser, store.gotUser)
			assert.Equal(t, tt.wantWindow, store.gotWindow)

			var body entity.InteractionStats
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, int64(2), body.Total.Count)
			assert.Equal(t, 400.0, body.Total.AvgDurationMS)
		})
	}
}

func TestRegister_WithoutStore(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux, &Handler{})
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/interactions/stats", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
