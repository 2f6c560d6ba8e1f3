package indexer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func newPopulatedFixture(t *testing.T) *fixture {
	f := newFixture(t)
	c := f.chain
	f.apply(c.begin(alice).troveUpdated(alice, entities.OpenTrove, "10", "2000"))
	f.apply(c.begin(bob).troveUpdated(bob, entities.OpenTrove, "1", "50"))
	c.begin(carol)
	f.apply(
		c.troveUpdated(bob, entities.RedeemCollateral, "0", "0"),
		c.redemption("50", "50", "0.02", "0.001"),
	)
	f.apply(c.begin(alice).event(ContractStaking, StakeChangedEvent{Staker: alice, NewStake: ether("3")}))
	return f
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	rec := get(t, f.svc.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "givety-indexer", body["service"])
}

func TestServer_Global(t *testing.T) {
	f := newPopulatedFixture(t)
	rec := get(t, f.svc.Handler(), "/api/v1/global")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	g := decodeBody[entities.Global](t, rec)
	assert.Equal(t, uint64(2), g.TotalNumberOfTroves)
	assert.Equal(t, uint64(1), g.NumberOfOpenTroves)
	assert.Equal(t, uint64(1), g.RedemptionCount)
	assertDecimal(t, "0.001", g.TotalRedemptionFeesPaid)
}

func TestServer_Status(t *testing.T) {
	f := newPopulatedFixture(t)
	require.NoError(t, f.store.SaveCursor(f.ctx, f.chain.block))
	rec := get(t, f.svc.Handler(), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeBody[Status](t, rec)
	assert.True(t, st.HasCursor)
	assert.Equal(t, f.chain.block, st.Cursor)
	require.NotNil(t, st.Global)
	assert.Equal(t, uint64(1), st.Global.NumberOfActiveStakes)
}

func TestServer_Troves(t *testing.T) {
	f := newPopulatedFixture(t)
	h := f.svc.Handler()

	rec := get(t, h, "/api/v1/troves?status=closedByRedemption")
	require.Equal(t, http.StatusOK, rec.Code)
	troves := decodeBody[[]entities.Trove](t, rec)
	require.Len(t, troves, 1)
	assert.Equal(t, addressID(bob), troves[0].ID)

	rec = get(t, h, "/api/v1/troves/"+alice.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, addressID(alice), decodeBody[entities.Trove](t, rec).Owner)

	rec = get(t, h, "/api/v1/troves/"+bob.Hex()+"/changes?first=1&skip=1")
	require.Equal(t, http.StatusOK, rec.Code)
	changes := decodeBody[[]entities.TroveChange](t, rec)
	require.Len(t, changes, 1)
	assert.Equal(t, entities.RedeemCollateral, changes[0].Operation)
	require.NotNil(t, changes[0].Redemption)

	rec = get(t, h, "/api/v1/redemptions/"+*changes[0].Redemption)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[entities.Redemption](t, rec).Partial)
}

func TestServer_Entities(t *testing.T) {
	f := newPopulatedFixture(t)
	h := f.svc.Handler()

	paths := []string{
		"/api/v1/redemptions",
		"/api/v1/liquidations",
		"/api/v1/users/" + carol.Hex(),
		"/api/v1/stakes/" + alice.Hex(),
		"/api/v1/stakes/" + alice.Hex() + "/changes",
		"/api/v1/transactions/" + strings.ToLower(f.chain.tx.Hex()),
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rec := get(t, h, path)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_Errors(t *testing.T) {
	f := newPopulatedFixture(t)
	h := f.svc.Handler()

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/troves/0x0000000000000000000000000000000000000001", http.StatusNotFound},
		{"/api/v1/troves/0x0000000000000000000000000000000000000001/changes", http.StatusNotFound},
		{"/api/v1/deposits/" + alice.Hex(), http.StatusNotFound},
		{"/api/v1/redemptions/999", http.StatusNotFound},
		{"/api/v1/redemptions?first=abc", http.StatusBadRequest},
		{"/api/v1/troves?skip=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, decodeBody[map[string]string](t, rec), "error")
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	f := newPopulatedFixture(t)
	rec := get(t, f.svc.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `givety_indexer_events_processed_total{event="TroveUpdated"} 3`)
	assert.Contains(t, string(body), `givety_indexer_open_redemption 0`)
	assert.Contains(t, string(body), "go_goroutines")
}
