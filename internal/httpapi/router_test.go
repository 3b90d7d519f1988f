package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contestplane/pkg/config"
	"contestplane/pkg/health"
	"contestplane/services/adjustment"
	"contestplane/services/campaign"
	"contestplane/services/distribution"
	"contestplane/services/ledger"
	"contestplane/services/result"
	"contestplane/services/scoring"
	"contestplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	db := testutil.NewTestDB(t,
		&campaign.Campaign{}, &campaign.Event{}, &campaign.Prediction{}, &campaign.Participation{},
		&ledger.Balance{}, &ledger.PointTransaction{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Distribution.Workers = 2

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	campaignSvc := campaign.NewService(campaign.ServiceParams{DB: db, Node: node})

	return NewRouter(Params{
		Config:    cfg,
		Health:    health.ProvideHealth(health.HealthParams{DB: db}),
		Campaigns: campaignSvc,
		Results:   result.NewService(result.ServiceParams{DB: db}),
		Distributions: distribution.NewService(distribution.ServiceParams{
			DB:     db,
			Config: cfg,
			Engine: scoring.Engine{},
			Ledger: ledgerSvc,
		}),
		Adjustments: adjustment.NewService(adjustment.ServiceParams{Ledger: ledgerSvc}),
		Ledger:      ledgerSvc,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "admin-1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLiveness(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCampaignFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/campaigns", map[string]any{"name": "Grand Final"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created campaign.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/campaigns/%s/events", created.ID), map[string]any{
		"title": "Winner", "type": "choice_selection", "points": 100,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var event campaign.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/events/%s/predictions", event.ID), map[string]any{
		"user_id": "user-1", "value": "team_a",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/events/%s/outcome", event.ID), map[string]any{"outcome": "team_a"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/events/%s/verify", event.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/events/%s/approve", event.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/campaigns/%s/can-distribute", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"can_distribute":true`)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/campaigns/%s/distribute", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res distribution.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, int64(100), res.TotalPointsDistributed)

	w = doJSON(t, router, http.MethodGet, "/v1/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"balance":100`)

	w = doJSON(t, router, http.MethodGet, "/v1/users/user-1/ledger/verify", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"valid":true`)

	// Actor header flows through to the audit trail.
	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/campaigns/%s", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"DistributedBy":"admin-1"`)
}

func TestAdjustmentOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/users/user-9/adjustments", map[string]any{
		"amount": 250, "reason": "manual bonus",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res adjustment.AdjustResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, int64(250), res.NewBalance)

	w = doJSON(t, router, http.MethodGet, "/v1/users/user-9/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "manual bonus")
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/campaigns/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "NOT_FOUND")

	w = doJSON(t, router, http.MethodPost, "/v1/campaigns", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
