package httpapi

import (
	"net/http"

	"contestplane/pkg/config"
	"contestplane/pkg/health"
	"contestplane/pkg/middleware"
	"contestplane/services/adjustment"
	"contestplane/services/campaign"
	"contestplane/services/distribution"
	"contestplane/services/ledger"
	"contestplane/services/result"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	campaigns     *campaign.Service
	results       *result.Service
	distributions *distribution.Service
	adjustments   *adjustment.Service
	ledger        *ledger.Service
}

type Params struct {
	fx.In

	Config        *config.Config
	Health        health.HealthService
	Campaigns     *campaign.Service
	Results       *result.Service
	Distributions *distribution.Service
	Adjustments   *adjustment.Service
	Ledger        *ledger.Service
}

// NewRouter wires every API route onto a gin engine and returns it as the
// handler the HTTP server serves.
func NewRouter(p Params) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	h := &Handler{
		campaigns:     p.Campaigns,
		results:       p.Results,
		distributions: p.Distributions,
		adjustments:   p.Adjustments,
		ledger:        p.Ledger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Actor(), middleware.Error())

	r.GET("/livez", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	v1 := r.Group("/v1")
	{
		v1.POST("/campaigns", h.CreateCampaign)
		v1.GET("/campaigns", h.ListCampaigns)
		v1.GET("/campaigns/:id", h.GetCampaign)
		v1.POST("/campaigns/:id/events", h.AddEvent)
		v1.GET("/campaigns/:id/events", h.ListEvents)
		v1.GET("/campaigns/:id/participations", h.ListParticipations)
		v1.GET("/campaigns/:id/can-distribute", h.CanDistribute)
		v1.POST("/campaigns/:id/distribute", h.Distribute)

		v1.GET("/events/:id", h.GetEvent)
		v1.POST("/events/:id/predictions", h.SubmitPrediction)
		v1.POST("/events/:id/outcome", h.RecordOutcome)
		v1.POST("/events/:id/verify", h.VerifyOutcome)
		v1.POST("/events/:id/approve", h.ApproveOutcome)

		v1.POST("/users/:id/adjustments", h.Adjust)
		v1.GET("/users/:id/balance", h.GetBalance)
		v1.GET("/users/:id/transactions", h.ListTransactions)
		v1.GET("/users/:id/ledger/verify", h.VerifyLedger)
	}

	return r
}

var Module = fx.Module("httpapi",
	fx.Provide(NewRouter),
)
