package cdnsift

import (
	"context"
	"net/http"

	"github.com/fvbock/endless"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift/config"
)

// API serves the latest analysis over HTTP so dashboards and the render
// collaborator can pull results without rerunning the analysis.
type API struct {
	analyzer *Analyzer
	router   *gin.Engine
	config   *config.Config
	ctx      context.Context
}

// NewAPI creates and starts the REST API.
func NewAPI(ctx context.Context, cfg *config.Config, analyzer *Analyzer) *API {
	api := &API{
		analyzer: analyzer,
		config:   cfg,
		ctx:      ctx,
	}

	api.run()

	return api
}

func (a *API) run() {
	a.router = gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	a.router.Use(cors.New(corsConfig))

	a.router.POST("/analyze", a.postAnalyze)
	a.router.GET("/summary", a.getSummary)
	a.router.GET("/suspicious/ips", a.getSuspiciousIPs)
	a.router.GET("/suspicious/networks", a.getSuspiciousNetworks)
	a.router.GET("/blockplan", a.getBlockPlan)
	a.router.GET("/patterns", a.getPatterns)
	a.router.GET("/top/ips", a.getTopIPs)
	a.router.GET("/blocked/ips", a.getBlockedIPs)

	log.Infof("api listening on %s", a.config.APIAddress)
	go endless.ListenAndServe(a.config.APIAddress, a.router)
}

func (a *API) latest(c *gin.Context) *Analysis {
	analysis := a.analyzer.Latest()
	if analysis == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no analysis has been run yet"})
		return nil
	}
	return analysis
}

func (a *API) postAnalyze(c *gin.Context) {
	analysis := a.analyzer.Analyze()
	c.JSON(http.StatusOK, gin.H{
		"generated_at":        analysis.GeneratedAt,
		"suspicious_sources":  len(analysis.SuspiciousSources),
		"suspicious_networks": len(analysis.SuspiciousNetworks),
	})
}

func (a *API) getSummary(c *gin.Context) {
	if analysis := a.latest(c); analysis != nil {
		c.JSON(http.StatusOK, gin.H{
			"generated_at": analysis.GeneratedAt,
			"summary":      analysis.Summary,
			"baseline":     analysis.Baseline,
		})
	}
}

func (a *API) getSuspiciousIPs(c *gin.Context) {
	if analysis := a.latest(c); analysis != nil {
		c.JSON(http.StatusOK, analysis.SuspiciousSources)
	}
}

func (a *API) getSuspiciousNetworks(c *gin.Context) {
	if analysis := a.latest(c); analysis != nil {
		c.JSON(http.StatusOK, analysis.SuspiciousNetworks)
	}
}

func (a *API) getBlockPlan(c *gin.Context) {
	if analysis := a.latest(c); analysis != nil {
		c.JSON(http.StatusOK, analysis.Plan)
	}
}

func (a *API) getPatterns(c *gin.Context) {
	if analysis := a.latest(c); analysis != nil {
		c.JSON(http.StatusOK, gin.H{
			"hour_of_day": analysis.Patterns.HourOfDayCounts(),
			"daily":       analysis.Patterns.DailyCounts(),
		})
	}
}

func (a *API) getTopIPs(c *gin.Context) {
	analysis := a.latest(c)
	if analysis == nil {
		return
	}

	limit := a.config.TopN
	if by := c.Query("by"); by == "bytes" {
		c.JSON(http.StatusOK, TopSourcesByBytes(analysis.Snapshot, limit))
		return
	}
	c.JSON(http.StatusOK, TopSourcesByRequests(analysis.Snapshot, limit))
}

func (a *API) getBlockedIPs(c *gin.Context) {
	blocks := a.analyzer.Blocks()
	if blocks == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no block store configured"})
		return
	}

	blocked, err := blocks.All()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load blocked IPs"})
		return
	}

	c.JSON(http.StatusOK, blocked)
}
