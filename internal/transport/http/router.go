package apihttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradearena/internal/market"
	"tradearena/internal/simulation"
)

type router struct {
	engine *simulation.Engine
	agents AgentSource
}

func newRouter(engine *simulation.Engine, agents AgentSource) *router {
	return &router{engine: engine, agents: agents}
}

func (r *router) register(group *gin.RouterGroup) {
	sim := group.Group("/simulation")
	sim.POST("/runs", r.handleStartRun)
	sim.GET("/runs", r.handleListRuns)
	sim.GET("/runs/:id", r.handleRunStatus)
	sim.GET("/runs/:id/results", r.handleRunResults)
	sim.GET("/runs/:id/summary", r.handleRunSummary)
	sim.POST("/runs/:id/cancel", r.handleCancelRun)
	sim.DELETE("/runs/:id", r.handleDeleteRun)

	group.GET("/analysis/:ticker", r.handleAnalysis)
	group.POST("/debate", r.handleDebate)
	group.GET("/agents", r.handleAgents)
}

func (r *router) handleStartRun(c *gin.Context) {
	var req simulation.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := r.engine.StartRun(c.Request.Context(), req, r.agents.AgentSpecs())
	if errors.Is(err, simulation.ErrTooManyRuns) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (r *router) handleListRuns(c *gin.Context) {
	runs, err := r.engine.ListRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (r *router) handleRunStatus(c *gin.Context) {
	run, err := r.engine.Status(c.Request.Context(), c.Param("id"))
	if errors.Is(err, simulation.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run 不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (r *router) handleRunResults(c *gin.Context) {
	results, err := r.engine.Results(c.Request.Context(), c.Param("id"))
	if errors.Is(err, simulation.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run 不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

// handleRunSummary 只返回每代理汇总（完成前为空列表）。
func (r *router) handleRunSummary(c *gin.Context) {
	run, err := r.engine.Status(c.Request.Context(), c.Param("id"))
	if errors.Is(err, simulation.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run 不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	summaries, err := r.engine.Summaries(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if summaries == nil {
		summaries = []simulation.AgentSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": run.ID, "status": run.Status, "agents": summaries})
}

func (r *router) handleCancelRun(c *gin.Context) {
	if ok := r.engine.CancelRun(c.Param("id")); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run 不在执行中"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

func (r *router) handleDeleteRun(c *gin.Context) {
	err := r.engine.DeleteRun(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, simulation.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run 不存在"})
	case errors.Is(err, simulation.ErrRunActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

// handleAnalysis 即席分析：只跑分析阶段，便于前端单独查看某日意见。
func (r *router) handleAnalysis(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 date 参数"})
		return
	}
	result, err := r.engine.RunAnalysis(c.Request.Context(), c.Param("ticker"), date)
	if errors.Is(err, market.ErrNoData) {
		c.JSON(http.StatusNotFound, gin.H{"error": "该日无行情数据"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type debateRequest struct {
	Ticker string `json:"ticker" binding:"required"`
	Date   string `json:"date" binding:"required"`
	Rounds int    `json:"rounds"`
}

func (r *router) handleDebate(c *gin.Context) {
	var req debateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := r.engine.RunDebate(c.Request.Context(), req.Ticker, req.Date, req.Rounds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *router) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": r.agents.AgentSpecs()})
}
