package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulsedev/pulse/internal/agent"
	"github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/internal/biz/health"
	"github.com/pulsedev/pulse/internal/biz/instance"
)

// Agent is the slice of the sync agent the HTTP surface drives.
type Agent interface {
	Status(ctx context.Context) agent.StatusView
	Schedule() agent.ScheduleView
	RecentPackages(ctx context.Context, limit int) ([]download.AppliedPackage, error)
	Instances(ctx context.Context) ([]*instance.AgentInstance, error)
	TriggerNow(ctx context.Context) error
	SetMonitorStatus(ctx context.Context, status health.Status) error
	SetAuthorization(ctx context.Context, granted bool) error
}

// AgentHandler 代理控制接口处理器
type AgentHandler struct {
	agent Agent
}

// NewAgentHandler 创建代理处理器
func NewAgentHandler(a Agent) *AgentHandler {
	return &AgentHandler{agent: a}
}

// GetStatus 获取代理状态
func (h *AgentHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Status(c.Request.Context()))
}

// GetSchedule 获取当日排程
func (h *AgentHandler) GetSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Schedule())
}

// ListPackages 列出最近应用的数据包
func (h *AgentHandler) ListPackages(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	packages, err := h.agent.RecentPackages(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"packages": packages,
		"count":    len(packages),
	})
}

// ListInstances 列出注册的代理实例
func (h *AgentHandler) ListInstances(c *gin.Context) {
	instances, err := h.agent.Instances(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"instances": instances,
		"count":     len(instances),
	})
}

// TriggerRun 立即触发一次同步
func (h *AgentHandler) TriggerRun(c *gin.Context) {
	if err := h.agent.TriggerNow(c.Request.Context()); err != nil {
		if errors.Is(err, agent.ErrNotAuthorized) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "triggered",
		"time":   time.Now(),
	})
}

// UpdateMonitorStatusRequest 更新监控状态请求
type UpdateMonitorStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateMonitorStatus 更新外部监控状态
func (h *AgentHandler) UpdateMonitorStatus(c *gin.Context) {
	var req UpdateMonitorStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := health.Status(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown monitor status: " + req.Status})
		return
	}

	if err := h.agent.SetMonitorStatus(c.Request.Context(), status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

// UpdateAuthorizationRequest 更新授权请求
type UpdateAuthorizationRequest struct {
	Granted *bool `json:"granted" binding:"required"`
}

// UpdateAuthorization 更新同步授权
func (h *AgentHandler) UpdateAuthorization(c *gin.Context) {
	var req UpdateAuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.agent.SetAuthorization(c.Request.Context(), *req.Granted); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"granted": *req.Granted})
}
