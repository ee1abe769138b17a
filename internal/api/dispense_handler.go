package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/carousel-dispenser/internal/errors"
	"github.com/wfunc/carousel-dispenser/internal/models"
	"github.com/wfunc/carousel-dispenser/internal/service"
	"github.com/wfunc/carousel-dispenser/internal/vision"
)

// DispenseHandler 出料API处理器
type DispenseHandler struct {
	dispense *service.DispenseService
	vision   *vision.Detector
}

// NewDispenseHandler 创建出料处理器
func NewDispenseHandler(dispense *service.DispenseService, vision *vision.Detector) *DispenseHandler {
	return &DispenseHandler{
		dispense: dispense,
		vision:   vision,
	}
}

// DispenseRequest 出料请求
type DispenseRequest struct {
	Component string `json:"component" binding:"required"`
}

// Dispense 按元件键执行出料
func (h *DispenseHandler) Dispense(c *gin.Context) {
	var req DispenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_REQUEST",
			"message": "请求参数无效",
			"details": err.Error(),
		})
		return
	}

	record, err := h.dispense.RequestComponent(req.Component)
	if err != nil {
		appErr, ok := err.(*errors.AppError)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "DISPENSE_FAILED",
				"message": err.Error(),
			})
			return
		}
		c.JSON(appErr.HTTPStatus(), gin.H{
			"code":    int(appErr.Code),
			"message": appErr.Message,
			"record":  record,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "出料完成，库存测量进行中",
		"record":  record,
	})
}

// GetComponents 元件到料仓的映射表
func (h *DispenseHandler) GetComponents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"components": h.dispense.Components()})
}

// GetStatus 设备与流程状态
func (h *DispenseHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispense.GetStatus())
}

// Home 手动回零
func (h *DispenseHandler) Home(c *gin.Context) {
	if err := h.dispense.Home(); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "HOME_FAILED",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "回零完成"})
}

// EStop 急停
func (h *DispenseHandler) EStop(c *gin.Context) {
	if err := h.dispense.EStop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "ESTOP_FAILED",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "急停命令已发送"})
}

// GetInventory 每个料仓的最近库存结果，可用bin参数过滤单个料仓
func (h *DispenseHandler) GetInventory(c *gin.Context) {
	bins, err := h.dispense.LatestInventory()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INVENTORY_FAILED",
			"message": err.Error(),
		})
		return
	}

	if v := c.Query("bin"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 3 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_BIN",
				"message": "料仓编号必须在0到3之间",
			})
			return
		}
		filtered := bins[:0]
		for _, b := range bins {
			if b.Bin == n {
				filtered = append(filtered, b)
			}
		}
		bins = filtered
	}

	c.JSON(http.StatusOK, gin.H{"bins": bins})
}

// QueryDispenses 查询历史出料记录
func (h *DispenseHandler) QueryDispenses(c *gin.Context) {
	query := &models.DispenseQuery{}

	query.SessionID = c.Query("session_id")
	query.ComponentKey = c.Query("component")
	if v := c.Query("bin"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Bin = &n
		}
	}
	if v := c.Query("status"); v != "" {
		query.Status = models.DispenseStatus(v)
	}
	if v := c.Query("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			query.StartTime = &t
		}
	}
	if v := c.Query("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			query.EndTime = &t
		}
	}

	query.Limit = 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			query.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			query.Offset = n
		}
	}

	records, total, err := h.dispense.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "QUERY_FAILED",
			"message": "查询出料记录失败",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"records": records,
		"limit":   query.Limit,
		"offset":  query.Offset,
	})
}

// GetStats 出料统计
func (h *DispenseHandler) GetStats(c *gin.Context) {
	var startTime, endTime *time.Time
	if v := c.Query("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			startTime = &t
		}
	}
	if v := c.Query("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			endTime = &t
		}
	}

	stats, err := h.dispense.GetStats(startTime, endTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "STATS_FAILED",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Scan 触发一次摄像头元件识别
func (h *DispenseHandler) Scan(c *gin.Context) {
	result, err := h.vision.Detect(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SCAN_FAILED",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}
