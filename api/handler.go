// Package api 暴露树目录的 HTTP 接口。
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/catalog"
	"github.com/wyfcoding/segtree/response"
	"github.com/wyfcoding/segtree/xerrors"
)

// Handler 目录相关的 HTTP 处理器。
type Handler struct {
	catalog *catalog.Catalog
}

// NewHandler 创建处理器。
func NewHandler(c *catalog.Catalog) *Handler {
	return &Handler{catalog: c}
}

// Register 在 r 下注册 /trees 路由。
func (h *Handler) Register(r gin.IRouter) {
	trees := r.Group("/trees")
	trees.POST("", h.create)
	trees.GET("", h.list)
	trees.GET("/:name", h.stats)
	trees.DELETE("/:name", h.drop)
	trees.GET("/:name/query", h.query)
	trees.GET("/:name/values", h.values)
	trees.POST("/:name/validate", h.validate)
	trees.PUT("/:name/points/:index", h.updatePoint)
	trees.POST("/:name/ranges", h.updateRange)
}

type createRequest struct {
	Name        string  `json:"name"        binding:"required,max=128"`
	Engine      string  `json:"engine"      binding:"omitempty,oneof=recursive iterative"`
	Aggregation string  `json:"aggregation" binding:"required"`
	Mode        string  `json:"mode"        binding:"required"`
	Values      []int64 `json:"values"      binding:"required,min=1"`
}

type queryRequest struct {
	Lo *int `form:"lo" binding:"required"`
	Hi *int `form:"hi" binding:"required"`
}

type pointRequest struct {
	Value *int64 `json:"value" binding:"required"`
}

type rangeRequest struct {
	Lo    *int   `json:"lo"    binding:"required"`
	Hi    *int   `json:"hi"    binding:"required"`
	Delta *int64 `json:"delta" binding:"required"`
}

// QueryResult 区间查询结果。
type QueryResult struct {
	Tree   string `json:"tree"`
	Lo     int    `json:"lo"`
	Hi     int    `json:"hi"`
	Result int64  `json:"result"`
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", xerrors.ErrInvalidInput, err)
}

// bindFailed 请求体读取超限时返回 413，其余绑定错误按非法输入处理。
func bindFailed(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large",
			fmt.Sprintf("request body must not exceed %d bytes", tooLarge.Limit))
		return
	}
	response.Error(c, invalid(err))
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	stats, err := h.catalog.Create(c.Request.Context(), catalog.Spec{
		Name:        req.Name,
		Engine:      req.Engine,
		Aggregation: req.Aggregation,
		Mode:        req.Mode,
		Values:      req.Values,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, stats)
}

func (h *Handler) list(c *gin.Context) {
	response.Success(c, h.catalog.List())
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.catalog.Stats(c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *Handler) drop(c *gin.Context) {
	if err := h.catalog.Drop(c.Request.Context(), c.Param("name")); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, invalid(err))
		return
	}
	name := c.Param("name")
	result, err := h.catalog.Query(c.Request.Context(), name, *req.Lo, *req.Hi)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, QueryResult{Tree: name, Lo: *req.Lo, Hi: *req.Hi, Result: result})
}

func (h *Handler) values(c *gin.Context) {
	vals, err := h.catalog.Values(c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, vals)
}

func (h *Handler) validate(c *gin.Context) {
	name := c.Param("name")
	if err := h.catalog.Validate(c.Request.Context(), name); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"tree": name, "valid": true})
}

func (h *Handler) updatePoint(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Error(c, invalid(err))
		return
	}
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	name := c.Param("name")
	if err := h.catalog.UpdatePoint(c.Request.Context(), name, index, *req.Value); err != nil {
		response.Error(c, err)
		return
	}
	h.stats(c)
}

func (h *Handler) updateRange(c *gin.Context) {
	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	name := c.Param("name")
	if err := h.catalog.UpdateRange(c.Request.Context(), name, *req.Lo, *req.Hi, *req.Delta); err != nil {
		response.Error(c, err)
		return
	}
	h.stats(c)
}
