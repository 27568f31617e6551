package handler

import (
	"net/http"

	"docqa-go/internal/model"
	"docqa-go/internal/service"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// SearchRequest 定义了语义搜索 API 的请求体结构。
type SearchRequest struct {
	Query  string              `json:"query" binding:"required"`
	TopK   int                 `json:"topK"`
	Filter *model.SearchFilter `json:"filter"`
}

// Search 是处理语义搜索请求的 Gin 处理函数。
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	log.Infof("[SearchHandler] 收到搜索请求, query: %s, topK: %d", req.Query, req.TopK)

	results, err := h.searchService.Search(c.Request.Context(), req.Query, req.TopK, req.Filter)
	if err != nil {
		log.Errorf("[SearchHandler] 搜索服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索失败"})
		return
	}

	log.Infof("[SearchHandler] 搜索成功, query: '%s', 返回 %d 条结果", req.Query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": results})
}
