package handler

import (
	"errors"
	"net/http"

	"docqa-go/internal/pipeline"
	"docqa-go/internal/service"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责文档生命周期相关的 API 请求。
type DocumentHandler struct {
	documentService service.DocumentService
	processor       *pipeline.Processor
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService, processor *pipeline.Processor) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, processor: processor}
}

// List 返回全部文档的列表视图,不含抽取出的正文。
func (h *DocumentHandler) List(c *gin.Context) {
	items, err := h.documentService.ListDocuments()
	if err != nil {
		log.Errorf("[DocumentHandler] 查询文档列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文档列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": items})
}

// Get 返回单个文档的完整记录。
func (h *DocumentHandler) Get(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.documentService.GetDocument(id)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 查询文档失败, id: %s, err: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": doc})
}

// Delete 删除文档及其向量与原始文件。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.documentService.DeleteDocument(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 删除文档失败, id: %s, err: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": nil})
}

// Index 显式触发单个文档的向量化,用于对 embedding 状态文档的手动重试。
func (h *DocumentHandler) Index(c *gin.Context) {
	id := c.Param("id")
	if err := h.processor.IndexDocument(c.Request.Context(), id); err != nil {
		log.Errorf("[DocumentHandler] 触发向量化失败, id: %s, err: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": nil})
}

// Sweep 批量重新处理所有停在 embedding 状态的文档。
func (h *DocumentHandler) Sweep(c *gin.Context) {
	result, err := h.processor.SweepEmbedding(c.Request.Context())
	if err != nil {
		log.Errorf("[DocumentHandler] 批量向量化失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "批量向量化失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": result})
}

// SweepStuck 将长时间停留在中间状态的文档标记为失败。
func (h *DocumentHandler) SweepStuck(c *gin.Context) {
	marked, err := h.processor.SweepStuck(c.Request.Context())
	if err != nil {
		log.Errorf("[DocumentHandler] 清扫滞留文档失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "清扫滞留文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": gin.H{"marked": marked}})
}
