// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"docqa-go/internal/middleware"
	"docqa-go/internal/service"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理文档上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 处理批量文件上传请求,表单字段名为 files。
// 单个文件失败不影响其余文件,逐一返回每个文件的处理结果。
func (h *UploadHandler) Upload(c *gin.Context) {
	claims := middleware.MustClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法获取用户信息"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		log.Warnf("[UploadHandler] 解析 multipart 表单失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 multipart 表单"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未提供任何文件"})
		return
	}
	log.Infof("[UploadHandler] 收到上传请求, 用户: %s, 文件数: %d", claims.Username, len(files))

	results := h.uploadService.UploadDocuments(c.Request.Context(), claims.UserID, files)

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "success",
		"data": gin.H{
			"total":     len(results),
			"succeeded": succeeded,
			"results":   results,
		},
	})
}
