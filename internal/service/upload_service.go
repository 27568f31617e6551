package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/repository"
	"docqa-go/pkg/log"
	"docqa-go/pkg/tasks"

	"github.com/google/uuid"
)

// 允许上传的文件扩展名,与 Tika 的抽取能力对应。
var allowedExtensions = map[string]bool{
	"pdf":  true,
	"doc":  true,
	"docx": true,
	"ppt":  true,
	"pptx": true,
	"xls":  true,
	"xlsx": true,
	"txt":  true,
	"md":   true,
	"html": true,
}

// ObjectStore 是上传与删除所需的对象存储能力。
type ObjectStore interface {
	PutDocument(ctx context.Context, documentID string, r io.Reader, size int64) error
	RemoveDocument(ctx context.Context, documentID string) error
}

// UploadResult 是批量上传中单个文件的处理结果。
type UploadResult struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"documentId,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// UploadService 定义了文档上传的操作接口。
type UploadService interface {
	// UploadDocuments 批量上传文件。单个文件失败不影响批次内其余文件,
	// 每个文件的成败在返回结果中逐一给出。
	UploadDocuments(ctx context.Context, userID uint, files []*multipart.FileHeader) []UploadResult
}

type uploadService struct {
	docRepo   repository.DocumentRepository
	store     ObjectStore
	produce   func(task tasks.DocumentProcessingTask) error
	uploadCfg config.UploadConfig
}

// NewUploadService 创建一个新的 UploadService 实例。
// produce 用于向处理管道投递异步任务,通常传入 kafka.ProduceDocumentTask。
func NewUploadService(
	docRepo repository.DocumentRepository,
	store ObjectStore,
	produce func(task tasks.DocumentProcessingTask) error,
	uploadCfg config.UploadConfig,
) UploadService {
	return &uploadService{
		docRepo:   docRepo,
		store:     store,
		produce:   produce,
		uploadCfg: uploadCfg,
	}
}

func (s *uploadService) UploadDocuments(ctx context.Context, userID uint, files []*multipart.FileHeader) []UploadResult {
	results := make([]UploadResult, 0, len(files))
	for _, fh := range files {
		result := UploadResult{Filename: fh.Filename}
		documentID, err := s.uploadOne(ctx, userID, fh)
		if err != nil {
			log.Errorf("[UploadService] 文件上传失败, filename: %s, err: %v", fh.Filename, err)
			result.Error = err.Error()
		} else {
			result.DocumentID = documentID
			result.Success = true
		}
		results = append(results, result)
	}
	return results
}

func (s *uploadService) uploadOne(ctx context.Context, userID uint, fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fh.Filename), "."))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("不支持的文件类型: %s", ext)
	}
	maxSize := s.uploadCfg.MaxFileSizeOrDefault()
	if fh.Size > maxSize {
		return "", fmt.Errorf("文件大小超过限制: %d bytes (上限 %d bytes)", fh.Size, maxSize)
	}

	documentID := uuid.NewString()
	doc := &model.Document{
		ID:       documentID,
		Filename: fh.Filename,
		FileType: ext,
		FileSize: fh.Size,
		Status:   model.StatusUploading,
		UserID:   userID,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return "", fmt.Errorf("创建文档记录失败: %w", err)
	}

	file, err := fh.Open()
	if err != nil {
		s.failUpload(documentID, err)
		return "", fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer file.Close()

	if err := s.store.PutDocument(ctx, documentID, file, fh.Size); err != nil {
		s.failUpload(documentID, err)
		return "", fmt.Errorf("写入对象存储失败: %w", err)
	}

	ok, err := s.docRepo.UpdateStatusCAS(documentID,
		[]string{model.StatusUploading},
		map[string]interface{}{"status": model.StatusExtracting})
	if err != nil || !ok {
		s.failUpload(documentID, fmt.Errorf("状态推进失败"))
		return "", fmt.Errorf("更新文档状态失败")
	}

	task := tasks.DocumentProcessingTask{
		DocumentID: documentID,
		Filename:   fh.Filename,
		UserID:     userID,
	}
	if err := s.produce(task); err != nil {
		s.failUpload(documentID, err)
		return "", fmt.Errorf("投递处理任务失败: %w", err)
	}

	log.Infof("[UploadService] 文件上传成功, documentID: %s, filename: %s", documentID, fh.Filename)
	return documentID, nil
}

func (s *uploadService) failUpload(documentID string, cause error) {
	_, err := s.docRepo.UpdateStatusCAS(documentID,
		[]string{model.StatusUploading, model.StatusExtracting},
		map[string]interface{}{
			"status":        model.StatusError,
			"error_message": cause.Error(),
		})
	if err != nil {
		log.Errorf("[UploadService] 标记上传失败状态时出错, documentID: %s, err: %v", documentID, err)
	}
}
