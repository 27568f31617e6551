package service

import (
	"context"
	"errors"
	"fmt"

	"docqa-go/internal/model"
	"docqa-go/internal/repository"
	"docqa-go/pkg/log"

	"gorm.io/gorm"
)

// ErrDocumentNotFound 表示目标文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DeleteIndex 是删除文档时所需的向量索引能力。
type DeleteIndex interface {
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

// DocumentService 定义了文档生命周期查询与删除的操作接口。
type DocumentService interface {
	ListDocuments() ([]model.DocumentListItem, error)
	GetDocument(id string) (*model.Document, error)
	// DeleteDocument 删除文档的全部痕迹:向量索引、对象存储与数据库记录。
	DeleteDocument(ctx context.Context, id string) error
}

type documentService struct {
	docRepo repository.DocumentRepository
	index   DeleteIndex
	store   ObjectStore
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docRepo repository.DocumentRepository, index DeleteIndex, store ObjectStore) DocumentService {
	return &documentService{docRepo: docRepo, index: index, store: store}
}

func (s *documentService) ListDocuments() ([]model.DocumentListItem, error) {
	docs, err := s.docRepo.FindAll()
	if err != nil {
		return nil, fmt.Errorf("查询文档列表失败: %w", err)
	}
	items := make([]model.DocumentListItem, len(docs))
	for i, doc := range docs {
		items[i] = doc.ToListItem()
	}
	return items, nil
}

func (s *documentService) GetDocument(id string) (*model.Document, error) {
	doc, err := s.docRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("查询文档失败: %w", err)
	}
	return doc, nil
}

// DeleteDocument 先清理向量索引和对象存储,最后删除数据库记录。
// 前两步失败会中止删除,保证不会留下查不到来源的向量。
func (s *documentService) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.GetDocument(id); err != nil {
		return err
	}

	if err := s.index.DeleteByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("删除向量索引失败: %w", err)
	}
	if err := s.store.RemoveDocument(ctx, id); err != nil {
		// 对象可能在早期失败的上传中就不存在,记录但不中止
		log.Warnf("[DocumentService] 删除对象存储文件失败, documentID: %s, err: %v", id, err)
	}
	if err := s.docRepo.Delete(id); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	log.Infof("[DocumentService] 文档已删除, documentID: %s", id)
	return nil
}
