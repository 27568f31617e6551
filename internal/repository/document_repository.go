// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"docqa-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了文档生命周期记录的数据持久化操作。
// 所有状态迁移必须经过 UpdateStatusCAS，读－改－写导致的丢失更新从结构上被排除：
// 显式触发与状态清扫并发竞争同一文档时，只有一方的守护更新会生效。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id string) (*model.Document, error)
	FindAll() ([]model.Document, error)
	FindByStatus(status string) ([]model.Document, error)
	FindStuck(statuses []string, uploadedBefore time.Time) ([]model.Document, error)
	UpdateFields(id string, fields map[string]interface{}) error
	// UpdateStatusCAS 仅当文档当前状态属于 fromStatuses 时应用 fields（必须包含新 status）。
	// 返回是否真的发生了更新。
	UpdateStatusCAS(id string, fromStatuses []string, fields map[string]interface{}) (bool, error)
	Delete(id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条新的文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByID 根据 ID 检索文档记录。
func (r *documentRepository) FindByID(id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindAll 返回全部文档记录，按上传时间倒序。
func (r *documentRepository) FindAll() ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("upload_date desc").Find(&docs).Error
	return docs, err
}

// FindByStatus 返回处于指定状态的全部文档。
func (r *documentRepository) FindByStatus(status string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("status = ?", status).Find(&docs).Error
	return docs, err
}

// FindStuck 返回处于给定状态、且上传时间早于阈值的文档，供卡死清扫使用。
func (r *documentRepository) FindStuck(statuses []string, uploadedBefore time.Time) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("status IN ? AND upload_date < ?", statuses, uploadedBefore).Find(&docs).Error
	return docs, err
}

// UpdateFields 以合并语义更新文档的部分字段。
func (r *documentRepository) UpdateFields(id string, fields map[string]interface{}) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateStatusCAS 执行守护式状态更新：UPDATE ... WHERE id=? AND status IN (?)。
func (r *documentRepository) UpdateStatusCAS(id string, fromStatuses []string, fields map[string]interface{}) (bool, error) {
	result := r.db.Model(&model.Document{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete 删除一条文档记录。
func (r *documentRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Document{}).Error
}
