// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"time"
)

// 文档处理状态。completed 与 error 为终态，正常流程不会再改写。
const (
	StatusUploading  = "uploading"
	StatusExtracting = "extracting"
	StatusEmbedding  = "embedding"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Document 对应于数据库中的 documents 表，记录一个上传文档的元数据与生命周期。
// 不变式：ChunkCount 非空当且仅当 Status 为 completed。
type Document struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Filename         string    `gorm:"type:varchar(255);not null" json:"filename"`
	FileType         string    `gorm:"type:varchar(20);not null" json:"fileType"`
	FileSize         int64     `gorm:"not null" json:"fileSize"`
	UploadDate       time.Time `gorm:"autoCreateTime" json:"uploadDate"`
	Status           string    `gorm:"type:varchar(20);not null;index" json:"processingStatus"`
	ExtractedContent string    `gorm:"type:longtext" json:"extractedContent,omitempty"`
	ChunkCount       *int      `gorm:"default:null" json:"chunkCount,omitempty"`
	ErrorMessage     string    `gorm:"type:text" json:"errorMessage,omitempty"`
	Metadata         string    `gorm:"type:text" json:"-"`
	UserID           uint      `gorm:"not null;index" json:"userId"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// IsTerminal 报告文档是否已处于终态。
func (d *Document) IsTerminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusError
}

// MetadataMap 将 JSON 序列化的元数据还原为 map。内容对核心流程不透明，仅透传。
func (d *Document) MetadataMap() map[string]string {
	if d.Metadata == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(d.Metadata), &m); err != nil {
		return nil
	}
	return m
}

// SetMetadata 序列化并保存元数据 map。
func (d *Document) SetMetadata(m map[string]string) {
	if len(m) == 0 {
		d.Metadata = ""
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	d.Metadata = string(b)
}

// DocumentListItem 是列表接口返回的文档视图，省略了可能很大的提取文本。
type DocumentListItem struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"fileType"`
	FileSize     int64     `json:"fileSize"`
	UploadDate   time.Time `json:"uploadDate"`
	Status       string    `json:"processingStatus"`
	ChunkCount   *int      `json:"chunkCount,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// ToListItem 构建省略提取文本的列表视图。
func (d *Document) ToListItem() DocumentListItem {
	return DocumentListItem{
		ID:           d.ID,
		Filename:     d.Filename,
		FileType:     d.FileType,
		FileSize:     d.FileSize,
		UploadDate:   d.UploadDate,
		Status:       d.Status,
		ChunkCount:   d.ChunkCount,
		ErrorMessage: d.ErrorMessage,
	}
}
