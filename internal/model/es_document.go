// Package model 定义了与存储结构对应的 Go 结构体。
package model

import (
	"fmt"
	"time"
)

// EsDocument 定义了存储在 Elasticsearch 中的向量记录结构。
// VectorID 由 (documentId, chunkIndex) 确定性生成，重复入库会覆盖同一条记录而不是产生副本，
// 这是重建索引可以安全重试的关键。
type EsDocument struct {
	VectorID     string    `json:"vector_id"`
	DocumentID   string    `json:"document_id"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"file_type"`
	UploadDate   time.Time `json:"upload_date"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

// BuildVectorID 生成 (documentId, chunkIndex) 的确定性向量 ID。
func BuildVectorID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// SearchMatch 是一次向量检索的单条命中结果。
type SearchMatch struct {
	EsDocument
	Score float64 `json:"score"`
}

// SearchFilter 限定检索范围的过滤条件，语义为 $in：
// 字段值属于给定集合则命中；切片为空表示不限制。
type SearchFilter struct {
	DocumentIDs []string `json:"documentIds,omitempty"`
	FileTypes   []string `json:"fileTypes,omitempty"`
}

// IsEmpty 报告过滤条件是否为空。
func (f *SearchFilter) IsEmpty() bool {
	return f == nil || (len(f.DocumentIDs) == 0 && len(f.FileTypes) == 0)
}

// SearchResultDTO 定义了返回给前端的纯检索结果结构（不经过生成）。
type SearchResultDTO struct {
	DocumentID string  `json:"documentId"`
	Filename   string  `json:"filename"`
	FileType   string  `json:"fileType"`
	ChunkIndex int     `json:"chunkIndex"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// ChatSource 是一条返回给调用方的引用来源，CitationIndex 与答案中的 [n] 标记对应。
type ChatSource struct {
	DocumentID    string  `json:"documentId"`
	Filename      string  `json:"filename"`
	ChunkIndex    int     `json:"chunkIndex"`
	Snippet       string  `json:"snippet"`
	Score         float64 `json:"score"`
	CitationIndex int     `json:"citationIndex"`
}
