// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask represents the data structure for a document processing job.
// 投递语义为 at-least-once；消费端依靠确定性向量 ID 保证重复处理是幂等的。
type DocumentProcessingTask struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	UserID     uint   `json:"user_id"`
}
