// Package pipeline 实现了文档的异步处理管道:
// 文本抽取 -> 分块 -> 向量化 -> 写入索引,并维护文档的状态机。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"docqa-go/internal/chunker"
	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/repository"
	"docqa-go/pkg/embedding"
	"docqa-go/pkg/log"
	"docqa-go/pkg/tasks"

	"gorm.io/gorm"
)

// errStateChanged 表示守护式状态更新没有生效:文档已被并发推进。
// 竞争的失败方据此放弃本次处理,而不是把健康的文档改写为失败。
var errStateChanged = errors.New("文档状态已被并发修改")

// VectorIndex 是处理器所需的向量索引操作子集。
type VectorIndex interface {
	UpsertChunks(ctx context.Context, docs []model.EsDocument) error
}

// TextExtractor 从原始文件流中抽取纯文本。
type TextExtractor interface {
	ExtractText(fileReader io.Reader, fileName string) (string, error)
}

// ObjectStorage 按文档ID读取原始文件。
type ObjectStorage interface {
	GetDocument(ctx context.Context, documentID string) (io.ReadCloser, error)
}

// SweepResult 汇总一次批量处理中每个文档的结果。
type SweepResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// Processor 驱动单个文档走完处理管道。
type Processor struct {
	docRepo   repository.DocumentRepository
	embedder  embedding.Client
	index     VectorIndex
	extractor TextExtractor
	storage   ObjectStorage
	ragCfg    config.RAGConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	docRepo repository.DocumentRepository,
	embedder embedding.Client,
	index VectorIndex,
	extractor TextExtractor,
	storage ObjectStorage,
	ragCfg config.RAGConfig,
) *Processor {
	return &Processor{
		docRepo:   docRepo,
		embedder:  embedder,
		index:     index,
		extractor: extractor,
		storage:   storage,
		ragCfg:    ragCfg,
	}
}

// ProcessTask 消费一条文档处理任务:下载原文、抽取文本,然后进入向量化阶段。
// 消息可能被重复投递,对终态文档直接跳过以保证幂等。
func (p *Processor) ProcessTask(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Pipeline] 开始处理文档任务, documentID: %s, filename: %s", task.DocumentID, task.Filename)

	doc, err := p.docRepo.FindByID(task.DocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Pipeline] 文档不存在, 跳过任务, documentID: %s", task.DocumentID)
			return nil
		}
		return fmt.Errorf("查询文档失败: %w", err)
	}
	if doc.IsTerminal() {
		log.Infof("[Pipeline] 文档已处于终态 %s, 跳过重复投递, documentID: %s", doc.Status, doc.ID)
		return nil
	}

	// 消费者在 CAS 之后、提交 offset 之前崩溃时,重投的任务会看到 embedding
	// 状态的文档:抽取已经完成,直接从向量化阶段恢复
	if doc.Status != model.StatusEmbedding {
		if err := p.extract(ctx, doc); err != nil {
			if errors.Is(err, errStateChanged) {
				log.Infof("[Pipeline] 文档状态已被并发推进, 放弃本次投递, documentID: %s", doc.ID)
				return nil
			}
			p.markError(doc.ID, err)
			return err
		}
	}

	if err := p.embedAndIndex(ctx, doc.ID); err != nil {
		if errors.Is(err, errStateChanged) {
			log.Infof("[Pipeline] 文档状态已被并发推进, 放弃本次投递, documentID: %s", doc.ID)
			return nil
		}
		p.markError(doc.ID, err)
		return err
	}

	log.Infof("[Pipeline] 文档处理完成, documentID: %s", doc.ID)
	return nil
}

// extract 下载原始文件并通过 Tika 抽取纯文本,成功后将文档推进到 embedding 状态。
func (p *Processor) extract(ctx context.Context, doc *model.Document) error {
	log.Infof("[Pipeline] 步骤1: 抽取文本, documentID: %s", doc.ID)

	object, err := p.storage.GetDocument(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("下载原始文件失败: %w", err)
	}
	defer object.Close()

	content, err := p.extractor.ExtractText(object, doc.Filename)
	if err != nil {
		return fmt.Errorf("文本抽取失败: %w", err)
	}

	ok, err := p.docRepo.UpdateStatusCAS(doc.ID,
		[]string{model.StatusUploading, model.StatusExtracting},
		map[string]interface{}{
			"status":            model.StatusEmbedding,
			"extracted_content": content,
		})
	if err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	if !ok {
		return fmt.Errorf("documentID %s: %w", doc.ID, errStateChanged)
	}
	doc.ExtractedContent = content
	return nil
}

// IndexDocument 对单个处于 embedding 状态的文档执行分块、向量化和索引写入。
// 内容为空或分块结果为零时立即失败,不产生任何向量。
func (p *Processor) IndexDocument(ctx context.Context, documentID string) error {
	doc, err := p.docRepo.FindByID(documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("文档不存在: %s", documentID)
		}
		return fmt.Errorf("查询文档失败: %w", err)
	}
	if doc.Status != model.StatusEmbedding {
		return fmt.Errorf("文档 %s 当前状态为 %s, 不能进行向量化", documentID, doc.Status)
	}
	if err := p.embedAndIndex(ctx, documentID); err != nil {
		if errors.Is(err, errStateChanged) {
			return err
		}
		p.markError(documentID, err)
		return err
	}
	return nil
}

func (p *Processor) embedAndIndex(ctx context.Context, documentID string) error {
	doc, err := p.docRepo.FindByID(documentID)
	if err != nil {
		return fmt.Errorf("查询文档失败: %w", err)
	}
	if doc.ExtractedContent == "" {
		return fmt.Errorf("文档内容为空, 无法向量化: %s", documentID)
	}

	log.Infof("[Pipeline] 步骤2: 文本分块, documentID: %s", documentID)
	chunks := chunker.Split(doc.ExtractedContent, p.ragCfg.ChunkTokensOrDefault(), p.ragCfg.OverlapTokensOrDefault())
	if len(chunks) == 0 {
		return fmt.Errorf("文档分块结果为空: %s", documentID)
	}
	log.Infof("[Pipeline] 分块完成, documentID: %s, 共 %d 块", documentID, len(chunks))

	log.Infof("[Pipeline] 步骤3: 向量化并写入索引, documentID: %s", documentID)
	batchSize := p.ragCfg.EmbedBatchSizeOrDefault()
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("批次 [%d, %d) 向量化失败: %w", start, end, err)
		}

		esDocs := make([]model.EsDocument, len(batch))
		for i, c := range batch {
			esDocs[i] = model.EsDocument{
				VectorID:     model.BuildVectorID(documentID, c.Index),
				DocumentID:   documentID,
				Filename:     doc.Filename,
				FileType:     doc.FileType,
				UploadDate:   doc.UploadDate,
				ChunkIndex:   c.Index,
				Content:      c.Content,
				Vector:       vectors[i],
				ModelVersion: p.embedder.ModelVersion(),
			}
		}
		if err := p.index.UpsertChunks(ctx, esDocs); err != nil {
			return fmt.Errorf("批次 [%d, %d) 写入索引失败: %w", start, end, err)
		}
	}

	chunkCount := len(chunks)
	ok, err := p.docRepo.UpdateStatusCAS(documentID,
		[]string{model.StatusEmbedding},
		map[string]interface{}{
			"status":      model.StatusCompleted,
			"chunk_count": chunkCount,
		})
	if err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	if !ok {
		return fmt.Errorf("documentID %s: %w", documentID, errStateChanged)
	}
	log.Infof("[Pipeline] 索引写入完成, documentID: %s, chunkCount: %d", documentID, chunkCount)
	return nil
}

// SweepEmbedding 重新处理所有停在 embedding 状态的文档,单个失败不影响其他文档。
func (p *Processor) SweepEmbedding(ctx context.Context) (*SweepResult, error) {
	docs, err := p.docRepo.FindByStatus(model.StatusEmbedding)
	if err != nil {
		return nil, fmt.Errorf("查询待向量化文档失败: %w", err)
	}

	result := &SweepResult{Failed: make(map[string]string)}
	for _, doc := range docs {
		if err := p.IndexDocument(ctx, doc.ID); err != nil {
			log.Errorf("[Pipeline] 批量向量化失败, documentID: %s, err: %v", doc.ID, err)
			result.Failed[doc.ID] = err.Error()
			continue
		}
		result.Succeeded = append(result.Succeeded, doc.ID)
	}
	log.Infof("[Pipeline] 批量向量化完成, 成功 %d 个, 失败 %d 个", len(result.Succeeded), len(result.Failed))
	return result, nil
}

// SweepStuck 将长时间停留在中间状态的文档标记为失败。
// 状态更新带条件判断,已经推进到终态的文档不会被覆盖。
func (p *Processor) SweepStuck(ctx context.Context) ([]string, error) {
	threshold := time.Duration(p.ragCfg.StuckThresholdOrDefault()) * time.Second
	cutoff := time.Now().Add(-threshold)
	inFlight := []string{model.StatusUploading, model.StatusExtracting, model.StatusEmbedding}

	docs, err := p.docRepo.FindStuck(inFlight, cutoff)
	if err != nil {
		return nil, fmt.Errorf("查询滞留文档失败: %w", err)
	}

	var marked []string
	for _, doc := range docs {
		msg := fmt.Sprintf("处理超时: 文档停留在 %s 状态超过 %s", doc.Status, threshold)
		ok, err := p.docRepo.UpdateStatusCAS(doc.ID, inFlight, map[string]interface{}{
			"status":        model.StatusError,
			"error_message": msg,
		})
		if err != nil {
			log.Errorf("[Pipeline] 标记滞留文档失败, documentID: %s, err: %v", doc.ID, err)
			continue
		}
		if ok {
			log.Warnf("[Pipeline] 文档处理超时, 已标记为失败, documentID: %s", doc.ID)
			marked = append(marked, doc.ID)
		}
	}
	return marked, nil
}

func (p *Processor) markError(documentID string, cause error) {
	ok, err := p.docRepo.UpdateStatusCAS(documentID,
		[]string{model.StatusUploading, model.StatusExtracting, model.StatusEmbedding},
		map[string]interface{}{
			"status":        model.StatusError,
			"error_message": cause.Error(),
		})
	if err != nil {
		log.Errorf("[Pipeline] 标记文档失败状态时出错, documentID: %s, err: %v", documentID, err)
		return
	}
	if !ok {
		log.Warnf("[Pipeline] 文档已处于终态, 不覆盖状态, documentID: %s", documentID)
	}
}
