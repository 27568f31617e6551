// Package es 提供了与 Elasticsearch 交互的客户端功能。
// 向量记录以确定性 ID 写入，索引操作因此天然幂等：重建某文档的向量会覆盖旧记录而不是追加。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Index 封装了向量索引的读写操作。
type Index struct {
	client    *elasticsearch.Client
	indexName string
}

// InitES 初始化 Elasticsearch 客户端并确保向量索引存在。
// dims 为向量维度，必须与 Embedding 模型的输出一致。
func InitES(esCfg config.ElasticsearchConfig, dims int) (*Index, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &Index{client: client, indexName: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则按向量检索所需的 mapping 创建它。
func (x *Index) createIndexIfNotExists(dims int) error {
	res, err := x.client.Indices.Exists([]string{x.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", x.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", x.indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"filename": { "type": "keyword" },
				"file_type": { "type": "keyword" },
				"upload_date": { "type": "date" },
				"chunk_index": { "type": "integer" },
				"content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, dims)

	res, err = x.client.Indices.Create(
		x.indexName,
		x.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", x.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", x.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", x.indexName)
	return nil
}

// UpsertChunks 将一批向量记录写入索引。
// DocumentID 取确定性的 VectorID，重复写入覆盖同一条记录。
func (x *Index) UpsertChunks(ctx context.Context, docs []model.EsDocument) error {
	for _, doc := range docs {
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("序列化向量记录失败 (vector_id=%s): %w", doc.VectorID, err)
		}

		req := esapi.IndexRequest{
			Index:      x.indexName,
			DocumentID: doc.VectorID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, x.client)
		if err != nil {
			return fmt.Errorf("写入向量记录失败 (vector_id=%s): %w", doc.VectorID, err)
		}
		if res.IsError() {
			msg := res.String()
			res.Body.Close()
			log.Errorf("索引向量记录到 Elasticsearch 出错: %s", msg)
			return fmt.Errorf("failed to index vector record %s", doc.VectorID)
		}
		res.Body.Close()
	}
	return nil
}

// Query 对索引执行 kNN 最近邻检索，按得分降序返回至多 topK 条命中。
// filter 为 $in 语义的过滤条件：字段值属于给定集合才命中，空集合不限制。
func (x *Index) Query(ctx context.Context, vector []float32, topK int, filter *model.SearchFilter) ([]model.SearchMatch, error) {
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vector,
		"k":              topK,
		"num_candidates": topK * 10,
	}
	if clause := buildFilterClause(filter); clause != nil {
		knn["filter"] = clause
	}
	esQuery := map[string]interface{}{
		"knn":  knn,
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.indexName),
		x.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 返回错误, status: %s", res.Status())
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsDocument `json:"_source"`
				Score  float64          `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	matches := make([]model.SearchMatch, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		matches = append(matches, model.SearchMatch{EsDocument: hit.Source, Score: hit.Score})
	}
	return matches, nil
}

// DeleteByDocumentID 删除某文档的全部向量记录，用于文档删除时保持两边一致。
func (x *Index) DeleteByDocumentID(ctx context.Context, documentID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"document_id": documentID,
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode delete query: %w", err)
	}

	res, err := x.client.DeleteByQuery([]string{x.indexName}, &buf,
		x.client.DeleteByQuery.WithContext(ctx),
		x.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete by query failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("删除文档向量时 Elasticsearch 返回错误: %s", res.String())
		return fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}
	return nil
}

// buildFilterClause 将过滤条件转换为 bool/terms 子句，条件为空时返回 nil。
func buildFilterClause(filter *model.SearchFilter) interface{} {
	if filter.IsEmpty() {
		return nil
	}
	var terms []map[string]interface{}
	if len(filter.DocumentIDs) > 0 {
		terms = append(terms, map[string]interface{}{
			"terms": map[string]interface{}{"document_id": filter.DocumentIDs},
		})
	}
	if len(filter.FileTypes) > 0 {
		terms = append(terms, map[string]interface{}{
			"terms": map[string]interface{}{"file_type": filter.FileTypes},
		})
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": terms,
		},
	}
}
