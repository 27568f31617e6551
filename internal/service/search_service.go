// Package service 实现了业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/pkg/embedding"
	"docqa-go/pkg/log"
)

// 检索候选数下限。调用方要求的 topK 小于该值时仍取这么多候选,
// 让上下文打包阶段有足够的挑选余地。
const minCandidates = 8

// QueryIndex 是检索服务所需的向量索引查询能力。
type QueryIndex interface {
	Query(ctx context.Context, vector []float32, topK int, filter *model.SearchFilter) ([]model.SearchMatch, error)
}

// RetrievalResult 是一次带上下文打包的检索结果。
type RetrievalResult struct {
	// GatePassed 为 false 时表示最高分未过置信度门限,ContextBlock 与 Sources 为空。
	GatePassed   bool
	ContextBlock string
	Sources      []model.ChatSource
}

// SearchService 定义了文档检索的操作接口。
type SearchService interface {
	// Search 执行纯语义检索,返回带摘要片段的命中列表。
	Search(ctx context.Context, query string, topK int, filter *model.SearchFilter) ([]model.SearchResultDTO, error)
	// Retrieve 为问答生成准备上下文:检索、置信度门限判定和上下文打包。
	Retrieve(ctx context.Context, query string, topK int, filter *model.SearchFilter) (*RetrievalResult, error)
}

type searchService struct {
	embedder embedding.Client
	index    QueryIndex
	ragCfg   config.RAGConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embedder embedding.Client, index QueryIndex, ragCfg config.RAGConfig) SearchService {
	return &searchService{embedder: embedder, index: index, ragCfg: ragCfg}
}

func (s *searchService) Search(ctx context.Context, query string, topK int, filter *model.SearchFilter) ([]model.SearchResultDTO, error) {
	matches, err := s.query(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}

	radius := s.ragCfg.SnippetRadiusOrDefault()
	terms := queryTerms(query)
	results := make([]model.SearchResultDTO, len(matches))
	for i, m := range matches {
		results[i] = model.SearchResultDTO{
			DocumentID: m.DocumentID,
			Filename:   m.Filename,
			FileType:   m.FileType,
			ChunkIndex: m.ChunkIndex,
			Snippet:    extractSnippet(m.Content, terms, radius),
			Score:      m.Score,
		}
	}
	return results, nil
}

func (s *searchService) Retrieve(ctx context.Context, query string, topK int, filter *model.SearchFilter) (*RetrievalResult, error) {
	matches, err := s.query(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}

	minScore := s.ragCfg.MinScoreOrDefault()
	if len(matches) == 0 || matches[0].Score < minScore {
		log.Infof("[SearchService] 置信度门限未通过, query: %q, 命中数: %d", query, len(matches))
		return &RetrievalResult{GatePassed: false}, nil
	}

	contextBlock, sources := s.packContext(query, matches)
	return &RetrievalResult{
		GatePassed:   true,
		ContextBlock: contextBlock,
		Sources:      sources,
	}, nil
}

func (s *searchService) query(ctx context.Context, query string, topK int, filter *model.SearchFilter) ([]model.SearchMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("查询内容不能为空")
	}
	if topK <= 0 {
		topK = 5
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	candidates := topK
	if candidates < minCandidates {
		candidates = minCandidates
	}
	matches, err := s.index.Query(ctx, vector, candidates, filter)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	log.Infof("[SearchService] 检索完成, query: %q, 候选数: %d, 命中数: %d", query, candidates, len(matches))
	return matches, nil
}

// packContext 将命中分块打包为提示词上下文。
// 每条引用占一行,格式为 "[n] <文件名> (chunk <i>): <片段>";
// 按相关度从高到低装入,超出字符预算即停止,首条命中始终保留。
func (s *searchService) packContext(query string, matches []model.SearchMatch) (string, []model.ChatSource) {
	budget := s.ragCfg.ContextBudgetOrDefault()
	radius := s.ragCfg.SnippetRadiusOrDefault()
	terms := queryTerms(query)

	var b strings.Builder
	var sources []model.ChatSource
	used := 0
	for _, m := range matches {
		snippet := extractSnippet(m.Content, terms, radius)
		line := fmt.Sprintf("[%d] %s (chunk %d): %s", len(sources)+1, m.Filename, m.ChunkIndex, snippet)
		cost := utf8.RuneCountInString(line) + 1
		if len(sources) > 0 && used+cost > budget {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		used += cost
		sources = append(sources, model.ChatSource{
			DocumentID:    m.DocumentID,
			Filename:      m.Filename,
			ChunkIndex:    m.ChunkIndex,
			Snippet:       snippet,
			Score:         m.Score,
			CitationIndex: len(sources) + 1,
		})
	}
	return b.String(), sources
}

// queryTerms 取查询的前若干个小写词条用于片段定位。
func queryTerms(query string) []string {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) > 5 {
		terms = terms[:5]
	}
	return terms
}

// extractSnippet 围绕查询词条的首次出现截取片段。
// 命中位置前后各取 radius 个字符,截断的一侧加省略号;
// 没有词条命中时退化为取开头 2*radius 个字符。
func extractSnippet(content string, terms []string, radius int) string {
	runes := []rune(content)
	if len(runes) <= 2*radius {
		return content
	}

	center := -1
	lower := strings.ToLower(content)
	for _, term := range terms {
		if idx := strings.Index(lower, term); idx >= 0 {
			pos := utf8.RuneCountInString(lower[:idx])
			if center == -1 || pos < center {
				center = pos
			}
		}
	}

	if center == -1 {
		return string(runes[:2*radius]) + "..."
	}

	start := center - radius
	if start < 0 {
		start = 0
	}
	end := center + radius
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}
