package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/repository"
	"docqa-go/pkg/llm"
	"docqa-go/pkg/log"

	"github.com/gorilla/websocket"
)

// NoAnswerReply 是置信度门限未通过时返回的固定拒答语。
const NoAnswerReply = "抱歉，知识库中没有找到与您问题相关的内容。"

const defaultTemperature = 0.2

const systemPromptTemplate = `你是一个基于知识库的问答助手。请严格根据下面提供的参考资料回答用户的问题:
1. 只使用参考资料中的信息作答,不要编造内容;
2. 引用某条资料时,在对应句子后标注其编号,如 [1]、[2];
3. 如果参考资料不足以回答问题,请直接回复:"%s"

参考资料:
%s`

// ChatRequest 是一次问答请求的参数。
type ChatRequest struct {
	Question string              `json:"question"`
	TopK     int                 `json:"topK"`
	Filter   *model.SearchFilter `json:"filter"`
}

// ChatService 定义了基于知识库的问答操作接口。
type ChatService interface {
	// Answer 以阻塞方式完成一次问答,返回答案与引用来源。
	Answer(ctx context.Context, userID uint, req ChatRequest) (*model.ChatAnswer, error)
	// StreamAnswer 以流式方式完成一次问答,生成分块写入 writer,结束后追加来源信息。
	StreamAnswer(ctx context.Context, userID uint, req ChatRequest, writer llm.MessageWriter) error
}

type chatService struct {
	searchService SearchService
	llmClient     llm.Client
	convRepo      repository.ConversationRepository
	ragCfg        config.RAGConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(searchService SearchService, llmClient llm.Client, convRepo repository.ConversationRepository, ragCfg config.RAGConfig) ChatService {
	return &chatService{
		searchService: searchService,
		llmClient:     llmClient,
		convRepo:      convRepo,
		ragCfg:        ragCfg,
	}
}

func (s *chatService) Answer(ctx context.Context, userID uint, req ChatRequest) (*model.ChatAnswer, error) {
	prep, err := s.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	// 门限未通过时跳过生成,直接返回拒答语
	if !prep.retrieval.GatePassed {
		s.saveHistory(ctx, prep.conversationID, prep.history, req.Question, NoAnswerReply)
		return &model.ChatAnswer{Answer: NoAnswerReply, Sources: []model.ChatSource{}}, nil
	}

	temperature := defaultTemperature
	answer, err := s.llmClient.Complete(ctx, prep.messages, &llm.GenerationParams{Temperature: &temperature})
	if err != nil {
		return nil, fmt.Errorf("生成回答失败: %w", err)
	}

	s.saveHistory(ctx, prep.conversationID, prep.history, req.Question, answer)
	return &model.ChatAnswer{Answer: answer, Sources: prep.retrieval.Sources}, nil
}

// streamCapture 在转发流式分块的同时累积完整答案,用于会话历史落库。
type streamCapture struct {
	writer llm.MessageWriter
	buf    []byte
}

func (w *streamCapture) WriteMessage(messageType int, data []byte) error {
	w.buf = append(w.buf, data...)
	return w.writer.WriteMessage(messageType, data)
}

func (s *chatService) StreamAnswer(ctx context.Context, userID uint, req ChatRequest, writer llm.MessageWriter) error {
	prep, err := s.prepare(ctx, userID, req)
	if err != nil {
		return err
	}

	if !prep.retrieval.GatePassed {
		if err := writer.WriteMessage(websocket.TextMessage, []byte(NoAnswerReply)); err != nil {
			return fmt.Errorf("写入拒答消息失败: %w", err)
		}
		s.saveHistory(ctx, prep.conversationID, prep.history, req.Question, NoAnswerReply)
		return s.writeSources(writer, []model.ChatSource{})
	}

	temperature := defaultTemperature
	capture := &streamCapture{writer: writer}
	if err := s.llmClient.StreamChatMessages(ctx, prep.messages, &llm.GenerationParams{Temperature: &temperature}, capture); err != nil {
		return fmt.Errorf("流式生成回答失败: %w", err)
	}

	s.saveHistory(ctx, prep.conversationID, prep.history, req.Question, string(capture.buf))
	return s.writeSources(writer, prep.retrieval.Sources)
}

// writeSources 在答案流结束后追加一帧 JSON 格式的来源信息。
func (s *chatService) writeSources(writer llm.MessageWriter, sources []model.ChatSource) error {
	payload, err := json.Marshal(map[string]interface{}{"type": "sources", "sources": sources})
	if err != nil {
		return fmt.Errorf("序列化来源信息失败: %w", err)
	}
	if err := writer.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("写入来源信息失败: %w", err)
	}
	return nil
}

type preparedChat struct {
	conversationID string
	history        []model.ChatMessage
	retrieval      *RetrievalResult
	messages       []llm.Message
}

// prepare 完成一次问答的公共前置步骤:会话定位、历史加载、检索与 prompt 组装。
func (s *chatService) prepare(ctx context.Context, userID uint, req ChatRequest) (*preparedChat, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("问题内容不能为空")
	}

	conversationID, err := s.convRepo.GetOrCreateConversationID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取会话失败: %w", err)
	}

	history, err := s.convRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		log.Warnf("[ChatService] 获取会话历史失败, 按空历史继续, conversationID: %s, err: %v", conversationID, err)
		history = []model.ChatMessage{}
	}

	retrieval, err := s.searchService.Retrieve(ctx, req.Question, req.TopK, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("检索失败: %w", err)
	}

	prep := &preparedChat{
		conversationID: conversationID,
		history:        history,
		retrieval:      retrieval,
	}
	if retrieval.GatePassed {
		prep.messages = s.buildMessages(history, retrieval.ContextBlock, req.Question)
	}
	return prep, nil
}

// buildMessages 组装发给 LLM 的消息序列:系统指令、最近几轮历史、当前问题。
func (s *chatService) buildMessages(history []model.ChatMessage, contextBlock, question string) []llm.Message {
	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, NoAnswerReply, contextBlock)},
	}

	maxHistory := s.ragCfg.HistoryTurnsOrDefault() * 2
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	messages = append(messages, llm.Message{Role: "user", Content: question})
	return messages
}

// saveHistory 将本轮问答追加到会话历史。历史落库失败只记日志,不影响答案返回。
func (s *chatService) saveHistory(ctx context.Context, conversationID string, history []model.ChatMessage, question, answer string) {
	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if err := s.convRepo.UpdateConversationHistory(ctx, conversationID, history); err != nil {
		log.Errorf("[ChatService] 保存会话历史失败, conversationID: %s, err: %v", conversationID, err)
	}
}
