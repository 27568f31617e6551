package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearchService struct {
	result *RetrievalResult
}

func (s *fakeSearchService) Search(ctx context.Context, query string, topK int, filter *model.SearchFilter) ([]model.SearchResultDTO, error) {
	return nil, nil
}

func (s *fakeSearchService) Retrieve(ctx context.Context, query string, topK int, filter *model.SearchFilter) (*RetrievalResult, error) {
	return s.result, nil
}

type fakeLLM struct {
	calls    int
	messages []llm.Message
	reply    string
}

func (l *fakeLLM) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	l.calls++
	l.messages = messages
	return l.reply, nil
}

func (l *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	l.calls++
	l.messages = messages
	for _, part := range strings.SplitAfter(l.reply, " ") {
		if err := writer.WriteMessage(1, []byte(part)); err != nil {
			return err
		}
	}
	return nil
}

type fakeConvRepo struct {
	history map[string][]model.ChatMessage
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{history: make(map[string][]model.ChatMessage)}
}

func (r *fakeConvRepo) GetOrCreateConversationID(ctx context.Context, userID uint) (string, error) {
	return fmt.Sprintf("conv-%d", userID), nil
}

func (r *fakeConvRepo) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	return r.history[conversationID], nil
}

func (r *fakeConvRepo) UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error {
	if len(messages) > 20 {
		messages = messages[len(messages)-20:]
	}
	r.history[conversationID] = messages
	return nil
}

type frameRecorder struct {
	frames []string
}

func (w *frameRecorder) WriteMessage(messageType int, data []byte) error {
	w.frames = append(w.frames, string(data))
	return nil
}

func passedRetrieval() *RetrievalResult {
	return &RetrievalResult{
		GatePassed:   true,
		ContextBlock: "[1] doc1.txt (chunk 0): redis is an in-memory data store",
		Sources: []model.ChatSource{
			{DocumentID: "doc1", Filename: "doc1.txt", ChunkIndex: 0, Score: 0.9, CitationIndex: 1},
		},
	}
}

func TestAnswerGateSkipsGeneration(t *testing.T) {
	search := &fakeSearchService{result: &RetrievalResult{GatePassed: false}}
	llmClient := &fakeLLM{reply: "should never be used"}
	convRepo := newFakeConvRepo()
	svc := NewChatService(search, llmClient, convRepo, config.RAGConfig{})

	answer, err := svc.Answer(context.Background(), 1, ChatRequest{Question: "无关问题"})
	require.NoError(t, err)
	assert.Equal(t, NoAnswerReply, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, llmClient.calls, "门限未通过时不应调用 LLM")

	// 拒答也计入会话历史
	history := convRepo.history["conv-1"]
	require.Len(t, history, 2)
	assert.Equal(t, NoAnswerReply, history[1].Content)
}

func TestAnswerBuildsPromptWithContext(t *testing.T) {
	search := &fakeSearchService{result: passedRetrieval()}
	llmClient := &fakeLLM{reply: "Redis 是一个内存数据库 [1]"}
	convRepo := newFakeConvRepo()
	svc := NewChatService(search, llmClient, convRepo, config.RAGConfig{})

	answer, err := svc.Answer(context.Background(), 1, ChatRequest{Question: "什么是 redis?"})
	require.NoError(t, err)
	assert.Equal(t, "Redis 是一个内存数据库 [1]", answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, 1, answer.Sources[0].CitationIndex)

	require.NotEmpty(t, llmClient.messages)
	system := llmClient.messages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "redis is an in-memory data store")
	assert.Contains(t, system.Content, NoAnswerReply)
	last := llmClient.messages[len(llmClient.messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "什么是 redis?", last.Content)
}

func TestAnswerTrimsHistoryToRecentTurns(t *testing.T) {
	convRepo := newFakeConvRepo()
	for i := 0; i < 10; i++ {
		convRepo.history["conv-1"] = append(convRepo.history["conv-1"],
			model.ChatMessage{Role: "user", Content: fmt.Sprintf("q%d", i), Timestamp: time.Now()},
			model.ChatMessage{Role: "assistant", Content: fmt.Sprintf("a%d", i), Timestamp: time.Now()},
		)
	}
	search := &fakeSearchService{result: passedRetrieval()}
	llmClient := &fakeLLM{reply: "answer"}
	svc := NewChatService(search, llmClient, convRepo, config.RAGConfig{})

	_, err := svc.Answer(context.Background(), 1, ChatRequest{Question: "current"})
	require.NoError(t, err)

	// system + 最近 4 轮(8 条) + 当前问题
	require.Len(t, llmClient.messages, 10)
	assert.Equal(t, "q6", llmClient.messages[1].Content)
	assert.Equal(t, "a9", llmClient.messages[8].Content)
}

func TestStreamAnswerAppendsSourcesFrame(t *testing.T) {
	search := &fakeSearchService{result: passedRetrieval()}
	llmClient := &fakeLLM{reply: "streamed answer [1]"}
	convRepo := newFakeConvRepo()
	svc := NewChatService(search, llmClient, convRepo, config.RAGConfig{})

	recorder := &frameRecorder{}
	err := svc.StreamAnswer(context.Background(), 1, ChatRequest{Question: "问题"}, recorder)
	require.NoError(t, err)
	require.NotEmpty(t, recorder.frames)

	// 末帧是来源信息,之前的帧拼起来是完整答案
	var payload struct {
		Type    string             `json:"type"`
		Sources []model.ChatSource `json:"sources"`
	}
	lastFrame := recorder.frames[len(recorder.frames)-1]
	require.NoError(t, json.Unmarshal([]byte(lastFrame), &payload))
	assert.Equal(t, "sources", payload.Type)
	require.Len(t, payload.Sources, 1)

	assert.Equal(t, "streamed answer [1]", strings.Join(recorder.frames[:len(recorder.frames)-1], ""))

	history := convRepo.history["conv-1"]
	require.Len(t, history, 2)
	assert.Equal(t, "streamed answer [1]", history[1].Content)
}

func TestStreamAnswerGateWritesRefusal(t *testing.T) {
	search := &fakeSearchService{result: &RetrievalResult{GatePassed: false}}
	llmClient := &fakeLLM{reply: "unused"}
	svc := NewChatService(search, llmClient, newFakeConvRepo(), config.RAGConfig{})

	recorder := &frameRecorder{}
	err := svc.StreamAnswer(context.Background(), 1, ChatRequest{Question: "问题"}, recorder)
	require.NoError(t, err)
	require.Len(t, recorder.frames, 2)
	assert.Equal(t, NoAnswerReply, recorder.frames[0])
	assert.Zero(t, llmClient.calls)
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	svc := NewChatService(&fakeSearchService{}, &fakeLLM{}, newFakeConvRepo(), config.RAGConfig{})
	_, err := svc.Answer(context.Background(), 1, ChatRequest{Question: ""})
	assert.Error(t, err)
}
