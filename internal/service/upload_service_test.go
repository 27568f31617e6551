package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"testing"
	"time"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[string]*model.Document)}
}

func (r *fakeDocRepo) Create(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *fakeDocRepo) FindByID(id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocRepo) FindAll() ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, d := range r.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (r *fakeDocRepo) FindByStatus(status string) ([]model.Document, error) {
	return nil, nil
}

func (r *fakeDocRepo) FindStuck(statuses []string, uploadedBefore time.Time) ([]model.Document, error) {
	return nil, nil
}

func (r *fakeDocRepo) UpdateFields(id string, fields map[string]interface{}) error {
	return nil
}

func (r *fakeDocRepo) UpdateStatusCAS(id string, fromStatuses []string, fields map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range fromStatuses {
		if doc.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	if v, ok := fields["status"]; ok {
		doc.Status = v.(string)
	}
	if v, ok := fields["error_message"]; ok {
		doc.ErrorMessage = v.(string)
	}
	return true, nil
}

func (r *fakeDocRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) PutDocument(ctx context.Context, documentID string, r io.Reader, size int64) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[documentID] = data
	return nil
}

func (s *fakeObjectStore) RemoveDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, documentID)
	return nil
}

// buildFileHeaders 通过真实的 multipart 解析构造可 Open 的文件头。
func buildFileHeaders(t *testing.T, files map[string]string) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(64 << 20)
	require.NoError(t, err)
	return form.File["files"]
}

func TestUploadDocumentsSuccess(t *testing.T) {
	repo := newFakeDocRepo()
	store := newFakeObjectStore()
	var produced []tasks.DocumentProcessingTask
	produce := func(task tasks.DocumentProcessingTask) error {
		produced = append(produced, task)
		return nil
	}
	svc := NewUploadService(repo, store, produce, config.UploadConfig{})

	headers := buildFileHeaders(t, map[string]string{"report.txt": "file content"})
	results := svc.UploadDocuments(context.Background(), 7, headers)

	require.Len(t, results, 1)
	require.True(t, results[0].Success, results[0].Error)
	require.NotEmpty(t, results[0].DocumentID)

	doc, err := repo.FindByID(results[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtracting, doc.Status)
	assert.Equal(t, "report.txt", doc.Filename)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, uint(7), doc.UserID)

	assert.Equal(t, "file content", string(store.objects[doc.ID]))
	require.Len(t, produced, 1)
	assert.Equal(t, doc.ID, produced[0].DocumentID)
	assert.Equal(t, uint(7), produced[0].UserID)
}

func TestUploadDocumentsRejectsUnsupportedType(t *testing.T) {
	svc := NewUploadService(newFakeDocRepo(), newFakeObjectStore(), func(tasks.DocumentProcessingTask) error { return nil }, config.UploadConfig{})

	headers := buildFileHeaders(t, map[string]string{"malware.exe": "bits"})
	results := svc.UploadDocuments(context.Background(), 1, headers)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "不支持的文件类型")
	assert.Empty(t, results[0].DocumentID)
}

func TestUploadDocumentsRejectsOversizeFile(t *testing.T) {
	svc := NewUploadService(newFakeDocRepo(), newFakeObjectStore(), func(tasks.DocumentProcessingTask) error { return nil }, config.UploadConfig{MaxFileSizeMB: 1})

	big := strings.Repeat("a", 2<<20) // 2MB
	headers := buildFileHeaders(t, map[string]string{"big.txt": big})
	results := svc.UploadDocuments(context.Background(), 1, headers)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "文件大小超过限制")
}

func TestUploadDocumentsIsolatesFailures(t *testing.T) {
	repo := newFakeDocRepo()
	svc := NewUploadService(repo, newFakeObjectStore(), func(tasks.DocumentProcessingTask) error { return nil }, config.UploadConfig{})

	headers := buildFileHeaders(t, map[string]string{
		"first.txt":  "fine",
		"bad.bin":    "nope",
		"second.pdf": "also fine",
	})
	results := svc.UploadDocuments(context.Background(), 1, headers)
	require.Len(t, results, 3)

	byName := map[string]UploadResult{}
	for _, r := range results {
		byName[r.Filename] = r
	}
	assert.True(t, byName["first.txt"].Success)
	assert.True(t, byName["second.pdf"].Success, "坏文件之后的文件照常处理")
	assert.False(t, byName["bad.bin"].Success)
	assert.NotEmpty(t, byName["bad.bin"].Error)

	// 两个成功文件都落库,失败文件没有任何记录
	docs, _ := repo.FindAll()
	assert.Len(t, docs, 2)
}

func TestUploadDocumentsProduceFailureMarksError(t *testing.T) {
	repo := newFakeDocRepo()
	produce := func(tasks.DocumentProcessingTask) error { return fmt.Errorf("broker unavailable") }
	svc := NewUploadService(repo, newFakeObjectStore(), produce, config.UploadConfig{})

	headers := buildFileHeaders(t, map[string]string{"doc.txt": "content"})
	results := svc.UploadDocuments(context.Background(), 1, headers)

	require.Len(t, results, 1)
	require.False(t, results[0].Success)

	docs, _ := repo.FindAll()
	require.Len(t, docs, 1)
	assert.Equal(t, model.StatusError, docs[0].Status)
	assert.Contains(t, docs[0].ErrorMessage, "broker unavailable")
}
