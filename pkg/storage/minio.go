// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"io"

	"docqa-go/internal/config"
	"docqa-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store 封装了原始文件的对象存储操作。
type Store struct {
	client     *minio.Client
	bucketName string
}

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) *Store {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}

	return &Store{client: client, bucketName: cfg.BucketName}
}

// objectName 返回文档原始文件的对象路径。
func objectName(documentID string) string {
	return fmt.Sprintf("documents/%s", documentID)
}

// PutDocument 保存文档的原始文件内容。
func (s *Store) PutDocument(ctx context.Context, documentID string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucketName, objectName(documentID), r, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("上传文件到 MinIO 失败: %w", err)
	}
	return nil
}

// GetDocument 读取文档的原始文件内容，调用方负责关闭返回的 ReadCloser。
func (s *Store) GetDocument(ctx context.Context, documentID string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucketName, objectName(documentID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	return object, nil
}

// RemoveDocument 删除文档的原始文件。
func (s *Store) RemoveDocument(ctx context.Context, documentID string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, objectName(documentID), minio.RemoveObjectOptions{})
	if err != nil {
		log.Errorf("从 MinIO 删除文件失败, documentID: %s, error: %v", documentID, err)
		return err
	}
	return nil
}
