// Package storage 提供了与对象存储服务（MinIO）交互的功能，
// 用于保存与读取页面文本快照。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"pagepal-go/internal/config"
	"pagepal-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := MinioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
}

// SnapshotObjectName 返回某个来源哈希对应的快照对象键。
func SnapshotObjectName(sourceHash string) string {
	return fmt.Sprintf("pages/%s.txt", sourceHash)
}

// PutPageSnapshot 将抓取到的页面正文以纯文本形式写入对象存储。
func PutPageSnapshot(ctx context.Context, bucketName, sourceHash, text string) error {
	if MinioClient == nil {
		return errors.New("MinIO 客户端未初始化")
	}
	objectName := SnapshotObjectName(sourceHash)
	reader := strings.NewReader(text)
	_, err := MinioClient.PutObject(ctx, bucketName, objectName, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("写入页面快照失败: %w", err)
	}
	return nil
}

// GetPageSnapshot 读取某个来源的页面正文快照。
func GetPageSnapshot(ctx context.Context, bucketName, sourceHash string) (string, error) {
	if MinioClient == nil {
		return "", errors.New("MinIO 客户端未初始化")
	}
	objectName := SnapshotObjectName(sourceHash)
	object, err := MinioClient.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("读取页面快照失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, object); err != nil {
		return "", fmt.Errorf("读取页面快照流失败: %w", err)
	}
	return buf.String(), nil
}
