// Package redis 基于 Redis 的快照存储
// 每个用户一个 String 键，值为快照 JSON
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/errorx"
)

const snapshotKeyPrefix = "chat_snapshot_"

// Options 连接参数
type Options struct {
	Host     string
	Port     int
	Password string
	Db       int
	// Expiration 快照过期时间，0 表示不过期
	Expiration time.Duration
}

// SnapshotStore Redis 快照存储
type SnapshotStore struct {
	client     *redis.Client
	expiration time.Duration
}

// Open 创建客户端并 PING 一次
func Open(ctx context.Context, opts Options) (*SnapshotStore, error) {
	addr := opts.Host + ":" + strconv.Itoa(opts.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.Db,
		PoolSize:     4,
		MinIdleConns: 1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis ping %s", addr)
	}
	zap.L().Info("redis snapshot store ready", zap.String("addr", addr))
	return NewSnapshotStore(client, opts.Expiration), nil
}

// NewSnapshotStore 使用已有客户端
func NewSnapshotStore(client *redis.Client, expiration time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, expiration: expiration}
}

func snapshotKey(userId string) string {
	return snapshotKeyPrefix + userId
}

// Save 覆盖保存快照
func (s *SnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	if snap.UserId == "" {
		return errorx.New(errorx.CodeInvalidParam, "snapshot without user id")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "encode snapshot for %s", snap.UserId)
	}
	key := snapshotKey(snap.UserId)
	if err := s.client.Set(ctx, key, data, s.expiration).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis set key %s", key)
	}
	return nil
}

// Load 读取快照，键不存在时返回 CodeNotFound
func (s *SnapshotStore) Load(ctx context.Context, userId string) (*model.Snapshot, error) {
	key := snapshotKey(userId)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errorx.Newf(errorx.CodeNotFound, "no snapshot for %s", userId)
		}
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis get key %s", key)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "decode snapshot %s", key)
	}
	return &snap, nil
}

// Delete 删除快照，使用 UNLINK 非阻塞删除
func (s *SnapshotStore) Delete(ctx context.Context, userId string) error {
	key := snapshotKey(userId)
	if err := s.client.Unlink(ctx, key).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis unlink key %s", key)
	}
	return nil
}

// Close 关闭客户端
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
