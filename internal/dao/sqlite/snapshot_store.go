// Package sqlite 基于 gorm + 纯 Go sqlite 驱动的本地快照存储
package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/errorx"
)

// SnapshotStore sqlite 快照存储
type SnapshotStore struct {
	db   *gorm.DB
	path string
}

// Open 打开（必要时创建）数据库并迁移表结构
// path 为 ":memory:" 时使用内存数据库
func Open(path string) (*SnapshotStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeDBError, "open sqlite %s", path)
	}
	// 内存数据库每个连接各自独立，只保留一个连接
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&model.ConversationRecord{}, &model.NotificationRecord{}); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDBError, "migrate snapshot tables")
	}
	zap.L().Info("sqlite snapshot store ready", zap.String("path", path))
	return &SnapshotStore{db: db, path: path}, nil
}

// Save 覆盖保存某用户的快照
func (s *SnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	if snap.UserId == "" {
		return errorx.New(errorx.CodeInvalidParam, "snapshot without user id")
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	convs := make([]model.ConversationRecord, 0, len(snap.Conversations))
	for i, c := range snap.Conversations {
		payload, err := json.Marshal(c)
		if err != nil {
			return errorx.Wrapf(err, errorx.CodeDBError, "encode conversation %s", c.Id)
		}
		convs = append(convs, model.ConversationRecord{
			UserId:         snap.UserId,
			ConversationId: c.Id,
			Position:       i,
			Payload:        string(payload),
			SavedAt:        savedAt,
		})
	}
	notes := make([]model.NotificationRecord, 0, len(snap.Notifications))
	for i, n := range snap.Notifications {
		notes = append(notes, model.NotificationRecord{
			UserId:         snap.UserId,
			MessageId:      n.MessageId,
			ConversationId: n.ConversationId,
			Position:       i,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", snap.UserId).Delete(&model.ConversationRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", snap.UserId).Delete(&model.NotificationRecord{}).Error; err != nil {
			return err
		}
		if len(convs) > 0 {
			if err := tx.CreateInBatches(convs, 100).Error; err != nil {
				return err
			}
		}
		if len(notes) > 0 {
			if err := tx.CreateInBatches(notes, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeDBError, "save snapshot for %s", snap.UserId)
	}
	return nil
}

// Load 读取快照，不存在时返回 CodeNotFound
func (s *SnapshotStore) Load(ctx context.Context, userId string) (*model.Snapshot, error) {
	var convs []model.ConversationRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userId).Order("position").Find(&convs).Error; err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeDBError, "load conversations for %s", userId)
	}
	var notes []model.NotificationRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userId).Order("position").Find(&notes).Error; err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeDBError, "load notifications for %s", userId)
	}
	if len(convs) == 0 && len(notes) == 0 {
		return nil, errorx.Newf(errorx.CodeNotFound, "no snapshot for %s", userId)
	}

	snap := &model.Snapshot{UserId: userId}
	for _, r := range convs {
		var c model.Conversation
		if err := json.Unmarshal([]byte(r.Payload), &c); err != nil {
			zap.L().Warn("skip corrupt conversation row", zap.String("conversation_id", r.ConversationId), zap.Error(err))
			continue
		}
		snap.Conversations = append(snap.Conversations, c)
		if r.SavedAt.After(snap.SavedAt) {
			snap.SavedAt = r.SavedAt
		}
	}
	for _, r := range notes {
		snap.Notifications = append(snap.Notifications, model.Notification{
			MessageId:      r.MessageId,
			ConversationId: r.ConversationId,
		})
	}
	return snap, nil
}

// Delete 删除某用户的快照
func (s *SnapshotStore) Delete(ctx context.Context, userId string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userId).Delete(&model.ConversationRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userId).Delete(&model.NotificationRecord{}).Error
	})
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeDBError, "delete snapshot for %s", userId)
	}
	return nil
}

// Close 关闭底层连接
func (s *SnapshotStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
