package store

import (
	"context"
	"fmt"
	"time"

	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/types"

	"gorm.io/gorm"
)

// Lineage 记录关联指针列
type Lineage string

const (
	LineageAnalysis   Lineage = "analysis_record_id"
	LineagePredict    Lineage = "predict_record_id"
	LineageRegenerate Lineage = "regenerate_record_id"
)

func (l Lineage) valid() bool {
	switch l {
	case LineageAnalysis, LineagePredict, LineageRegenerate:
		return true
	}
	return false
}

// ChatStore 会话与问答记录存储
type ChatStore struct {
	db *gorm.DB
}

// NewChatStore 创建会话存储
func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

// CreateChat 创建会话
func (s *ChatStore) CreateChat(ctx context.Context, chat *model.Chat) error {
	if chat.CreateTime == nil {
		now := time.Now()
		chat.CreateTime = &now
	}
	return s.db.WithContext(ctx).Create(chat).Error
}

// GetChat 获取会话
func (s *ChatStore) GetChat(ctx context.Context, oid, id int64) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.WithContext(ctx).Where("id = ? AND oid = ?", id, oid).First(&chat).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("chat %d", id))
	}
	return &chat, nil
}

// ListChats 用户的会话列表，最新在前
func (s *ChatStore) ListChats(ctx context.Context, oid, userID int64) ([]*model.Chat, error) {
	var list []*model.Chat
	err := s.db.WithContext(ctx).
		Where("oid = ? AND create_by = ?", oid, userID).
		Order("create_time DESC, id DESC").
		Find(&list).Error
	return list, err
}

// RenameChat 修改会话标题
func (s *ChatStore) RenameChat(ctx context.Context, oid, id int64, brief string) error {
	res := s.db.WithContext(ctx).Model(&model.Chat{}).
		Where("id = ? AND oid = ?", id, oid).
		Update("brief", brief)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, fmt.Sprintf("chat %d", id))
	}
	return nil
}

// DeleteChat 删除会话及其全部记录
func (s *ChatStore) DeleteChat(ctx context.Context, oid, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND oid = ?", id, oid).Delete(&model.Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(gorm.ErrRecordNotFound, fmt.Sprintf("chat %d", id))
		}
		return tx.Where("chat_id = ?", id).Delete(&model.ChatRecord{}).Error
	})
}

// UpdateChatRecommend 保存会话级推荐问题
func (s *ChatStore) UpdateChatRecommend(ctx context.Context, chatID int64, questions string) error {
	return s.db.WithContext(ctx).Model(&model.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]any{"recommended_question": questions, "recommended_generate": true}).Error
}

// CreateRecord 创建问答记录
func (s *ChatStore) CreateRecord(ctx context.Context, record *model.ChatRecord) error {
	if record.CreateTime == nil {
		now := time.Now()
		record.CreateTime = &now
	}
	return s.db.WithContext(ctx).Create(record).Error
}

// GetRecord 获取问答记录
func (s *ChatStore) GetRecord(ctx context.Context, id int64) (*model.ChatRecord, error) {
	var record model.ChatRecord
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("record %d", id))
	}
	return &record, nil
}

// ListRecords 会话下的记录，按创建顺序
func (s *ChatStore) ListRecords(ctx context.Context, chatID int64) ([]*model.ChatRecord, error) {
	var list []*model.ChatRecord
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id ASC").Find(&list).Error
	return list, err
}

// LatestRecord 会话最新一条记录
func (s *ChatStore) LatestRecord(ctx context.Context, chatID int64) (*model.ChatRecord, error) {
	var record model.ChatRecord
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id DESC").First(&record).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("chat %d has no record", chatID))
	}
	return &record, nil
}

// LatestChartRecord 会话最新一条已生成图表的记录
func (s *ChatStore) LatestChartRecord(ctx context.Context, chatID int64) (*model.ChatRecord, error) {
	var record model.ChatRecord
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND chart IS NOT NULL AND chart <> ''", chatID).
		Order("id DESC").First(&record).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("chat %d has no chart record", chatID))
	}
	return &record, nil
}

// SaveStage 单行更新记录的阶段字段
func (s *ChatStore) SaveStage(ctx context.Context, recordID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&model.ChatRecord{}).Where("id = ?", recordID).Updates(fields).Error
}

// Finish 标记记录结束，errMsg 非空时记录错误
func (s *ChatStore) Finish(ctx context.Context, recordID int64, errMsg string) error {
	now := time.Now()
	fields := map[string]any{"finish": true, "finish_time": &now}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	return s.db.WithContext(ctx).Model(&model.ChatRecord{}).Where("id = ?", recordID).Updates(fields).Error
}

// SetLineage 设置关联指针，只在指针为空时生效，已设置时返回 ErrLineage
func (s *ChatStore) SetLineage(ctx context.Context, recordID int64, column Lineage, target int64) error {
	if !column.valid() {
		return types.NewAppErrorWithDetails(types.ErrCodeLineage, "记录关联关系无效", string(column))
	}
	res := s.db.WithContext(ctx).Model(&model.ChatRecord{}).
		Where("id = ?", recordID).
		Where(string(column) + " IS NULL").
		Update(string(column), target)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := s.GetRecord(ctx, recordID); err != nil {
		return err
	}
	return types.NewAppErrorWithDetails(types.ErrCodeLineage, "记录关联关系已存在",
		fmt.Sprintf("record %d %s already set", recordID, column))
}

// CreateLog 写入模型调用日志
func (s *ChatStore) CreateLog(ctx context.Context, log *model.ChatLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// ListLogs 记录的模型调用日志
func (s *ChatStore) ListLogs(ctx context.Context, recordID int64) ([]*model.ChatLog, error) {
	var list []*model.ChatLog
	err := s.db.WithContext(ctx).Where("pid = ?", recordID).Order("id ASC").Find(&list).Error
	return list, err
}
