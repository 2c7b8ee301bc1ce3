package meta_store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/internal/dao"
	"github.com/gogf/gf/v2/frame/g"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetaRecord 元数据表，(namespace, doc_id) 为联合主键
type MetaRecord struct {
	Namespace  string    `gorm:"primaryKey;type:varchar(128);column:namespace" json:"namespace"`
	DocID      string    `gorm:"primaryKey;type:varchar(64);column:doc_id" json:"doc_id"`
	Attributes string    `gorm:"type:text;column:attributes" json:"attributes"` // JSON 对象
	UpdateTime time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

// TableName 指定表名
func (MetaRecord) TableName() string {
	return "kb_meta"
}

// SQLStore 基于 GORM 的元数据存储（PostgreSQL / MySQL）
type SQLStore struct {
	db        *gorm.DB
	namespace string
}

// NewSQLStore 创建 SQL 元数据存储并自动迁移表结构
func NewSQLStore(ctx context.Context, db *gorm.DB, namespace string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "gorm db cannot be nil")
	}
	if namespace == "" {
		return nil, errors.New(errors.ErrInvalidParameter, "namespace cannot be empty")
	}
	if err := db.WithContext(ctx).AutoMigrate(&MetaRecord{}); err != nil {
		return nil, errors.Wrap(errors.ErrDatabaseInit, err, "failed to migrate kb_meta table")
	}
	g.Log().Infof(ctx, "SQL meta store ready, namespace: %s", namespace)
	return &SQLStore{db: db, namespace: namespace}, nil
}

func (s *SQLStore) Namespace() string { return s.namespace }

func (s *SQLStore) Close() error { return dao.CloseDB(s.db) }

func (s *SQLStore) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&MetaRecord{}).Where("namespace = ?", s.namespace)
}

// Set upsert，冲突时整条覆盖
func (s *SQLStore) Set(ctx context.Context, id string, attrs Attributes) error {
	raw, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}
	rec := &MetaRecord{
		Namespace:  s.namespace,
		DocID:      id,
		Attributes: raw,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
	if err != nil {
		return errors.Wrapf(errors.ErrMetaStore, err, "failed to set meta %s", id)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Attributes, error) {
	var rec MetaRecord
	err := s.scoped(ctx).Where("doc_id = ?", id).Take(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return Attributes{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrMetaStore, err, "failed to get meta %s", id)
	}
	return decodeAttributes(rec.Attributes)
}

func (s *SQLStore) MGet(ctx context.Context, ids []string) (map[string]Attributes, error) {
	out := make(map[string]Attributes, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var recs []MetaRecord
	if err := s.scoped(ctx).Where("doc_id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, errors.Wrapf(errors.ErrMetaStore, err, "failed to mget %d metas", len(ids))
	}
	for _, rec := range recs {
		attrs, err := decodeAttributes(rec.Attributes)
		if err != nil {
			return nil, err
		}
		out[rec.DocID] = attrs
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = Attributes{}
		}
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND doc_id = ?", s.namespace, id).
		Delete(&MetaRecord{}).Error
	if err != nil {
		return errors.Wrapf(errors.ErrMetaStore, err, "failed to delete meta %s", id)
	}
	return nil
}

func (s *SQLStore) AllIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.scoped(ctx).Pluck("doc_id", &ids).Error; err != nil {
		return nil, errors.Wrapf(errors.ErrMetaStore, err, "failed to list namespace %s", s.namespace)
	}
	return ids, nil
}

// PurgeNamespace 命名空间即表内分区，删除该分区的全部行
func (s *SQLStore) PurgeNamespace(ctx context.Context) error {
	result := s.db.WithContext(ctx).Where("namespace = ?", s.namespace).Delete(&MetaRecord{})
	if result.Error != nil {
		return errors.Wrapf(errors.ErrMetaStore, result.Error, "failed to purge namespace %s", s.namespace)
	}
	g.Log().Infof(ctx, "Purged namespace '%s' (%d records)", s.namespace, result.RowsAffected)
	return nil
}
