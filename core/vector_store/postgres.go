package vector_store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Malowking/ragkb/core/common"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/pkg/schema"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorStore PostgreSQL + pgvector 向量库实现，一个 store 对应一张表
type PgvectorStore struct {
	pool   *pgxpool.Pool
	schema string
	table  string

	mu       sync.RWMutex
	embedder embedding.Embedder
	ready    bool
}

// NewPgvectorStore 创建 pgvector 向量存储实例
func NewPgvectorStore(pool *pgxpool.Pool, schemaName, table string) (*PgvectorStore, error) {
	if pool == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "postgres pool cannot be nil")
	}
	if schemaName == "" {
		schemaName = "public"
	}
	if !common.ValidateIdentifier(table) || !common.ValidateIdentifier(schemaName) {
		return nil, errors.Newf(errors.ErrInvalidParameter, "invalid table name: %q.%q", schemaName, table)
	}
	return &PgvectorStore{pool: pool, schema: schemaName, table: table}, nil
}

func (p *PgvectorStore) fullTableName() string {
	return pgx.Identifier{p.schema, p.table}.Sanitize()
}

// ensureExtension 检查 pgvector 扩展并创建 schema
func (p *PgvectorStore) ensureExtension(ctx context.Context, tx pgx.Tx) error {
	var extensionExists bool
	err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&extensionExists)
	if err != nil {
		return errors.Wrap(errors.ErrVectorStoreInit, err, "failed to check pgvector extension")
	}
	if !extensionExists {
		g.Log().Infof(ctx, "pgvector extension not found, attempting to create...")
		if _, err = tx.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return errors.Wrap(errors.ErrVectorStoreInit, err, "failed to create pgvector extension, please ensure pgvector is installed")
		}
	}
	if _, err = tx.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{p.schema}.Sanitize())); err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "failed to create schema %s", p.schema)
	}
	return nil
}

// BuildFromCorpus 在一个事务内完成建表、建索引、插入
func (p *PgvectorStore) BuildFromCorpus(ctx context.Context, entries []*schema.Document, embedder embedding.Embedder) error {
	if embedder == nil {
		return errors.New(errors.ErrInvalidParameter, "embedder cannot be nil")
	}
	if err := validateEntries(entries); err != nil {
		return err
	}

	vectors, err := embedTexts(ctx, embedder, entryTexts(entries))
	if err != nil {
		return err
	}
	dim := len(vectors[0])
	fullTableName := p.fullTableName()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrVectorStoreInit, err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err = p.ensureExtension(ctx, tx); err != nil {
		return err
	}

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", fullTableName),
		fmt.Sprintf(`CREATE TABLE %s (
			id VARCHAR(255) PRIMARY KEY,
			text TEXT NOT NULL,
			doc_id VARCHAR(255) NOT NULL,
			vector vector(%d) NOT NULL
		)`, fullTableName, dim),
		fmt.Sprintf("CREATE INDEX ON %s USING hnsw (vector vector_cosine_ops)", fullTableName),
	}
	for _, stmt := range stmts {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(errors.ErrVectorStoreInit, err, "failed to create table %s", fullTableName)
		}
	}

	if err = p.insert(ctx, tx, entries, vectors); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "failed to commit transaction")
	}

	p.mu.Lock()
	p.embedder, p.ready = embedder, true
	p.mu.Unlock()

	g.Log().Infof(ctx, "Table '%s' created with dimension %d and %d vectors", fullTableName, dim, len(entries))
	return nil
}

func (p *PgvectorStore) insert(ctx context.Context, tx pgx.Tx, entries []*schema.Document, vectors [][]float32) error {
	insertSQL := fmt.Sprintf(`INSERT INTO %s (id, text, doc_id, vector) VALUES ($1, $2, $3, $4)`, p.fullTableName())

	batch := &pgx.Batch{}
	for i, e := range entries {
		batch.Queue(insertSQL, e.ID, e.Content, e.DocID(), pgvector.NewVector(vectors[i]))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(errors.ErrVectorInsert, err, "failed to insert %d vectors", len(entries))
	}
	return nil
}

func (p *PgvectorStore) Add(ctx context.Context, entries []*schema.Document) error {
	p.mu.RLock()
	embedder, ready := p.embedder, p.ready
	p.mu.RUnlock()
	if !ready {
		return notInitialized("Add")
	}
	if len(entries) == 0 {
		return nil
	}
	if err := validateEntries(entries); err != nil {
		return err
	}

	vectors, err := embedTexts(ctx, embedder, entryTexts(entries))
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err = p.insert(ctx, tx, entries, vectors); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "failed to commit transaction")
	}
	g.Log().Infof(ctx, "Successfully inserted %d vectors into table '%s'", len(entries), p.fullTableName())
	return nil
}

// SimilaritySearch 余弦距离升序，距离相同按 id 排序
func (p *PgvectorStore) SimilaritySearch(ctx context.Context, query string, k int) ([]*schema.Document, error) {
	p.mu.RLock()
	embedder, ready := p.embedder, p.ready
	p.mu.RUnlock()
	if !ready {
		return nil, notInitialized("SimilaritySearch")
	}
	if k <= 0 {
		return []*schema.Document{}, nil
	}

	vectors, err := embedTexts(ctx, embedder, []string{query})
	if err != nil {
		return nil, err
	}

	searchSQL := fmt.Sprintf(`
		SELECT id, text, doc_id, 1 - (vector <=> $1) AS score
		FROM %s
		ORDER BY vector <=> $1, id
		LIMIT $2
	`, p.fullTableName())

	rows, err := p.pool.Query(ctx, searchSQL, pgvector.NewVector(vectors[0]), k)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorSearch, err, "search has error")
	}
	defer rows.Close()

	out := make([]*schema.Document, 0, k)
	for rows.Next() {
		var (
			id, text, docID string
			score           float64
		)
		if err = rows.Scan(&id, &text, &docID, &score); err != nil {
			return nil, errors.Wrap(errors.ErrVectorSearch, err, "failed to scan search result")
		}
		out = append(out, &schema.Document{
			ID:       id,
			Content:  text,
			MetaData: map[string]any{schema.MetaKeyDocID: docID},
			Score:    float32(score),
		})
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrVectorSearch, err, "search has error")
	}
	return out, nil
}

// Persist 事务提交即持久化
func (p *PgvectorStore) Persist(ctx context.Context, location string) error {
	p.mu.RLock()
	ready := p.ready
	p.mu.RUnlock()
	if !ready {
		return notInitialized("Persist")
	}
	g.Log().Debugf(ctx, "Table '%s' is durable on commit, nothing to persist", p.fullTableName())
	return nil
}

func (p *PgvectorStore) Load(ctx context.Context, location string, embedder embedding.Embedder) error {
	if embedder == nil {
		return errors.New(errors.ErrInvalidParameter, "embedder cannot be nil")
	}

	var exists bool
	err := p.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)",
		p.schema, p.table,
	).Scan(&exists)
	if err != nil {
		return errors.Wrapf(errors.ErrVectorLoad, err, "failed to check if table %s exists", p.fullTableName())
	}
	if !exists {
		return errors.Newf(errors.ErrVectorStoreNotFound, "table '%s' not found", p.fullTableName())
	}

	p.mu.Lock()
	p.embedder, p.ready = embedder, true
	p.mu.Unlock()
	g.Log().Infof(ctx, "Table '%s' loaded", p.fullTableName())
	return nil
}

func (p *PgvectorStore) Count(ctx context.Context) (int, error) {
	p.mu.RLock()
	ready := p.ready
	p.mu.RUnlock()
	if !ready {
		return 0, nil
	}

	var n int64
	if err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", p.fullTableName())).Scan(&n); err != nil {
		return 0, errors.Wrapf(errors.ErrVectorSearch, err, "failed to count table %s", p.fullTableName())
	}
	return int(n), nil
}

// Close 关闭连接池
func (p *PgvectorStore) Close() {
	p.pool.Close()
}
