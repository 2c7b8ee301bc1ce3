package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
)

// DefaultSeparators 默认分隔符，按优先级从段落到字符逐级回退
var DefaultSeparators = []string{"\n\n", "\n", "。", "！", "？", "；", "，", " ", ""}

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultNamespace    = "kb"
	DefaultIndexPath    = "./faiss_index/kb"
	DefaultTextMode     = "text"
)

// Config 应用总配置，由调用方显式构造后传入各组件
type Config struct {
	KB          KBConfig
	Embedding   EmbeddingConfig
	Chat        ChatConfig
	VectorStore VectorStoreConfig
	MetaStore   MetaStoreConfig
	RustFS      RustFSConfig
	OCR         OCRConfig
}

// KBConfig 知识库入库默认参数
type KBConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	Persist      bool
	TextMode     string // text 或 ocr
}

// EmbeddingConfig Embedding 服务配置
type EmbeddingConfig struct {
	Provider   string // openai（兼容 DashScope 等）或 hash（离线）
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// ChatConfig 问答模型配置
type ChatConfig struct {
	Provider    string // openai 或 qwen
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// VectorStoreConfig 向量库配置
type VectorStoreConfig struct {
	Type     string // local / milvus / pgvector
	Path     string // local 类型的默认持久化位置，支持 rustfs://bucket/prefix
	Milvus   MilvusConfig
	Postgres PostgresConfig
}

// MilvusConfig Milvus 连接配置
type MilvusConfig struct {
	Address    string
	Database   string
	Collection string
}

// PostgresConfig pgvector 连接配置
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Schema   string
	Table    string
}

// DSN 构建 pgx 连接字符串（去掉空密码的 password= 参数）
func (c *PostgresConfig) DSN() string {
	if c.Password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode)
}

// MetaStoreConfig 元数据存储配置
type MetaStoreConfig struct {
	Type      string // redis / postgres / mysql / memory
	Namespace string
	Redis     RedisConfig
	SQL       SQLConfig
}

// RedisConfig Redis 配置，URL 优先于 Address
type RedisConfig struct {
	URL          string
	Address      string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

// SQLConfig 关系型数据库配置
type SQLConfig struct {
	Host    string
	Port    string
	User    string
	Pass    string
	Name    string
	Charset string // 主要用于 MySQL
}

// RustFSConfig 对象存储配置
type RustFSConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	SSL        bool
}

// OCRConfig OCR 服务配置
type OCRConfig struct {
	URL     string
	Timeout time.Duration
}

// Default 返回全部使用默认值的配置
func Default() *Config {
	return &Config{
		KB: KBConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			Separators:   append([]string(nil), DefaultSeparators...),
			Persist:      true,
			TextMode:     DefaultTextMode,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			BatchSize: 25,
			Timeout:   5 * time.Minute,
		},
		Chat: ChatConfig{
			Provider:    "openai",
			Temperature: 0.3,
		},
		VectorStore: VectorStoreConfig{
			Type: "local",
			Path: DefaultIndexPath,
			Milvus: MilvusConfig{
				Database:   "default",
				Collection: "kb_chunks",
			},
			Postgres: PostgresConfig{
				Port:    "5432",
				SSLMode: "disable",
				Schema:  "vectors",
				Table:   "kb_chunks",
			},
		},
		MetaStore: MetaStoreConfig{
			Type:      "redis",
			Namespace: DefaultNamespace,
			Redis: RedisConfig{
				Address:      "localhost:6379",
				MaxRetries:   3,
				PoolSize:     10,
				MinIdleConns: 2,
			},
			SQL: SQLConfig{
				Charset: "utf8mb4",
			},
		},
		OCR: OCRConfig{
			Timeout: 10 * time.Minute,
		},
	}
}

// Load 从 gf 配置文件读取配置，缺失项使用默认值
func Load(ctx context.Context) *Config {
	d := Default()
	cfg := g.Cfg()

	c := &Config{}
	c.KB = KBConfig{
		ChunkSize:    cfg.MustGet(ctx, "kb.chunkSize", d.KB.ChunkSize).Int(),
		ChunkOverlap: cfg.MustGet(ctx, "kb.chunkOverlap", d.KB.ChunkOverlap).Int(),
		Separators:   cfg.MustGet(ctx, "kb.separators", d.KB.Separators).Strings(),
		Persist:      cfg.MustGet(ctx, "kb.persist", d.KB.Persist).Bool(),
		TextMode:     cfg.MustGet(ctx, "kb.textMode", d.KB.TextMode).String(),
	}
	c.Embedding = EmbeddingConfig{
		Provider:   cfg.MustGet(ctx, "embedding.provider", d.Embedding.Provider).String(),
		APIKey:     cfg.MustGet(ctx, "embedding.apiKey", "").String(),
		BaseURL:    cfg.MustGet(ctx, "embedding.baseURL", "").String(),
		Model:      cfg.MustGet(ctx, "embedding.model", "").String(),
		Dimensions: cfg.MustGet(ctx, "embedding.dimensions", 0).Int(),
		BatchSize:  cfg.MustGet(ctx, "embedding.batchSize", d.Embedding.BatchSize).Int(),
		Timeout:    cfg.MustGet(ctx, "embedding.timeout", d.Embedding.Timeout).Duration(),
	}
	c.Chat = ChatConfig{
		Provider:    cfg.MustGet(ctx, "chat.provider", d.Chat.Provider).String(),
		APIKey:      cfg.MustGet(ctx, "chat.apiKey", "").String(),
		BaseURL:     cfg.MustGet(ctx, "chat.baseURL", "").String(),
		Model:       cfg.MustGet(ctx, "chat.model", "").String(),
		Temperature: cfg.MustGet(ctx, "chat.temperature", d.Chat.Temperature).Float32(),
	}
	c.VectorStore = VectorStoreConfig{
		Type: cfg.MustGet(ctx, "vectorStore.type", d.VectorStore.Type).String(),
		Path: cfg.MustGet(ctx, "vectorStore.path", d.VectorStore.Path).String(),
		Milvus: MilvusConfig{
			Address:    cfg.MustGet(ctx, "milvus.address", "").String(),
			Database:   cfg.MustGet(ctx, "milvus.database", d.VectorStore.Milvus.Database).String(),
			Collection: cfg.MustGet(ctx, "milvus.collection", d.VectorStore.Milvus.Collection).String(),
		},
		Postgres: PostgresConfig{
			Host:     cfg.MustGet(ctx, "postgres.host", "").String(),
			Port:     cfg.MustGet(ctx, "postgres.port", d.VectorStore.Postgres.Port).String(),
			User:     cfg.MustGet(ctx, "postgres.user", "").String(),
			Password: cfg.MustGet(ctx, "postgres.password", "").String(),
			Database: cfg.MustGet(ctx, "postgres.database", "").String(),
			SSLMode:  cfg.MustGet(ctx, "postgres.sslmode", d.VectorStore.Postgres.SSLMode).String(),
			Schema:   cfg.MustGet(ctx, "postgres.schema", d.VectorStore.Postgres.Schema).String(),
			Table:    cfg.MustGet(ctx, "postgres.table", d.VectorStore.Postgres.Table).String(),
		},
	}
	c.MetaStore = MetaStoreConfig{
		Type:      cfg.MustGet(ctx, "metaStore.type", d.MetaStore.Type).String(),
		Namespace: cfg.MustGet(ctx, "metaStore.namespace", d.MetaStore.Namespace).String(),
		Redis: RedisConfig{
			URL:          cfg.MustGet(ctx, "redis.url", "").String(),
			Address:      cfg.MustGet(ctx, "redis.address", d.MetaStore.Redis.Address).String(),
			Password:     cfg.MustGet(ctx, "redis.password", "").String(),
			DB:           cfg.MustGet(ctx, "redis.db", 0).Int(),
			MaxRetries:   cfg.MustGet(ctx, "redis.maxRetries", d.MetaStore.Redis.MaxRetries).Int(),
			PoolSize:     cfg.MustGet(ctx, "redis.poolSize", d.MetaStore.Redis.PoolSize).Int(),
			MinIdleConns: cfg.MustGet(ctx, "redis.minIdleConns", d.MetaStore.Redis.MinIdleConns).Int(),
		},
		SQL: SQLConfig{
			Host:    cfg.MustGet(ctx, "database.host", "").String(),
			Port:    cfg.MustGet(ctx, "database.port", "").String(),
			User:    cfg.MustGet(ctx, "database.user", "").String(),
			Pass:    cfg.MustGet(ctx, "database.pass", "").String(),
			Name:    cfg.MustGet(ctx, "database.name", "").String(),
			Charset: cfg.MustGet(ctx, "database.charset", d.MetaStore.SQL.Charset).String(),
		},
	}
	c.RustFS = RustFSConfig{
		Endpoint:   cfg.MustGet(ctx, "rustfs.endpoint", "").String(),
		AccessKey:  cfg.MustGet(ctx, "rustfs.accessKey", "").String(),
		SecretKey:  cfg.MustGet(ctx, "rustfs.secretKey", "").String(),
		BucketName: cfg.MustGet(ctx, "rustfs.bucketName", "").String(),
		SSL:        cfg.MustGet(ctx, "rustfs.ssl", false).Bool(),
	}
	c.OCR = OCRConfig{
		URL:     cfg.MustGet(ctx, "ocr.url", "").String(),
		Timeout: cfg.MustGet(ctx, "ocr.timeout", d.OCR.Timeout).Duration(),
	}
	return c
}

// ValidateConfiguration validates all required configuration items
func ValidateConfiguration(ctx context.Context, c *Config) error {
	if c == nil {
		return errors.New(errors.ErrConfigInvalid, "config cannot be nil")
	}
	var missingConfigs []string
	var warnings []string

	// 验证入库参数
	if c.KB.ChunkSize <= 0 {
		missingConfigs = append(missingConfigs, "kb.chunkSize (must be > 0)")
	}
	if c.KB.ChunkOverlap < 0 || c.KB.ChunkOverlap >= c.KB.ChunkSize {
		missingConfigs = append(missingConfigs, "kb.chunkOverlap (must be >= 0 and < kb.chunkSize)")
	}

	// 验证 Embedding 配置
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			missingConfigs = append(missingConfigs, "embedding.apiKey")
		}
		if c.Embedding.Model == "" {
			missingConfigs = append(missingConfigs, "embedding.model")
		}
		if c.Embedding.BaseURL == "" {
			warnings = append(warnings, "embedding.baseURL is not set, using the OpenAI default endpoint")
		}
	case "hash":
		if c.Embedding.Dimensions <= 0 {
			missingConfigs = append(missingConfigs, "embedding.dimensions (required by the hash provider)")
		}
	default:
		missingConfigs = append(missingConfigs, fmt.Sprintf("embedding.provider (unsupported: %q)", c.Embedding.Provider))
	}

	// 验证 Chat 配置（仅问答使用，缺失时只告警）
	if c.Chat.APIKey == "" {
		warnings = append(warnings, "chat.apiKey is not set")
	}
	if c.Chat.Model == "" {
		warnings = append(warnings, "chat.model is not set")
	}

	// 验证向量库配置
	switch c.VectorStore.Type {
	case "local":
		if c.VectorStore.Path == "" {
			missingConfigs = append(missingConfigs, "vectorStore.path")
		}
	case "milvus":
		if c.VectorStore.Milvus.Address == "" {
			missingConfigs = append(missingConfigs, "milvus.address")
		}
	case "pgvector":
		pg := c.VectorStore.Postgres
		if pg.Host == "" {
			missingConfigs = append(missingConfigs, "postgres.host")
		}
		if pg.User == "" {
			missingConfigs = append(missingConfigs, "postgres.user")
		}
		if pg.Database == "" {
			missingConfigs = append(missingConfigs, "postgres.database")
		}
	default:
		missingConfigs = append(missingConfigs, fmt.Sprintf("vectorStore.type (unsupported: %q)", c.VectorStore.Type))
	}
	if strings.HasPrefix(c.VectorStore.Path, "rustfs://") && c.RustFS.Endpoint == "" {
		missingConfigs = append(missingConfigs, "rustfs.endpoint (required by a rustfs:// vectorStore.path)")
	}

	// 验证元数据存储配置
	if c.MetaStore.Namespace == "" {
		missingConfigs = append(missingConfigs, "metaStore.namespace")
	}
	switch c.MetaStore.Type {
	case "redis":
		if c.MetaStore.Redis.URL == "" && c.MetaStore.Redis.Address == "" {
			missingConfigs = append(missingConfigs, "redis.url or redis.address")
		}
	case "postgres", "postgresql", "mysql":
		sql := c.MetaStore.SQL
		if sql.Host == "" {
			missingConfigs = append(missingConfigs, "database.host")
		}
		if sql.Port == "" {
			missingConfigs = append(missingConfigs, "database.port")
		}
		if sql.User == "" {
			missingConfigs = append(missingConfigs, "database.user")
		}
		if sql.Name == "" {
			missingConfigs = append(missingConfigs, "database.name")
		}
	case "memory":
		warnings = append(warnings, "metaStore.type is memory, metadata will not survive a restart")
	default:
		missingConfigs = append(missingConfigs, fmt.Sprintf("metaStore.type (unsupported: %q)", c.MetaStore.Type))
	}

	// 输出警告信息
	if len(warnings) > 0 {
		g.Log().Warningf(ctx, "Configuration warnings:\n- %s", strings.Join(warnings, "\n- "))
	}

	// 检查是否有缺失的必需配置
	if len(missingConfigs) > 0 {
		return errors.Newf(errors.ErrConfigInvalid, "missing required configuration items:\n- %s\n\nPlease check your config.yaml file and ensure all required settings are properly configured", strings.Join(missingConfigs, "\n- "))
	}

	g.Log().Info(ctx, "✓ All required configuration items are present")
	return nil
}
