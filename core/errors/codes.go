package errors

// ErrCode 业务错误码类型
type ErrCode int

const (
	// 通用错误 1000-1999
	ErrInvalidParameter ErrCode = 1001 // 参数错误
	ErrInternalError    ErrCode = 1003 // 内部错误
	ErrNotFound         ErrCode = 1004 // 资源未找到
	ErrConfigInvalid    ErrCode = 1007 // 配置无效

	// 模型相关 2000-2999
	ErrModelConfigInvalid ErrCode = 2002 // 模型配置无效
	ErrEmbeddingFailed    ErrCode = 2003 // Embedding失败
	ErrLLMCallFailed      ErrCode = 2004 // LLM调用失败

	// 文档相关 4000-4999
	ErrDocumentParseFailed ErrCode = 4002 // 文档解析失败
	ErrFileReadFailed      ErrCode = 4007 // 文件读取失败
	ErrIndexingFailed      ErrCode = 4009 // 索引失败
	ErrUnsupportedTextMode ErrCode = 4010 // 不支持的文本提取模式

	// 向量数据库 5000-5999
	ErrVectorStoreInit           ErrCode = 5001 // 向量库初始化失败
	ErrVectorSearch              ErrCode = 5002 // 向量搜索失败
	ErrVectorInsert              ErrCode = 5003 // 向量插入失败
	ErrVectorStoreNotFound       ErrCode = 5005 // 向量库不存在
	ErrVectorStoreNotInitialized ErrCode = 5006 // 向量库尚未构建或加载
	ErrVectorPersist             ErrCode = 5007 // 向量库持久化失败
	ErrVectorLoad                ErrCode = 5008 // 向量库加载失败

	// 元数据存储 6000-6999
	ErrDatabaseInit ErrCode = 6005 // 数据库初始化失败
	ErrMetaStore    ErrCode = 6006 // 元数据读写失败
	ErrMetaDecode   ErrCode = 6007 // 元数据反序列化失败
)

var codeNames = map[ErrCode]string{
	ErrInvalidParameter:          "invalid parameter",
	ErrInternalError:             "internal error",
	ErrNotFound:                  "not found",
	ErrConfigInvalid:             "invalid configuration",
	ErrModelConfigInvalid:        "invalid model configuration",
	ErrEmbeddingFailed:           "embedding failed",
	ErrLLMCallFailed:             "llm call failed",
	ErrDocumentParseFailed:       "document parse failed",
	ErrFileReadFailed:            "file read failed",
	ErrIndexingFailed:            "indexing failed",
	ErrUnsupportedTextMode:       "unsupported text mode",
	ErrVectorStoreInit:           "vector store init failed",
	ErrVectorSearch:              "vector search failed",
	ErrVectorInsert:              "vector insert failed",
	ErrVectorStoreNotFound:       "vector store not found",
	ErrVectorStoreNotInitialized: "vector store not initialized",
	ErrVectorPersist:             "vector store persist failed",
	ErrVectorLoad:                "vector store load failed",
	ErrDatabaseInit:              "database init failed",
	ErrMetaStore:                 "meta store failed",
	ErrMetaDecode:                "meta decode failed",
}

// String 返回错误码的可读名称
func (e ErrCode) String() string {
	if name, ok := codeNames[e]; ok {
		return name
	}
	return "unknown error"
}
