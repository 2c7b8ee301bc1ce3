package schema

// MetaKeyDocID 向量条目回指元数据记录的键，向量库只保存这一个字段
const MetaKeyDocID = "doc_id"

// Document 表示文档片段（向量条目 / 检索命中）
type Document struct {
	// ID 文档唯一标识
	ID string `json:"id,omitempty"`
	// Content 文档内容
	Content string `json:"content"`
	// MetaData 文档元数据，入库时只含 doc_id
	MetaData map[string]interface{} `json:"metadata,omitempty"`
	// Score 相关性得分（检索时使用）- 使用float32以直接与向量库兼容
	Score float32 `json:"score"`
}

// NewEntry 创建只携带 doc_id 回指的向量条目
func NewEntry(docID, content string) *Document {
	return &Document{
		ID:       docID,
		Content:  content,
		MetaData: map[string]interface{}{MetaKeyDocID: docID},
	}
}

// DocID 返回条目对应的元数据记录标识，优先读取 MetaData 中的 doc_id
func (d *Document) DocID() string {
	if d == nil {
		return ""
	}
	if v, ok := d.MetaData[MetaKeyDocID].(string); ok && v != "" {
		return v
	}
	return d.ID
}
