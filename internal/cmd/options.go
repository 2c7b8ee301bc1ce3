package cmd

import (
	"strings"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/core/kb"
	"github.com/Malowking/ragkb/core/meta_store"
	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/gogf/gf/v2/os/gcmd"
)

// 入库类命令共用的参数
var ingestArguments = []gcmd.Argument{
	{Name: "meta", Brief: `global metadata, key=value pairs separated by commas (book=考核细则,version=1) or a JSON object`},
	{Name: "chunk-size", Brief: "max characters per chunk, 0 uses kb.chunkSize"},
	{Name: "chunk-overlap", Brief: "characters shared by adjacent chunks"},
	{Name: "separators", Brief: `separator list as a JSON array, e.g. ["\n\n","。"]`},
	{Name: "location", Brief: "persist location, a directory or rustfs://bucket/prefix"},
	{Name: "mode", Short: "m", Brief: "pdf text mode: text or ocr"},
	{Name: "no-persist", Brief: "skip persisting the index", Orphan: true},
	{Name: "markdown", Brief: "split by markdown headers first", Orphan: true},
	{Name: "append", Brief: "append to the existing index instead of rebuilding", Orphan: true},
}

type ingestFlags struct {
	Meta         string
	ChunkSize    int
	ChunkOverlap int
	Separators   string
	Location     string
	Mode         string
	NoPersist    bool
	Markdown     bool
	Append       bool
}

func readIngestFlags(parser *gcmd.Parser) ingestFlags {
	return ingestFlags{
		Meta:         parser.GetOpt("meta", "").String(),
		ChunkSize:    parser.GetOpt("chunk-size", 0).Int(),
		ChunkOverlap: parser.GetOpt("chunk-overlap", 0).Int(),
		Separators:   parser.GetOpt("separators", "").String(),
		Location:     parser.GetOpt("location", "").String(),
		Mode:         parser.GetOpt("mode", "").String(),
		NoPersist:    parser.GetOpt("no-persist") != nil,
		Markdown:     parser.GetOpt("markdown") != nil,
		Append:       parser.GetOpt("append") != nil,
	}
}

// options 转换为 BuildOptions，未指定的项交给 KBConfig 默认值
func (f ingestFlags) options() (*kb.BuildOptions, error) {
	globalMeta, err := parseMeta(f.Meta)
	if err != nil {
		return nil, err
	}

	var separators []string
	if f.Separators != "" {
		j, err := gjson.LoadJson([]byte(f.Separators))
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidParameter, err, "separators must be a JSON array of strings")
		}
		separators = j.Var().Strings()
	}

	opts := &kb.BuildOptions{
		GlobalMeta:      globalMeta,
		ChunkSize:       f.ChunkSize,
		ChunkOverlap:    f.ChunkOverlap,
		Separators:      separators,
		PersistLocation: f.Location,
		TextMode:        f.Mode,
		Markdown:        f.Markdown,
	}
	if f.NoPersist {
		persist := false
		opts.Persist = &persist
	}
	return opts, nil
}

// parseMeta 支持 JSON 对象或逗号分隔的 key=value，value 能按 JSON 解析时保留类型
func parseMeta(s string) (meta_store.Attributes, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "{") {
		return meta_store.ParseAttributes(s)
	}

	attrs := meta_store.Attributes{}
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Newf(errors.ErrInvalidParameter, "invalid meta pair %q, expected key=value", pair)
		}
		attrs[key] = meta_store.ParseValue(strings.TrimSpace(value))
	}
	return attrs, nil
}
