package indexer

import (
	"context"
	"strings"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/cloudwego/eino-ext/components/document/loader/file"
	document_url "github.com/cloudwego/eino-ext/components/document/loader/url"
	"github.com/cloudwego/eino-ext/components/document/parser/html"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino-ext/components/document/parser/xlsx"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
)

// URILoader 按 URI 加载文档：http(s) 走 URL loader，其余视为本地文件
// 解析器按扩展名选择（html/pdf/xlsx/txt/md），未知扩展名按纯文本处理
type URILoader struct {
	fileLoader document.Loader
	urlLoader  document.Loader
}

// newParser 按扩展名分派的解析器，fallback 为 URL 或文件的默认解析器
func newParser(ctx context.Context, fallback parser.Parser) (parser.Parser, error) {
	htmlParser, err := html.NewParser(ctx, &html.Config{})
	if err != nil {
		return nil, err
	}
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{})
	if err != nil {
		return nil, err
	}
	// 表格每行一个文档，首行作为表头
	xlsxParser, err := xlsx.NewXlsxParser(ctx, &xlsx.Config{})
	if err != nil {
		return nil, err
	}
	if fallback == nil {
		fallback = parser.TextParser{}
	}

	return parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers: map[string]parser.Parser{
			".html": htmlParser,
			".htm":  htmlParser,
			".pdf":  pdfParser,
			".xlsx": xlsxParser,
			".txt":  parser.TextParser{},
			".md":   parser.TextParser{},
		},
		FallbackParser: fallback,
	})
}

// NewURILoader 创建 URI 加载器
func NewURILoader(ctx context.Context) (*URILoader, error) {
	fileParser, err := newParser(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "failed to create parser")
	}
	fldr, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: false,
		Parser:      fileParser,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "failed to create file loader")
	}

	// 网页通常没有扩展名，默认按 HTML 解析
	htmlParser, err := html.NewParser(ctx, &html.Config{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "failed to create html parser")
	}
	urlParser, err := newParser(ctx, htmlParser)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "failed to create parser")
	}
	uldr, err := document_url.NewLoader(ctx, &document_url.LoaderConfig{Parser: urlParser})
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "failed to create url loader")
	}

	return &URILoader{fileLoader: fldr, urlLoader: uldr}, nil
}

// IsURL 判断是否为 http(s) 地址
func IsURL(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Load 加载并解析 uri 指向的文档
func (l *URILoader) Load(ctx context.Context, uri string) ([]*schema.Document, error) {
	if uri == "" {
		return nil, errors.New(errors.ErrInvalidParameter, "uri cannot be empty")
	}

	src := document.Source{URI: uri}
	var (
		docs []*schema.Document
		err  error
	)
	if IsURL(uri) {
		docs, err = l.urlLoader.Load(ctx, src)
	} else {
		docs, err = l.fileLoader.Load(ctx, src)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDocumentParseFailed, err, "failed to load %s", uri)
	}
	return docs, nil
}
