package indexer

import (
	"context"
	"os"
	"strings"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/dslipak/pdf"
)

// TextMode 页面文本提取方式
type TextMode string

const (
	TextModeText TextMode = "text" // 直接读取文字层
	TextModeOCR  TextMode = "ocr"  // 扫描件走 OCR
)

// ParseTextMode 解析提取方式，空串视为 text
func ParseTextMode(s string) (TextMode, error) {
	switch TextMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", TextModeText:
		return TextModeText, nil
	case TextModeOCR:
		return TextModeOCR, nil
	default:
		return "", errors.Newf(errors.ErrUnsupportedTextMode, "unsupported text mode: %q (supported: text, ocr)", s)
	}
}

// PagedDocument 按页访问的文档，页码从 1 开始
type PagedDocument interface {
	PageCount() int
	PageText(ctx context.Context, page int, mode TextMode) (string, error)
}

// PDFDocument 基于 dslipak/pdf 的 PDF 文档
type PDFDocument struct {
	path       string
	file       *os.File
	reader     *pdf.Reader
	recognizer Recognizer
}

// OpenPDF 打开 PDF，recognizer 可为 nil（此时不支持 ocr 模式）
func OpenPDF(path string, recognizer Recognizer) (*PDFDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrFileReadFailed, err, "failed to open pdf %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(errors.ErrFileReadFailed, err, "failed to get file stat %s", path)
	}

	r, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(errors.ErrDocumentParseFailed, err, "failed to parse pdf %s", path)
	}
	return &PDFDocument{path: path, file: f, reader: r, recognizer: recognizer}, nil
}

func (d *PDFDocument) PageCount() int {
	return d.reader.NumPage()
}

func (d *PDFDocument) PageText(ctx context.Context, page int, mode TextMode) (string, error) {
	if page < 1 || page > d.PageCount() {
		return "", errors.Newf(errors.ErrInvalidParameter, "page %d out of range [1, %d]", page, d.PageCount())
	}

	switch mode {
	case TextModeText, "":
		p := d.reader.Page(page)
		if p.V.IsNull() {
			return "", nil
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", errors.Wrapf(errors.ErrDocumentParseFailed, err, "failed to extract text of page %d", page)
		}
		return text, nil
	case TextModeOCR:
		if d.recognizer == nil {
			return "", errors.New(errors.ErrUnsupportedTextMode, "ocr mode requires an OCR service (ocr.url)")
		}
		return d.recognizer.Recognize(ctx, d.path, page)
	default:
		return "", errors.Newf(errors.ErrUnsupportedTextMode, "unsupported text mode: %q", mode)
	}
}

// Close 关闭底层文件
func (d *PDFDocument) Close() error {
	return d.file.Close()
}
