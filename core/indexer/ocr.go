package indexer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/net/gclient"
)

// Recognizer 对文档的某一页做 OCR
type Recognizer interface {
	Recognize(ctx context.Context, path string, page int) (string, error)
}

// HTTPRecognizer 调用外部 OCR 服务：multipart 上传文件和页码，返回 {"text": "..."}
type HTTPRecognizer struct {
	url     string
	timeout time.Duration
}

type ocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewRecognizer 未配置 ocr.url 时返回 nil 接口
func NewRecognizer(conf *config.OCRConfig) Recognizer {
	if conf == nil || conf.URL == "" {
		return nil
	}
	return &HTTPRecognizer{url: conf.URL, timeout: conf.Timeout}
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, path string, page int) (string, error) {
	client := gclient.New()
	if r.timeout > 0 {
		client.SetTimeout(r.timeout)
	}

	resp, err := client.Post(ctx, r.url, g.Map{
		"file": "@file:" + path,
		"page": page,
	})
	if err != nil {
		return "", errors.Wrapf(errors.ErrDocumentParseFailed, err, "ocr request failed for page %d", page)
	}
	defer resp.Close()

	body := resp.ReadAll()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrDocumentParseFailed, "ocr service returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out ocrResponse
	if err = sonic.Unmarshal(body, &out); err != nil {
		return "", errors.Wrap(errors.ErrDocumentParseFailed, err, "failed to decode ocr response")
	}
	if out.Error != "" {
		return "", errors.Newf(errors.ErrDocumentParseFailed, "ocr failed on page %d: %s", page, out.Error)
	}
	g.Log().Debugf(ctx, "OCR page %d of %s: %d chars", page, path, len(out.Text))
	return out.Text, nil
}
