package chat

import (
	"context"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/gogf/gf/v2/frame/g"
)

const dashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// NewChatModel 按 chat 配置创建问答模型
func NewChatModel(ctx context.Context, conf *config.ChatConfig) (einoModel.BaseChatModel, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrModelConfigInvalid, "chat config cannot be nil")
	}
	if conf.APIKey == "" || conf.Model == "" {
		return nil, errors.New(errors.ErrModelConfigInvalid, "chat.apiKey and chat.model are required")
	}
	temperature := conf.Temperature

	switch conf.Provider {
	case "", "openai":
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      conf.APIKey,
			BaseURL:     conf.BaseURL,
			Model:       conf.Model,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrModelConfigInvalid, err, "failed to create openai chat model")
		}
		return cm, nil
	case "qwen":
		baseURL := conf.BaseURL
		if baseURL == "" {
			baseURL = dashScopeBaseURL
		}
		cm, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			APIKey:      conf.APIKey,
			BaseURL:     baseURL,
			Model:       conf.Model,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrModelConfigInvalid, err, "failed to create qwen chat model")
		}
		g.Log().Debugf(ctx, "Qwen chat model created: %s", conf.Model)
		return cm, nil
	default:
		return nil, errors.Newf(errors.ErrModelConfigInvalid, "unsupported chat provider: %q", conf.Provider)
	}
}
