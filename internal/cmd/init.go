package cmd

import (
	"context"

	"github.com/Malowking/ragkb/core/common"
	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/indexer"
	"github.com/Malowking/ragkb/core/kb"
	"github.com/Malowking/ragkb/core/meta_store"
	"github.com/Malowking/ragkb/core/vector_store"
	"github.com/gogf/gf/v2/frame/g"
)

// app 一次命令执行所需的全部组件
type app struct {
	conf *config.Config
	vs   vector_store.VectorStore
	ms   meta_store.MetaStore
	svc  *kb.Service
}

// newApp 读取并校验配置，初始化存储和知识库服务
func newApp(ctx context.Context) (*app, error) {
	conf := config.Load(ctx)

	g.Log().Info(ctx, "Validating application configuration...")
	if err := config.ValidateConfiguration(ctx, conf); err != nil {
		return nil, err
	}

	emb, err := common.NewEmbedder(ctx, &conf.Embedding)
	if err != nil {
		return nil, err
	}

	vs, err := vector_store.NewVectorStore(ctx, &conf.VectorStore, &conf.RustFS)
	if err != nil {
		return nil, err
	}

	ms, err := meta_store.NewMetaStore(ctx, &conf.MetaStore)
	if err != nil {
		_ = vector_store.Close(ctx, vs)
		return nil, err
	}

	a := &app{conf: conf, vs: vs, ms: ms}
	a.svc, err = kb.NewService(&conf.KB, vs, ms, emb, kb.WithRecognizer(indexer.NewRecognizer(&conf.OCR)))
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	g.Log().Info(ctx, "✓ All components initialized successfully")
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if err := vector_store.Close(ctx, a.vs); err != nil {
		g.Log().Warningf(ctx, "Failed to close vector store: %v", err)
	}
	if err := a.ms.Close(); err != nil {
		g.Log().Warningf(ctx, "Failed to close meta store: %v", err)
	}
}
