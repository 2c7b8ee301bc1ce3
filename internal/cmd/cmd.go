package cmd

import (
	"context"
	"fmt"

	"github.com/Malowking/ragkb/core/chat"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/core/kb"
	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/gcmd"
	"github.com/gogf/gf/v2/os/gfile"
)

const defaultTopK = 4

var (
	Main = gcmd.Command{
		Name:        "ragkb",
		Usage:       "ragkb COMMAND [OPTION]",
		Brief:       "knowledge base ingestion and similarity search",
		Description: "Chunks are stored in the vector store, their attributes in the meta store. Settings come from config.yaml.",
	}

	BuildText = gcmd.Command{
		Name:      "build-text",
		Usage:     "ragkb build-text -f policy.txt [--meta book=考核细则,version=1] [OPTION]",
		Brief:     "split a text file and build the index",
		Arguments: append([]gcmd.Argument{{Name: "file", Short: "f", Brief: "text file to ingest"}}, ingestArguments...),
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			path := parser.GetOpt("file", "").String()
			if path == "" {
				return errors.New(errors.ErrInvalidParameter, "--file (-f) is required")
			}
			if !gfile.Exists(path) {
				return errors.Newf(errors.ErrFileReadFailed, "file not found: %s", path)
			}
			return ingest(ctx, parser, textIngest(path))
		},
	}

	BuildPDF = gcmd.Command{
		Name:      "build-pdf",
		Usage:     "ragkb build-pdf -f policy.pdf [-m ocr] [OPTION]",
		Brief:     "extract a pdf page by page and build the index",
		Arguments: append([]gcmd.Argument{{Name: "file", Short: "f", Brief: "pdf file to ingest"}}, ingestArguments...),
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			path := parser.GetOpt("file", "").String()
			if path == "" {
				return errors.New(errors.ErrInvalidParameter, "--file (-f) is required")
			}
			return ingest(ctx, parser, pdfIngest(path))
		},
	}

	BuildURI = gcmd.Command{
		Name:      "build-uri",
		Usage:     "ragkb build-uri -u https://example.com/policy.html [OPTION]",
		Brief:     "load a local file or http(s) url and build the index",
		Arguments: append([]gcmd.Argument{{Name: "uri", Short: "u", Brief: "file path or http(s) url"}}, ingestArguments...),
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			uri := parser.GetOpt("uri", "").String()
			if uri == "" {
				return errors.New(errors.ErrInvalidParameter, "--uri (-u) is required")
			}
			return ingest(ctx, parser, uriIngest(uri))
		},
	}

	Search = gcmd.Command{
		Name:  "search",
		Usage: "ragkb search -q 考核周期 [-k 4] [--location DIR]",
		Brief: "similarity search joined with chunk metadata",
		Arguments: []gcmd.Argument{
			{Name: "query", Short: "q", Brief: "query text"},
			{Name: "k", Short: "k", Brief: "number of results"},
			{Name: "location", Brief: "index location, defaults to vectorStore.path"},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			query := parser.GetOpt("query", "").String()
			if query == "" {
				return errors.New(errors.ErrInvalidParameter, "--query (-q) is required")
			}
			a, err := openIndex(ctx, parser.GetOpt("location", "").String())
			if err != nil {
				return err
			}
			defer a.close(ctx)

			hits, err := a.svc.SimilaritySearch(ctx, query, parser.GetOpt("k", defaultTopK).Int())
			if err != nil {
				return err
			}
			printHits(hits)
			return nil
		},
	}

	Ask = gcmd.Command{
		Name:  "ask",
		Usage: "ragkb ask -q 考核周期多长 [-k 4]",
		Brief: "answer a question with the retrieved chunks as context",
		Arguments: []gcmd.Argument{
			{Name: "question", Short: "q", Brief: "question text"},
			{Name: "k", Short: "k", Brief: "number of reference chunks"},
			{Name: "location", Brief: "index location, defaults to vectorStore.path"},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			question := parser.GetOpt("question", "").String()
			if question == "" {
				return errors.New(errors.ErrInvalidParameter, "--question (-q) is required")
			}
			a, err := openIndex(ctx, parser.GetOpt("location", "").String())
			if err != nil {
				return err
			}
			defer a.close(ctx)

			cm, err := chat.NewChatModel(ctx, &a.conf.Chat)
			if err != nil {
				return err
			}
			answerer, err := chat.NewAnswerer(cm, a.svc)
			if err != nil {
				return err
			}
			ans, err := answerer.Answer(ctx, question, parser.GetOpt("k", defaultTopK).Int())
			if err != nil {
				return err
			}
			fmt.Println(ans.Content)
			fmt.Println()
			printHits(ans.Hits)
			return nil
		},
	}

	Stats = gcmd.Command{
		Name:  "stats",
		Usage: "ragkb stats [--location=DIR]",
		Brief: "show index and metadata counts",
		Arguments: []gcmd.Argument{
			{Name: "location", Brief: "index location, defaults to vectorStore.path"},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err = a.svc.Load(ctx, parser.GetOpt("location", "").String()); err != nil {
				g.Log().Warningf(ctx, "Index not loaded: %v", err)
			}
			chunks, err := a.svc.Count(ctx)
			if err != nil {
				return err
			}
			records, err := a.svc.MetaCount(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("vector store: %s\nnamespace:    %s\nchunks:       %d\nmeta records: %d\n",
				a.conf.VectorStore.Type, a.ms.Namespace(), chunks, records)
			return nil
		},
	}

	Purge = gcmd.Command{
		Name:  "purge",
		Usage: "ragkb purge",
		Brief: "delete every metadata record in the configured namespace",
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)
			return a.svc.Purge(ctx)
		},
	}
)

func init() {
	if err := Main.AddCommand(&BuildText, &BuildPDF, &BuildURI, &Search, &Ask, &Stats, &Purge); err != nil {
		panic(err)
	}
}

type ingestFunc func(ctx context.Context, a *app, f ingestFlags, opts *kb.BuildOptions) (int, error)

// --append 时走 Add* 追加，否则重建索引
func textIngest(path string) ingestFunc {
	return func(ctx context.Context, a *app, f ingestFlags, opts *kb.BuildOptions) (int, error) {
		text := gfile.GetContents(path)
		if f.Append {
			return a.svc.AddText(ctx, text, opts)
		}
		return a.svc.BuildFromText(ctx, text, opts)
	}
}

func pdfIngest(path string) ingestFunc {
	return func(ctx context.Context, a *app, f ingestFlags, opts *kb.BuildOptions) (int, error) {
		if f.Append {
			return a.svc.AddPDF(ctx, path, opts)
		}
		return a.svc.BuildFromPDF(ctx, path, opts)
	}
}

func uriIngest(uri string) ingestFunc {
	return func(ctx context.Context, a *app, f ingestFlags, opts *kb.BuildOptions) (int, error) {
		if f.Append {
			return a.svc.AddURI(ctx, uri, opts)
		}
		return a.svc.BuildFromURI(ctx, uri, opts)
	}
}

func ingest(ctx context.Context, parser *gcmd.Parser, fn ingestFunc) error {
	flags := readIngestFlags(parser)
	opts, err := flags.options()
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if flags.Append {
		if err = a.svc.Load(ctx, flags.Location); err != nil {
			return err
		}
	}
	n, err := fn(ctx, a, flags, opts)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d chunks\n", n)
	return nil
}

func openIndex(ctx context.Context, location string) (*app, error) {
	a, err := newApp(ctx)
	if err != nil {
		return nil, err
	}
	if err = a.svc.Load(ctx, location); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func printHits(hits []kb.Hit) {
	for i, h := range hits {
		fmt.Printf("[%d] score=%.4f %s\n", i+1, h.Document.Score, gjson.MustEncodeString(h.Metadata))
		fmt.Printf("    %s\n", h.Document.Content)
	}
}
