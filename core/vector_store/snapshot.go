package vector_store

import (
	"bytes"
	"context"
	"io"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/core/file_store"
	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
)

const (
	snapshotFile    = "index.kbx"
	snapshotVersion = 1
)

// snapshot 本地索引的持久化格式：sonic JSON 外层 zstd 压缩
type snapshot struct {
	Version int          `json:"version"`
	Dim     int          `json:"dim"`
	Entries []localEntry `json:"entries"`
}

func encodeSnapshot(snap *snapshot) ([]byte, error) {
	raw, err := sonic.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorPersist, err, "failed to encode index snapshot")
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorPersist, err, "failed to create zstd writer")
	}
	if _, err = enc.Write(raw); err != nil {
		_ = enc.Close()
		return nil, errors.Wrap(errors.ErrVectorPersist, err, "failed to compress index snapshot")
	}
	if err = enc.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrVectorPersist, err, "failed to compress index snapshot")
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (*snapshot, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorLoad, err, "failed to create zstd reader")
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorLoad, err, "failed to decompress index snapshot")
	}

	var snap snapshot
	if err = sonic.Unmarshal(raw, &snap); err != nil {
		return nil, errors.Wrap(errors.ErrVectorLoad, err, "failed to decode index snapshot")
	}
	if snap.Version != snapshotVersion {
		return nil, errors.Newf(errors.ErrVectorLoad, "unsupported snapshot version %d", snap.Version)
	}
	for i, e := range snap.Entries {
		if len(e.Vector) != snap.Dim {
			return nil, errors.Newf(errors.ErrVectorLoad, "corrupt snapshot: entry %d has dimension %d, expected %d", i, len(e.Vector), snap.Dim)
		}
	}
	return &snap, nil
}

func writeSnapshot(ctx context.Context, location string, rustfs *config.RustFSConfig, data []byte) error {
	store, err := file_store.NewStore(ctx, location, rustfs)
	if err != nil {
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to open storage %s", location)
	}
	return store.Put(ctx, snapshotFile, bytes.NewReader(data), int64(len(data)))
}

func readSnapshot(ctx context.Context, location string, rustfs *config.RustFSConfig) ([]byte, error) {
	store, err := file_store.NewStore(ctx, location, rustfs)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrVectorLoad, err, "failed to open storage %s", location)
	}
	rc, err := store.Get(ctx, snapshotFile)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrVectorLoad, err, "failed to read index from %s", location)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrVectorLoad, err, "failed to read index from %s", location)
	}
	return data, nil
}
