package tfjs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/ekisa-team/modelweb/internal/tensor"
	"github.com/ekisa-team/modelweb/internal/xfs"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// Store writes and reads bundles through an abstract file system, so a
// destination can be a local directory or any URL afs understands.
type Store struct {
	fs afs.Service
}

// NewStore returns a store backed by fs, or by the default afs service when fs is nil.
func NewStore(fs afs.Service) *Store {
	if fs == nil {
		fs = afs.New()
	}
	return &Store{fs: fs}
}

// Write removes any previous bundle at dest, writes the shards and finally
// model.json. It returns the names of the files written, in write order.
// Files already written are left in place when a later write fails.
func (s *Store) Write(ctx context.Context, dest string, b *Bundle) ([]string, error) {
	base, err := xfs.ToURL(dest)
	if err != nil {
		return nil, fmt.Errorf("resolve destination %q: %w", dest, err)
	}

	exists, err := s.fs.Exists(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("check destination: %w", err)
	}
	if exists {
		if err := s.clean(ctx, base); err != nil {
			return nil, err
		}
	} else if err := s.fs.Create(ctx, base, dirMode, true); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	var files []string
	for _, group := range b.Manifest.WeightsManifest {
		if err := s.writeShards(ctx, base, group.Paths, b); err != nil {
			return files, err
		}
		files = append(files, group.Paths...)
	}

	if err := ctx.Err(); err != nil {
		return files, err
	}

	descriptor, err := json.Marshal(b.Manifest)
	if err != nil {
		return files, fmt.Errorf("encode %s: %w", ModelFile, err)
	}
	if err := s.fs.Upload(ctx, url.Join(base, ModelFile), fileMode, bytes.NewReader(descriptor)); err != nil {
		return files, fmt.Errorf("write %s: %w", ModelFile, err)
	}

	return append(files, ModelFile), nil
}

// writeShards streams the weight payloads into shards of at most b.shardSize bytes.
func (s *Store) writeShards(ctx context.Context, base string, names []string, b *Bundle) error {
	if len(names) == 0 {
		return nil
	}

	buf := make([]byte, 0, min(b.shardSize, b.Bytes()))
	next := 0

	flush := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := names[next]
		if err := s.fs.Upload(ctx, url.Join(base, name), fileMode, bytes.NewReader(buf)); err != nil {
			return fmt.Errorf("write shard %s: %w", name, err)
		}
		slog.Debug("Shard written", "file", name, "bytes", len(buf))
		next++
		buf = buf[:0]
		return nil
	}

	for _, w := range b.weights {
		for len(w) > 0 {
			room := int(b.shardSize) - len(buf)
			take := min(room, len(w))
			buf = append(buf, w[:take]...)
			w = w[take:]

			if int64(len(buf)) == b.shardSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}

	if len(buf) > 0 {
		return flush()
	}

	return nil
}

// clean deletes model.json and shard files left by an earlier conversion.
func (s *Store) clean(ctx context.Context, base string) error {
	objects, err := s.fs.List(ctx, base)
	if err != nil {
		return fmt.Errorf("list destination: %w", err)
	}

	for _, obj := range objects {
		if obj.IsDir() {
			continue
		}
		name := obj.Name()
		if name != ModelFile && !IsShardName(name) {
			continue
		}
		if err := s.fs.Delete(ctx, url.Join(base, name)); err != nil {
			return fmt.Errorf("remove stale %s: %w", name, err)
		}
		slog.Debug("Removed stale bundle file", "file", name)
	}

	return nil
}

// Read loads model.json from dest.
func (s *Store) Read(ctx context.Context, dest string) (*Manifest, error) {
	base, err := xfs.ToURL(dest)
	if err != nil {
		return nil, err
	}

	data, err := s.fs.DownloadWithURL(ctx, url.Join(base, ModelFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ModelFile, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptBundle, ModelFile, err)
	}

	return &m, nil
}

// Weight is a manifest entry with its payload cut out of the shard stream.
type Weight struct {
	Entry WeightEntry
	Data  []byte
}

// Tensor returns the weight as a tensor in its manifest dtype, undoing quantization.
func (w Weight) Tensor() (*tensor.Tensor, error) {
	q := w.Entry.Quantization
	if q == nil {
		return &tensor.Tensor{Name: w.Entry.Name, DType: w.Entry.DType, Shape: w.Entry.Shape, Data: w.Data}, nil
	}

	stored := &tensor.Quantized{DType: q.DType, Data: w.Data}
	if q.Min != nil {
		stored.Min = *q.Min
	}
	if q.Scale != nil {
		stored.Scale = *q.Scale
	}

	values, err := tensor.Dequantize(stored)
	if err != nil {
		return nil, fmt.Errorf("weight %q: %w", w.Entry.Name, err)
	}

	return tensor.FromFloat32s(w.Entry.Name, w.Entry.Shape, values), nil
}

// ReadWeights loads the manifest and splits every group's shard stream into its weights.
func (s *Store) ReadWeights(ctx context.Context, dest string) (*Manifest, []Weight, error) {
	m, err := s.Read(ctx, dest)
	if err != nil {
		return nil, nil, err
	}

	base, err := xfs.ToURL(dest)
	if err != nil {
		return nil, nil, err
	}

	var weights []Weight
	for _, group := range m.WeightsManifest {
		var stream []byte
		for _, p := range group.Paths {
			data, err := s.fs.DownloadWithURL(ctx, url.Join(base, p))
			if err != nil {
				return nil, nil, fmt.Errorf("%w: shard %s: %v", ErrCorruptBundle, p, err)
			}
			stream = append(stream, data...)
		}

		if want := group.Bytes(); int64(len(stream)) != want {
			return nil, nil, fmt.Errorf("%w: shards hold %d bytes, manifest expects %d", ErrCorruptBundle, len(stream), want)
		}

		for _, e := range group.Weights {
			size := e.ByteSize()
			weights = append(weights, Weight{Entry: e, Data: stream[:size]})
			stream = stream[size:]
		}
	}

	return m, weights, nil
}

// Report summarises a verified bundle.
type Report struct {
	Format  string
	Weights int
	Shards  int
	Bytes   int64
}

// Verify checks that every shard named by model.json exists and that shard
// sizes add up to the bytes the manifest entries require.
func (s *Store) Verify(ctx context.Context, dest string) (*Report, error) {
	m, err := s.Read(ctx, dest)
	if err != nil {
		return nil, err
	}

	base, err := xfs.ToURL(dest)
	if err != nil {
		return nil, err
	}

	report := &Report{Format: m.Format}
	for i, group := range m.WeightsManifest {
		var have int64
		for _, p := range group.Paths {
			if path.Base(p) != p || !IsShardName(p) {
				return nil, fmt.Errorf("%w: unexpected shard path %q", ErrCorruptBundle, p)
			}
			obj, err := s.fs.Object(ctx, url.Join(base, p))
			if err != nil {
				return nil, fmt.Errorf("%w: shard %s: %v", ErrCorruptBundle, p, err)
			}
			have += obj.Size()
		}

		want := group.Bytes()
		if have != want {
			return nil, fmt.Errorf("%w: group %d shards hold %d bytes, manifest expects %d", ErrCorruptBundle, i+1, have, want)
		}

		report.Weights += len(group.Weights)
		report.Shards += len(group.Paths)
		report.Bytes += have
	}

	return report, nil
}
