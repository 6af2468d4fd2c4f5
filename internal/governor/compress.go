package governor

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// gzipMagic identifies compressed blobs on read. Old uncompressed blobs
// and new compressed ones coexist without a version flag.
var gzipMagic = []byte{0x1f, 0x8b}

// IsCompressed sniffs the gzip magic bytes.
func IsCompressed(data []byte) bool {
	return len(data) >= 2 && data[0] == gzipMagic[0] && data[1] == gzipMagic[1]
}

// CompressResult describes the outcome of a Compress call.
type CompressResult struct {
	Data           []byte
	Compressed     bool
	OriginalSize   int64
	CompressedSize int64
	Ratio          float64
	Elapsed        time.Duration
}

// Compress compresses data when it exceeds the configured threshold.
// Compression failure degrades to the original payload; Compress never
// fails the caller.
func (g *Governor) Compress(data []byte) CompressResult {
	res := CompressResult{
		Data:           data,
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(data)),
		Ratio:          1,
	}
	if g.cfg.CompressionDisabled || int64(len(data)) < g.cfg.CompressionThreshold {
		return res
	}

	start := g.nowFn()

	var buf bytes.Buffer
	level := g.cfg.CompressionLevel
	if level == 0 {
		level = gzip.DefaultCompression
	}
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return res
	}
	if _, err := zw.Write(data); err != nil {
		return res
	}
	if err := zw.Close(); err != nil {
		return res
	}

	res.Elapsed = g.nowFn().Sub(start)
	if buf.Len() >= len(data) {
		// Incompressible payload, keep the original bytes.
		return res
	}

	res.Data = buf.Bytes()
	res.Compressed = true
	res.CompressedSize = int64(buf.Len())
	res.Ratio = float64(res.CompressedSize) / float64(res.OriginalSize)

	g.mu.Lock()
	g.lastRatio = res.Ratio
	g.mu.Unlock()

	if g.cfg.Metrics != nil {
		g.cfg.Metrics.CompressionRatio.Set(res.Ratio)
	}
	return res
}

// Decompress inflates a gzip payload. Unlike Compress, failure here is
// surfaced: it implies data-loss risk on a blob that claims to be
// compressed.
func (g *Governor) Decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("governor: open gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("governor: decompress: %w", err)
	}
	return out, nil
}
