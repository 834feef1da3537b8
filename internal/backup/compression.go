package backup

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionStats contains statistics about compression operations
type CompressionStats struct {
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm"`
	Level            int             `json:"level"`
	Duration         time.Duration   `json:"duration"`
}

// Compressor interface defines compression operations
type Compressor interface {
	Compress(data []byte, level int) ([]byte, *CompressionStats, error)
	Decompress(data []byte) ([]byte, error)
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	GetAlgorithm() CompressionType
	GetDefaultLevel() int
	GetMaxLevel() int
	GetMinLevel() int
}

// compressionExtensions maps algorithms to artifact filename suffixes
var compressionExtensions = map[CompressionType]string{
	CompressionTypeGzip: ".gz",
	CompressionTypeLZ4:  ".lz4",
	CompressionTypeZstd: ".zst",
}

// CompressionExtension returns the filename suffix for an algorithm, or ""
// for uncompressed artifacts
func CompressionExtension(algorithm CompressionType) string {
	return compressionExtensions[algorithm]
}

// CompressionTypeForPath infers the compression algorithm from an artifact
// filename suffix
func CompressionTypeForPath(path string) CompressionType {
	for algorithm, ext := range compressionExtensions {
		if strings.HasSuffix(path, ext) {
			return algorithm
		}
	}
	return CompressionTypeNone
}

// CompressionManager manages compression operations
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a new compression manager
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		compressors: make(map[CompressionType]Compressor),
	}

	// Register available compressors
	cm.compressors[CompressionTypeGzip] = &GzipCompressor{}
	cm.compressors[CompressionTypeLZ4] = &LZ4Compressor{}
	cm.compressors[CompressionTypeZstd] = &ZstdCompressor{}

	return cm
}

// Compress compresses data using the specified algorithm and level
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType, level int) ([]byte, *CompressionStats, error) {
	if algorithm == CompressionTypeNone {
		return data, &CompressionStats{
			OriginalSize:     int64(len(data)),
			CompressedSize:   int64(len(data)),
			CompressionRatio: 1.0,
			Algorithm:        CompressionTypeNone,
			Level:            0,
			Duration:         0,
		}, nil
	}

	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}

	return compressor.Compress(data, clampLevel(compressor, level))
}

// Decompress decompresses data using the specified algorithm
func (cm *CompressionManager) Decompress(data []byte, algorithm CompressionType) ([]byte, error) {
	if algorithm == CompressionTypeNone {
		return data, nil
	}

	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}

	return compressor.Decompress(data)
}

// CompressFile streams src into a sibling file with the algorithm suffix
// appended and removes the original on success. Returns the new path.
// Directory artifacts are rejected; callers skip them.
func (cm *CompressionManager) CompressFile(src string, algorithm CompressionType, level int) (string, *CompressionStats, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", nil, NewCompressionError(fmt.Sprintf("artifact %s is not readable", src), err)
	}
	if info.IsDir() {
		return "", nil, NewCompressionError(fmt.Sprintf("artifact %s is a directory and cannot be compressed", src), nil)
	}

	if algorithm == CompressionTypeNone {
		return src, &CompressionStats{
			OriginalSize:     info.Size(),
			CompressedSize:   info.Size(),
			CompressionRatio: 1.0,
			Algorithm:        CompressionTypeNone,
		}, nil
	}

	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return "", nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}

	start := time.Now()
	dst := src + compressionExtensions[algorithm]

	if err := cm.streamCompress(compressor, src, dst, clampLevel(compressor, level)); err != nil {
		os.Remove(dst)
		return "", nil, err
	}

	compressedInfo, err := os.Stat(dst)
	if err != nil {
		os.Remove(dst)
		return "", nil, NewCompressionError("failed to stat compressed artifact", err)
	}

	if err := os.Remove(src); err != nil {
		return "", nil, NewCompressionError(fmt.Sprintf("failed to remove original artifact %s", src), err)
	}

	return dst, &CompressionStats{
		OriginalSize:     info.Size(),
		CompressedSize:   compressedInfo.Size(),
		CompressionRatio: CalculateCompressionRatio(info.Size(), compressedInfo.Size()),
		Algorithm:        algorithm,
		Level:            clampLevel(compressor, level),
		Duration:         time.Since(start),
	}, nil
}

func (cm *CompressionManager) streamCompress(compressor Compressor, src, dst string, level int) error {
	in, err := os.Open(src)
	if err != nil {
		return NewCompressionError(fmt.Sprintf("failed to open artifact %s", src), err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return NewCompressionError(fmt.Sprintf("failed to create compressed artifact %s", dst), err)
	}

	writer, err := compressor.NewWriter(out, level)
	if err != nil {
		out.Close()
		return err
	}

	if _, err := io.Copy(writer, in); err != nil {
		writer.Close()
		out.Close()
		return NewCompressionError("failed to compress artifact", err)
	}

	if err := writer.Close(); err != nil {
		out.Close()
		return NewCompressionError("failed to finalize compressed artifact", err)
	}

	return out.Close()
}

// DecompressFile streams src into a sibling file with the algorithm suffix
// stripped and removes the compressed file on success. Returns the new path.
func (cm *CompressionManager) DecompressFile(src string, algorithm CompressionType) (string, error) {
	if algorithm == CompressionTypeNone {
		return src, nil
	}

	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return "", NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}

	ext := compressionExtensions[algorithm]
	if !strings.HasSuffix(src, ext) {
		return "", NewCompressionError(fmt.Sprintf("artifact %s does not carry the %s suffix", src, ext), nil)
	}
	dst := strings.TrimSuffix(src, ext)

	in, err := os.Open(src)
	if err != nil {
		return "", NewCompressionError(fmt.Sprintf("failed to open compressed artifact %s", src), err)
	}
	defer in.Close()

	reader, err := compressor.NewReader(in)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", NewCompressionError(fmt.Sprintf("failed to create artifact %s", dst), err)
	}

	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		os.Remove(dst)
		return "", NewCompressionError("failed to decompress artifact", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", NewCompressionError("failed to finalize artifact", err)
	}

	if err := os.Remove(src); err != nil {
		return "", NewCompressionError(fmt.Sprintf("failed to remove compressed artifact %s", src), err)
	}

	return dst, nil
}

// GetCompressor returns a compressor for the specified algorithm
func (cm *CompressionManager) GetCompressor(algorithm CompressionType) (Compressor, error) {
	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return compressor, nil
}

// GetSupportedAlgorithms returns a list of supported compression algorithms
func (cm *CompressionManager) GetSupportedAlgorithms() []CompressionType {
	algorithms := make([]CompressionType, 0, len(cm.compressors))
	for algorithm := range cm.compressors {
		algorithms = append(algorithms, algorithm)
	}
	return algorithms
}

// CalculateCompressionRatio calculates the compression ratio
func CalculateCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

func clampLevel(compressor Compressor, level int) int {
	if level < compressor.GetMinLevel() || level > compressor.GetMaxLevel() {
		return compressor.GetDefaultLevel()
	}
	return level
}

// GzipCompressor implements gzip compression
type GzipCompressor struct{}

func (gc *GzipCompressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, nil, NewCompressionError("failed to create gzip writer", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, nil, NewCompressionError("failed to write data to gzip writer", err)
	}

	if err := writer.Close(); err != nil {
		return nil, nil, NewCompressionError("failed to close gzip writer", err)
	}

	compressed := buf.Bytes()

	stats := &CompressionStats{
		OriginalSize:     int64(len(data)),
		CompressedSize:   int64(len(compressed)),
		CompressionRatio: CalculateCompressionRatio(int64(len(data)), int64(len(compressed))),
		Algorithm:        CompressionTypeGzip,
		Level:            level,
		Duration:         time.Since(start),
	}

	return compressed, stats, nil
}

func (gc *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewCompressionError("failed to create gzip reader", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewCompressionError("failed to decompress gzip data", err)
	}

	return decompressed, nil
}

func (gc *GzipCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip writer", err)
	}
	return writer, nil
}

func (gc *GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	reader, err := gzip.NewReader(r)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip reader", err)
	}
	return reader, nil
}

func (gc *GzipCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeGzip
}

func (gc *GzipCompressor) GetDefaultLevel() int {
	return gzip.DefaultCompression
}

func (gc *GzipCompressor) GetMaxLevel() int {
	return gzip.BestCompression
}

func (gc *GzipCompressor) GetMinLevel() int {
	return gzip.BestSpeed
}

// LZ4Compressor implements LZ4 compression
type LZ4Compressor struct{}

func (lc *LZ4Compressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	var buf bytes.Buffer
	writer, err := lc.NewWriter(&buf, level)
	if err != nil {
		return nil, nil, err
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, nil, NewCompressionError("failed to write data to LZ4 writer", err)
	}

	if err := writer.Close(); err != nil {
		return nil, nil, NewCompressionError("failed to close LZ4 writer", err)
	}

	compressed := buf.Bytes()

	stats := &CompressionStats{
		OriginalSize:     int64(len(data)),
		CompressedSize:   int64(len(compressed)),
		CompressionRatio: CalculateCompressionRatio(int64(len(data)), int64(len(compressed))),
		Algorithm:        CompressionTypeLZ4,
		Level:            level,
		Duration:         time.Since(start),
	}

	return compressed, stats, nil
}

func (lc *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewCompressionError("failed to decompress LZ4 data", err)
	}

	return decompressed, nil
}

func (lc *LZ4Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)

	// LZ4 has limited level options - use fast or high compression
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, NewCompressionError("failed to set LZ4 high compression", err)
		}
	}

	return writer, nil
}

func (lc *LZ4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lc *LZ4Compressor) GetAlgorithm() CompressionType {
	return CompressionTypeLZ4
}

func (lc *LZ4Compressor) GetDefaultLevel() int {
	return 1 // Fast compression
}

func (lc *LZ4Compressor) GetMaxLevel() int {
	return 12
}

func (lc *LZ4Compressor) GetMinLevel() int {
	return 1
}

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct{}

func (zc *ZstdCompressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdEncoderLevel(level)))
	if err != nil {
		return nil, nil, NewCompressionError("failed to create zstd encoder", err)
	}
	defer encoder.Close()

	compressed := encoder.EncodeAll(data, make([]byte, 0, len(data)))

	stats := &CompressionStats{
		OriginalSize:     int64(len(data)),
		CompressedSize:   int64(len(compressed)),
		CompressionRatio: CalculateCompressionRatio(int64(len(data)), int64(len(compressed))),
		Algorithm:        CompressionTypeZstd,
		Level:            level,
		Duration:         time.Since(start),
	}

	return compressed, stats, nil
}

func (zc *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, NewCompressionError("failed to create zstd decoder", err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, NewCompressionError("failed to decompress zstd data", err)
	}

	return decompressed, nil
}

func (zc *ZstdCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdEncoderLevel(level)))
	if err != nil {
		return nil, NewCompressionError("failed to create zstd encoder", err)
	}
	return encoder, nil
}

func (zc *ZstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, NewCompressionError("failed to create zstd decoder", err)
	}
	return decoder.IOReadCloser(), nil
}

func (zc *ZstdCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeZstd
}

func (zc *ZstdCompressor) GetDefaultLevel() int {
	return 3 // Balanced compression
}

func (zc *ZstdCompressor) GetMaxLevel() int {
	return 22
}

func (zc *ZstdCompressor) GetMinLevel() int {
	return 1
}

// zstdEncoderLevel maps a numeric level onto the encoder speed tiers
func zstdEncoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
