package types

import "time"

// HTTPConfig holds shared HTTP settings used for arXiv requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "markxiv/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on 429/503 responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// Compression selects the codec for disk cache blobs.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// CacheConfig holds settings for both cache tiers.
type CacheConfig struct {
	// MemoryCapacity is the number of artifacts held in memory (default 128).
	MemoryCapacity int `json:"memory_capacity" yaml:"memory_capacity" mapstructure:"memory_capacity"`

	// Dir is the root directory of the disk cache.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// DiskCapBytes bounds the disk cache size. Zero disables the disk tier.
	DiskCapBytes int64 `json:"disk_cap_bytes" yaml:"disk_cap_bytes" mapstructure:"disk_cap_bytes"`

	// SweepInterval is the period of the disk cache sweeper (default 10m).
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval" mapstructure:"sweep_interval"`

	// Compression selects the blob codec: zstd (default) or lz4.
	Compression Compression `json:"compression" yaml:"compression" mapstructure:"compression"`
}

// RawBackend identifies the rendered-document text extractor.
type RawBackend string

const (
	BackendPdftotext  RawBackend = "pdftotext"
	BackendMarkitdown RawBackend = "markitdown"
	BackendPdfcpu     RawBackend = "pdfcpu"
)

// ConversionConfig holds settings for the conversion adapter.
type ConversionConfig struct {
	// Timeout bounds each external converter invocation (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// RawBackend selects the raw text extractor: pdftotext, markitdown or pdfcpu.
	RawBackend RawBackend `json:"raw_backend" yaml:"raw_backend" mapstructure:"raw_backend"`

	// PandocBin and PdftotextBin override the executable names.
	PandocBin    string `json:"pandoc_bin" yaml:"pandoc_bin" mapstructure:"pandoc_bin"`
	PdftotextBin string `json:"pdftotext_bin" yaml:"pdftotext_bin" mapstructure:"pdftotext_bin"`

	// Container runs pandoc and pdftotext inside docker or podman.
	Container bool `json:"container" yaml:"container" mapstructure:"container"`

	// MaxArchiveBytes bounds the total extracted size of a source archive.
	MaxArchiveBytes int64 `json:"max_archive_bytes" yaml:"max_archive_bytes" mapstructure:"max_archive_bytes"`

	// WorkDir is the parent directory for per-request workspaces
	// (default: the system temp directory).
	WorkDir string `json:"work_dir" yaml:"work_dir" mapstructure:"work_dir"`
}

// PipelineConfig holds settings for the resolver.
type PipelineConfig struct {
	// Timeout bounds one full pipeline run on a cache miss (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ServerConfig holds settings for the HTTP serving layer.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// IndexPath optionally overrides the embedded landing page Markdown.
	IndexPath string `json:"index_path" yaml:"index_path" mapstructure:"index_path"`
}

// LogConfig controls the slog handler built by the CLI.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
}

// Config groups all settings loaded by the CLI.
type Config struct {
	HTTP       HTTPConfig       `json:"http" yaml:"http" mapstructure:"http"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" mapstructure:"cache"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}
