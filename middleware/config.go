package middleware

import (
	"github.com/samber/lo"

	"github.com/lk2023060901/zeus-compress-go/internal/compress/codec"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/merr"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/typeutil"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/viper"
)

const (
	// DefaultMinSize 为默认的压缩阈值（字节）。
	// 低于一个 MTU 量级的响应压缩收益抵不过编码开销。
	DefaultMinSize = 860

	// configKey 为配置文件中本中间件的节名。
	configKey = "compress"
)

// Config 为压缩中间件的全部可配置项，可由 YAML/JSON 文件加载。
type Config struct {
	// MinSize 为启用压缩的最小响应体字节数。
	MinSize int `mapstructure:"minSize" json:"minSize"`

	// Codecs 为启用的算法 token 列表（gzip/br/zstd），空表示全部启用。
	Codecs []string `mapstructure:"codecs" json:"codecs"`

	// GzipLevel 为 gzip 压缩级别，有效范围 [-2, 9]：
	// 1-9 为速度到压缩率的梯度，-2 为仅 Huffman 编码，
	// -1 与 0 都表示库默认级别。受零值约定限制，
	// gzip 的存储档（级别 0，不压缩）不可配置。
	GzipLevel int `mapstructure:"gzipLevel" json:"gzipLevel"`
	// BrotliQuality 为 brotli 质量参数（1-11），0 表示库默认质量。
	// 受零值约定限制，质量 0（最快档）不可配置，最小可配值为 1。
	BrotliQuality int `mapstructure:"brotliQuality" json:"brotliQuality"`
	// ZstdFastest 为 true 时 zstd 偏向速度而不是压缩率。
	ZstdFastest bool `mapstructure:"zstdFastest" json:"zstdFastest"`
	// ZstdConcurrency 为 zstd 编码并发度，0 表示单并发。
	ZstdConcurrency int `mapstructure:"zstdConcurrency" json:"zstdConcurrency"`

	// FlushContentTypes 为额外触发逐块冲刷的媒体类型。
	FlushContentTypes []string `mapstructure:"flushContentTypes" json:"flushContentTypes"`
	// FlushHeaders 为触发逐块冲刷的头名单，头值为 no 时生效。
	FlushHeaders []string `mapstructure:"flushHeaders" json:"flushHeaders"`

	// PoolSize 大于 0 时启用进程级共享压缩协程池，限制压缩并发总量。
	PoolSize int `mapstructure:"poolSize" json:"poolSize"`
}

// DefaultConfig 返回默认配置：三种算法全开，阈值 860 字节，
// 冲刷规则沿用 X-Accel-Buffering 约定。
func DefaultConfig() Config {
	return Config{
		MinSize:      DefaultMinSize,
		FlushHeaders: []string{"X-Accel-Buffering"},
	}
}

// ConfigFromFile 从 YAML/JSON 文件加载配置。
// 文件包含 compress 节时取该节，否则按整个文件解析；
// 未出现的字段保持默认值。
func ConfigFromFile(path string) (Config, error) {
	v := viper.New()
	if err := v.LoadFile(path); err != nil {
		return Config{}, merr.WrapErrConfigLoad(err, path)
	}

	cfg := DefaultConfig()
	var err error
	if v.IsSet(configKey) {
		err = v.UnmarshalKey(configKey, &cfg)
	} else {
		err = v.Unmarshal(&cfg)
	}
	if err != nil {
		return Config{}, merr.WrapErrConfigLoad(err, path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查配置合法性。
func (c Config) Validate() error {
	if c.MinSize <= 0 {
		return merr.WrapErrConfigInvalidMsg("minSize must be positive, got %d", c.MinSize)
	}
	if c.GzipLevel < -2 || c.GzipLevel > 9 {
		return merr.WrapErrConfigInvalidMsg("gzipLevel out of range [-2, 9]: %d", c.GzipLevel)
	}
	if c.BrotliQuality < 0 || c.BrotliQuality > 11 {
		return merr.WrapErrConfigInvalidMsg("brotliQuality out of range [0, 11]: %d", c.BrotliQuality)
	}
	if c.ZstdConcurrency < 0 {
		return merr.WrapErrConfigInvalidMsg("zstdConcurrency must not be negative, got %d", c.ZstdConcurrency)
	}
	if c.PoolSize < 0 {
		return merr.WrapErrConfigInvalidMsg("poolSize must not be negative, got %d", c.PoolSize)
	}
	if _, err := c.enabledKinds(); err != nil {
		return err
	}
	return nil
}

// enabledKinds 把配置的 token 列表解析为算法集合。
func (c Config) enabledKinds() (typeutil.Set[codec.Kind], error) {
	if len(c.Codecs) == 0 {
		return typeutil.NewSet(codec.Kinds()...), nil
	}

	enabled := typeutil.NewSet[codec.Kind]()
	for _, token := range c.Codecs {
		kind, ok := codec.KindFromToken(token)
		if !ok {
			return nil, merr.WrapErrConfigInvalidMsg("unknown codec %q, supported: %v",
				token, lo.Map(codec.Kinds(), func(k codec.Kind, _ int) string { return k.Token() }))
		}
		enabled.Insert(kind)
	}
	return enabled, nil
}
