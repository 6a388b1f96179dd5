package sim

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/observe-l/polarsim/fec"
)

// Channel kinds.
const (
	ChannelAWGN = "awgn"
	ChannelBEC  = "bec"
)

// DecoderConfig selects the decoding engine.
type DecoderConfig struct {
	ListWidth int    `yaml:"list_width"`
	Selection string `yaml:"selection"` // min-metric or crc
	CRC       string `yaml:"crc"`       // polynomial name, empty for none
}

// ChannelConfig is the swept channel. Points are Eb/N0 values in dB for
// awgn and erasure probabilities for bec.
type ChannelConfig struct {
	Kind   string    `yaml:"kind"`
	Points []float64 `yaml:"points"`
}

// Config is one simulation file.
type Config struct {
	Name      string          `yaml:"name"`
	Code      fec.CodecConfig `yaml:"code"`
	Decoder   DecoderConfig   `yaml:"decoder"`
	Channel   ChannelConfig   `yaml:"channel"`
	Precision string          `yaml:"precision"` // float32 or float64
	Workers   int             `yaml:"workers"`
	Seed      int64           `yaml:"seed"`

	// A point stops after MaxFrames frames or MinFrameErrors frame errors,
	// whichever comes first. MinFrameErrors below 1 disables the second
	// rule. ApplyDefaults turns a zero MinFrameErrors into 100, so a file
	// disables the rule with a negative value.
	MaxFrames      int64 `yaml:"max_frames"`
	MinFrameErrors int64 `yaml:"min_frame_errors"`
}

// LoadConfig reads, defaults and validates a YAML simulation file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", fec.ErrConfiguration, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = fmt.Sprintf("polar_N%d_K%d", c.Code.N, c.Code.K)
	}
	if c.Code.Method == "" {
		c.Code.Method = string(fec.MethodGA)
	}
	if c.Decoder.ListWidth == 0 {
		c.Decoder.ListWidth = 1
	}
	c.Channel.Kind = strings.ToLower(strings.TrimSpace(c.Channel.Kind))
	if c.Channel.Kind == "" {
		c.Channel.Kind = ChannelAWGN
	}
	if c.Precision == "" {
		c.Precision = "float32"
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxFrames == 0 {
		c.MaxFrames = 10000
	}
	if c.MinFrameErrors == 0 {
		c.MinFrameErrors = 100
	}
}

// Validate checks everything the codec does not check itself.
func (c *Config) Validate() error {
	if len(c.Channel.Points) == 0 {
		return fmt.Errorf("%w: no channel points", fec.ErrConfiguration)
	}
	if c.Workers < 1 || c.MaxFrames < 1 {
		return fmt.Errorf("%w: workers=%d max_frames=%d min_frame_errors=%d", fec.ErrConfiguration, c.Workers, c.MaxFrames, c.MinFrameErrors)
	}
	if c.Decoder.ListWidth < 1 {
		return fmt.Errorf("%w: list width %d", fec.ErrConfiguration, c.Decoder.ListWidth)
	}
	switch c.Precision {
	case "float32", "float64":
	default:
		return fmt.Errorf("%w: precision %q", fec.ErrAllocation, c.Precision)
	}
	sel, err := fec.ParseSelection(c.Decoder.Selection)
	if err != nil {
		return err
	}
	crcBits := 0
	if c.Decoder.CRC != "" {
		crc, err := fec.NewCRC(c.Decoder.CRC)
		if err != nil {
			return err
		}
		crcBits = crc.Size()
	} else if sel == fec.SelectCRC {
		return fmt.Errorf("%w: crc selection without a crc polynomial", fec.ErrConfiguration)
	}
	if c.Code.K <= crcBits {
		return fmt.Errorf("%w: K=%d leaves no information bits after %d crc bits", fec.ErrConfiguration, c.Code.K, crcBits)
	}
	method, err := fec.ParseMethod(c.Code.Method)
	if err != nil {
		return err
	}
	switch c.Channel.Kind {
	case ChannelAWGN:
	case ChannelBEC:
		for _, p := range c.Channel.Points {
			if !(p > 0 && p < 1) {
				return fmt.Errorf("%w: erasure probability %g", fec.ErrConfiguration, p)
			}
		}
		if (method == fec.MethodGA || method == fec.MethodBhattacharyya) && c.Code.Sigma == 0 {
			return fmt.Errorf("%w: %s construction needs design_sigma on an erasure channel", fec.ErrConfiguration, method)
		}
	default:
		return fmt.Errorf("%w: channel kind %q", fec.ErrAllocation, c.Channel.Kind)
	}
	return nil
}

// InfoBits is K minus the crc bits.
func (c *Config) InfoBits() int {
	if c.Decoder.CRC == "" {
		return c.Code.K
	}
	crc, err := fec.NewCRC(c.Decoder.CRC)
	if err != nil {
		return c.Code.K
	}
	return c.Code.K - crc.Size()
}
