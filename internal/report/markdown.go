// Package report renders simulation results as markdown tables and JSON lines.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/observe-l/polarsim/internal/sim"
)

// WriteMarkdown writes one table with a row per channel point.
func WriteMarkdown(w io.Writer, res *sim.Result) error {
	cfg := res.Config
	var b strings.Builder
	fmt.Fprintf(&b, "# Polar BFER Report: %s\n\n", res.Name)
	fmt.Fprintf(&b, "Generated: %s\n\n", res.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Run: `%s`\n", res.RunID)
	fmt.Fprintf(&b, "- Code: N=%d, K=%d, N_pct=%d, construction %s\n", cfg.Code.N, cfg.Code.K, npct(cfg), strings.ToUpper(cfg.Code.Method))
	fmt.Fprintf(&b, "- Decoder: %s\n", decoderName(cfg))
	fmt.Fprintf(&b, "- Channel: %s, %s\n\n", strings.ToUpper(cfg.Channel.Kind), cfg.Precision)

	head := "Eb/N0 (dB)"
	if cfg.Channel.Kind == sim.ChannelBEC {
		head = "Erasure p"
	}
	fmt.Fprintf(&b, "| %s | Sigma | Frames | Bit Errors | Frame Errors | BER | FER | Time (ms) |\n", head)
	fmt.Fprintf(&b, "|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, p := range res.Points {
		fmt.Fprintf(&b, "| %.3f | %.4f | %d | %d | %d | %.3e | %.3e | %d |\n",
			p.Point, p.Sigma, p.Frames, p.BitErrors, p.FrameErrors, p.BER(), p.FER(), p.Elapsed.Milliseconds())
	}
	fmt.Fprintf(&b, "\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func npct(cfg sim.Config) int {
	if cfg.Code.NPct == 0 {
		return cfg.Code.N
	}
	return cfg.Code.NPct
}

func decoderName(cfg sim.Config) string {
	op := cfg.Code.Operator
	if op == "" {
		op = "minsum"
	}
	name := fmt.Sprintf("SC (%s)", op)
	if cfg.Decoder.ListWidth > 1 || strings.EqualFold(cfg.Decoder.Selection, "crc") {
		name = fmt.Sprintf("SCL L=%d (%s)", cfg.Decoder.ListWidth, op)
	}
	if cfg.Decoder.CRC != "" {
		name += ", CRC " + cfg.Decoder.CRC
	}
	return name
}
