package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fitskit/pkg/fits"
)

func lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List the HDUs of a FITS file",
		ArgsUsage: "<path.fits>",
		Flags:     commonFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyConfig(c, loadConfig())
			f, err := openArg(c)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			if jsonOut {
				return dumpJSON(hduSummaries(f))
			}
			for i, hdu := range f.HDUs() {
				fmt.Printf("%3d  %-12s %-4s %-14s %s\n",
					i, hdu.Kind(), hdu.Bitpix(), formatAxes(hdu.Axes()), hdu.Name())
			}
			return nil
		},
	}
}

func headerCmd() *cli.Command {
	var hduIndex int64
	return &cli.Command{
		Name:      "header",
		Usage:     "Dump the header records of one HDU",
		ArgsUsage: "<path.fits>",
		Flags: append(commonFlags(), &cli.Int64Flag{
			Name:        "hdu",
			Usage:       "HDU index",
			Destination: &hduIndex,
		}),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyConfig(c, loadConfig())
			f, err := openArg(c)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			hdu := f.HDU(int(hduIndex))
			if hdu == nil {
				return fmt.Errorf("HDU %d out of range (%d HDUs)", hduIndex, f.NHDUs())
			}
			if jsonOut {
				return dumpJSON(headerRecords(hdu.Header()))
			}
			for _, r := range hdu.Header().Records() {
				printRecord(r)
			}
			return nil
		},
	}
}

func statsCmd() *cli.Command {
	var hduIndex int64
	return &cli.Command{
		Name:      "stats",
		Usage:     "Decode an image HDU and report pixel statistics",
		ArgsUsage: "<path.fits>",
		Flags: append(commonFlags(), &cli.Int64Flag{
			Name:        "hdu",
			Usage:       "HDU index",
			Destination: &hduIndex,
		}),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyConfig(c, loadConfig())
			log := newLogger()
			f, err := openArg(c)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			hdu := f.HDU(int(hduIndex))
			if hdu == nil {
				return fmt.Errorf("HDU %d out of range (%d HDUs)", hduIndex, f.NHDUs())
			}
			log.Debug("decoding image", "hdu", hduIndex, "bitpix", hdu.Bitpix())
			img, err := hdu.Payload().Image()
			if err != nil {
				return err
			}
			minv, maxv, ok := img.Stats()
			if !ok {
				log.Warn("image has no valid pixels", "hdu", hduIndex)
			}

			if jsonOut {
				return dumpJSON(map[string]any{
					"hdu":   hduIndex,
					"dtype": img.DType().String(),
					"shape": img.Shape(),
					"min":   minv,
					"max":   maxv,
				})
			}
			fmt.Printf("hdu=%d dtype=%s shape=%v min=%g max=%g\n",
				hduIndex, img.DType(), img.Shape(), minv, maxv)
			return nil
		},
	}
}

func openArg(c *cli.Command) (*fits.Fits, error) {
	if c.Args().Len() < 1 {
		return nil, fmt.Errorf("usage: fitsinfo %s <path.fits>", c.Name)
	}
	return fits.Open(c.Args().First())
}

func formatAxes(axes []int) string {
	if len(axes) == 0 {
		return "-"
	}
	parts := make([]string, len(axes))
	for i, ax := range axes {
		parts[i] = fmt.Sprintf("%d", ax)
	}
	return strings.Join(parts, "x")
}

func printRecord(r fits.Record) {
	switch {
	case r.IsCommentary():
		fmt.Printf("%-8s %s\n", r.Name, r.Text)
	case r.IsContinue():
		fmt.Printf("%-8s '%s'\n", r.Name, r.Text)
	case r.Comment != "":
		fmt.Printf("%-8s= %-20s / %s\n", r.Name, r.Value, r.Comment)
	default:
		fmt.Printf("%-8s= %s\n", r.Name, r.Value)
	}
}

type hduSummary struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Name   string `json:"name,omitempty"`
	Bitpix int    `json:"bitpix"`
	Axes   []int  `json:"axes"`
}

func hduSummaries(f *fits.Fits) []hduSummary {
	out := make([]hduSummary, f.NHDUs())
	for i, hdu := range f.HDUs() {
		out[i] = hduSummary{
			Index:  i,
			Kind:   hdu.Kind().String(),
			Name:   hdu.Name(),
			Bitpix: int(hdu.Bitpix()),
			Axes:   hdu.Axes(),
		}
	}
	return out
}

type headerRecord struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Value   any    `json:"value,omitempty"`
	Comment string `json:"comment,omitempty"`
	Text    string `json:"text,omitempty"`
}

func headerRecords(h *fits.Header) []headerRecord {
	out := make([]headerRecord, 0, h.Len())
	for _, r := range h.Records() {
		out = append(out, headerRecord{
			Name:    r.Name,
			Kind:    r.Value.Kind.String(),
			Value:   jsonValue(r.Value),
			Comment: r.Comment,
			Text:    r.Text,
		})
	}
	return out
}

// jsonValue maps a record value onto something the JSON encoder accepts;
// complex values become a two-element array.
func jsonValue(v fits.Value) any {
	if c, ok := v.Value.(complex128); ok {
		return []float64{real(c), imag(c)}
	}
	return v.Value
}

func dumpJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
