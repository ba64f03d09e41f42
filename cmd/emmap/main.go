// Command emmap fetches and decodes EMDB electron-density maps.
//
// Usage:
//
//	emmap fetch 1234
//	emmap fetch EMD-1234 --slice-axis 2 --slice-index 32 --out slice.png
//	emmap info emd_1234.map.gz
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/geal-ai/emmap"
)

var log = logrus.New()

// CLI is the kong command tree.
type CLI struct {
	Debug        bool `help:"Enable debug logging." short:"d"`
	SkipChecksum bool `help:"Skip gzip CRC32/ISIZE verification."`

	Fetch FetchCmd `cmd:"" help:"Download and decode an EMDB entry."`
	Info  InfoCmd  `cmd:"" help:"Decode a local .map.gz file and print its metadata."`

	Version kong.VersionFlag `help:"Show version and exit." short:"v"`
}

// FetchCmd downloads an entry from the archive.
type FetchCmd struct {
	ID         string        `arg:"" help:"EMDB accession, e.g. 1234 or EMD-1234."`
	BaseURL    string        `help:"Archive base URL." default:"https://ftp.ebi.ac.uk/pub/databases/emdb"`
	Timeout    time.Duration `help:"Overall fetch timeout." default:"10m"`
	SliceAxis  int           `help:"Axis for PNG slice export (0..2)." default:"2"`
	SliceIndex int           `help:"Slice index; -1 means the middle section." default:"-1"`
	Out        string        `help:"Write a grayscale PNG slice to this path."`
}

// InfoCmd decodes a local file.
type InfoCmd struct {
	Path string `arg:"" type:"existingfile" help:"Path to a .map.gz file."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("emmap"),
		kong.Description("Streaming decoder for EMDB CCP4/MRC density maps."),
		kong.UsageOnError(),
		kong.Vars{"version": "emmap 0.1.0"},
	)
	if cli.Debug {
		log.SetLevel(logrus.DebugLevel)
	}
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

// Run fetches and decodes one entry.
func (c *FetchCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, c.Timeout)
	defer cancelTimeout()

	client := emmap.NewEMDBClient()
	client.BaseURL = c.BaseURL
	client.HTTPClient.Timeout = c.Timeout
	client.Options.SkipChecksum = cli.SkipChecksum

	url, err := client.MapURL(c.ID)
	if err != nil {
		return err
	}
	log.WithField("url", url).Info("fetching map")

	start := time.Now()
	m, err := client.FetchMap(ctx, c.ID)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"voxels":  m.NumVoxels(),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("decoded")

	printMap(m)

	if c.Out != "" {
		idx := c.SliceIndex
		if idx < 0 {
			idx = m.Size[c.SliceAxis] / 2
		}
		f, err := os.Create(c.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := m.WriteSlicePNG(f, c.SliceAxis, idx); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"path": c.Out, "axis": c.SliceAxis, "index": idx}).Info("wrote slice")
	}
	return nil
}

// Run decodes a local file.
func (c *InfoCmd) Run(cli *CLI) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := emmap.DecodeMap(f, emmap.Options{SkipChecksum: cli.SkipChecksum})
	if err != nil {
		return err
	}
	printMap(m)
	return nil
}

func printMap(m *emmap.DensityMap) {
	fmt.Printf("grid        %d × %d × %d (%d voxels)\n", m.Size[0], m.Size[1], m.Size[2], m.NumVoxels())
	fmt.Printf("start       %v  intervals %v  axes %v\n", m.Start, m.Intervals, m.Axes)
	fmt.Printf("cell        a=%.2f b=%.2f c=%.2f Å  α=%.2f° β=%.2f° γ=%.2f°\n",
		m.CellSize[0], m.CellSize[1], m.CellSize[2],
		m.CellAngles[0], m.CellAngles[1], m.CellAngles[2])
	fmt.Printf("density     min=%g max=%g mean=%g rms=%g\n", m.Min, m.Max, m.Mean, m.RMS)
	fmt.Printf("space group %d  symmetry operators %d\n", m.SpaceGroup, len(m.SymmetryOps))
	sp := m.VoxelSpacing()
	fmt.Printf("spacing     %.3f × %.3f × %.3f Å/voxel\n", sp[0], sp[1], sp[2])
}
