// bb-plot renders the CSV written by bb-scan -sweep as a spectrogram.
// Frequency runs left to right and time top to bottom.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"strconv"
)

var (
	inputFile  = flag.String("i", "", "Input CSV file from bb-scan -sweep")
	outputFile = flag.String("o", "spectrogram.png", "Output PNG file")
	vmin       = flag.Float64("vmin", -110, "RSSI at the bottom of the color scale (dBm)")
	vmax       = flag.Float64("vmax", -40, "RSSI at the top of the color scale (dBm)")
	height     = flag.Int("height", 0, "Output image height (0 = one pixel per sweep)")
	colormap   = flag.String("cmap", "viridis", "Colormap: viridis, turbo, grayscale")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -i spectrum.csv [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate a spectrogram PNG from bb-scan sweep output\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -i input file required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	in, err := os.Open(*inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	sweep, err := readSweep(in, *vmin)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d sweeps, %d bins, %.4f - %.4f MHz\n",
		len(sweep.rows), len(sweep.freqs), sweep.freqs[0], sweep.freqs[len(sweep.freqs)-1])

	img := render(sweep.rows, *height, *vmin, *vmax, lookupColormap(*colormap))

	out, err := os.Create(*outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	b := img.Bounds()
	fmt.Printf("Wrote %dx%d spectrogram to %s (%.0f to %.0f dBm)\n", b.Dx(), b.Dy(), *outputFile, *vmin, *vmax)
	return nil
}

type sweepData struct {
	freqs []float64   // MHz
	rows  [][]float64 // dBm, one row per sweep
}

// readSweep parses the header of bin frequencies and one row of RSSI per
// sweep. Unparseable cells read as fill.
func readSweep(r io.Reader, fill float64) (*sweepData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV file")
	}
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("invalid header: need timestamp and at least one frequency")
	}

	data := &sweepData{freqs: make([]float64, len(header)-1)}
	for i, col := range header[1:] {
		if data.freqs[i], err = strconv.ParseFloat(col, 64); err != nil {
			return nil, fmt.Errorf("invalid frequency in header column %d: %w", i+1, err)
		}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		row := make([]float64, len(data.freqs))
		for i := range row {
			row[i] = fill
			if i+1 < len(record) {
				if v, err := strconv.ParseFloat(record[i+1], 64); err == nil {
					row[i] = v
				}
			}
		}
		data.rows = append(data.rows, row)
	}

	if len(data.rows) == 0 {
		return nil, fmt.Errorf("no data rows in CSV")
	}
	return data, nil
}

func render(rows [][]float64, height int, lo, hi float64, cmap []color.RGBA) *image.RGBA {
	width := len(rows[0])
	if height <= 0 {
		height = len(rows)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := rows[y*len(rows)/height]
		for x, v := range row {
			img.SetRGBA(x, y, shade(cmap, (v-lo)/(hi-lo)))
		}
	}
	return img
}

var colormaps = map[string][]color.RGBA{
	"viridis": {
		{68, 1, 84, 255}, {59, 82, 139, 255}, {33, 145, 140, 255},
		{94, 201, 98, 255}, {253, 231, 37, 255},
	},
	"turbo": {
		{48, 18, 59, 255}, {70, 134, 251, 255}, {26, 228, 182, 255},
		{164, 252, 60, 255}, {251, 185, 56, 255}, {228, 70, 10, 255},
		{122, 4, 3, 255},
	},
	"grayscale": {{0, 0, 0, 255}, {255, 255, 255, 255}},
}

func lookupColormap(name string) []color.RGBA {
	if stops, ok := colormaps[name]; ok {
		return stops
	}
	return colormaps["viridis"]
}

// shade interpolates linearly between colormap stops; t is clamped to [0,1]
func shade(stops []color.RGBA, t float64) color.RGBA {
	switch {
	case t <= 0 || math.IsNaN(t):
		return stops[0]
	case t >= 1:
		return stops[len(stops)-1]
	}
	pos := t * float64(len(stops)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := stops[i], stops[i+1]
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*frac + 0.5)
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}
