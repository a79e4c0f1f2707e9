// Command edgesnap runs edge detection on still images or recorded
// sessions and writes the edge maps as WebP or PNG.
//
// Usage:
//
//	edgesnap [-config edgeview.yaml] [-o out/] [-format webp|png] input...
//
// Inputs are PNG, JPEG or TGA images, or frame dumps written by
// edgeview -record. A dump produces one image per recorded frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/config"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framedump"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/internal/edgeimg"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/pipeline"
)

const version = "v0.1.0"

// dumpExt marks frame dump inputs.
const dumpExt = ".edgd"

func main() {
	configPath := flag.String("config", "", "YAML configuration file (edge and processing sections are used)")
	outDir := flag.String("o", ".", "Output directory")
	format := flag.String("format", "webp", "Output format: webp, png")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("edgesnap %s\n", version)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one input is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  edgesnap -o edges/ photo.jpg\n")
		fmt.Fprintf(os.Stderr, "  edgesnap -format png session%s\n\n", dumpExt)
		flag.PrintDefaults()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	enc, err := edgeimg.For(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	s, err := newSnapper(cfg, *outDir, enc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.close()

	failed := 0
	for _, in := range flag.Args() {
		n, err := s.snap(context.Background(), in)
		if err != nil {
			slog.Error("edgesnap: input failed", "input", in, "error", err)
			failed++
			continue
		}
		slog.Info("edgesnap: input done", "input", in, "images", n)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// snapper pushes frames through a pipeline synchronously and writes every
// published edge map.
type snapper struct {
	pipe     *pipeline.Pipeline
	consumer *framehandoff.Consumer
	outDir   string
	enc      edgeimg.Encoder
}

func newSnapper(cfg *config.Config, outDir string, enc edgeimg.Encoder) (*snapper, error) {
	pc, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}
	pipe, err := pipeline.New(pc)
	if err != nil {
		return nil, err
	}
	return &snapper{
		pipe:     pipe,
		consumer: pipe.Subscribe("edgesnap"),
		outDir:   outDir,
		enc:      enc,
	}, nil
}

func (s *snapper) close() {
	s.pipe.Stop()
}

// snap processes one input and returns the number of images written.
func (s *snapper) snap(ctx context.Context, in string) (int, error) {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))

	f, err := os.Open(in)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(in), dumpExt) {
		return s.snapDump(ctx, f, base)
	}

	img, err := decodeImage(f, filepath.Ext(in))
	if err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	rf, err := imageToNV21(img, s.pipe)
	if err != nil {
		return 0, err
	}
	if err := s.process(ctx, rf, base); err != nil {
		return 0, err
	}
	return 1, nil
}

// decodeImage picks the decoder from the file extension. The tga package
// registers an empty magic string that matches any input, so
// image.Decode sniffing cannot be used once it is linked in.
func decodeImage(r io.Reader, ext string) (image.Image, error) {
	switch strings.ToLower(ext) {
	case ".png":
		return png.Decode(r)
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	case ".tga":
		return tga.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported input %q (want .png, .jpg, .tga or %s)", ext, dumpExt)
	}
}

func (s *snapper) snapDump(ctx context.Context, r io.Reader, base string) (int, error) {
	dump, err := framedump.NewReader(r)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		rf, err := dump.Next(s.pipe)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := s.process(ctx, rf, fmt.Sprintf("%s_%05d", base, n)); err != nil {
			return n, err
		}
		n++
	}
}

func (s *snapper) process(ctx context.Context, rf *frame.RawFrame, name string) error {
	if _, err := s.pipe.Process(ctx, rf); err != nil {
		return err
	}
	pf, ok := s.consumer.ConsumeLatest()
	if !ok {
		return fmt.Errorf("no edge map published for %s", name)
	}

	path := filepath.Join(s.outDir, name+s.enc.Ext)
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.enc.Encode(out, pf.Edges); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	slog.Debug("edgesnap: wrote edge map",
		"path", path,
		"size", fmt.Sprintf("%dx%d", pf.Edges.Width, pf.Edges.Height),
		"edges", pf.Edges.Count(),
	)
	return out.Close()
}
