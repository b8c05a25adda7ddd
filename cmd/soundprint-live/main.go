package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cwbudde/algo-soundprint/capture"
	"github.com/cwbudde/algo-soundprint/engine"
	"github.com/cwbudde/algo-soundprint/interact"
	"github.com/cwbudde/algo-soundprint/preset"
	"github.com/cwbudde/algo-soundprint/timeline"
)

const playerBufferLatency = 60 * time.Millisecond

// Game hosts one engine in an ebiten window.
type Game struct {
	e      *engine.Engine
	outDir string
	status string
	w, h   int
	debug  bool
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		switch g.e.State() {
		case timeline.Idle:
			if err := g.e.Start(); err != nil {
				g.status = err.Error()
			}
		case timeline.Running:
			g.e.Stop()
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.e.Reset()
		g.status = "reset"
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF1) {
		g.debug = !g.debug
	}

	px, py := ebiten.CursorPosition()
	pressed := ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	if ids := ebiten.AppendTouchIDs(nil); len(ids) > 0 {
		px, py = ebiten.TouchPosition(ids[0])
		pressed = true
	}
	x, y := interact.Normalize(float64(px), float64(py), float64(g.w), float64(g.h))
	g.e.OnPointerEvent(x, y, pressed)

	g.e.Frame(1 / float64(ebiten.TPS()))
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	img := g.e.Surface()
	if img.Rect.Dx() == g.w && img.Rect.Dy() == g.h {
		screen.WritePixels(img.Pix)
	}
	if !g.debug {
		return
	}
	rows := g.e.ActiveRows()
	touched := 0
	for _, r := range rows {
		if r >= 0 {
			touched++
		}
	}
	msg := fmt.Sprintf("%s %.0f%%  remaining %.1fs  bands %d/36\nFPS %.1f\n%s",
		g.e.State(), 100*g.e.Progress(), g.e.Remaining().Seconds(), touched, ebiten.ActualFPS(), g.status)
	ebitenutil.DebugPrint(screen, msg)
}

// Layout follows the window so the surface always matches the screen.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != g.w || outsideHeight != g.h {
		g.w, g.h = max(1, outsideWidth), max(1, outsideHeight)
		g.e.Resize(g.w, g.h)
	}
	return g.w, g.h
}

func (g *Game) complete(snap engine.Snapshot, a *capture.Artifact, still []byte) {
	stamp := time.Now().Format("20060102-150405")
	base := filepath.Join(g.outDir, "soundprint-"+stamp)
	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		g.status = err.Error()
		return
	}
	if err := os.WriteFile(base+".png", still, 0o644); err != nil {
		g.status = err.Error()
		return
	}
	if a == nil {
		g.status = fmt.Sprintf("saved %s.png (no recording), %d bands", base, snap.Touched)
		return
	}
	if err := os.WriteFile(base+".mkv", a.Blob, 0o644); err != nil {
		g.status = err.Error()
		return
	}
	g.status = fmt.Sprintf("saved %s.{png,mkv}, %d bands", base, snap.Touched)
}

func main() {
	input := flag.String("input", "", "Audio file to perform (WAV or MP3)")
	presetPath := flag.String("preset", "", "Preset JSON file path (optional)")
	outDir := flag.String("out-dir", ".", "Directory for recordings and stills")
	width := flag.Int("width", 0, "Window width override")
	height := flag.Int("height", 0, "Window height override")
	noCapture := flag.Bool("no-capture", false, "Disable recording")
	verbose := flag.Bool("v", false, "Verbose engine logging")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Error: -input is required")
		os.Exit(1)
	}
	raw, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %q: %v\n", *input, err)
		os.Exit(1)
	}

	cfg := engine.NewDefaultConfig()
	if *presetPath != "" {
		cfg, err = preset.LoadJSON(*presetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading preset %q: %v\n", *presetPath, err)
			os.Exit(1)
		}
	}
	if *width > 0 {
		cfg.Width = *width
	}
	if *height > 0 {
		cfg.Height = *height
	}
	if *noCapture {
		cfg.CaptureEnabled = false
	}
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	e, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
		os.Exit(1)
	}
	g := &Game{e: e, outDir: *outDir, w: cfg.Width, h: cfg.Height, debug: true, status: "loading " + *input}
	e.OnComplete = g.complete
	e.LoadAsync(context.Background(), raw, func(err error) {
		if err != nil {
			g.status = "load failed: " + err.Error()
			return
		}
		g.status = "ready, press space"
	})

	player, err := audio.NewContext(cfg.SampleRate).NewPlayer(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating audio player: %v\n", err)
		os.Exit(1)
	}
	player.SetBufferSize(playerBufferLatency)
	player.Play()

	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowTitle("Sound Print")
	if err := ebiten.RunGame(g); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
