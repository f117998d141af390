package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"roomsign/internal/convert"
	appLog "roomsign/internal/log"
)

// Default capture parameters, a 1080p landscape door display.
const (
	DefaultWidth   = 1920
	DefaultHeight  = 1080
	DefaultTimeout = 30 * time.Second
)

// ReadySelector matches the kiosk page once it shows something other than
// the loading state.
const ReadySelector = `body[data-ready="true"]`

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL of the kiosk page, e.g. "http://127.0.0.1:8080/?r=main".
	URL string

	// OutputPath is where the PNG is written. The file is replaced
	// atomically so /preview.png never serves a partial image.
	OutputPath string

	// Width and Height are the viewport in pixels. Zero means
	// DefaultWidth / DefaultHeight.
	Width  int
	Height int

	// Timeout bounds the entire capture. Zero means DefaultTimeout.
	Timeout time.Duration

	// Monochrome reduces the PNG to black and white for e-paper panels.
	Monochrome bool
	// RawPath, if set, also receives the packed 1bpp plane.
	RawPath string
	// Ink controls the black/white reduction.
	Ink convert.Options
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// KioskPNG renders the kiosk page in headless Chromium, waits for
// ReadySelector and writes a screenshot of the viewport to opts.OutputPath.
func KioskPNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	start := time.Now()
	var shot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Let the last paint settle.
		chromedp.Sleep(250 * time.Millisecond),
		chromedp.CaptureScreenshot(&shot),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := writeOutputs(shot, opts); err != nil {
		return err
	}

	appLog.Info("kiosk capture written",
		"path", opts.OutputPath,
		"bytes", len(shot),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

// writeOutputs stores the screenshot, post-processed as opts asks.
func writeOutputs(shot []byte, opts Options) error {
	if !opts.Monochrome && opts.RawPath == "" {
		if err := writeFileAtomic(opts.OutputPath, shot); err != nil {
			return fmt.Errorf("capture: failed to write PNG: %w", err)
		}
		return nil
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return fmt.Errorf("capture: decode screenshot: %w", err)
	}

	out := shot
	if opts.Monochrome {
		var buf bytes.Buffer
		if err := png.Encode(&buf, convert.Monochrome(img, opts.Ink)); err != nil {
			return fmt.Errorf("capture: encode monochrome PNG: %w", err)
		}
		out = buf.Bytes()
	}
	if err := writeFileAtomic(opts.OutputPath, out); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	if opts.RawPath != "" {
		plane, err := convert.Pack(img, opts.Ink)
		if err != nil {
			return fmt.Errorf("capture: pack plane: %w", err)
		}
		if err := writeFileAtomic(opts.RawPath, plane.Bits); err != nil {
			return fmt.Errorf("capture: failed to write plane: %w", err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".capture-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
