package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/wudi/docketkit/ocr"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestRegistered(t *testing.T) {
	found := false
	for _, name := range ocr.Engines() {
		if name == "tesseract" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tesseract engine not registered: %v", ocr.Engines())
	}
}

func TestTesseractEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 240, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString("SERVICE FOODS")

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	in, err := ocr.NewInput("d1", "docket.png", buf.Bytes(), ocr.WithDPI(300))
	if err != nil {
		t.Fatalf("NewInput() error = %v", err)
	}

	eng := NewTesseractEngine(ocr.TesseractConfig{Languages: []string{"eng"}}, nil)
	res, err := eng.Recognize(context.Background(), in)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	got := strings.ToUpper(res.PlainText)
	if !strings.Contains(got, "SERVICE") {
		t.Fatalf("unexpected OCR output: %q", res.PlainText)
	}
	if res.Engine != "tesseract" || res.InputID != "d1" {
		t.Fatalf("unexpected result metadata: %+v", res)
	}
}
