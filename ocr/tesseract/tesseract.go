// Package tesseract provides a local OCR engine backed by the Tesseract C
// library through gosseract. Importing the package registers the
// "tesseract" engine with the ocr registry.
package tesseract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/wudi/docketkit/imaging"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/ocr"
)

func init() {
	ocr.Register("tesseract", func(_ context.Context, cfg ocr.Config, log observability.Logger) (ocr.Engine, error) {
		return NewTesseractEngine(cfg.Tesseract, log), nil
	})
}

// TesseractEngine implements Engine and BatchEngine using the gosseract
// client.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
	defaults      ocr.TesseractConfig
	log           observability.Logger
}

// NewTesseractEngine constructs a Tesseract-backed OCR engine. Languages and
// PSM from cfg apply to inputs that do not set their own.
func NewTesseractEngine(cfg ocr.TesseractConfig, log observability.Logger) *TesseractEngine {
	return &TesseractEngine{
		clientFactory: gosseract.NewClient,
		defaults:      cfg,
		log:           observability.OrNop(log),
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input.
func (e *TesseractEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	c := e.clientFactory()
	defer c.Close()
	return e.recognizeWithClient(ctx, c, in)
}

// RecognizeBatch processes inputs sequentially with a fresh client each, so
// per-input variables never leak between dockets.
func (e *TesseractEngine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := e.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *TesseractEngine) recognizeWithClient(ctx context.Context, c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	data := in.Image
	// Leptonica cannot read WebP on every install.
	if in.Format == ocr.ImageFormatWebP {
		converted, err := imaging.NormalizePNG(data)
		if err != nil {
			return ocr.Result{}, fmt.Errorf("convert webp: %w", err)
		}
		data = converted
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	langs := in.Languages
	if len(langs) == 0 {
		langs = e.defaults.Languages
	}
	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	if e.defaults.PSM > 0 {
		if _, ok := in.Metadata["tessedit_pageseg_mode"]; !ok {
			if err := c.SetPageSegMode(gosseract.PageSegMode(e.defaults.PSM)); err != nil {
				return ocr.Result{}, fmt.Errorf("set psm: %w", err)
			}
		}
	}
	for k, v := range in.Metadata {
		if !strings.HasPrefix(k, "tessedit_") && k != "user_defined_dpi" {
			continue
		}
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	words := extractWords(c)
	e.log.Debug("tesseract recognized docket",
		observability.String("input", in.ID),
		observability.Int("words", len(words)),
	)
	return ocr.Result{
		InputID:    in.ID,
		PlainText:  strings.TrimSpace(text),
		Words:      words,
		Confidence: ocr.MeanConfidence(words),
		Language:   firstLanguage(langs),
		Engine:     e.Name(),
	}, nil
}

func extractWords(c *gosseract.Client) []ocr.TextWord {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	words := make([]ocr.TextWord, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, ocr.TextWord{
			Text:       b.Word,
			Confidence: b.Confidence / 100.0,
		})
	}
	return words
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}
