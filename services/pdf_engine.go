package services

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFEngine turns a composed HTML document into PDF bytes and combines
// already rendered documents. Implementations must be deterministic:
// identical HTML input must yield byte-identical output.
type PDFEngine interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
	Merge(docs [][]byte) ([]byte, error)
	PageCount(doc []byte) (int, error)
}

type ChromeEngine struct {
	timeout time.Duration
}

func NewChromeEngine(timeout time.Duration) *ChromeEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromeEngine{timeout: timeout}
}

func (e *ChromeEngine) RenderHTML(parent context.Context, htmlContent string) ([]byte, error) {
	parent, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	ctx, cancelChrome := chromedp.NewContext(parent)
	defer cancelChrome()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}

func (e *ChromeEngine) Merge(docs [][]byte) ([]byte, error) {
	if len(docs) == 1 {
		return docs[0], nil
	}

	readers := make([]io.ReadSeeker, len(docs))
	for i, doc := range docs {
		readers[i] = bytes.NewReader(doc)
	}

	var merged bytes.Buffer
	if err := api.MergeRaw(readers, &merged, false, nil); err != nil {
		return nil, err
	}
	return merged.Bytes(), nil
}

func (e *ChromeEngine) PageCount(doc []byte) (int, error) {
	return api.PageCount(bytes.NewReader(doc), nil)
}
