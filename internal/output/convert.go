package output

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-pdf/fpdf"

	"github.com/dusk-indust/briefing/internal/citation"
)

// Converter types accepted in an output config.
const (
	TypePDF  = "PDF"
	TypeHTML = "HTML"
	TypeMD   = "MD"
)

// Document is the rendered report handed to a converter.
type Document struct {
	Title      string
	HTML       string
	References []citation.Reference
	CreatedAt  time.Time
}

// Converter turns a rendered report into artifact bytes.
type Converter interface {
	Convert(ctx context.Context, doc Document) ([]byte, error)
	// Ext is the artifact file extension, without the dot.
	Ext() string
}

// ConverterFor returns the converter for a config's converter type.
func ConverterFor(converterType string) (Converter, error) {
	switch strings.ToUpper(strings.TrimSpace(converterType)) {
	case TypePDF:
		return PDFConverter{}, nil
	case TypeHTML:
		return HTMLConverter{}, nil
	case TypeMD, "MARKDOWN":
		return MarkdownConverter{}, nil
	default:
		return nil, fmt.Errorf("output: unsupported converter type %q", converterType)
	}
}

// HTMLConverter writes the rendered markup unchanged.
type HTMLConverter struct{}

func (HTMLConverter) Ext() string { return "html" }

func (HTMLConverter) Convert(_ context.Context, doc Document) ([]byte, error) {
	return []byte(doc.HTML), nil
}

// MarkdownConverter converts the rendered markup to Markdown.
type MarkdownConverter struct{}

func (MarkdownConverter) Ext() string { return "md" }

func (MarkdownConverter) Convert(_ context.Context, doc Document) ([]byte, error) {
	md, err := htmltomarkdown.ConvertString(doc.HTML)
	if err != nil {
		return nil, fmt.Errorf("output: html to markdown: %w", err)
	}
	return []byte(md), nil
}

// PDFConverter lays the report text out as a simple paginated PDF with a
// trailing references page.
type PDFConverter struct{}

func (PDFConverter) Ext() string { return "pdf" }

// block is one paragraph of extracted text.
type block struct {
	text    string
	heading bool
}

// textBlocks extracts readable paragraphs from markup.
func textBlocks(markup string) ([]block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("output: parse html: %w", err)
	}
	doc.Find("style, script, head").Remove()

	var blocks []block
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		// Nested matches (a p inside an li) are emitted by their parent.
		if s.ParentsFiltered("li, blockquote").Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			text = "- " + text
		}
		blocks = append(blocks, block{text: text, heading: strings.HasPrefix(goquery.NodeName(s), "h")})
	})
	if len(blocks) == 0 {
		if text := strings.Join(strings.Fields(doc.Text()), " "); text != "" {
			blocks = append(blocks, block{text: text})
		}
	}
	return blocks, nil
}

func (PDFConverter) Convert(ctx context.Context, doc Document) ([]byte, error) {
	blocks, err := textBlocks(doc.HTML)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 10, "News Intelligence Report", "", 1, "C", false, 0, "")
		pdf.Ln(5)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	title := doc.Title
	if title == "" {
		title = "Untitled Report"
	}
	pdf.SetFont("Arial", "B", 24)
	pdf.MultiCell(0, 10, tr(title), "", "C", false)
	pdf.Ln(10)

	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	pdf.SetFont("Arial", "I", 10)
	pdf.CellFormat(0, 10, "Date: "+created.Format(time.DateOnly), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	for _, b := range blocks {
		if b.heading {
			pdf.SetFont("Arial", "B", 14)
			pdf.MultiCell(0, 8, tr(b.text), "", "", false)
		} else {
			pdf.SetFont("Times", "", 12)
			pdf.MultiCell(0, 6, tr(b.text), "", "", false)
		}
		pdf.Ln(3)
	}

	if len(doc.References) > 0 {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 10, "References", "", 1, "", false, 0, "")
		pdf.Ln(5)
		pdf.SetFont("Times", "", 10)
		for _, ref := range doc.References {
			source := ref.SourceName
			if source == "" {
				source = "Unknown"
			}
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("%d. %s - %s", ref.Number, ref.Title, source)), "", "", false)
			pdf.Ln(2)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("output: write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
