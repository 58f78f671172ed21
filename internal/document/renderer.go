package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"

	"github.com/go-pdf/fpdf"

	"github.com/satymtripathi/microbiology/pkg/types"
)

// ImageStatus says what happened to the clinical image while rendering
type ImageStatus string

const (
	ImageNone     ImageStatus = "none"
	ImageEmbedded ImageStatus = "embedded"
	ImageFallback ImageStatus = "fallback"
)

// Page geometry in inches
const (
	marginSide   = 0.5
	marginTop    = 0.75
	marginBottom = 0.75
	contentWidth = 7.5
	maxImageSize = 7.0

	lineHeight = 0.2
	cellMargin = 0.06
	spacer     = 0.25
	fontFamily = "Helvetica"
	fontSize   = 10
)

var (
	fourColumns = []float64{1.5, 2.5, 1.5, 2.0}
	twoColumns  = []float64{2.5, 5.0}
)

// Renderer draws report PDFs. It keeps no state between calls.
type Renderer struct {
	compress bool
}

// NewRenderer creates a renderer; compress toggles stream compression
func NewRenderer(compress bool) *Renderer {
	return &Renderer{compress: compress}
}

// Render writes the PDF for req and report to w. image holds the stored
// clinical image, or nil when it could not be opened. A request with an image
// that cannot be read gets a notice in its place and the document is still
// produced.
func (r *Renderer) Render(w io.Writer, req *types.Request, report *types.Report, image io.Reader) (ImageStatus, error) {
	if report == nil {
		return ImageNone, fmt.Errorf("render %s: no report", req.ID)
	}
	layout := BuildLayout(req, report)

	pdf := fpdf.New("P", "in", "Letter", "")
	pdf.SetCompression(r.compress)
	pdf.SetCreationDate(report.CreatedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(layout.Title, true)
	pdf.SetCreator("microbio-portal", false)
	pdf.SetMargins(marginSide, marginTop, marginSide)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.SetCellMargin(cellMargin)
	pdf.AddPage()

	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(contentWidth, 0.35, p.tr(layout.Title), "", 1, "C", false, 0, "")
	pdf.Ln(spacer)

	p.table(layout.Clinical)
	pdf.Ln(spacer)
	p.table(layout.Lab)
	pdf.Ln(spacer)
	for _, pair := range layout.Narrative {
		p.row(twoColumns, []cell{{text: pair.Label, bold: true}, {text: pair.Value}}, false)
	}
	pdf.Ln(spacer)

	status := ImageNone
	if req.HasImage() {
		status = p.image(image)
	}

	p.authorizedBy(layout.AuthorizedBy)
	pdf.Ln(0.5)

	pdf.SetFont(fontFamily, "", 7)
	pdf.MultiCell(contentWidth, 0.12, p.tr(layout.Disclaimer), "", "J", false)
	pdf.Ln(0.12)
	pdf.SetFont(fontFamily, "I", 7)
	pdf.MultiCell(contentWidth, 0.12, p.tr(layout.Footer), "", "J", false)

	if err := pdf.Output(w); err != nil {
		return status, fmt.Errorf("render %s: %w", req.ID, err)
	}
	return status, nil
}

type cell struct {
	text string
	bold bool
}

type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (p *page) table(t Table) {
	p.row([]float64{contentWidth}, []cell{{text: t.Heading, bold: true}}, true)
	for _, pairs := range t.Rows {
		cells := make([]cell, 0, len(fourColumns))
		for _, pair := range pairs {
			cells = append(cells, cell{text: pair.Label, bold: true}, cell{text: pair.Value})
		}
		for len(cells) < len(fourColumns) {
			cells = append(cells, cell{})
		}
		p.row(fourColumns, cells, false)
	}
}

// row draws one bordered table row whose height fits the tallest cell. A
// row that does not fit on the current page moves to the next one, and a row
// taller than a page is split into bordered segments, one per page.
func (p *page) row(widths []float64, cells []cell, shaded bool) {
	lines := make([][]string, len(cells))
	n := 1
	for i, c := range cells {
		p.font(c.bold)
		lines[i] = p.wrap(c.text, widths[i])
		n = max(n, len(lines[i]))
	}

	_, pageHeight := p.pdf.GetPageSize()
	bottom := pageHeight - marginBottom
	first := linesThatFit(bottom - p.pdf.GetY())
	full := linesThatFit(bottom - marginTop)

	// segments place every line explicitly; fpdf must not break pages under them
	p.pdf.SetAutoPageBreak(false, marginBottom)
	defer p.pdf.SetAutoPageBreak(true, marginBottom)

	from := 0
	for i, count := range rowSegments(n, first, full) {
		if i > 0 {
			p.pdf.AddPage()
		}
		if count == 0 {
			continue
		}
		p.segment(widths, cells, lines, from, count, shaded)
		from += count
	}
}

// linesThatFit is how many text lines of a bordered row fit in space inches
func linesThatFit(space float64) int {
	return max(0, int(math.Floor((space-2*cellMargin)/lineHeight+1e-9)))
}

// rowSegments splits a row of n lines into per-page line counts. first is how
// many lines fit on the current page and full how many fit on an empty page.
// Every segment after the first starts a new page; a leading 0 means nothing
// is drawn on the current page.
func rowSegments(n, first, full int) []int {
	if n <= first {
		return []int{n}
	}
	if n <= full || first == 0 {
		segments := []int{0}
		for ; n > full; n -= full {
			segments = append(segments, full)
		}
		return append(segments, n)
	}

	segments := []int{first}
	for n -= first; n > full; n -= full {
		segments = append(segments, full)
	}
	return append(segments, n)
}

// segment draws lines [from, from+count) of every cell inside one border
func (p *page) segment(widths []float64, cells []cell, lines [][]string, from, count int, shaded bool) {
	height := float64(count)*lineHeight + 2*cellMargin
	x, y := p.pdf.GetXY()
	style := "D"
	if shaded {
		p.pdf.SetFillColor(211, 211, 211)
		style = "FD"
	}
	p.pdf.SetLineWidth(0.007)

	for i, c := range cells {
		p.pdf.Rect(x, y, widths[i], height, style)
		p.font(c.bold)
		p.pdf.SetXY(x, y+cellMargin)
		for _, l := range lines[i][min(from, len(lines[i])):min(from+count, len(lines[i]))] {
			p.pdf.SetX(x)
			p.pdf.CellFormat(widths[i], lineHeight, l, "", 2, "L", false, 0, "")
		}
		x += widths[i]
	}
	p.pdf.SetXY(marginSide, y+height)
}

// wrap encodes text for the core fonts and splits it to fit width. The
// returned lines are already encoded.
func (p *page) wrap(text string, width float64) []string {
	encoded := p.tr(text)

	// SplitText indexes glyph widths by rune, so hand it the encoded bytes
	// one rune per byte and turn the lines back into bytes afterwards.
	runes := make([]rune, len(encoded))
	for i := 0; i < len(encoded); i++ {
		runes[i] = rune(encoded[i])
	}

	split := p.pdf.SplitText(string(runes), width)
	if len(split) == 0 {
		return []string{""}
	}

	out := make([]string, len(split))
	for i, l := range split {
		b := make([]byte, 0, len(l))
		for _, r := range l {
			b = append(b, byte(r))
		}
		out[i] = string(b)
	}
	return out
}

func (p *page) font(bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	p.pdf.SetFont(fontFamily, style, fontSize)
}

// image embeds the clinical image, fitted into a 7in square, or the error
// notice when it cannot be decoded
func (p *page) image(src io.Reader) ImageStatus {
	encoded, w, h, err := normalizeImage(src)
	if err == nil {
		p.font(true)
		p.pdf.CellFormat(contentWidth, lineHeight, p.tr(ImageLabel), "", 1, "L", false, 0, "")
		p.pdf.Ln(0.1)

		opts := fpdf.ImageOptions{ImageType: "PNG"}
		p.pdf.RegisterImageOptionsReader("clinical", opts, bytes.NewReader(encoded))
		if !p.pdf.Err() {
			scale := math.Min(maxImageSize/float64(w), maxImageSize/float64(h))
			p.pdf.ImageOptions("clinical", marginSide, p.pdf.GetY(), float64(w)*scale, float64(h)*scale, true, opts, 0, "")
			p.pdf.Ln(spacer)
			return ImageEmbedded
		}
		p.pdf.ClearError()
	}

	p.font(true)
	p.pdf.CellFormat(contentWidth, lineHeight, p.tr(ImageError), "", 1, "L", false, 0, "")
	p.pdf.Ln(spacer)
	return ImageFallback
}

func (p *page) authorizedBy(pair Pair) {
	label := p.tr(pair.Label + " ")
	name := p.tr(pair.Value)

	p.font(true)
	labelWidth := p.pdf.GetStringWidth(label)
	p.font(false)
	nameWidth := p.pdf.GetStringWidth(name) + 2*cellMargin

	p.pdf.SetX(marginSide + contentWidth - labelWidth - nameWidth)
	p.font(true)
	p.pdf.CellFormat(labelWidth, lineHeight, label, "", 0, "L", false, 0, "")
	p.font(false)
	p.pdf.CellFormat(nameWidth, lineHeight, name, "", 1, "L", false, 0, "")
}

// normalizeImage decodes any supported format and re-encodes it as a plain
// PNG that fpdf can embed
func normalizeImage(src io.Reader) ([]byte, int, int, error) {
	if src == nil {
		return nil, 0, 0, fmt.Errorf("no image data")
	}
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, 0, 0, fmt.Errorf("image has no pixels")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, 0, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}
