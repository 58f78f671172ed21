package document

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satymtripathi/microbiology/pkg/types"
)

func completedP001() (*types.Request, *types.Report) {
	submitted := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	req := &types.Request{
		ID:         "6f1c2a10-0000-4000-8000-000000000001",
		DoctorID:   "u-doc",
		CentreName: "City Eye Clinic",
		PatientID:  "P001",
		Eye:        types.EyeRight,
		Sample:     "Corneal Scraping",
		Duration:   "3 Weeks",
		Impression: types.ImpressionBacterial,
		Status:     types.StatusCompleted,
		CreatedAt:  submitted,
	}
	report := &types.Report{
		ID:                "r-1",
		RequestID:         req.ID,
		RCCode:            "RC01",
		LabID:             "LAB-7",
		Quality:           types.QualityGood,
		SampleSuitability: true,
		ReportText:        "No growth",
		AuthBy:            "Dr. Tom",
		CreatedAt:         submitted.Add(2 * time.Hour),
	}
	return req, report
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBuildLayout(t *testing.T) {
	req, report := completedP001()

	layout := BuildLayout(req, report)
	text := layout.Text()

	assert.Equal(t, "Ocular Microbiology Laboratory Report", layout.Title)
	assert.Equal(t, "Patient & Clinical Details", layout.Clinical.Heading)
	assert.Equal(t, "Laboratory Interpretation", layout.Lab.Heading)
	assert.Contains(t, text, "Patient ID: P001")
	assert.Contains(t, text, "Date Submitted: 2025-03-14 09:30")
	assert.Contains(t, text, "Duration: 3 Weeks\n")
	assert.Contains(t, text, "Sample Suitability: Yes")
	assert.Contains(t, text, "Quality: Good")
	assert.Contains(t, text, "Microbiology Report: No growth")
	assert.Contains(t, text, "Authorized By: Dr. Tom")
	assert.Contains(t, text, Disclaimer)
	assert.True(t, strings.HasSuffix(text, Footer+"\n"))

	// print order
	assert.Less(t, strings.Index(text, "Patient & Clinical Details"), strings.Index(text, "Laboratory Interpretation"))
	assert.Less(t, strings.Index(text, "Laboratory Interpretation"), strings.Index(text, "Microbiology Report:"))
	assert.Less(t, strings.Index(text, "Authorized By:"), strings.Index(text, "DISCLAIMER:"))
}

func TestBuildLayout_UnsuitableSampleWithoutQuality(t *testing.T) {
	req, report := completedP001()
	report.Quality = ""
	report.SampleSuitability = false
	report.SuitabilityReason = "Insufficient material"
	report.Comments = "Repeat scraping advised"

	text := BuildLayout(req, report).Text()

	assert.Contains(t, text, "Sample Suitability: No (Specify reason below)")
	assert.Contains(t, text, "Quality: N/A")
	assert.Contains(t, text, "Additional Comments: Reason sample unsuitable: Insufficient material\nRepeat scraping advised")
}

func TestBuildLayout_IsDeterministic(t *testing.T) {
	req, report := completedP001()
	assert.Equal(t, BuildLayout(req, report).Text(), BuildLayout(req, report).Text())
}

func TestFilename(t *testing.T) {
	req, _ := completedP001()
	assert.Equal(t, "Microbio_Report_P001_6f1c2a10-0000-4000-8000-000000000001.pdf", Filename(req))
}

func TestRenderer_Render(t *testing.T) {
	tests := []struct {
		name     string
		imageKey string
		image    func(t *testing.T) []byte
		want     ImageStatus
	}{
		{
			name: "no image attached",
			want: ImageNone,
		},
		{
			name:     "valid image",
			imageKey: "1700000000_abcd1234.png",
			image:    func(t *testing.T) []byte { return pngBytes(t, 40, 20) },
			want:     ImageEmbedded,
		},
		{
			name:     "corrupt image",
			imageKey: "1700000000_abcd1234.jpg",
			image:    func(t *testing.T) []byte { return []byte("\xff\xd8\xff\xe0 definitely not a jpeg") },
			want:     ImageFallback,
		},
		{
			name:     "image missing from store",
			imageKey: "1700000000_gone0000.png",
			want:     ImageFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, report := completedP001()
			req.ImageKey = tt.imageKey

			var src io.Reader
			if tt.image != nil {
				src = bytes.NewReader(tt.image(t))
			}

			var out bytes.Buffer
			status, err := NewRenderer(false).Render(&out, req, report, src)
			require.NoError(t, err)

			assert.Equal(t, tt.want, status)
			assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("%PDF-")))
			assert.Contains(t, out.String(), "P001")
			assert.Contains(t, out.String(), "No growth")
			if tt.want == ImageFallback {
				assert.Contains(t, out.String(), ImageError)
			} else {
				assert.NotContains(t, out.String(), ImageError)
			}
		})
	}
}

func TestRenderer_SameInputSameBytes(t *testing.T) {
	req, report := completedP001()
	renderer := NewRenderer(true)

	var first, second bytes.Buffer
	_, err := renderer.Render(&first, req, report, nil)
	require.NoError(t, err)
	_, err = renderer.Render(&second, req, report, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestRenderer_LongValuesWrap(t *testing.T) {
	req, report := completedP001()
	req.Meds = strings.Repeat("Antibiotics, Antifungals, Steroid, ", 14)
	report.ReportText = strings.Repeat("Gram positive cocci in clusters seen. ", 120)
	report.Comments = "Café au lait, naïve organism naming: ✓"

	var out bytes.Buffer
	_, err := NewRenderer(true).Render(&out, req, report, nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("%PDF-")))
}

func TestRenderer_RequiresReport(t *testing.T) {
	req, _ := completedP001()
	_, err := NewRenderer(true).Render(&bytes.Buffer{}, req, nil, nil)
	assert.Error(t, err)
}

func TestRowSegments(t *testing.T) {
	tests := []struct {
		name     string
		n, first int
		want     []int
	}{
		{"fits on the current page", 3, 10, []int{3}},
		{"moves whole to the next page", 10, 3, []int{0, 10}},
		{"taller than a page splits from mid page", 100, 20, []int{20, 46, 34}},
		{"exactly two pages", 92, 46, []int{46, 46}},
		{"no room left and taller than a page", 50, 0, []int{0, 46, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rowSegments(tt.n, tt.first, 46))
		})
	}
}

func TestRow_TallerThanAPageStaysInsideTheMargins(t *testing.T) {
	pdf := fpdf.New("P", "in", "Letter", "")
	pdf.SetMargins(marginSide, marginTop, marginSide)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.SetCellMargin(cellMargin)
	pdf.AddPage()
	pdf.SetY(5)

	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	text := strings.Repeat("Gram positive cocci in clusters seen. ", 300)
	p.font(false)
	lines := len(p.wrap(text, twoColumns[1]))
	require.Greater(t, lines, 2*linesThatFit(11-marginBottom-marginTop))

	p.row(twoColumns, []cell{{text: "Report", bold: true}, {text: text}}, false)

	require.NoError(t, pdf.Error())
	assert.Equal(t, len(rowSegments(lines, linesThatFit(11-marginBottom-5), linesThatFit(11-marginBottom-marginTop))), pdf.PageCount())
	assert.GreaterOrEqual(t, pdf.PageCount(), 3)
	assert.LessOrEqual(t, pdf.GetY(), 11-marginBottom+1e-9)
}

func TestRenderer_LongReportSpansPages(t *testing.T) {
	req, report := completedP001()
	report.ReportText = strings.Repeat("Gram positive cocci in clusters seen. ", 300)

	var out bytes.Buffer
	_, err := NewRenderer(false).Render(&out, req, report, nil)
	require.NoError(t, err)

	pages := strings.Count(out.String(), "/Type /Page") - strings.Count(out.String(), "/Type /Pages")
	assert.GreaterOrEqual(t, pages, 3)
}
