// Package document renders completed microbiology reports as PDF.
package document

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/satymtripathi/microbiology/pkg/types"
)

const (
	Title = "Ocular Microbiology Laboratory Report"

	Disclaimer = "DISCLAIMER: This report is generated based on the images provided by the clinician " +
		"and may be subject to change on review of the entire slide at the reading centre. " +
		"This report acts solely as a guide to a clinician for clinical correlation. " +
		"The reading centre is not responsible for any complications that may arise during the treatment of the patient."

	Footer = "Generated electronically by Project Clear - Ocular Microbiology Reading Centre"

	ImageLabel  = "Clinical Image:"
	ImageError  = "Image Error: Could not load image."
	DateLayout  = "2006-01-02 15:04"
	notRecorded = "N/A"
)

// Pair is one label and its value
type Pair struct {
	Label string
	Value string
}

// Table is a headed block of rows, each holding one or two pairs
type Table struct {
	Heading string
	Rows    [][]Pair
}

// Layout is the full text content of a report in print order. Rendering only
// decides where it goes on the page.
type Layout struct {
	Title        string
	Clinical     Table
	Lab          Table
	Narrative    []Pair
	AuthorizedBy Pair
	Disclaimer   string
	Footer       string
}

// BuildLayout derives the report text from a request and its report
func BuildLayout(req *types.Request, report *types.Report) Layout {
	suitability := "Yes"
	if !report.SampleSuitability {
		suitability = "No (Specify reason below)"
	}

	quality := string(report.Quality)
	if quality == "" {
		quality = notRecorded
	}

	comments := report.Comments
	if !report.SampleSuitability && report.SuitabilityReason != "" {
		comments = strings.Join(lo.Compact([]string{"Reason sample unsuitable: " + report.SuitabilityReason, comments}), "\n")
	}

	return Layout{
		Title: Title,
		Clinical: Table{
			Heading: "Patient & Clinical Details",
			Rows: [][]Pair{
				{{"Patient ID:", req.PatientID}, {"Centre:", req.CentreName}},
				{{"Eye:", string(req.Eye)}, {"Date Submitted:", req.CreatedAt.Format(DateLayout)}},
				{{"Sample:", req.Sample}, {"Duration:", req.Duration}},
				{{"Medications:", req.Meds}, {"Stain Used:", req.Stain}},
				{{"Clinical Impression:", string(req.Impression)}},
			},
		},
		Lab: Table{
			Heading: "Laboratory Interpretation",
			Rows: [][]Pair{
				{{"Lab ID:", report.LabID}, {"RC Code:", report.RCCode}},
				{{"Sample Suitability:", suitability}, {"Quality:", quality}},
			},
		},
		Narrative: []Pair{
			{"Microbiology Report:", report.ReportText},
			{"Additional Comments:", comments},
		},
		AuthorizedBy: Pair{"Authorized By:", report.AuthBy},
		Disclaimer:   Disclaimer,
		Footer:       Footer,
	}
}

// Text flattens the layout into plain lines in print order
func (l Layout) Text() string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	table := func(t Table) {
		line(t.Heading)
		for _, row := range t.Rows {
			for _, p := range row {
				line(p.Label + " " + p.Value)
			}
		}
	}

	line(l.Title)
	table(l.Clinical)
	table(l.Lab)
	for _, p := range l.Narrative {
		line(p.Label + " " + p.Value)
	}
	line(l.AuthorizedBy.Label + " " + l.AuthorizedBy.Value)
	line(l.Disclaimer)
	line(l.Footer)
	return b.String()
}

// Filename is the download name of a request's report
func Filename(req *types.Request) string {
	return fmt.Sprintf("Microbio_Report_%s_%s.pdf", req.PatientID, req.ID)
}
