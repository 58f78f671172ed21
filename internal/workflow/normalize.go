package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/satymtripathi/microbiology/pkg/types"
)

// Choice sets offered by the submission form
var (
	EyeChoices        = []types.Eye{types.EyeRight, types.EyeLeft, types.EyeBoth, types.EyeNA}
	SampleChoices     = []string{"Corneal Scraping", SampleOther}
	DurationUnits     = []string{"Days", "Weeks", "Months"}
	MedicationChoices = []string{"Antibiotics", "Antifungals", "Antiviral", "Steroid", "Others"}
	StainChoices      = []string{"Grams", "KOH-CFW", "Others"}
	ImpressionChoices = []types.Impression{
		types.ImpressionBacterial,
		types.ImpressionFungal,
		types.ImpressionAcanthamoeba,
		types.ImpressionPythium,
		types.ImpressionViral,
		types.ImpressionOthers,
	}
	QualityChoices = []types.SampleQuality{types.QualityGood, types.QualityAdequate, types.QualityPoor}
)

// SampleOther is the sample choice that takes its value from sample_other
const SampleOther = "Other"

const (
	minDurationValue = 1
	maxDurationValue = 10

	maxCentreName  = 100
	maxPatientID   = 50
	maxSampleOther = 100
	maxMedsOther   = 250
	maxRCCode      = 20
	maxLabID       = 50
	maxAuthBy      = 200
)

// FieldErrors maps a form field to its first problem
type FieldErrors map[string]string

func (fe FieldErrors) add(field, message string) {
	if _, exists := fe[field]; !exists {
		fe[field] = message
	}
}

// Err converts the collected problems into a validation error, or nil
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(fe))
	for field, message := range fe {
		details[field] = message
	}
	return types.NewValidationError(types.ErrCodeValidationFailed, "Please correct the highlighted fields", details)
}

// NormalizedSubmission holds the canonical request fields derived from the
// doctor's form
type NormalizedSubmission struct {
	CentreName string
	PatientID  string
	Eye        types.Eye
	Sample     string
	Duration   string
	OnMeds     bool
	Meds       string
	Impression types.Impression
	Stain      string
}

// NormalizeSubmission validates the raw form and folds the "other" inputs
// into their canonical fields. It has no side effects.
func NormalizeSubmission(in types.RequestSubmission) (NormalizedSubmission, FieldErrors) {
	errs := FieldErrors{}
	out := NormalizedSubmission{OnMeds: in.OnMeds}

	out.CentreName = requiredText(errs, "centre_name", in.CentreName, maxCentreName)
	out.PatientID = requiredText(errs, "patient_id", in.PatientID, maxPatientID)

	eye := types.Eye(strings.TrimSpace(in.Eye))
	switch {
	case eye == "":
		errs.add("eye", "This field is required.")
	case !lo.Contains(EyeChoices, eye):
		errs.add("eye", invalidChoice(string(eye)))
	default:
		out.Eye = eye
	}

	sample := strings.TrimSpace(in.Sample)
	sampleOther := strings.TrimSpace(in.SampleOther)
	switch {
	case sample == "":
		errs.add("sample", "This field is required.")
	case !lo.Contains(SampleChoices, sample):
		errs.add("sample", invalidChoice(sample))
	case sample == SampleOther && sampleOther != "":
		out.Sample = sampleOther
	default:
		out.Sample = sample
	}
	if tooLong(sampleOther, maxSampleOther) {
		errs.add("sample_other", maxLengthMessage(maxSampleOther))
	}

	out.Duration = normalizeDuration(errs, in.DurationValue, in.DurationUnit)

	meds := cleanList(in.Meds)
	for _, m := range meds {
		if !lo.Contains(MedicationChoices, m) {
			errs.add("meds", invalidChoice(m))
		}
	}
	medsOther := strings.TrimSpace(in.MedsOther)
	if tooLong(medsOther, maxMedsOther) {
		errs.add("meds_other", maxLengthMessage(maxMedsOther))
	}
	out.Meds = strings.Join(meds, ", ")
	if medsOther != "" {
		if out.Meds != "" {
			out.Meds += ", " + medsOther
		} else {
			out.Meds = medsOther
		}
	}

	impression := types.Impression(strings.TrimSpace(in.Impression))
	switch {
	case impression == "":
		errs.add("impression", "This field is required.")
	case !lo.Contains(ImpressionChoices, impression):
		errs.add("impression", invalidChoice(string(impression)))
	default:
		out.Impression = impression
	}

	stains := cleanList(in.Stain)
	for _, s := range stains {
		if !lo.Contains(StainChoices, s) {
			errs.add("stain", invalidChoice(s))
		}
	}
	out.Stain = strings.Join(stains, ", ")

	return out, errs
}

// NormalizeReport validates the lab report form and returns the report to
// store. RequestID is left for the caller to set.
func NormalizeReport(in types.ReportInput) (*types.Report, FieldErrors) {
	errs := FieldErrors{}
	report := &types.Report{
		SampleSuitability: in.SampleSuitability,
		SuitabilityReason: strings.TrimSpace(in.SuitabilityReason),
		Comments:          strings.TrimSpace(in.Comments),
	}

	report.RCCode = requiredText(errs, "rc_code", in.RCCode, maxRCCode)
	report.LabID = requiredText(errs, "lab_id", in.LabID, maxLabID)
	report.AuthBy = requiredText(errs, "auth_by", in.AuthBy, maxAuthBy)
	report.ReportText = requiredText(errs, "report_text", in.ReportText, 0)

	if quality := types.SampleQuality(strings.TrimSpace(in.Quality)); quality != "" {
		if lo.Contains(QualityChoices, quality) {
			report.Quality = quality
		} else {
			errs.add("quality", invalidChoice(string(quality)))
		}
	}

	if !report.SampleSuitability && report.SuitabilityReason == "" {
		errs.add("suitability_reason", "Please specify why the sample is not suitable.")
	}

	return report, errs
}

func normalizeDuration(errs FieldErrors, rawValue, rawUnit string) string {
	rawValue = strings.TrimSpace(rawValue)
	unit := strings.TrimSpace(rawUnit)

	value, err := strconv.Atoi(rawValue)
	switch {
	case rawValue == "":
		errs.add("duration_value", "This field is required.")
	case err != nil || value < minDurationValue || value > maxDurationValue:
		errs.add("duration_value", invalidChoice(rawValue))
	}

	switch {
	case unit == "":
		errs.add("duration_unit", "This field is required.")
	case !lo.Contains(DurationUnits, unit):
		errs.add("duration_unit", invalidChoice(unit))
	}

	if _, bad := errs["duration_value"]; bad {
		return ""
	}
	if _, bad := errs["duration_unit"]; bad {
		return ""
	}
	return fmt.Sprintf("%d %s", value, unit)
}

func requiredText(errs FieldErrors, field, raw string, max int) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		errs.add(field, "This field is required.")
		return ""
	}
	if max > 0 && tooLong(value, max) {
		errs.add(field, maxLengthMessage(max))
		return ""
	}
	return value
}

// cleanList trims entries and drops blanks and repeats, keeping order
func cleanList(values []string) []string {
	trimmed := lo.Map(values, func(v string, _ int) string { return strings.TrimSpace(v) })
	return lo.Uniq(lo.Compact(trimmed))
}

func tooLong(value string, max int) bool {
	return utf8.RuneCountInString(value) > max
}

func invalidChoice(value string) string {
	return fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", value)
}

func maxLengthMessage(max int) string {
	return fmt.Sprintf("Ensure this value has at most %d characters.", max)
}
