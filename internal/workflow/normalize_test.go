package workflow

import (
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satymtripathi/microbiology/pkg/types"
)

func p001Submission() types.RequestSubmission {
	return types.RequestSubmission{
		CentreName:    "City Eye Clinic",
		PatientID:     "P001",
		Eye:           "OD",
		Sample:        "Corneal Scraping",
		DurationValue: "3",
		DurationUnit:  "Weeks",
		Impression:    "Bacterial",
	}
}

func TestNormalizeSubmission_P001(t *testing.T) {
	out, errs := NormalizeSubmission(p001Submission())
	require.Empty(t, errs)

	assert.Equal(t, NormalizedSubmission{
		CentreName: "City Eye Clinic",
		PatientID:  "P001",
		Eye:        types.EyeRight,
		Sample:     "Corneal Scraping",
		Duration:   "3 Weeks",
		Impression: types.ImpressionBacterial,
	}, out)
}

func TestNormalizeSubmission_Folding(t *testing.T) {
	tests := []struct {
		name   string
		modify func(in *types.RequestSubmission)
		check  func(t *testing.T, out NormalizedSubmission)
	}{
		{
			name: "meds list only",
			modify: func(in *types.RequestSubmission) {
				in.OnMeds = true
				in.Meds = []string{"Antibiotics", "Steroid"}
			},
			check: func(t *testing.T, out NormalizedSubmission) {
				assert.True(t, out.OnMeds)
				assert.Equal(t, "Antibiotics, Steroid", out.Meds)
			},
		},
		{
			name: "meds list plus other",
			modify: func(in *types.RequestSubmission) {
				in.Meds = []string{"Antifungals", "Others"}
				in.MedsOther = "  Natamycin "
			},
			check: func(t *testing.T, out NormalizedSubmission) {
				assert.Equal(t, "Antifungals, Others, Natamycin", out.Meds)
			},
		},
		{
			name: "other meds only",
			modify: func(in *types.RequestSubmission) {
				in.MedsOther = "Natamycin"
			},
			check: func(t *testing.T, out NormalizedSubmission) {
				assert.Equal(t, "Natamycin", out.Meds)
			},
		},
		{
			name: "sample other replaces the choice",
			modify: func(in *types.RequestSubmission) {
				in.Sample = "Other"
				in.SampleOther = "Conjunctival swab"
			},
			check: func(t *testing.T, out NormalizedSubmission) {
				assert.Equal(t, "Conjunctival swab", out.Sample)
			},
		},
		{
			name: "sample other left blank keeps Other",
			modify: func(in *types.RequestSubmission) {
				in.Sample = "Other"
			},
			check: func(t *testing.T, out NormalizedSubmission) {
				assert.Equal(t, "Other", out.Sample)
			},
		},
		{
			name: "sample other ignored for a named sample",
			modify: func(in *types.RequestSubmission) {
				in.SampleOther = "Conjunctival swab"
			},
			check: func(t *testing.T, out NormalizedSubmission) {
				assert.Equal(t, "Corneal Scraping", out.Sample)
			},
		},
		{
			name: "stains joined without repeats",
			modify: func(in *types.RequestSubmission) {
				in.Stain = []string{"Grams", "KOH-CFW", "Grams", ""}
			},
			check: func(t *testing.T, out NormalizedSubmission) {
				assert.Equal(t, "Grams, KOH-CFW", out.Stain)
			},
		},
		{
			name: "duration bounds",
			modify: func(in *types.RequestSubmission) {
				in.DurationValue = "10"
				in.DurationUnit = "Months"
			},
			check: func(t *testing.T, out NormalizedSubmission) {
				assert.Equal(t, "10 Months", out.Duration)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := p001Submission()
			tt.modify(&in)

			out, errs := NormalizeSubmission(in)
			require.Empty(t, errs)
			tt.check(t, out)
		})
	}
}

func TestNormalizeSubmission_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(in *types.RequestSubmission)
		fields []string
	}{
		{
			name:   "everything missing",
			modify: func(in *types.RequestSubmission) { *in = types.RequestSubmission{} },
			fields: []string{"centre_name", "patient_id", "eye", "sample", "duration_value", "duration_unit", "impression"},
		},
		{
			name:   "unknown eye",
			modify: func(in *types.RequestSubmission) { in.Eye = "XX" },
			fields: []string{"eye"},
		},
		{
			name:   "duration out of range",
			modify: func(in *types.RequestSubmission) { in.DurationValue = "11" },
			fields: []string{"duration_value"},
		},
		{
			name:   "duration not a number",
			modify: func(in *types.RequestSubmission) { in.DurationValue = "three" },
			fields: []string{"duration_value"},
		},
		{
			name:   "unknown duration unit",
			modify: func(in *types.RequestSubmission) { in.DurationUnit = "Years" },
			fields: []string{"duration_unit"},
		},
		{
			name:   "unknown medication",
			modify: func(in *types.RequestSubmission) { in.Meds = []string{"Aspirin"} },
			fields: []string{"meds"},
		},
		{
			name:   "unknown stain",
			modify: func(in *types.RequestSubmission) { in.Stain = []string{"Giemsa"} },
			fields: []string{"stain"},
		},
		{
			name:   "unknown impression",
			modify: func(in *types.RequestSubmission) { in.Impression = "Parasitic" },
			fields: []string{"impression"},
		},
		{
			name: "lengths",
			modify: func(in *types.RequestSubmission) {
				in.CentreName = strings.Repeat("c", 101)
				in.PatientID = strings.Repeat("p", 51)
				in.SampleOther = strings.Repeat("s", 101)
				in.MedsOther = strings.Repeat("m", 251)
			},
			fields: []string{"centre_name", "patient_id", "sample_other", "meds_other"},
		},
		{
			name:   "blank is missing",
			modify: func(in *types.RequestSubmission) { in.PatientID = "   " },
			fields: []string{"patient_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := p001Submission()
			tt.modify(&in)

			_, errs := NormalizeSubmission(in)
			assert.ElementsMatch(t, tt.fields, lo.Keys(errs))
		})
	}
}

func TestFieldErrors_Err(t *testing.T) {
	assert.NoError(t, FieldErrors{}.Err())

	err := FieldErrors{"eye": "This field is required."}.Err()
	pe, ok := types.AsPortalError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeValidation, pe.Type)
	assert.Equal(t, "This field is required.", pe.Details["eye"])
}

func TestNormalizeReport(t *testing.T) {
	valid := types.ReportInput{
		RCCode:            " RC01 ",
		LabID:             "LAB-7",
		Quality:           "Good",
		SampleSuitability: true,
		ReportText:        "No growth",
		AuthBy:            "Dr. Tom",
	}

	t.Run("valid", func(t *testing.T) {
		report, errs := NormalizeReport(valid)
		require.Empty(t, errs)
		assert.Equal(t, "RC01", report.RCCode)
		assert.Equal(t, types.QualityGood, report.Quality)
		assert.True(t, report.SampleSuitability)
	})

	t.Run("quality is optional", func(t *testing.T) {
		in := valid
		in.Quality = ""
		report, errs := NormalizeReport(in)
		require.Empty(t, errs)
		assert.Empty(t, report.Quality)
	})

	t.Run("missing required fields", func(t *testing.T) {
		_, errs := NormalizeReport(types.ReportInput{SampleSuitability: true})
		assert.ElementsMatch(t, []string{"rc_code", "lab_id", "report_text", "auth_by"}, lo.Keys(errs))
	})

	t.Run("unsuitable needs a reason", func(t *testing.T) {
		in := valid
		in.SampleSuitability = false
		_, errs := NormalizeReport(in)
		assert.ElementsMatch(t, []string{"suitability_reason"}, lo.Keys(errs))

		in.SuitabilityReason = "Insufficient material"
		_, errs = NormalizeReport(in)
		assert.Empty(t, errs)
	})

	t.Run("unknown quality", func(t *testing.T) {
		in := valid
		in.Quality = "Excellent"
		_, errs := NormalizeReport(in)
		assert.ElementsMatch(t, []string{"quality"}, lo.Keys(errs))
	})
}

