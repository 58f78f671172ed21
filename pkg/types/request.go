package types

import "time"

// RequestStatus is the lifecycle state of a sample request
type RequestStatus string

const (
	StatusPending   RequestStatus = "Pending"
	StatusCompleted RequestStatus = "Completed"
)

// Eye involved in the sample
type Eye string

const (
	EyeRight Eye = "OD"
	EyeLeft  Eye = "OS"
	EyeBoth  Eye = "OU"
	EyeNA    Eye = "NA"
)

// Impression is the doctor's clinical impression
type Impression string

const (
	ImpressionBacterial    Impression = "Bacterial"
	ImpressionFungal       Impression = "Fungal"
	ImpressionAcanthamoeba Impression = "Acanthamoeba"
	ImpressionPythium      Impression = "Pythium"
	ImpressionViral        Impression = "Viral"
	ImpressionOthers       Impression = "Others"
)

// SampleQuality is the lab's quality assessment of a sample
type SampleQuality string

const (
	QualityGood     SampleQuality = "Good"
	QualityAdequate SampleQuality = "Adequate"
	QualityPoor     SampleQuality = "Poor"
)

// History actions
const (
	ActionSubmitted       = "Submitted"
	ActionReportCompleted = "Report Completed"
)

// HistoryLimit caps how many history entries are attached to a listed request
const HistoryLimit = 20

// Request is one clinical sample submission
type Request struct {
	ID         string        `json:"id" db:"id"`
	DoctorID   string        `json:"doctor_id" db:"doctor_id"`
	DoctorName string        `json:"doctor_name,omitempty" db:"-"`
	CentreName string        `json:"centre_name" db:"centre_name"`
	PatientID  string        `json:"patient_id" db:"patient_id"`
	Eye        Eye           `json:"eye" db:"eye"`
	Sample     string        `json:"sample" db:"sample"`
	Duration   string        `json:"duration" db:"duration"`
	OnMeds     bool          `json:"on_meds" db:"on_meds"`
	Meds       string        `json:"meds" db:"meds"`
	Impression Impression    `json:"impression" db:"impression"`
	Stain      string        `json:"stain" db:"stain"`
	ImageKey   string        `json:"image_key,omitempty" db:"image_key"`
	Status     RequestStatus `json:"status" db:"status"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// HasImage reports whether an image was uploaded with the request
func (r *Request) HasImage() bool {
	return r.ImageKey != ""
}

// Report is the lab's structured findings for a completed request
type Report struct {
	ID                string        `json:"id" db:"id"`
	RequestID         string        `json:"request_id" db:"request_id"`
	RCCode            string        `json:"rc_code" db:"rc_code"`
	LabID             string        `json:"lab_id" db:"lab_id"`
	Quality           SampleQuality `json:"quality,omitempty" db:"quality"`
	SampleSuitability bool          `json:"sample_suitability" db:"sample_suitability"`
	SuitabilityReason string        `json:"suitability_reason,omitempty" db:"suitability_reason"`
	ReportText        string        `json:"report_text" db:"report_text"`
	Comments          string        `json:"comments" db:"comments"`
	AuthBy            string        `json:"auth_by" db:"auth_by"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}

// HistoryEntry is one append-only audit record for a request
type HistoryEntry struct {
	ID        string    `json:"id" db:"id"`
	RequestID string    `json:"request_id" db:"request_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	UserName  string    `json:"user_name,omitempty" db:"-"`
	Action    string    `json:"action" db:"action"`
	Note      string    `json:"note" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RequestView is a request annotated for list screens
type RequestView struct {
	*Request
	Report  *Report         `json:"report,omitempty"`
	History []*HistoryEntry `json:"history"`
}

// RequestSubmission is the raw doctor form as received from the client
type RequestSubmission struct {
	CentreName    string   `json:"centre_name"`
	PatientID     string   `json:"patient_id"`
	Eye           string   `json:"eye"`
	Sample        string   `json:"sample"`
	SampleOther   string   `json:"sample_other"`
	DurationValue string   `json:"duration_value"`
	DurationUnit  string   `json:"duration_unit"`
	OnMeds        bool     `json:"on_meds"`
	Meds          []string `json:"meds"`
	MedsOther     string   `json:"meds_other"`
	Impression    string   `json:"impression"`
	Stain         []string `json:"stain"`
}

// ReportInput is the raw lab report form
type ReportInput struct {
	RCCode            string `json:"rc_code"`
	LabID             string `json:"lab_id"`
	Quality           string `json:"quality"`
	SampleSuitability bool   `json:"sample_suitability"`
	SuitabilityReason string `json:"suitability_reason"`
	ReportText        string `json:"report_text"`
	Comments          string `json:"comments"`
	AuthBy            string `json:"auth_by"`
}

// ImageUpload is an uploaded clinical image awaiting storage
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RequestFilters narrows the admin request listing
type RequestFilters struct {
	Status     RequestStatus
	CentreName string
	Search     string
	Limit      int
	Offset     int
}
