// Package qrpayload builds the consumer-facing verification record printed on
// product packaging as a QR code.
package qrpayload

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// DefaultVerifyBaseURL is the public verification site.
	DefaultVerifyBaseURL = "https://ayutrack-verify.replit.app"

	DefaultQualityGrade = "Grade A"
	DefaultOrigin       = "Kerala, India"
	DefaultFacility     = "AyurVedic Processing Unit"
	DefaultLicense      = "AYUSH-2024-001"

	harvestOffset = 30 * 24 * time.Hour
	shelfLife     = 365 * 24 * time.Hour
	dateLayout    = "2006-01-02"
)

// DefaultCertifications is the certification list printed when none is given.
var DefaultCertifications = []string{"Organic", "Ayush Certified", "ISO 22000"}

// ManufacturingDetails describes the processing facility.
type ManufacturingDetails struct {
	FacilityName  string `json:"facilityName"  yaml:"facilityName"`
	LicenseNumber string `json:"licenseNumber" yaml:"licenseNumber"`
	ProcessedDate string `json:"processedDate" yaml:"processedDate"`
}

// Payload is the consumer verification record. Its JSON shape is published in
// schema.json and must stay stable for external scanners.
type Payload struct {
	BatchID              string               `json:"batchId"`
	ProductName          string               `json:"productName"`
	BatchNumber          string               `json:"batchNumber"`
	HarvestDate          string               `json:"harvestDate"`
	Origin               string               `json:"origin"`
	QualityGrade         string               `json:"qualityGrade"`
	Certifications       []string             `json:"certifications"`
	BlockchainHash       string               `json:"blockchainHash"`
	VerificationURL      string               `json:"verificationUrl"`
	ExpiryDate           string               `json:"expiryDate"`
	ManufacturingDetails ManufacturingDetails `json:"manufacturingDetails"`
	LocationTrail        []batch.TrailPoint   `json:"locationTrail"`
}

// Source is the ledger data a payload is derived from.
type Source struct {
	Record batch.Record
	Hash   string
	Trail  []batch.TrailPoint
}

// Options carries deployment settings for Build.
type Options struct {
	VerifyBaseURL string
}

// Overrides replaces individual derived fields. Nil fields keep the derived value.
type Overrides struct {
	ProductName          *string               `yaml:"productName,omitempty"`
	HarvestDate          *string               `yaml:"harvestDate,omitempty"`
	Origin               *string               `yaml:"origin,omitempty"`
	QualityGrade         *string               `yaml:"qualityGrade,omitempty"`
	Certifications       []string              `yaml:"certifications,omitempty"`
	VerificationURL      *string               `yaml:"verificationUrl,omitempty"`
	ExpiryDate           *string               `yaml:"expiryDate,omitempty"`
	ManufacturingDetails *ManufacturingDetails `yaml:"manufacturingDetails,omitempty"`
}

// Build derives the consumer payload for src. It never modifies src.
func Build(src Source, opts Options, ov *Overrides) Payload {
	r := src.Record
	at := r.Time()
	base := strings.TrimSuffix(opts.VerifyBaseURL, "/")
	if base == "" {
		base = DefaultVerifyBaseURL
	}

	trail := make([]batch.TrailPoint, len(src.Trail))
	copy(trail, src.Trail)

	p := Payload{
		BatchID:         r.BatchNumber,
		ProductName:     r.ProductType,
		BatchNumber:     r.BatchNumber,
		HarvestDate:     at.Add(-harvestOffset).Format(dateLayout),
		Origin:          origin(r.Location),
		QualityGrade:    DefaultQualityGrade,
		Certifications:  append([]string(nil), DefaultCertifications...),
		BlockchainHash:  src.Hash,
		VerificationURL: base + "/product/" + r.BatchNumber,
		ExpiryDate:      at.Add(shelfLife).Format(dateLayout),
		ManufacturingDetails: ManufacturingDetails{
			FacilityName:  DefaultFacility,
			LicenseNumber: DefaultLicense,
			ProcessedDate: at.Format(dateLayout),
		},
		LocationTrail: trail,
	}
	if ov != nil {
		apply(&p, ov)
	}
	return p
}

func apply(p *Payload, ov *Overrides) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.ProductName, ov.ProductName)
	set(&p.HarvestDate, ov.HarvestDate)
	set(&p.Origin, ov.Origin)
	set(&p.QualityGrade, ov.QualityGrade)
	set(&p.VerificationURL, ov.VerificationURL)
	set(&p.ExpiryDate, ov.ExpiryDate)
	if ov.Certifications != nil {
		p.Certifications = append([]string(nil), ov.Certifications...)
	}
	if ov.ManufacturingDetails != nil {
		p.ManufacturingDetails = *ov.ManufacturingDetails
	}
}

func origin(loc *batch.Location) string {
	if loc == nil {
		return DefaultOrigin
	}
	return fmt.Sprintf("%.4f, %.4f", loc.Latitude, loc.Longitude)
}

// Hash returns the digest of the payload's JSON form, used as the QR code's
// own fingerprint.
func Hash(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return hashengine.Digest(raw), nil
}

// PNG renders the payload JSON as a QR code image of size×size pixels.
func PNG(p Payload, size int) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	img, err := qrcode.Encode(string(raw), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return img, nil
}
