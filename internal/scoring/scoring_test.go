package scoring

import (
	"testing"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

func strPtr(s string) *string { return &s }

func TestSeverityScore(t *testing.T) {
	tests := []struct {
		name    string
		matched []string
		want    int
	}{
		{"no issues", nil, 100},
		{"one low", []string{"missing-photos"}, 95},
		{"one medium", []string{"missing-description"}, 90},
		{"one high", []string{"missing-phone"}, 85},
		{"one critical", []string{"ghost-clinic"}, 75},
		{"critical plus medium", []string{"ghost-clinic", "missing-description"}, 65},
		{
			"floored at zero",
			[]string{
				"ghost-clinic",        // -25
				"premium-not-indexed", // -15
				"missing-phone",       // -15
				"unverified-listing",  // -15
				"missing-description", // -10
				"no-services-listed",  // -10
				"incomplete-seo",      // -10
				"low-engagement",      // -10
			},
			0,
		},
		{"unknown tag ignored", []string{"not-a-rule"}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched := make(map[string]bool, len(tt.matched))
			for _, id := range tt.matched {
				matched[id] = true
			}
			if got := SeverityScore(matched); got != tt.want {
				t.Errorf("SeverityScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSEOScore(t *testing.T) {
	full := &clinic.Clinic{
		MetaTitle:       strPtr("Smile Dental | Dentist"),
		MetaDescription: strPtr("Book a checkup."),
		Description:     strPtr("A full-service dental clinic with modern equipment and friendly staff."),
		Keywords:        []string{"a", "b", "c", "d", "e"},
	}
	// 5% CTR hits the click-through cap.
	m := clinic.Metrics{Indexed: true, Impressions: 1000, Clicks: 50}
	if got := SEOScore(full, m); got != 100 {
		t.Errorf("fully optimized listing = %d, want 100", got)
	}

	empty := &clinic.Clinic{}
	if got := SEOScore(empty, clinic.Metrics{}); got != 0 {
		t.Errorf("empty listing = %d, want 0", got)
	}
}

func TestSEOScore_Components(t *testing.T) {
	// Metadata only: title + meta description + long description = 30.
	c := &clinic.Clinic{
		MetaTitle:       strPtr("t"),
		MetaDescription: strPtr("d"),
		Description:     strPtr("This description is comfortably past forty characters long."),
	}
	if got := SEOScore(c, clinic.Metrics{}); got != 30 {
		t.Errorf("metadata-only = %d, want 30", got)
	}

	// Indexing only.
	if got := SEOScore(&clinic.Clinic{}, clinic.Metrics{Indexed: true}); got != 25 {
		t.Errorf("indexed-only = %d, want 25", got)
	}

	// Keywords cap at 25 regardless of count.
	kw := &clinic.Clinic{Keywords: make([]string, 20)}
	if got := SEOScore(kw, clinic.Metrics{}); got != 25 {
		t.Errorf("20 keywords = %d, want capped 25", got)
	}

	// Two keywords land mid-band.
	kw2 := &clinic.Clinic{Keywords: []string{"a", "b"}}
	if got := SEOScore(kw2, clinic.Metrics{}); got != 10 {
		t.Errorf("2 keywords = %d, want 10", got)
	}

	// CTR band: 2.5% CTR is half of the 20-point band.
	m := clinic.Metrics{Impressions: 1000, Clicks: 25}
	if got := SEOScore(&clinic.Clinic{}, m); got != 10 {
		t.Errorf("2.5%% CTR = %d, want 10", got)
	}
}

func TestSEOScore_ThinDescriptionGetsNoMetadataPoints(t *testing.T) {
	c := &clinic.Clinic{Description: strPtr("short")}
	if got := SEOScore(c, clinic.Metrics{}); got != 0 {
		t.Errorf("thin description = %d, want 0", got)
	}
}

func TestEngagementScore(t *testing.T) {
	tests := []struct {
		name string
		m    clinic.Metrics
		want int
	}{
		{"no activity", clinic.Metrics{}, 0},
		{"full bands", clinic.Metrics{Calls: 20, Clicks: 100, Impressions: 1000}, 100},
		{"beyond caps stays 100", clinic.Metrics{Calls: 500, Clicks: 9000, Impressions: 50000}, 100},
		{"calls only, half band", clinic.Metrics{Calls: 10}, 23},          // 22.5 rounds up
		{"clicks only, full band", clinic.Metrics{Clicks: 100}, 35},
		{"impressions only, full band", clinic.Metrics{Impressions: 1000}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EngagementScore(tt.m); got != tt.want {
				t.Errorf("EngagementScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCompute(t *testing.T) {
	c := &clinic.Clinic{}
	m := clinic.Metrics{Indexed: true}
	matched := map[string]bool{"ghost-clinic": true}

	s := Compute(c, m, matched)
	if s.Severity != 75 {
		t.Errorf("Severity = %d, want 75", s.Severity)
	}
	if s.SEO != 25 {
		t.Errorf("SEO = %d, want 25", s.SEO)
	}
	if s.Engagement != 0 {
		t.Errorf("Engagement = %d, want 0", s.Engagement)
	}
}
