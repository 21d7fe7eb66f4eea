// Package model defines the core domain types for provider matching.
package model

import (
	"fmt"
	"sort"
	"time"
)

// SpecialtyVocabulary is the fixed set of medical specialties the system
// recognizes. Provider records outside this vocabulary are rejected at load.
var SpecialtyVocabulary = []string{
	"Allergy", "Anesthesiology", "Cardiology", "Dentist", "Dermatology",
	"ENT", "Endocrinology", "Gastroenterology", "General Surgery",
	"Hematology", "Immunology", "Infectious Disease", "Nephrology",
	"Neurology", "Oncology", "Ophthalmology", "Orthopedics", "Pathology",
	"Pediatrics", "Physical Therapy", "Plastic Surgery", "Primary Care",
	"Psychiatry", "Pulmonology", "Radiology", "Rheumatology",
	"Sports Medicine", "Urology",
}

var specialtySet = func() map[string]bool {
	m := make(map[string]bool, len(SpecialtyVocabulary))
	for _, s := range SpecialtyVocabulary {
		m[s] = true
	}
	return m
}()

// IsKnownSpecialty reports whether s is in the fixed specialty vocabulary.
func IsKnownSpecialty(s string) bool {
	return specialtySet[s]
}

// ProviderRecord is a single healthcare provider eligible for matching.
// Records are immutable after directory load.
type ProviderRecord struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Specialty         string    `json:"specialty"`
	ZipCode           string    `json:"zip_code"`
	AcceptedInsurance []string  `json:"insurances"`
	Rating            float64   `json:"rating"`
	NextAvailability  Date `json:"availability_date"`
}

// Date is a calendar date serialized as "2006-01-02".
type Date struct {
	time.Time
}

// NewDate builds a Date from year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("availability date: expected string, got %s", s)
	}
	t, err := time.Parse("2006-01-02", s[1:len(s)-1])
	if err != nil {
		return fmt.Errorf("availability date: %w", err)
	}
	d.Time = t
	return nil
}

// String renders the date in its wire format.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Validate checks the directory invariants for a single record.
func (p ProviderRecord) Validate() error {
	var ve ValidationError
	if p.ID == "" {
		ve.Add("id", "must not be empty")
	}
	if p.Name == "" {
		ve.Add("name", "must not be empty")
	}
	if !IsZipCode(p.ZipCode) {
		ve.Add("zip_code", fmt.Sprintf("must be exactly 5 digits, got %q", p.ZipCode))
	}
	if !IsKnownSpecialty(p.Specialty) {
		ve.Add("specialty", fmt.Sprintf("unknown specialty %q", p.Specialty))
	}
	if len(p.AcceptedInsurance) == 0 {
		ve.Add("insurances", "must not be empty")
	}
	if p.Rating < 0 || p.Rating > 5 {
		ve.Add("rating", fmt.Sprintf("must be between 0 and 5, got %g", p.Rating))
	}
	if ve.Empty() {
		return nil
	}
	return &ve
}

// AcceptsInsurance reports whether the provider accepts the named insurer.
func (p ProviderRecord) AcceptsInsurance(insurer string) bool {
	for _, ins := range p.AcceptedInsurance {
		if ins == insurer {
			return true
		}
	}
	return false
}

// IsZipCode reports whether s is exactly 5 ASCII digits.
func IsZipCode(s string) bool {
	if len(s) != 5 {
		return false
	}
	for i := 0; i < 5; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// DistinctSpecialties returns the sorted set of specialties present in providers.
func DistinctSpecialties(providers []ProviderRecord) []string {
	return distinct(providers, func(p ProviderRecord) []string { return []string{p.Specialty} })
}

// DistinctInsurances returns the sorted set of insurers accepted by providers.
func DistinctInsurances(providers []ProviderRecord) []string {
	return distinct(providers, func(p ProviderRecord) []string { return p.AcceptedInsurance })
}

func distinct(providers []ProviderRecord, get func(ProviderRecord) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range providers {
		for _, v := range get(p) {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}
