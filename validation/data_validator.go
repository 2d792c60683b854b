// Package validation provides data validation functionality for the pharmacy API.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/farmaturno/farmacias-api/interfaces"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/minsalparser/entities"
)

// Pre-compiled regex patterns for performance optimization
// Compiled once at package initialization and reused for all validations
var (
	// Input validation: alphanumeric + Spanish accents + safe punctuation
	inputRegex = regexp.MustCompile(`^[a-zA-Z0-9\s\-\.\+'áéíóúüñÁÉÍÓÚÜÑ]+$`)

	// Dangerous patterns as strings (faster than regex for simple substring matching)
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
		"eval(", "expression(", "url(", "import ", "@import", "binding(", "behavior(",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"update set", "--", "/*", "*/", "xp_", "sp_", "exec(", "execute(",
		// Command injection patterns
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
		// LDAP injection patterns
		"*)(", "*|(", "*)%",
		// NoSQL injection patterns
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
	}
)

// Approximate bounding box of Chilean territory, Rapa Nui included.
// Coordinates outside it are flagged as suspect, not rejected.
const (
	chileMinLat = -56.6
	chileMaxLat = -17.4
	chileMinLng = -112.0
	chileMaxLng = -66.0
)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidatePharmacy checks if a pharmacy record is usable
func (v *DataValidatorImpl) ValidatePharmacy(p *entities.Pharmacy) error {
	if p == nil {
		return fmt.Errorf("pharmacy is nil")
	}

	if strings.TrimSpace(p.LocalID) == "" {
		return fmt.Errorf("empty local_id")
	}

	if strings.TrimSpace(p.Nombre) == "" {
		return fmt.Errorf("empty name for local %s", p.LocalID)
	}

	if len(p.Nombre) > 200 {
		return fmt.Errorf("name too long for local %s: %d characters", p.LocalID, len(p.Nombre))
	}

	if len(p.Direccion) > 300 {
		return fmt.Errorf("address too long for local %s: %d characters", p.LocalID, len(p.Direccion))
	}

	if len(p.Comuna) > 100 {
		return fmt.Errorf("comuna too long for local %s: %d characters", p.LocalID, len(p.Comuna))
	}

	if p.HasCoordinates() {
		if err := v.ValidateCoordinates(p.Lat, p.Lng); err != nil {
			return fmt.Errorf("bad coordinates for local %s: %w", p.LocalID, err)
		}
	}

	return nil
}

// ValidateCoordinates checks a latitude/longitude pair
func (v *DataValidatorImpl) ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %g out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %g out of range [-180, 180]", lng)
	}
	return nil
}

// ValidateDataIntegrity performs comprehensive dataset validation
func (v *DataValidatorImpl) ValidateDataIntegrity(pharmacies []entities.Pharmacy) error {
	if len(pharmacies) == 0 {
		return fmt.Errorf("no pharmacies found")
	}

	// The feed merge keys on local_id, so duplicates here mean the
	// merge itself is broken.
	idMap := make(map[string]bool, len(pharmacies))
	for i := range pharmacies {
		p := &pharmacies[i]
		if idMap[p.LocalID] {
			return fmt.Errorf("duplicate local_id found: %s", p.LocalID)
		}
		idMap[p.LocalID] = true

		if err := v.ValidatePharmacy(p); err != nil {
			return fmt.Errorf("invalid pharmacy %s: %w", p.LocalID, err)
		}
	}

	return nil
}

// ReportDataQuality generates a data quality report with all issues found
func (v *DataValidatorImpl) ReportDataQuality(pharmacies []entities.Pharmacy) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		DuplicateLocalIDs: []string{},
		TotalPharmacies:   len(pharmacies),
	}

	idMap := make(map[string]bool, len(pharmacies))
	comunas := make(map[string]bool)

	for i := range pharmacies {
		p := &pharmacies[i]

		if idMap[p.LocalID] {
			report.DuplicateLocalIDs = append(report.DuplicateLocalIDs, p.LocalID)
		}
		idMap[p.LocalID] = true

		if !p.HasCoordinates() {
			report.WithoutCoordinates++
		} else if !insideChile(p.Lat, p.Lng) {
			report.SuspectCoordinates++
		}

		if strings.TrimSpace(p.HoraApertura) == "" || strings.TrimSpace(p.HoraCierre) == "" {
			report.WithoutHours++
		}

		if strings.TrimSpace(p.Telefono) == "" {
			report.WithoutPhone++
		}

		if strings.TrimSpace(p.Comuna) == "" {
			report.UnknownComuna++
		} else {
			comunas[p.Comuna] = true
		}

		if p.EsTurno {
			report.OnDutyPharmacies++
		}
	}

	report.DistinctComunas = len(comunas)

	if len(report.DuplicateLocalIDs) > 0 {
		logging.Error("Duplicate local_id values detected",
			"count", len(report.DuplicateLocalIDs),
			"duplicates", report.DuplicateLocalIDs,
		)
	}

	return report
}

// ValidateInput validates user input strings with enhanced security
func (v *DataValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if len(input) < 3 {
		return fmt.Errorf("input too short: minimum 3 characters")
	}

	if len(input) > 50 {
		return fmt.Errorf("input too long: maximum 50 characters")
	}

	// Word count validation to prevent DoS attacks with many short words
	words := strings.Fields(input)
	if len(words) > 6 {
		return fmt.Errorf("search query too complex: maximum 6 words allowed")
	}

	// Check for potentially dangerous patterns using string matching (5-10x faster than regex)
	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	// Allow only alphanumeric characters, spaces, and safe punctuation
	if !inputRegex.MatchString(input) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces, hyphens, apostrophes, periods, plus sign, and Spanish accented characters are allowed")
	}

	// Additional checks for repeated characters (potential DoS)
	if v.hasExcessiveRepetition(input) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

func insideChile(lat, lng float64) bool {
	return lat >= chileMinLat && lat <= chileMaxLat &&
		lng >= chileMinLng && lng <= chileMaxLng
}

// hasExcessiveRepetition checks for potential DoS patterns with excessive character repetition
func (v *DataValidatorImpl) hasExcessiveRepetition(input string) bool {
	// Check for the same character repeated more than 10 times consecutively
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
