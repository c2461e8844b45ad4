package service

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/ifuryst/inkwell/internal/localtime"
	"github.com/ifuryst/inkwell/internal/models"
)

// languageZones maps a base language to the zone its sites default to.
var languageZones = map[string]string{
	"ja": "Asia/Tokyo",
	"ko": "Asia/Seoul",
	"zh": "Asia/Shanghai",
	"th": "Asia/Bangkok",
	"vi": "Asia/Ho_Chi_Minh",
	"id": "Asia/Jakarta",
	"de": "Europe/Berlin",
	"fr": "Europe/Paris",
	"it": "Europe/Rome",
	"es": "Europe/Madrid",
	"nl": "Europe/Amsterdam",
	"pl": "Europe/Warsaw",
	"tr": "Europe/Istanbul",
	"pt": "America/Sao_Paulo",
}

// languageNames covers the free-text spellings users type into forms.
var languageNames = map[string]string{
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"thai":       "th",
	"vietnamese": "vi",
	"indonesian": "id",
	"german":     "de",
	"french":     "fr",
	"italian":    "it",
	"spanish":    "es",
	"dutch":      "nl",
	"polish":     "pl",
	"turkish":    "tr",
	"portuguese": "pt",
	"english":    "en",
}

// BaseLanguage returns the ISO 639-1 code for a language signal, or "" when
// the signal is empty or unrecognised.
func BaseLanguage(signal string) string {
	signal = strings.TrimSpace(strings.ToLower(signal))
	if signal == "" {
		return ""
	}
	if code, ok := languageNames[signal]; ok {
		return code
	}
	tag, err := language.Parse(signal)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

// LanguageZone returns the default zone for a language signal.
func LanguageZone(signal string) (string, bool) {
	zone, ok := languageZones[BaseLanguage(signal)]
	return zone, ok
}

// ResolveJobTimezone picks the zone a recurring job's slots are read in:
// site setting, then job setting, then the job's (or site's) language, then UTC.
func ResolveJobTimezone(site *models.Site, job *models.RecurringJob) string {
	if site != nil && localtime.IsValidZone(site.Timezone) {
		return strings.TrimSpace(site.Timezone)
	}
	if job != nil && localtime.IsValidZone(job.Timezone) {
		return strings.TrimSpace(job.Timezone)
	}
	if job != nil {
		if zone, ok := LanguageZone(job.Language); ok {
			return zone
		}
	}
	if site != nil {
		if zone, ok := LanguageZone(site.Language); ok {
			return zone
		}
	}
	return "UTC"
}

// ResolvePlanTimezone picks the zone a schedule plan's topics are read in.
// Plans have no zone of their own; they follow the site.
func ResolvePlanTimezone(site *models.Site) string {
	if site == nil {
		return "UTC"
	}
	if localtime.IsValidZone(site.Timezone) {
		return strings.TrimSpace(site.Timezone)
	}
	if zone, ok := LanguageZone(site.Language); ok {
		return zone
	}
	return "UTC"
}
