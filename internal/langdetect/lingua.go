package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Undetermined is stored when a title is too short or ambiguous to tag.
const Undetermined = "und"

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Languages the monitored feeds publish in.
var monitoredLanguages = []lingua.Language{
	lingua.English,
	lingua.German,
	lingua.French,
	lingua.Spanish,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Swedish,
	lingua.Japanese,
	lingua.Chinese,
	lingua.Korean,
}

// DetectISO6391 returns a two-letter code, or Undetermined.
func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return Undetermined
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return Undetermined
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return Undetermined
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return Undetermined
	}
	return code
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(monitoredLanguages...).
			WithMinimumRelativeDistance(0.1).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
