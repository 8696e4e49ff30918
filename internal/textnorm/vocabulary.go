package textnorm

// Vocabulary holds the word lists used to strip headline noise. Both lists hold
// lowercase, punctuation-free words.
type Vocabulary struct {
	Boilerplate map[string]struct{}
	Stopwords   map[string]struct{}
}

// NewVocabulary builds a Vocabulary from plain word lists.
func NewVocabulary(boilerplate, stopwords []string) Vocabulary {
	return Vocabulary{
		Boilerplate: wordSet(boilerplate),
		Stopwords:   wordSet(stopwords),
	}
}

// DefaultVocabulary is used by the package-level helpers.
var DefaultVocabulary = NewVocabulary(defaultBoilerplate, defaultStopwords)

// Legal suffixes and press-release verbs that make unrelated headlines look alike.
var defaultBoilerplate = []string{
	"inc", "incorporated", "llc", "ltd", "limited", "corp", "corporation", "co", "plc",
	"gmbh", "ag", "sa", "nv", "bv",
	"announces", "announced", "announce", "announcing",
	"launches", "launched", "launch",
	"unveils", "unveiled",
	"introduces", "introduced",
	"reveals", "revealed",
	"releases", "released",
	"today", "press", "release", "pressrelease", "breaking", "update", "updated", "exclusive",
}

var defaultStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "been", "but", "by", "for", "from",
	"has", "have", "had", "he", "her", "his", "in", "into", "is", "it", "its",
	"of", "on", "or", "our", "over", "she", "that", "the", "their", "them", "they",
	"this", "to", "up", "was", "we", "were", "will", "with", "after", "amid", "new",
	"than", "via", "vs", "who", "what", "why", "how",
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}
