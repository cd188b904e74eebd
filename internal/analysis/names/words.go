package names

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var honorifics = set(
	"mr", "mrs", "ms", "miss", "mx", "dr", "prof", "sir", "dame", "lady",
	"lord", "captain", "capt", "sergeant", "sgt", "lieutenant", "lt",
	"colonel", "general", "king", "queen", "prince", "princess", "duke",
	"duchess", "count", "countess", "baron", "uncle", "aunt", "auntie",
	"father", "sister", "brother", "master", "mistress", "madam", "madame",
	"professor", "doctor", "inspector", "detective", "officer",
)

var locatives = set(
	"in", "at", "to", "from", "into", "near", "toward", "towards", "across",
	"through", "outside", "inside", "beyond", "around", "past", "via",
)

// placeWords mark a multi-word name as a place when they open or close it,
// as in "Mount Arlen" or "Blackwater River".
var placeWords = set(
	"street", "st", "road", "rd", "avenue", "lane", "square", "bridge",
	"river", "lake", "sea", "ocean", "bay", "coast", "island", "isles",
	"mountain", "mountains", "mount", "hill", "hills", "valley", "forest",
	"wood", "woods", "desert", "plains", "city", "town", "village", "county",
	"kingdom", "empire", "province", "castle", "keep", "tower", "hall",
	"abbey", "cathedral", "palace", "harbor", "harbour", "port", "fort",
	"station", "park", "falls", "creek", "marsh", "moor", "north", "south",
	"east", "west", "new", "saint",
)

// connectors may join capitalised words into one name ("Tower of Whispers").
var connectors = set("of", "de", "del", "da", "van", "von", "la", "le")

// weakWords are capitalised at the start of a sentence far more often than
// they are names.
var weakWords = set(
	"a", "an", "the", "and", "or", "but", "so", "yet", "for", "nor", "if",
	"then", "when", "while", "after", "before", "as", "because", "though",
	"although", "once", "until", "since", "in", "on", "at", "to", "of",
	"with", "by", "from", "i", "me", "my", "you", "your", "he", "him",
	"his", "she", "her", "it", "its", "we", "us", "our", "they", "them",
	"their", "this", "that", "these", "those", "there", "here", "what",
	"who", "whom", "which", "where", "why", "how", "all", "some", "no",
	"not", "yes", "oh", "ah", "hmm", "well", "maybe", "perhaps", "however",
	"anyway", "therefore", "meanwhile", "still", "also", "now", "just",
	"hello", "hi", "hey", "goodbye", "please", "thanks", "okay", "ok",
	"sorry", "wait", "look", "listen", "come", "go", "stop", "let", "do",
	"don", "did", "does", "is", "was", "are", "were", "be", "been", "had",
	"has", "have", "can", "could", "will", "would", "should", "shall", "may",
	"might", "must", "every", "each", "one", "two", "three", "nothing",
	"something", "everything", "someone", "everyone", "nobody", "somebody",
)
