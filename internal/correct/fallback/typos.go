package fallback

// DefaultTypos maps common English misspellings to their corrections. Keys
// are lowercase single words. Informal spellings that may be deliberate in
// fiction ("gonna", "dont") are left out.
var DefaultTypos = map[string]string{
	"accross":     "across",
	"adn":         "and",
	"arguement":   "argument",
	"becuase":     "because",
	"begining":    "beginning",
	"beleive":     "believe",
	"calender":    "calendar",
	"concious":    "conscious",
	"definately":  "definitely",
	"embarass":    "embarrass",
	"existance":   "existence",
	"foriegn":     "foreign",
	"freind":      "friend",
	"goverment":   "government",
	"happend":     "happened",
	"hte":         "the",
	"independant": "independent",
	"neccessary":  "necessary",
	"noticable":   "noticeable",
	"occured":     "occurred",
	"occurence":   "occurrence",
	"persistant":  "persistent",
	"posession":   "possession",
	"publically":  "publicly",
	"realy":       "really",
	"recieve":     "receive",
	"recieved":    "received",
	"remeber":     "remember",
	"seperate":    "separate",
	"succesful":   "successful",
	"suprise":     "surprise",
	"taht":        "that",
	"teh":         "the",
	"thier":       "their",
	"tommorow":    "tomorrow",
	"truely":      "truly",
	"untill":      "until",
	"whcih":       "which",
	"wich":        "which",
	"wierd":       "weird",
	"wiht":        "with",
}
