package query

import (
	"context"
	"regexp"
	"strings"
)

// RuleParser is the deterministic keyword parser. It is what runs whenever
// the LLM parser is slow, failing or not configured, so it never errors.
type RuleParser struct{}

// NewRuleParser creates a rule-based parser.
func NewRuleParser() *RuleParser {
	return &RuleParser{}
}

var (
	introPattern = regexp.MustCompile(`(?i)\b(?:introduc(?:e|tion)\s+(?:me\s+)?to|(?:warm\s+)?intro\s+to|how\s+(?:can|do|could|would)\s+i\s+(?:meet|reach|get\s+to|connect\s+with)|path\s+to)\s+(.+)$`)
	atPattern    = regexp.MustCompile(`(?i)\b(?:at|from)\s+(.+?)(?:\s+(?:in|who|that|with|based|near)\b|[?.!;]|$)`)
	inPattern    = regexp.MustCompile(`(?i)\b(?:based\s+in|located\s+in|in|near|around)\s+(.+?)(?:\s+(?:at|who|that|with|working|from)\b|[?.!;]|$)`)
	namedPattern = regexp.MustCompile(`(?i)\b(?:named|called)\s+([\p{L}][\p{L}'\-]*(?:\s+[\p{Lu}][\p{L}'\-]*)?)`)
	listSplit    = regexp.MustCompile(`(?i)\s*(?:,|\bor\b|/)\s*`)
	andSplit     = regexp.MustCompile(`(?i)\s+and\s+`)
	// nameTail is what follows "and" inside a single company name, as in
	// "Goldman Sachs and Company" or "Johnson and Sons".
	nameTail = regexp.MustCompile(`(?i)^(?:company|co\.?|sons|daughters|associates|brothers|partners)\b`)
	targetSplit  = regexp.MustCompile(`(?i)\s+(?:at|from|who|in)\s+`)
	placeSplit   = regexp.MustCompile(`(?i)\s+(?:in|near|around)\s+`)

	companyWords      = regexp.MustCompile(`(?i)\b(?:companies|company|startups?|firms?|organi[sz]ations?|orgs)\b`)
	strongWords       = regexp.MustCompile(`(?i)\b(?:strongest|closest|best|top|weakest)\b`)
	recentWords       = regexp.MustCompile(`(?i)\b(?:recent(?:ly)?|lately|latest|last\s+(?:talked|spoke|contacted|met))\b`)
	relationshipWords = regexp.MustCompile(`(?i)\b(?:relationships?|connections?|contacts?|network)\b`)
	secondDegreeWords = regexp.MustCompile(`(?i)\b(?:friends?\s+of\s+(?:my\s+)?friends?|second[\s-]degree|2nd[\s-]degree|extended\s+network|through\s+my\s+(?:network|connections|contacts))\b`)
	thirdDegreeWords  = regexp.MustCompile(`(?i)\b(?:third[\s-]degree|3rd[\s-]degree)\b`)
	departmentWords   = regexp.MustCompile(`(?i)^(?:engineering|product|design|operations|ops|hr|human\s+resources|people\s+ops|customer\s+success|support|growth|research|finance\s+team|business\s+development|bizdev|partnerships)$`)
	fillerPrefix      = regexp.MustCompile(`(?i)^(?:please\s+)?(?:find|show(?:\s+me)?|search(?:\s+for)?|look\s+up|list|who\s+is|who\s+are|get)\s+`)
)

// roleTerms maps role keywords, plural or abbreviated, to a title fragment.
var roleTerms = []struct {
	pattern *regexp.Regexp
	title   string
}{
	{regexp.MustCompile(`(?i)\bproduct\s+managers?\b|\bpms?\b`), "product manager"},
	{regexp.MustCompile(`(?i)\bdata\s+scientists?\b`), "data scientist"},
	{regexp.MustCompile(`(?i)\bsoftware\s+engineers?\b|\bengineers?\b|\bswes?\b`), "engineer"},
	{regexp.MustCompile(`(?i)\bdevelopers?\b|\bdevs\b`), "developer"},
	{regexp.MustCompile(`(?i)\bdesigners?\b`), "designer"},
	{regexp.MustCompile(`(?i)\bco-?founders?\b|\bfounders?\b`), "founder"},
	{regexp.MustCompile(`(?i)\bceos?\b`), "ceo"},
	{regexp.MustCompile(`(?i)\bctos?\b`), "cto"},
	{regexp.MustCompile(`(?i)\bcfos?\b`), "cfo"},
	{regexp.MustCompile(`(?i)\bvps?\b|\bvice\s+presidents?\b`), "vp"},
	{regexp.MustCompile(`(?i)\bdirectors?\b`), "director"},
	{regexp.MustCompile(`(?i)\brecruiters?\b|\btalent\b`), "recruiter"},
	{regexp.MustCompile(`(?i)\binvestors?\b|\bvcs\b|\bventure\s+capitalists?\b`), "investor"},
	{regexp.MustCompile(`(?i)\bpartners?\b`), "partner"},
	{regexp.MustCompile(`(?i)\bsales(?:people|\s+reps?)?\b|\baccount\s+executives?\b`), "sales"},
	{regexp.MustCompile(`(?i)\bmarketers?\b|\bmarketing\b`), "marketing"},
	{regexp.MustCompile(`(?i)\bconsultants?\b`), "consultant"},
	{regexp.MustCompile(`(?i)\bresearchers?\b`), "researcher"},
}

// industryTerms are recognized industry names and their aliases.
var industryTerms = map[string]string{
	"fintech":       "fintech",
	"finance":       "finance",
	"banking":       "finance",
	"healthcare":    "healthcare",
	"health":        "healthcare",
	"biotech":       "biotech",
	"saas":          "saas",
	"software":      "software",
	"ai":            "ai",
	"crypto":        "crypto",
	"web3":          "crypto",
	"ecommerce":     "ecommerce",
	"e-commerce":    "ecommerce",
	"retail":        "retail",
	"education":     "education",
	"edtech":        "education",
	"gaming":        "gaming",
	"media":         "media",
	"real estate":   "real estate",
	"insurance":     "insurance",
	"energy":        "energy",
	"climate":       "climate",
	"logistics":     "logistics",
	"cybersecurity": "security",
	"security":      "security",
	"consulting":    "consulting",
	"legal":         "legal",
	"hardware":      "hardware",
}

// industryPattern matches any industry term as a whole word.
var industryPattern = func() *regexp.Regexp {
	terms := make([]string, 0, len(industryTerms))
	for t := range industryTerms {
		terms = append(terms, regexp.QuoteMeta(t))
	}
	// Longest first so "real estate" wins over shorter overlaps.
	for i := 1; i < len(terms); i++ {
		for j := i; j > 0 && len(terms[j]) > len(terms[j-1]); j-- {
			terms[j], terms[j-1] = terms[j-1], terms[j]
		}
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(terms, "|") + `)\b`)
}()

// ignoredPlaces are " in ..." phrases that are not locations.
var ignoredPlaces = []string{"my ", "the last", "last ", "common", "touch", "person", "total", "general"}

// Parse never fails; text it cannot classify becomes a general search.
func (p *RuleParser) Parse(ctx context.Context, text string) (*SearchIntent, error) {
	text = strings.TrimSpace(text)
	intent := &SearchIntent{NaturalLanguage: text, ParsedBy: "rules"}

	if m := introPattern.FindStringSubmatch(text); m != nil {
		intent.QueryType = IntroPath
		target := strings.TrimSpace(trimPunct(m[1]))
		if parts := targetSplit.Split(target, 2); len(parts) == 2 {
			target = parts[0]
			intent.Filters.Companies = splitList(parts[1])
		}
		intent.Filters.Name = target
		return intent, nil
	}

	f := &intent.Filters
	f.Roles = roles(text)
	if m := namedPattern.FindStringSubmatch(text); m != nil {
		f.Name = strings.TrimSpace(m[1])
	}
	if m := atPattern.FindStringSubmatch(text); m != nil {
		f.Companies = splitList(m[1])
	}
	for _, m := range inPattern.FindAllStringSubmatch(text, -1) {
		for _, phrase := range placeSplit.Split(m[1], -1) {
			for _, value := range splitList(phrase) {
				placeOrIndustry(f, value)
			}
		}
	}
	for _, m := range industryPattern.FindAllString(text, -1) {
		f.Industries = appendUnique(f.Industries, industryTerms[strings.ToLower(m)])
	}

	switch {
	case thirdDegreeWords.MatchString(text):
		f.Degree = 3
	case secondDegreeWords.MatchString(text):
		f.Degree = 2
	}
	switch {
	case recentWords.MatchString(text):
		f.Sort = "recency"
	case strongWords.MatchString(text):
		f.Sort = "strength"
	}

	hasPersonFilters := len(f.Roles) > 0 || len(f.Companies) > 0 || len(f.Locations) > 0 || f.Name != "" || f.Degree > 1
	switch {
	case companyWords.MatchString(withoutPhrases(text, f.Companies)) && len(f.Roles) == 0 && f.Name == "":
		intent.QueryType = CompanySearch
	case hasPersonFilters || (len(f.Industries) > 0 && !relationshipWords.MatchString(text)):
		intent.QueryType = PersonSearch
	case f.Sort != "" || relationshipWords.MatchString(text):
		intent.QueryType = RelationshipQuery
		if f.Sort == "" {
			f.Sort = "strength"
		}
	default:
		intent.QueryType = General
		intent.NaturalLanguage = generalText(text)
	}
	return intent, nil
}

func roles(text string) []string {
	var out []string
	for _, rt := range roleTerms {
		if rt.pattern.MatchString(text) {
			out = appendUnique(out, rt.title)
		}
	}
	return out
}

// placeOrIndustry files an " in X" phrase as an industry when X names one,
// otherwise as a location. Roles and departments ("work in sales") are
// neither.
func placeOrIndustry(f *Filters, value string) {
	v := strings.ToLower(value)
	v = strings.TrimPrefix(v, "the ")
	for _, suffix := range []string{" industry", " sector", " space", " companies", " startups"} {
		v = strings.TrimSuffix(v, suffix)
	}
	if canonical, ok := industryTerms[v]; ok {
		f.Industries = appendUnique(f.Industries, canonical)
		return
	}
	if departmentWords.MatchString(v) {
		return
	}
	for _, rt := range roleTerms {
		if rt.pattern.MatchString(v) {
			return
		}
	}
	for _, ignored := range ignoredPlaces {
		if strings.HasPrefix(v, ignored) || v == strings.TrimSpace(ignored) {
			return
		}
	}
	if industryPattern.MatchString(v) {
		return
	}
	f.Locations = appendUnique(f.Locations, value)
}

func splitList(s string) []string {
	var out []string
	for _, part := range listSplit.Split(trimPunct(s), -1) {
		for _, item := range splitAnd(strings.TrimSpace(part)) {
			if item = strings.TrimSpace(item); item != "" {
				out = appendUnique(out, item)
			}
		}
	}
	return out
}

// splitAnd splits on "and" unless the right side continues a company name.
func splitAnd(s string) []string {
	pieces := andSplit.Split(s, -1)
	out := []string{pieces[0]}
	for _, piece := range pieces[1:] {
		if nameTail.MatchString(piece) {
			out[len(out)-1] += " and " + piece
			continue
		}
		out = append(out, piece)
	}
	return out
}

// withoutPhrases removes the given phrases from text, case-insensitively.
func withoutPhrases(text string, phrases []string) string {
	for _, p := range phrases {
		if p == "" {
			continue
		}
		text = regexp.MustCompile(`(?i)`+regexp.QuoteMeta(p)).ReplaceAllString(text, " ")
	}
	return text
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}

func trimPunct(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "?.!,;:")
}

// generalText strips conversational filler so the full-text search sees
// only the meaningful terms.
func generalText(text string) string {
	stripped := strings.TrimSpace(fillerPrefix.ReplaceAllString(trimPunct(text), ""))
	if stripped == "" {
		return text
	}
	return stripped
}
