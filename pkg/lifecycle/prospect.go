package lifecycle

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/callscope/callscope/pkg/models"
)

// ProspectIdentity is the resolved prospect for a calendar event.
type ProspectIdentity struct {
	Email string
	Name  string
}

var (
	titlePrefixPattern = regexp.MustCompile(`(?i)^\s*(?:(?:re|fw|fwd|canceled|cancelled|declined|confirmed|updated|invitation|invite|reminder)\s*:\s*)+`)
	angleEmailPattern  = regexp.MustCompile(`<[^<>\s]+@[^<>\s]+>`)
	parenPattern       = regexp.MustCompile(`\(([^()]*)\)`)
	bracketPattern     = regexp.MustCompile(`\[([^\[\]]*)\]`)
	ordinalPattern     = regexp.MustCompile(`(?i)\b\d+(?:st|nd|rd|th)\b`)
	hashNumberPattern  = regexp.MustCompile(`#\d+`)
	separatorPattern   = regexp.MustCompile("[-–—|:;/•~,.!?]")
)

// fillerWords are stripped from titles word-by-word. "&" is deliberately
// absent: it connects couple names ("Tom & Sarah").
var fillerWords = map[string]bool{
	"call": true, "meeting": true, "session": true, "chat": true,
	"with": true, "and": true, "vs": true, "for": true, "w/": true,
	"booked": true, "scheduled": true, "rescheduled": true,
	"follow-up": true, "followup": true, "follow": true, "up": true,
	"consult": true, "consultation": true, "demo": true, "intro": true,
	"at": true, "assigned": true, "to": true,
}

// ExtractProspect resolves prospect identity for a calendar event.
// Attendee records win; the event title is parsed when attendees carry no
// usable prospect; the email prefix is the last resort for a display name.
// closerEmails holds every known closer email for the tenant, normalized.
func ExtractProspect(evt *models.CanonicalEvent, closer *models.Closer, tenant *models.Tenant, closerEmails map[string]bool) ProspectIdentity {
	identity := ProspectIdentity{Email: models.UnknownProspectEmail}

	organizer := models.NormalizeEmail(evt.OrganizerEmail)
	for _, a := range evt.Attendees {
		email := models.NormalizeEmail(a.Email)
		if email == "" || a.IsOrganizer || email == organizer || closerEmails[email] {
			continue
		}
		identity.Email = email
		identity.Name = strings.TrimSpace(a.Name)
		break
	}
	if identity.Name != "" {
		return identity
	}

	if name, ok := nameFromTitle(evt.Title, closer, tenant); ok {
		identity.Name = name
		return identity
	}

	if identity.Email != models.UnknownProspectEmail {
		identity.Name = nameFromEmail(identity.Email)
	}
	return identity
}

// nameFromTitle runs the title-parsing tier: strip everything that is not
// the prospect and check whether a plausible name remains. Parenthesised
// and bracketed fragments are held back as a fallback.
func nameFromTitle(title string, closer *models.Closer, tenant *models.Tenant) (string, bool) {
	if strings.TrimSpace(title) == "" {
		return "", false
	}

	working := titlePrefixPattern.ReplaceAllString(title, "")
	working = angleEmailPattern.ReplaceAllString(working, " ")

	var saved []string
	working = parenPattern.ReplaceAllStringFunc(working, func(m string) string {
		saved = append(saved, strings.TrimSpace(m[1:len(m)-1]))
		return " "
	})
	working = bracketPattern.ReplaceAllStringFunc(working, func(m string) string {
		saved = append(saved, strings.TrimSpace(m[1:len(m)-1]))
		return " "
	})

	working = stripWholeName(working, closer.Name)
	working = stripWithCloserFirst(working, closer.FirstName())
	working = stripFilterPhrases(working, tenant.FilterPhrases)
	working = stripFiller(working)
	working = ordinalPattern.ReplaceAllString(working, " ")
	working = hashNumberPattern.ReplaceAllString(working, " ")
	working = separatorPattern.ReplaceAllString(working, " ")

	if name, ok := plausibleName(working, closer.FirstName()); ok {
		return name, true
	}
	for _, fragment := range saved {
		if name, ok := plausibleName(fragment, closer.FirstName()); ok {
			return name, true
		}
	}
	return "", false
}

// stripWholeName removes the closer's complete name, whole-word. Partial
// overlap stays: "Tyler Smith" survives when the closer is "Tyler Ray".
func stripWholeName(s, fullName string) string {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return s
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(fullName) + `\b`)
	return re.ReplaceAllString(s, " ")
}

// stripWithCloserFirst removes "w/ <first>" and "with <first>" only when
// no further letter-word follows. A trailing letter-word means the phrase
// names a different person sharing the closer's first name.
func stripWithCloserFirst(s, firstName string) string {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		return s
	}
	re := regexp.MustCompile(`(?i)\b(?:w/\s*|with\s+)` + regexp.QuoteMeta(firstName) + `\b`)

	var out strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if startsWithLetterWord(s[loc[1]:]) {
			continue
		}
		out.WriteString(s[last:loc[0]])
		out.WriteString(" ")
		last = loc[1]
	}
	out.WriteString(s[last:])
	return out.String()
}

func startsWithLetterWord(rest string) bool {
	trimmed := strings.TrimLeft(rest, " \t")
	if trimmed == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(trimmed)
	return unicode.IsLetter(r)
}

// stripFilterPhrases removes the tenant's filter phrases, longest first so
// "discovery call" goes before "call".
func stripFilterPhrases(s string, phrases models.StringList) string {
	ordered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p != "" && p != "*" {
			ordered = append(ordered, p)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for _, phrase := range ordered {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase))
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

func stripFiller(s string) string {
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if fillerWords[strings.ToLower(w)] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// plausibleName accepts a 1-6 word residual where every word is a
// letter-word, "&", or a number. A lone word equal to the closer's first
// name is ambiguous and rejected.
func plausibleName(s, closerFirst string) (string, bool) {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 6 {
		return "", false
	}
	for _, w := range words {
		if !isNameWord(w) {
			return "", false
		}
	}
	if len(words) == 1 && strings.EqualFold(words[0], closerFirst) {
		return "", false
	}
	for i, w := range words {
		words[i] = titleCaseWord(w)
	}
	return strings.Join(words, " "), true
}

func isNameWord(w string) bool {
	if w == "&" {
		return true
	}
	allDigits := true
	for _, r := range w {
		if !unicode.IsDigit(r) {
			allDigits = false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' {
			return false
		}
	}
	if allDigits {
		return true
	}
	for _, r := range w {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func titleCaseWord(w string) string {
	if w == "&" {
		return w
	}
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

// nameFromEmail derives a display name from the email's local part,
// splitting on common separators and title-casing non-numeric parts.
func nameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return ""
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if isAllDigits(p) {
			out = append(out, p)
			continue
		}
		out = append(out, titleCaseWord(p))
	}
	return strings.Join(out, " ")
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
