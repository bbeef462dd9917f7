package confirm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Intent is what a user answer asks the coordinator to do.
type Intent int

const (
	// IntentUnrecognized means none of the rules matched.
	IntentUnrecognized Intent = iota
	// IntentSelectOption picks one of the offered options.
	IntentSelectOption
	// IntentSpecifyValue names a value that was not necessarily offered.
	IntentSpecifyValue
	// IntentProceedAsIs continues without choosing.
	IntentProceedAsIs
	// IntentCancel abandons the request.
	IntentCancel
)

func (i Intent) String() string {
	switch i {
	case IntentSelectOption:
		return "select_option"
	case IntentSpecifyValue:
		return "specify_value"
	case IntentProceedAsIs:
		return "proceed_as_is"
	case IntentCancel:
		return "cancel"
	default:
		return "unrecognized"
	}
}

// Interpretation is the decoded answer. Value is set for SelectOption and SpecifyValue.
type Interpretation struct {
	Intent Intent
	Value  string
}

// AnswerInterpreter decodes free-text answers to an ambiguity question.
type AnswerInterpreter interface {
	Interpret(answer string, amb models.Ambiguity) Interpretation
}

// KeywordInterpreter matches answers against fixed English and Japanese phrases.
type KeywordInterpreter struct{}

var (
	cancelPhrases  = []string{"cancel", "never mind", "nevermind", "stop", "キャンセル", "やめ", "中止"}
	proceedPhrases = []string{
		"proceed", "without specifying", "no preference", "doesn't matter", "does not matter",
		"any", "anything", "whatever", "either", "skip",
		"おまかせ", "お任せ", "指定しない", "指定なし", "このまま", "どれでも", "なんでも", "何でも",
	}

	specifyEN = regexp.MustCompile(`(?i)^(?:please\s+)?(?:use|with|choose|pick|take)\s+(?:the\s+)?(.+?)[.!]?$`)
	specifyJA = regexp.MustCompile(`^(.+?)(?:を使って(?:ください)?|を使う|にして(?:ください)?|でお願い(?:します)?)[。！]?$`)
)

// Interpret applies the rules in order: option number, exact option label,
// cancel, proceed, explicit value, option label mentioned in passing.
func (KeywordInterpreter) Interpret(answer string, amb models.Ambiguity) Interpretation {
	a := strings.TrimSpace(answer)
	if a == "" {
		return Interpretation{Intent: IntentUnrecognized}
	}

	if n, err := strconv.Atoi(a); err == nil {
		if n >= 1 && n <= len(amb.Options) {
			return Interpretation{Intent: IntentSelectOption, Value: optionValue(amb.Options[n-1])}
		}
		return Interpretation{Intent: IntentUnrecognized}
	}

	for _, opt := range amb.Options {
		if strings.EqualFold(a, opt.Label) || (opt.Value != "" && strings.EqualFold(a, opt.Value)) {
			return Interpretation{Intent: IntentSelectOption, Value: optionValue(opt)}
		}
	}

	lower := strings.ToLower(a)
	if matchesAny(lower, cancelPhrases) {
		return Interpretation{Intent: IntentCancel}
	}
	if matchesAny(lower, proceedPhrases) {
		return Interpretation{Intent: IntentProceedAsIs}
	}

	if m := specifyEN.FindStringSubmatch(a); m != nil {
		return Interpretation{Intent: IntentSpecifyValue, Value: strings.TrimSpace(m[1])}
	}
	if m := specifyJA.FindStringSubmatch(a); m != nil {
		return Interpretation{Intent: IntentSpecifyValue, Value: strings.TrimSpace(m[1])}
	}

	for _, opt := range amb.Options {
		if opt.Label != "" && strings.Contains(lower, strings.ToLower(opt.Label)) {
			return Interpretation{Intent: IntentSelectOption, Value: optionValue(opt)}
		}
	}

	return Interpretation{Intent: IntentUnrecognized}
}

// matchesAny reports whether s contains a phrase. Single ASCII words must
// match a whole word so "any" does not match "company".
func matchesAny(s string, phrases []string) bool {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == '\t'
	})
	for _, p := range phrases {
		if isASCIIWord(p) {
			for _, w := range words {
				if w == p {
					return true
				}
			}
			continue
		}
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > 127 || r == ' ' {
			return false
		}
	}
	return true
}

func optionValue(o models.Option) string {
	if o.Value != "" {
		return o.Value
	}
	return o.Label
}

// Merge folds a recognized answer into the original request text.
// Proceeding as-is leaves the request unchanged.
func Merge(original string, in Interpretation) string {
	switch in.Intent {
	case IntentSelectOption, IntentSpecifyValue:
		if in.Value == "" {
			return original
		}
		return fmt.Sprintf("%s (use %s)", strings.TrimSpace(original), in.Value)
	default:
		return original
	}
}
