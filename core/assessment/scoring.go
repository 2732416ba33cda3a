package assessment

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// Answer key rule fields. Keys are teacher-authored JSON so three
// historical shapes coexist:
//   - bare scalar:                 {"q1": "2"}                                  (1 point)
//   - single-answer rule:          {"q1": {"correctAnswer": "2", "score": 3}}
//   - multi-answer rule:           {"q2": {"correctAnswers": ["a","b"], "score": 2}}
const (
	keySingle = "correctAnswer"
	keyMulti  = "correctAnswers"
	keyPoints = "score"
)

type ruleKind int

const (
	ruleLegacy ruleKind = iota // bare scalar, fixed 1 point
	ruleSingle                 // correctAnswer + score
	ruleMulti                  // correctAnswers + score, exact set match
	ruleOpaque                 // structured but neither field; whole-rule string compare
)

// rule is the resolved form of one answer key entry. Shape discrimination
// happens once here, not at every comparison site.
type rule struct {
	kind        ruleKind
	points      float64
	expected    string
	expectedSet map[string]struct{}
}

// resolveRule classifies one answer key entry. ok is false for entries
// that must be skipped (nil, or negative points).
func resolveRule(v interface{}) (rule, bool) {
	if v == nil {
		return rule{}, false
	}

	m, structured := toStringMap(v)
	if !structured {
		return rule{kind: ruleLegacy, points: 1, expected: stringify(v)}, true
	}

	points := cast.ToFloat64(m[keyPoints]) // 0 when absent or non-numeric
	if points < 0 {
		return rule{}, false
	}

	if expected, ok := m[keyMulti]; ok {
		return rule{kind: ruleMulti, points: points, expectedSet: toStringSet(expected)}, true
	}
	if expected, ok := m[keySingle]; ok {
		return rule{kind: ruleSingle, points: points, expected: stringify(expected)}, true
	}
	// structured rule with neither expectation field: compare against the
	// rule as a whole
	return rule{kind: ruleOpaque, points: points, expected: stringify(v)}, true
}

// grade returns the rule's contribution for one submitted answer.
func (r rule) grade(answer interface{}) float64 {
	switch r.kind {
	case ruleMulti:
		// all-or-nothing: exact set equality, order irrelevant, no
		// partial credit
		if !isListLike(answer) {
			return 0
		}
		if setsEqual(toStringSet(answer), r.expectedSet) {
			return r.points
		}
	default:
		if stringify(answer) == r.expected {
			return r.points
		}
	}
	return 0
}

// Score grades submitted answers against an answer key. Unanswered
// questions and malformed key entries contribute 0; the computation never
// fails as a whole.
func Score(answerKey, answers map[string]interface{}) float64 {
	if len(answerKey) == 0 || len(answers) == 0 {
		return 0
	}

	var total float64
	for q, rv := range answerKey {
		answer, ok := answers[q]
		if !ok || answer == nil {
			continue
		}
		r, ok := resolveRule(rv)
		if !ok {
			continue
		}
		total += r.grade(answer)
	}
	return total
}

// TotalMarks sums the attainable points of an answer key, skipping the
// same entries Score skips.
func TotalMarks(answerKey map[string]interface{}) float64 {
	var total float64
	for _, rv := range answerKey {
		if r, ok := resolveRule(rv); ok {
			total += r.points
		}
	}
	return total
}

// stringify renders a JSON scalar the way both sides of a comparison see
// it: `2` (float64 after JSON decoding) and `"2"` both become "2".
func stringify(v interface{}) string {
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

func toStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		return cast.ToStringMap(m), true
	}
	return nil, false
}

// isListLike reports whether a submitted answer is a list/array value.
// cast.ToStringSliceE would happily split a plain string on whitespace,
// so the kind check must come first.
func isListLike(v interface{}) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// toStringSet coerces an expected or submitted value to a set of strings,
// wrapping a scalar into a singleton set.
func toStringSet(v interface{}) map[string]struct{} {
	set := make(map[string]struct{})
	if isListLike(v) {
		rv := reflect.ValueOf(v)
		for i := 0; i < rv.Len(); i++ {
			set[stringify(rv.Index(i).Interface())] = struct{}{}
		}
		return set
	}
	set[stringify(v)] = struct{}{}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
