package session

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/shivanandmn/wingman/agent/crews"
)

// How a section was recovered from task output.
const (
	decodedJSON   = "json"
	decodedFields = "fields"
	decodedRaw    = "raw"
	decodedNone   = "none"
)

// rawExcerptLimit bounds the raw text copied into a fallback field.
const rawExcerptLimit = 500

// decodeSection recovers a typed section from free-form model output. It
// tries the first embedded JSON object, then "field: value" lines keyed by
// the JSON field name or its title-cased form, and finally hands a bounded
// excerpt of the raw text to fallback.
func decodeSection[T any](output string, fallback func(*T, string)) (T, string) {
	var v T
	if strings.TrimSpace(output) == "" {
		return v, decodedNone
	}
	if raw, ok := crews.ExtractJSON(output); ok {
		var parsed T
		// An object that sets no field is usually a nested value, not the section.
		if err := json.Unmarshal(raw, &parsed); err == nil && !reflect.ValueOf(&parsed).Elem().IsZero() {
			return parsed, decodedJSON
		}
	}
	if decodeFields(output, &v) > 0 {
		return v, decodedFields
	}
	if fallback != nil {
		fallback(&v, excerpt(output))
		return v, decodedRaw
	}
	return v, decodedNone
}

// decodeFields assigns "key: value" lines to the fields of the struct out
// points to and returns how many were set.
func decodeFields(text string, out any) int {
	rv := reflect.ValueOf(out).Elem()
	rt := rv.Type()
	index := make(map[string]int, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		name, _, _ := strings.Cut(rt.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			index[name] = i
		}
	}

	set := 0
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := cutField(line)
		if !ok {
			continue
		}
		i, known := index[fieldKey(key)]
		if !known || value == "" {
			continue
		}
		if assignField(rv.Field(i), value) {
			set++
		}
	}
	return set
}

func cutField(line string) (key, value string, ok bool) {
	line = strings.TrimLeft(strings.TrimSpace(line), "-*#> ")
	i := strings.IndexAny(line, ":=")
	if i <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

// fieldKey maps "Partner A Emotions", "**partner_a_emotions**" and
// "partner_a_emotions" to the same key.
func fieldKey(key string) string {
	key = strings.Trim(key, "*`\"' ")
	return strings.ToLower(strings.Join(strings.Fields(key), "_"))
}

var (
	stringListType = reflect.TypeOf([]string(nil))
	scoreMapType   = reflect.TypeOf(map[string]float64(nil))
)

func assignField(f reflect.Value, value string) bool {
	switch f.Type() {
	case reflect.TypeOf(""):
		f.SetString(unquote(value))
		return true
	case stringListType:
		var items []string
		if !strings.HasPrefix(value, "[") || json.Unmarshal([]byte(value), &items) != nil {
			items = splitList(value)
		}
		if len(items) == 0 {
			return false
		}
		f.Set(reflect.ValueOf(items))
		return true
	case scoreMapType:
		var scores map[string]float64
		if !strings.HasPrefix(value, "{") || json.Unmarshal([]byte(value), &scores) != nil {
			scores = parseScores(value)
		}
		if len(scores) == 0 {
			return false
		}
		f.Set(reflect.ValueOf(scores))
		return true
	}
	return false
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = unquote(strings.TrimSpace(item)); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseScores reads "anger: 0.8, sadness: 0.4".
func parseScores(value string) map[string]float64 {
	scores := make(map[string]float64)
	for _, pair := range strings.Split(value, ",") {
		name, score, ok := strings.Cut(pair, ":")
		if !ok {
			name, score, ok = strings.Cut(pair, "=")
		}
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(score), 64)
		name = unquote(strings.TrimSpace(name))
		if err != nil || name == "" {
			continue
		}
		scores[name] = f
	}
	return scores
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > rawExcerptLimit {
		return string(r[:rawExcerptLimit])
	}
	return s
}
