// Package masking redacts sensitive request data before it is stored or sent.
package masking

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// DefaultMaskWith replaces masked values.
const DefaultMaskWith = "*************"

// DefaultKeyHas lists the key fragments masked when nothing is configured.
var DefaultKeyHas = []string{"password", "secret", "token", "authorization", "cookie", "api_key", "apikey"}

// Policy masks a single named value. Returning an error drops the field.
type Policy interface {
	Mask(key, value string) (string, error)
}

// FieldError records a field that was omitted because masking it failed.
type FieldError struct {
	Key string
	Err error
}

var (
	// key=value pairs where the key suggests a secret.
	credKVRe = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api[-_.]?key|auth)[ \t]*[=:][ \t]*)[^\s&]+`)
	// Bearer/Basic credentials embedded in free text.
	bearerRe = regexp.MustCompile(`(?i)\b((?:bearer|basic)\s+)[a-z0-9._~+/=-]+`)
)

// DefaultValuePatterns returns the value patterns always applied by KeyPolicy.
func DefaultValuePatterns() []*regexp.Regexp {
	return []*regexp.Regexp{credKVRe, bearerRe}
}

// KeyPolicy masks whole values whose key contains one of the configured
// fragments and masks pattern matches inside any other value.
type KeyPolicy struct {
	keyHas   []string
	maskWith string
	patterns []*regexp.Regexp
}

func NewKeyPolicy(keyHas []string, maskWith string, patterns ...*regexp.Regexp) *KeyPolicy {
	if maskWith == "" {
		maskWith = DefaultMaskWith
	}

	normalized := make([]string, 0, len(keyHas))
	for _, k := range keyHas {
		k = normalizeKey(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}

	return &KeyPolicy{keyHas: normalized, maskWith: maskWith, patterns: patterns}
}

// Mask implements Policy.
func (p *KeyPolicy) Mask(key, value string) (string, error) {
	if p.Sensitive(key) {
		return p.maskWith, nil
	}

	for _, re := range p.patterns {
		value = p.maskMatches(re, value)
	}

	return value, nil
}

var keySeparators = strings.NewReplacer("-", "", "_", "", ".", "")

// normalizeKey lowercases key and drops separators, so X-Api-Key, api_key
// and api.key all compare as "apikey".
func normalizeKey(key string) string {
	return keySeparators.Replace(strings.ToLower(key))
}

// Sensitive reports whether key names a field that must never be stored.
func (p *KeyPolicy) Sensitive(key string) bool {
	normalized := normalizeKey(key)
	for _, frag := range p.keyHas {
		if strings.Contains(normalized, frag) {
			return true
		}
	}
	return false
}

// maskMatches keeps the first capture group (the "key=" part) when the pattern has one.
func (p *KeyPolicy) maskMatches(re *regexp.Regexp, value string) string {
	if re.NumSubexp() == 0 {
		return re.ReplaceAllLiteralString(value, p.maskWith)
	}
	return re.ReplaceAllStringFunc(value, func(match string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) > 1 && strings.HasPrefix(match, sub[1]) && len(sub[1]) < len(match) {
			return sub[1] + p.maskWith
		}
		return p.maskWith
	})
}

// MaskValues masks every value of a query string or form. Fields the policy
// fails on are left out of the result.
func MaskValues(policy Policy, values url.Values) (map[string][]string, []FieldError) {
	if len(values) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string][]string, len(values))
	var failed []FieldError
	for _, k := range keys {
		masked := make([]string, 0, len(values[k]))
		ok := true
		for _, v := range values[k] {
			m, err := policy.Mask(k, v)
			if err != nil {
				failed = append(failed, FieldError{Key: k, Err: err})
				ok = false
				break
			}
			masked = append(masked, m)
		}
		if ok {
			out[k] = masked
		}
	}

	return out, failed
}

// LogFailures reports omitted fields without the offending values.
func LogFailures(failed []FieldError) {
	for _, f := range failed {
		logger.WithError(f.Err).WithField("field", f.Key).Warn("masking failed, field omitted")
	}
}
