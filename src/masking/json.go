package masking

import (
	"strings"

	"github.com/tidwall/gjson"
)

// MaskJSON walks a JSON document and masks every string leaf, keyed by the
// name of its nearest object member. Invalid JSON is masked as a single
// opaque "body" value.
func MaskJSON(policy Policy, raw []byte) (any, []FieldError) {
	if len(raw) == 0 {
		return nil, nil
	}

	if !gjson.ValidBytes(raw) {
		masked, err := policy.Mask("body", string(raw))
		if err != nil {
			return nil, []FieldError{{Key: "body", Err: err}}
		}
		return masked, nil
	}

	var failed []FieldError
	out, keep := walk(policy, "", "", gjson.ParseBytes(raw), &failed)
	if !keep {
		return nil, failed
	}
	return out, failed
}

func walk(policy Policy, path, key string, value gjson.Result, failed *[]FieldError) (any, bool) {
	switch {
	case value.IsObject():
		obj := map[string]any{}
		value.ForEach(func(k, v gjson.Result) bool {
			child, keep := walk(policy, join(path, k.String()), k.String(), v, failed)
			if keep {
				obj[k.String()] = child
			}
			return true
		})
		return obj, true

	case value.IsArray():
		arr := []any{}
		value.ForEach(func(_, v gjson.Result) bool {
			child, keep := walk(policy, path, key, v, failed)
			if keep {
				arr = append(arr, child)
			}
			return true
		})
		return arr, true

	case value.Type == gjson.String:
		masked, err := policy.Mask(key, value.String())
		if err != nil {
			*failed = append(*failed, FieldError{Key: path, Err: err})
			return nil, false
		}
		return masked, true

	default:
		// numbers, booleans and null carry no secret unless the key is sensitive
		if kp, ok := policy.(*KeyPolicy); ok && kp.Sensitive(key) {
			return kp.maskWith, true
		}
		return value.Value(), true
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return strings.Join([]string{path, key}, ".")
}
