package masking

import (
	"fmt"
	"os"
	"regexp"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	MaskedKeyHas []string `envconfig:"APP_ERROR_MASKED_KEY_HAS" default:"password,secret,token,authorization,cookie,api_key,apikey"`
	MaskWith     string   `envconfig:"APP_ERROR_MASK_WITH" default:"*************"`
	RulesPath    string   `envconfig:"APP_ERROR_MASKING_CONFIG"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Rules holds operator-defined masking customizations loaded from YAML.
type Rules struct {
	Keys     []string     `yaml:"keys"`
	Patterns []PatternDef `yaml:"patterns"`
	MaskWith string       `yaml:"mask_with"`
}

// PatternDef is a named value regex from the rules file.
type PatternDef struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

// LoadRules reads the rules file at path. A missing file or empty path
// yields nil rules, not an error.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read masking rules: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse masking rules: %w", err)
	}

	return &rules, nil
}

// CompilePatterns validates and compiles the rule patterns.
func CompilePatterns(rules *Rules) ([]*regexp.Regexp, error) {
	if rules == nil {
		return nil, nil
	}

	var patterns []*regexp.Regexp
	for i, def := range rules.Patterns {
		if def.Regex == "" {
			return nil, fmt.Errorf("patterns[%d] %q: regex is required", i, def.Name)
		}
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("patterns[%d] %q: invalid regex: %w", i, def.Name, err)
		}
		patterns = append(patterns, re)
	}

	return patterns, nil
}

// NewPolicyFromConfig builds the KeyPolicy described by config and its optional rules file.
func NewPolicyFromConfig(config Config) (*KeyPolicy, error) {
	rules, err := LoadRules(config.RulesPath)
	if err != nil {
		return nil, err
	}

	extra, err := CompilePatterns(rules)
	if err != nil {
		return nil, err
	}

	keys := append([]string{}, config.MaskedKeyHas...)
	maskWith := config.MaskWith
	if rules != nil {
		keys = append(keys, rules.Keys...)
		if rules.MaskWith != "" {
			maskWith = rules.MaskWith
		}
	}

	return NewKeyPolicy(keys, maskWith, append(DefaultValuePatterns(), extra...)...), nil
}
