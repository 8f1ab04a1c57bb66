package auth

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"unicode"
)

//go:embed common_passwords.txt
var commonPasswordData []byte

// PasswordContext carries the account attributes a candidate password is
// checked against.
type PasswordContext struct {
	Email string
	Name  string
}

// PasswordValidator is one independent rule in the policy chain.
type PasswordValidator interface {
	Check(password string, ctx PasswordContext) []string
}

// PasswordPolicy runs an ordered chain of validators. Every validator runs,
// so callers can report all violations at once.
type PasswordPolicy struct {
	validators []PasswordValidator
}

// PasswordPolicyConfig tunes the default validator chain.
type PasswordPolicyConfig struct {
	MinLength  int
	MinClasses int
}

// NewPasswordPolicy builds the default chain: length, attribute similarity,
// common-password corpus, numeric-only rejection and character-class
// complexity.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 8
	}
	if cfg.MinClasses <= 0 {
		cfg.MinClasses = 4
	}
	return &PasswordPolicy{
		validators: []PasswordValidator{
			MinLengthValidator{Min: cfg.MinLength},
			AttributeSimilarityValidator{Threshold: 0.7},
			NewCommonPasswordValidator(),
			NumericValidator{},
			ComplexityValidator{Classes: DefaultCharClasses(), MinClasses: cfg.MinClasses},
		},
	}
}

// Validate returns every violation of the candidate password. An empty
// slice means the password is acceptable. Pure function of its inputs.
func (p *PasswordPolicy) Validate(password string, ctx PasswordContext) []string {
	var violations []string
	for _, v := range p.validators {
		violations = append(violations, v.Check(password, ctx)...)
	}
	return violations
}

// MinLengthValidator rejects passwords shorter than Min runes.
type MinLengthValidator struct {
	Min int
}

// Check implements PasswordValidator.
func (v MinLengthValidator) Check(password string, _ PasswordContext) []string {
	if len([]rune(password)) < v.Min {
		return []string{fmt.Sprintf("password must contain at least %d characters", v.Min)}
	}
	return nil
}

// AttributeSimilarityValidator rejects passwords that are near-identical to
// user-identifying strings such as the email handle.
type AttributeSimilarityValidator struct {
	Threshold float64
}

// Check implements PasswordValidator.
func (v AttributeSimilarityValidator) Check(password string, ctx PasswordContext) []string {
	threshold := v.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	lower := strings.ToLower(password)
	for _, attr := range attributeParts(ctx) {
		if len(attr) < 3 {
			continue
		}
		if similarity(lower, attr) >= threshold {
			return []string{"password is too similar to your personal information"}
		}
	}
	return nil
}

func attributeParts(ctx PasswordContext) []string {
	var parts []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return
		}
		parts = append(parts, s)
		for _, piece := range strings.FieldsFunc(s, func(r rune) bool {
			return r == '@' || r == '.' || r == '_' || r == '-' || r == '+' || r == ' '
		}) {
			parts = append(parts, piece)
		}
	}
	add(ctx.Email)
	add(ctx.Name)
	return parts
}

// similarity approximates a sequence-matcher ratio using the longest common
// subsequence: 2*lcs/(len(a)+len(b)).
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// CommonPasswordValidator rejects members of a known common-password corpus.
type CommonPasswordValidator struct {
	corpus map[string]struct{}
}

// NewCommonPasswordValidator loads the embedded corpus.
func NewCommonPasswordValidator() CommonPasswordValidator {
	corpus := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(commonPasswordData))
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		corpus[strings.ToLower(entry)] = struct{}{}
	}
	return CommonPasswordValidator{corpus: corpus}
}

// Check implements PasswordValidator.
func (v CommonPasswordValidator) Check(password string, _ PasswordContext) []string {
	if _, ok := v.corpus[strings.ToLower(password)]; ok {
		return []string{"password is too common"}
	}
	return nil
}

// NumericValidator rejects passwords composed entirely of digits.
type NumericValidator struct{}

// Check implements PasswordValidator.
func (v NumericValidator) Check(password string, _ PasswordContext) []string {
	if password == "" {
		return nil
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return []string{"password cannot be entirely numeric"}
}

// CharClass names a character class for the complexity rule.
type CharClass struct {
	Name   string
	Member func(rune) bool
}

// DefaultCharClasses returns the standard upper/lower/digit/symbol set.
func DefaultCharClasses() []CharClass {
	return []CharClass{
		{Name: "uppercase letter", Member: unicode.IsUpper},
		{Name: "lowercase letter", Member: unicode.IsLower},
		{Name: "digit", Member: unicode.IsDigit},
		{Name: "symbol", Member: func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
		}},
	}
}

// ComplexityValidator requires characters from at least MinClasses of the
// configured classes.
type ComplexityValidator struct {
	Classes    []CharClass
	MinClasses int
}

// Check implements PasswordValidator.
func (v ComplexityValidator) Check(password string, _ PasswordContext) []string {
	classes := v.Classes
	if len(classes) == 0 {
		classes = DefaultCharClasses()
	}
	min := v.MinClasses
	if min <= 0 {
		min = len(classes)
	}
	if min > len(classes) {
		min = len(classes)
	}
	present := 0
	var missing []string
	for _, class := range classes {
		found := false
		for _, r := range password {
			if class.Member(r) {
				found = true
				break
			}
		}
		if found {
			present++
		} else {
			missing = append(missing, class.Name)
		}
	}
	if present < min {
		return []string{fmt.Sprintf("password must use at least %d character types (missing: %s)", min, strings.Join(missing, ", "))}
	}
	return nil
}
