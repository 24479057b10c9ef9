package security

import (
	"strconv"
	"time"

	"github.com/secretkeep/secretkeep/pkg/secret"
)

// DefaultStaleAfter is how long a password may go unchanged before it is
// reported as stale.
const DefaultStaleAfter = 365 * 24 * time.Hour

// SecurityScore represents the overall security assessment of a vault.
type SecurityScore struct {
	// Overall is the total score (0-100).
	Overall     int             `json:"overall"`
	Components  ScoreComponents `json:"components"`
	Issues      []SecurityIssue `json:"issues"`
	Suggestions []string        `json:"suggestions"`
}

// ScoreComponents breaks down the security score into categories.
// Each component contributes up to 25 points (total: 100).
type ScoreComponents struct {
	StrengthScore   int `json:"strength"`
	UniquenessScore int `json:"uniqueness"`
	FreshnessScore  int `json:"freshness"`
	CoverageScore   int `json:"coverage"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	IssueWeakPassword      IssueType = "weak"
	IssueDuplicatePassword IssueType = "duplicate"
	IssueStalePassword     IssueType = "stale"
	IssueMissingPassword   IssueType = "missing_password"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SecurityIssue represents a detected security problem.
type SecurityIssue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	// Description names the affected secret (may be empty for privacy).
	Description string `json:"description,omitempty"`
	// Descriptions is used for duplicate issues (multiple secrets).
	Descriptions []string `json:"descriptions,omitempty"`
	Message      string   `json:"message"`
	Suggestion   string   `json:"suggestion,omitempty"`
}

// Calculator computes security scores over the active secrets of a vault.
type Calculator struct {
	hmacKey    []byte // calculator-local key for duplicate detection
	staleAfter time.Duration
	now        func() time.Time
}

// NewCalculator returns a calculator with the default staleness period.
func NewCalculator() *Calculator {
	return &Calculator{staleAfter: DefaultStaleAfter, now: time.Now}
}

// WithStaleAfter sets how long a password may stay unchanged.
func (c *Calculator) WithStaleAfter(d time.Duration) *Calculator {
	c.staleAfter = d
	return c
}

// WithClock sets the time source used for staleness.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// CalculateScore computes the full security score. includeDescriptions
// controls whether issues name the affected secrets.
func (c *Calculator) CalculateScore(secrets []secret.Secret, includeDescriptions bool) (*SecurityScore, error) {
	if len(secrets) == 0 {
		return &SecurityScore{
			Overall: 100,
			Components: ScoreComponents{
				StrengthScore:   25,
				UniquenessScore: 25,
				FreshnessScore:  25,
				CoverageScore:   25,
			},
			Issues:      []SecurityIssue{},
			Suggestions: []string{},
		}, nil
	}

	strengthScore, weakIssues := c.strengthScore(secrets, includeDescriptions)
	uniquenessScore, dupIssues, err := c.uniquenessScore(secrets, includeDescriptions)
	if err != nil {
		return nil, err
	}
	freshnessScore, staleIssues := c.freshnessScore(secrets, includeDescriptions)
	coverageScore, missingIssues := c.coverageScore(secrets, includeDescriptions)

	issues := make([]SecurityIssue, 0, len(weakIssues)+len(dupIssues)+len(staleIssues)+len(missingIssues))
	issues = append(issues, weakIssues...)
	issues = append(issues, dupIssues...)
	issues = append(issues, staleIssues...)
	issues = append(issues, missingIssues...)

	return &SecurityScore{
		Overall: strengthScore + uniquenessScore + freshnessScore + coverageScore,
		Components: ScoreComponents{
			StrengthScore:   strengthScore,
			UniquenessScore: uniquenessScore,
			FreshnessScore:  freshnessScore,
			CoverageScore:   coverageScore,
		},
		Issues:      issues,
		Suggestions: generateSuggestions(issues),
	}, nil
}

// strengthScore averages the strength points of all non-empty passwords.
func (c *Calculator) strengthScore(secrets []secret.Secret, named bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	total, count := 0, 0

	for _, s := range secrets {
		if s.Password == "" {
			continue
		}
		count++
		strength := Strength(s.Password)
		total += strength.Points()

		if strength == PasswordWeak {
			issue := SecurityIssue{
				Type:       IssueWeakPassword,
				Severity:   SeverityWarning,
				Message:    "Password has insufficient strength (" + formatLength(len([]rune(s.Password))) + ")",
				Suggestion: "Use a longer password (14+ characters recommended)",
			}
			if named {
				issue.Description = s.Description
			}
			issues = append(issues, issue)
		}
	}

	if count == 0 {
		return 25, issues
	}
	score := total / count
	if score > 25 {
		score = 25
	}
	return score, issues
}

func (c *Calculator) uniquenessScore(secrets []secret.Secret, named bool) (int, []SecurityIssue, error) {
	groups, err := c.FindDuplicates(secrets, named, 0)
	if err != nil {
		return 0, nil, err
	}

	unique := make(map[string]struct{})
	total := 0
	for _, s := range secrets {
		v := normalizeValue(s.Password)
		if v == "" {
			continue
		}
		total++
		unique[computeValueHash(v, c.hmacKey)] = struct{}{}
	}
	if total == 0 {
		return 25, nil, nil
	}

	issues := make([]SecurityIssue, 0, len(groups))
	for _, g := range groups {
		issues = append(issues, SecurityIssue{
			Type:         IssueDuplicatePassword,
			Severity:     SeverityWarning,
			Descriptions: g.Descriptions,
			Message:      strconv.Itoa(g.Count) + " secrets share the same password",
			Suggestion:   "Use unique passwords for each secret",
		})
	}
	return len(unique) * 25 / total, issues, nil
}

// freshnessScore is the share of passwords changed within the staleness
// period. A secret's age is taken from its newest Created or Changed entry.
func (c *Calculator) freshnessScore(secrets []secret.Secret, named bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	cutoff := c.now().Add(-c.staleAfter)
	total, fresh := 0, 0

	for _, s := range secrets {
		if s.Password == "" {
			continue
		}
		modified := s.LastModified()
		if modified.IsZero() {
			continue
		}
		total++
		if !modified.Before(cutoff) {
			fresh++
			continue
		}
		days := int(c.now().Sub(modified).Hours() / 24)
		issue := SecurityIssue{
			Type:       IssueStalePassword,
			Severity:   SeverityInfo,
			Message:    "Password unchanged for " + formatDays(days),
			Suggestion: "Rotate long-lived passwords",
		}
		if named {
			issue.Description = s.Description
		}
		issues = append(issues, issue)
	}

	if total == 0 {
		return 25, issues
	}
	return fresh * 25 / total, issues
}

// coverageScore is the share of secrets that store a password at all.
// Entries with only a note are expected and count as covered.
func (c *Calculator) coverageScore(secrets []secret.Secret, named bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	covered := 0
	for _, s := range secrets {
		if s.Password != "" || (s.Username == "" && s.Email == "") {
			covered++
			continue
		}
		issue := SecurityIssue{
			Type:       IssueMissingPassword,
			Severity:   SeverityInfo,
			Message:    "Login has no password",
			Suggestion: "Store the password or remove the login",
		}
		if named {
			issue.Description = s.Description
		}
		issues = append(issues, issue)
	}
	return covered * 25 / len(secrets), issues
}

func generateSuggestions(issues []SecurityIssue) []string {
	seen := make(map[IssueType]bool)
	for _, issue := range issues {
		seen[issue.Type] = true
	}

	suggestions := []string{}
	if seen[IssueWeakPassword] {
		suggestions = append(suggestions, "Update weak passwords with stronger alternatives (14+ characters)")
	}
	if seen[IssueDuplicatePassword] {
		suggestions = append(suggestions, "Replace duplicate passwords with unique values")
	}
	if seen[IssueStalePassword] {
		suggestions = append(suggestions, "Rotate passwords that have not changed in over a year")
	}
	if seen[IssueMissingPassword] {
		suggestions = append(suggestions, "Fill in missing passwords")
	}
	return suggestions
}

func formatLength(n int) string {
	if n == 1 {
		return "1 character"
	}
	return strconv.Itoa(n) + " characters"
}

func formatDays(days int) string {
	if days == 0 {
		return "today"
	}
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}
