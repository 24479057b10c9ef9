package security

import (
	"testing"
	"time"

	"github.com/secretkeep/secretkeep/pkg/secret"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSecret(desc, password string, modified time.Time) secret.Secret {
	s := secret.New(desc, modified)
	s.Password = password
	return s
}

func TestCalculateScore_Empty(t *testing.T) {
	score, err := NewCalculator().CalculateScore(nil, true)
	if err != nil {
		t.Fatalf("CalculateScore() error = %v", err)
	}
	if score.Overall != 100 {
		t.Errorf("Overall = %d, want 100", score.Overall)
	}
	if len(score.Issues) != 0 {
		t.Errorf("Issues = %v, want none", score.Issues)
	}
}

func TestCalculateScore_Perfect(t *testing.T) {
	secrets := []secret.Secret{
		newSecret("a", "a-very-long-unique-password-1", testNow),
		newSecret("b", "a-very-long-unique-password-2", testNow),
	}
	score, err := NewCalculator().WithClock(func() time.Time { return testNow }).CalculateScore(secrets, true)
	if err != nil {
		t.Fatalf("CalculateScore() error = %v", err)
	}
	if score.Overall != 100 {
		t.Errorf("Overall = %d, want 100 (components %+v)", score.Overall, score.Components)
	}
	if len(score.Suggestions) != 0 {
		t.Errorf("Suggestions = %v, want none", score.Suggestions)
	}
}

func TestCalculateScore_Issues(t *testing.T) {
	old := testNow.AddDate(-2, 0, 0)
	login := secret.New("login", testNow)
	login.Username = "alice"

	secrets := []secret.Secret{
		newSecret("bank", "short", testNow),
		newSecret("mail", "shared-password-value", testNow),
		newSecret("shop", " shared-password-value ", testNow),
		newSecret("forum", "an-old-but-long-password", old),
		login,
	}

	score, err := NewCalculator().WithClock(func() time.Time { return testNow }).CalculateScore(secrets, true)
	if err != nil {
		t.Fatalf("CalculateScore() error = %v", err)
	}

	counts := make(map[IssueType]int)
	for _, issue := range score.Issues {
		counts[issue.Type]++
	}
	want := map[IssueType]int{
		IssueWeakPassword:      1,
		IssueDuplicatePassword: 1,
		IssueStalePassword:     1,
		IssueMissingPassword:   1,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Errorf("%s issues = %d, want %d", typ, counts[typ], n)
		}
	}
	if score.Overall >= 100 {
		t.Errorf("Overall = %d, want less than 100", score.Overall)
	}
	if len(score.Suggestions) != 4 {
		t.Errorf("Suggestions = %v, want 4", score.Suggestions)
	}
}

func TestCalculateScore_HidesDescriptions(t *testing.T) {
	secrets := []secret.Secret{
		newSecret("a", "weak", testNow),
		newSecret("b", "weak", testNow),
	}
	score, err := NewCalculator().WithClock(func() time.Time { return testNow }).CalculateScore(secrets, false)
	if err != nil {
		t.Fatalf("CalculateScore() error = %v", err)
	}
	for _, issue := range score.Issues {
		if issue.Description != "" || len(issue.Descriptions) != 0 {
			t.Errorf("issue %+v names a secret", issue)
		}
	}
}

func TestFindDuplicates(t *testing.T) {
	secrets := []secret.Secret{
		{Description: "a", Password: "one"},
		{Description: "b", Password: "two"},
		{Description: "c", Password: "one"},
		{Description: "d", Password: "two"},
		{Description: "e", Password: "two"},
		{Description: "f", Password: ""},
		{Description: "g", Password: ""},
	}

	groups, err := NewCalculator().FindDuplicates(secrets, true, 0)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Count != 3 || groups[1].Count != 2 {
		t.Errorf("groups not sorted by size: %+v", groups)
	}
	if got := groups[1].Descriptions; len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Descriptions = %v, want [a c]", got)
	}

	limited, err := NewCalculator().FindDuplicates(secrets, false, 1)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if len(limited) != 1 || limited[0].Descriptions != nil {
		t.Errorf("limited = %+v", limited)
	}
}
