package main

import (
	"math"
	"regexp"
	"strings"
)

const (
	maxReportedMatches = 5
	minKeywordLength   = 5
)

var (
	wordRe  = regexp.MustCompile(`\w+`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

const (
	moderateMatchMessage = "You have limited number of keywords match in your cv with your job description , consider adding more similar words so the evaluation pannel understands that you went through the JD carefully"
	lowMatchMessage      = "You have very few number of keywords match in your cv with your job description , Please add more similar words so the evaluation pannel understands that you went through the JD carefully"
	goodMatchMessage     = "You have good amount of keywords match in your cv with your job description."
	missingEmailMessage  = "You've missed to include your email in your resume, consider adding it so the interview panel can follow up."
)

func tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// importantKeywords returns the distinct job description tokens longer than
// four characters, in first-seen order.
func importantKeywords(jobDescription string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, w := range tokenize(jobDescription) {
		if len(w) < minKeywordLength || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// CalculateMatchScore reports the percentage of important job description
// keywords that also appear in the resume. Matches holds at most five of them.
func CalculateMatchScore(resume, jobDescription string) MatchResult {
	resumeWords := make(map[string]bool)
	for _, w := range tokenize(resume) {
		resumeWords[w] = true
	}

	keywords := importantKeywords(jobDescription)
	if len(keywords) == 0 {
		return MatchResult{Score: 0, Matches: []string{}, Indeterminate: true}
	}

	matches := []string{}
	for _, kw := range keywords {
		if resumeWords[kw] {
			matches = append(matches, kw)
		}
	}

	score := int(math.Round(float64(len(matches)) / float64(len(keywords)) * 100))
	if len(matches) > maxReportedMatches {
		matches = matches[:maxReportedMatches]
	}
	return MatchResult{Score: score, Matches: matches}
}

// HasEmail reports whether text contains something shaped like local@domain.tld.
func HasEmail(text string) bool {
	return emailRe.MatchString(text)
}

type Band int

const (
	BandLow Band = iota
	BandModerate
	BandGood
)

func (b Band) String() string {
	switch b {
	case BandModerate:
		return "moderate"
	case BandGood:
		return "good"
	default:
		return "low"
	}
}

func (b Band) Message() string {
	switch b {
	case BandModerate:
		return moderateMatchMessage
	case BandGood:
		return goodMatchMessage
	default:
		return lowMatchMessage
	}
}

// ScoreBands picks the feedback band for a match score.
//
// With Legacy set, the 0-100 score is compared directly against the 0.4 and
// 0.6 fractions and an indeterminate score falls through to BandGood. Without
// it the score is scaled to a fraction first and an indeterminate score is
// BandLow.
type ScoreBands struct {
	Legacy bool
}

func (p ScoreBands) Select(m MatchResult) Band {
	if p.Legacy {
		if m.Indeterminate {
			return BandGood
		}
		score := float64(m.Score)
		switch {
		case score > 0.4 && score < 0.6:
			return BandModerate
		case score <= 0.4:
			return BandLow
		default:
			return BandGood
		}
	}

	if m.Indeterminate {
		return BandLow
	}
	fraction := float64(m.Score) / 100
	switch {
	case fraction > 0.4 && fraction < 0.6:
		return BandModerate
	case fraction <= 0.4:
		return BandLow
	default:
		return BandGood
	}
}
