// Package grading scores a single question against an optional submission.
// It is pure: no clock, no store, no side effects beyond building the
// answer record.
package grading

import (
	"math"
	"strings"

	"quiz-event-service/internal/domain"
)

// Outcome bundles the persisted answer record with the client-visible result.
// Answer.AttemptID is filled in by the caller before persisting.
type Outcome struct {
	Answer domain.Answer
	Result domain.AnswerResult
}

// Grade dispatches on the question type. A nil submission means the
// participant left the question unanswered and always yields zero points.
func Grade(q domain.Question, sub *domain.AnswerSubmission) Outcome {
	switch q.Type {
	case domain.QuestionFreeText:
		return gradeFreeText(q, sub)
	case domain.QuestionSingleChoice:
		return gradeSingleChoice(q, sub)
	case domain.QuestionMultipleChoice:
		return gradeMultipleChoice(q, sub)
	}
	// Unknown type: record an empty, incorrect text answer.
	return outcome(q, domain.Answer{QuestionID: q.ID, Kind: domain.AnswerText})
}

// gradeFreeText compares the trimmed submission against the stored answer.
// Binary: full points on match, zero otherwise.
func gradeFreeText(q domain.Question, sub *domain.AnswerSubmission) Outcome {
	var text *string
	if sub != nil {
		text = sub.TextAnswer
	}

	correct := false
	if text != nil && q.CorrectAnswer != "" {
		trimmed := strings.TrimSpace(*text)
		if q.CaseSensitive {
			correct = q.CorrectAnswer == trimmed
		} else {
			correct = strings.EqualFold(q.CorrectAnswer, trimmed)
		}
	}

	awarded := 0
	if correct {
		awarded = q.Points
	}
	return outcome(q, domain.Answer{
		QuestionID:    q.ID,
		Kind:          domain.AnswerText,
		Text:          text,
		Correct:       correct,
		PointsAwarded: awarded,
	})
}

// gradeSingleChoice awards full points only when exactly one option was
// selected and that option is a known, correct one. Unknown ids inside a
// multi-selection are not an error; they just cannot satisfy the size==1
// rule.
func gradeSingleChoice(q domain.Question, sub *domain.AnswerSubmission) Outcome {
	opts := optionsByID(q)
	selected := selectedSet(sub)

	awarded := 0
	correct := false
	if len(selected) == 1 {
		var chosen int64
		for id := range selected {
			chosen = id
		}
		if opt, ok := opts[chosen]; ok && opt.Correct {
			awarded = q.Points
			correct = true
		}
	}

	return outcome(q, domain.Answer{
		QuestionID:        q.ID,
		Kind:              domain.AnswerChoice,
		SelectedOptionIDs: knownSelections(sub, opts),
		Correct:           correct,
		PointsAwarded:     awarded,
	})
}

// gradeMultipleChoice applies partial credit: net correct selections,
// normalized by the number of correct options, rounded half-up. The correct
// flag is set only on a perfect selection.
func gradeMultipleChoice(q domain.Question, sub *domain.AnswerSubmission) Outcome {
	opts := optionsByID(q)
	selected := selectedSet(sub)

	correctCount := 0
	for _, opt := range q.Options {
		if opt.Correct {
			correctCount++
		}
	}

	correctSelected := 0
	incorrectSelected := 0
	for id := range selected {
		opt, ok := opts[id]
		if !ok {
			continue // unknown ids are silently ignored
		}
		if opt.Correct {
			correctSelected++
		} else {
			incorrectSelected++
		}
	}

	raw := correctSelected - incorrectSelected
	if raw < 0 {
		raw = 0
	}
	awarded := 0
	if correctCount > 0 {
		frac := float64(raw) / float64(correctCount)
		awarded = int(math.Round(frac * float64(q.Points)))
	}

	return outcome(q, domain.Answer{
		QuestionID:        q.ID,
		Kind:              domain.AnswerChoice,
		SelectedOptionIDs: knownSelections(sub, opts),
		Correct:           awarded == q.Points,
		PointsAwarded:     awarded,
	})
}

func outcome(q domain.Question, a domain.Answer) Outcome {
	return Outcome{
		Answer: a,
		Result: domain.AnswerResult{
			QuestionID:    q.ID,
			Correct:       a.Correct,
			PointsAwarded: a.PointsAwarded,
		},
	}
}

func optionsByID(q domain.Question) map[int64]domain.Option {
	m := make(map[int64]domain.Option, len(q.Options))
	for _, opt := range q.Options {
		m[opt.ID] = opt
	}
	return m
}

func selectedSet(sub *domain.AnswerSubmission) map[int64]struct{} {
	if sub == nil {
		return nil
	}
	set := make(map[int64]struct{}, len(sub.SelectedOptionIDs))
	for _, id := range sub.SelectedOptionIDs {
		set[id] = struct{}{}
	}
	return set
}

// knownSelections keeps the resolvable selected options in submission order,
// deduplicated. This is the selection record a review UI would render.
func knownSelections(sub *domain.AnswerSubmission, opts map[int64]domain.Option) []int64 {
	if sub == nil {
		return nil
	}
	var out []int64
	seen := make(map[int64]struct{}, len(sub.SelectedOptionIDs))
	for _, id := range sub.SelectedOptionIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := opts[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
