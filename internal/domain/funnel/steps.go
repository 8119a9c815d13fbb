// Package funnel holds the pure rules of the quiz funnel: step names,
// step-to-event mapping, session identity, pixel command shapes and the
// estimated loss score. Nothing here does I/O.
package funnel

import (
	"regexp"
	"strconv"
	"strings"
)

// Stage is a canonical position in the funnel. Step names from localized or
// A/B variants of a page map onto one Stage.
type Stage string

const (
	StageLanding Stage = "landing"
	StageResults Stage = "results"
	StageOffer   Stage = "offer"
	StageExit    Stage = "backRedirect"
)

// QuestionCount is the number of question screens in the canonical funnel.
const QuestionCount = 7

// SpanishMarker is the locale token carried by Spanish step names.
const SpanishMarker = "es"

var (
	landingSteps = []string{"landing", "landing_quiz_oferta", "landing_es"}
	resultsSteps = []string{"results", "results_quiz_oferta", "results_es"}
	offerSteps   = []string{"offer", "offer_pt", "offer_click_pt", "offer_quiz_oferta", "offer_es"}
	exitSteps    = []string{"backRedirect"}

	questionPattern = regexp.MustCompile(`^(?:es_)?q(\d+)(?:_quiz_oferta)?$`)
)

// Sequence is the canonical order used by the admin funnel.
func Sequence() []Stage {
	stages := []Stage{StageLanding}
	for i := 1; i <= QuestionCount; i++ {
		stages = append(stages, QuestionStage(i))
	}
	return append(stages, StageResults, StageOffer)
}

// QuestionStage returns the canonical stage of question n, e.g. "q3".
func QuestionStage(n int) Stage {
	return Stage("q" + strconv.Itoa(n))
}

func isOneOf(step string, names []string) bool {
	for _, name := range names {
		if step == name {
			return true
		}
	}
	return false
}

// IsLanding reports whether step is a landing page variant.
func IsLanding(step string) bool { return isOneOf(step, landingSteps) }

// IsResults reports whether step is a results page variant.
func IsResults(step string) bool { return isOneOf(step, resultsSteps) }

// IsOffer reports whether step is an offer page variant.
func IsOffer(step string) bool { return isOneOf(step, offerSteps) }

// IsExitIntent reports whether step is the exit-intent page.
func IsExitIntent(step string) bool { return isOneOf(step, exitSteps) }

// QuestionNumber extracts N from q<N>, es_q<N> and q<N>_quiz_oferta.
func QuestionNumber(step string) (int, bool) {
	m := questionPattern.FindStringSubmatch(step)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsCompletion reports whether reaching step completes the quiz.
func IsCompletion(step string) bool {
	return IsResults(step) || IsOffer(step)
}

// IsSpanish reports whether step carries the Spanish locale token.
// Only a whole underscore-separated token counts, so "results" is not Spanish.
func IsSpanish(step string) bool {
	for _, token := range strings.Split(step, "_") {
		if token == SpanishMarker {
			return true
		}
	}
	return false
}

// Currency returns the currency reported for a step.
func Currency(step string) string {
	if IsSpanish(step) {
		return "USD"
	}
	return "BRL"
}

// StageOf normalizes a step name. Unknown steps map to themselves and false.
func StageOf(step string) (Stage, bool) {
	switch {
	case IsLanding(step):
		return StageLanding, true
	case IsResults(step):
		return StageResults, true
	case IsOffer(step):
		return StageOffer, true
	case IsExitIntent(step):
		return StageExit, true
	}
	if n, ok := QuestionNumber(step); ok {
		return QuestionStage(n), true
	}
	return Stage(step), false
}

// StepNames lists every known step name that normalizes to stage.
func StepNames(stage Stage) []string {
	switch stage {
	case StageLanding:
		return append([]string(nil), landingSteps...)
	case StageResults:
		return append([]string(nil), resultsSteps...)
	case StageOffer:
		return append([]string(nil), offerSteps...)
	case StageExit:
		return append([]string(nil), exitSteps...)
	}
	if n, ok := QuestionNumber(string(stage)); ok {
		q := strconv.Itoa(n)
		return []string{"q" + q, "es_q" + q, "q" + q + "_quiz_oferta"}
	}
	return []string{string(stage)}
}

// StepsAtOrAfter lists the step names of stage and every later stage of
// the canonical sequence. It returns nil for stages outside the sequence.
func StepsAtOrAfter(stage Stage) []string {
	seq := Sequence()
	for i, s := range seq {
		if s != stage {
			continue
		}
		var names []string
		for _, later := range seq[i:] {
			names = append(names, StepNames(later)...)
		}
		return names
	}
	return nil
}
