package funnel

// EventKind tells the pixel which call shape to use.
type EventKind string

const (
	KindStandard EventKind = "standard"
	KindCustom   EventKind = "custom"
)

// Event names produced by MapStep.
const (
	EventViewContent      = "ViewContent"
	EventLead             = "Lead"
	EventInitiateCheckout = "InitiateCheckout"
	EventViewOffer        = "ViewOffer"
	EventQuizProgress     = "QuizProgress"
	EventExitIntent       = "ExitIntent"
	EventPurchase         = "Purchase"
)

// EventDescriptor is the marketing event a step stands for.
type EventDescriptor struct {
	Kind   EventKind      `json:"kind"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Flags are the user actions that change the mapping of a step.
type Flags struct {
	ClickedOffer bool
}

// Data carries the values copied into event params.
type Data struct {
	EstimatedLoss *float64
	Source        string
	Language      string
}

func (d Data) value() float64 {
	if d.EstimatedLoss == nil {
		return 0
	}
	return *d.EstimatedLoss
}

// MapStep returns the event for a funnel step, or nil when the step is not
// tracked. The browser pixel and the Conversions API both use this mapping
// so the two reports of one step describe the same event.
func MapStep(step string, flags Flags, data Data) *EventDescriptor {
	switch {
	case IsLanding(step):
		return &EventDescriptor{
			Kind: KindStandard,
			Name: EventViewContent,
			Params: map[string]any{
				"content_name":     "Quiz Landing",
				"content_category": step,
			},
		}

	case IsResults(step):
		return &EventDescriptor{
			Kind: KindStandard,
			Name: EventLead,
			Params: map[string]any{
				"content_name": "Quiz Completed",
				"value":        data.value(),
				"currency":     Currency(step),
			},
		}

	case IsOffer(step) && flags.ClickedOffer:
		return &EventDescriptor{
			Kind: KindStandard,
			Name: EventInitiateCheckout,
			Params: map[string]any{
				"content_name": "Quiz Offer",
				"value":        data.value(),
				"currency":     Currency(step),
			},
		}

	case IsOffer(step):
		return &EventDescriptor{
			Kind: KindCustom,
			Name: EventViewOffer,
			Params: map[string]any{
				"content_category": step,
			},
		}
	}

	if n, ok := QuestionNumber(step); ok {
		return &EventDescriptor{
			Kind: KindCustom,
			Name: EventQuizProgress,
			Params: map[string]any{
				"question":         n,
				"content_category": step,
			},
		}
	}

	if IsExitIntent(step) {
		params := map[string]any{}
		if data.Source != "" {
			params["source"] = data.Source
		}
		if data.Language != "" {
			params["language"] = data.Language
		}
		return &EventDescriptor{Kind: KindCustom, Name: EventExitIntent, Params: params}
	}

	return nil
}
