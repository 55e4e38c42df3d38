package order

// Step is the wizard screen the draft is on.
type Step int

const (
	StepDesign Step = iota
	StepShipping
	StepPayment
)

const (
	firstStep = StepDesign
	lastStep  = StepPayment
)

func (s Step) String() string {
	switch s {
	case StepDesign:
		return "design"
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	default:
		return "unknown"
	}
}

// State is the whole order flow for one draft. It is treated as an immutable
// value: Apply returns a new State and never mutates its argument.
type State struct {
	Form          Form   `json:"form"`
	Step          Step   `json:"step"`
	Processing    bool   `json:"processing"`
	Complete      bool   `json:"orderComplete"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

func NewState() State {
	return State{Form: DefaultForm(), Step: StepDesign}
}

// Phase names the wizard state: design, shipping, payment, submitting or
// completed.
func (s State) Phase() string {
	switch {
	case s.Complete:
		return "completed"
	case s.Processing:
		return "submitting"
	default:
		return s.Step.String()
	}
}

// CanEdit reports why the draft is frozen, if it is.
func (s State) CanEdit() error {
	if s.Complete {
		return ErrAlreadyCompleted
	}
	if s.Processing {
		return ErrSubmissionInProgress
	}
	return nil
}

func (s State) CanSubmit() error {
	if err := s.CanEdit(); err != nil {
		return err
	}
	if s.Step != lastStep {
		return ErrNotOnFinalStep
	}
	return nil
}

// Event is a single transition request for Apply.
type Event interface {
	isEvent()
}

type FieldUpdated struct {
	Field Field
	Value string
}

type StepAdvanced struct{}

type StepRetreated struct{}

type SubmitStarted struct{}

type SubmitSucceeded struct {
	TransactionID string
}

type SubmitFailed struct {
	Reason string
}

func (FieldUpdated) isEvent()    {}
func (StepAdvanced) isEvent()    {}
func (StepRetreated) isEvent()   {}
func (SubmitStarted) isEvent()   {}
func (SubmitSucceeded) isEvent() {}
func (SubmitFailed) isEvent()    {}

// Apply is the order flow reducer. Events that are not allowed in the current
// state leave it unchanged; the service checks the same rules first so the
// caller gets a reason.
func Apply(s State, e Event) State {
	switch ev := e.(type) {
	case FieldUpdated:
		if s.CanEdit() != nil {
			return s
		}
		f, err := s.Form.With(ev.Field, ev.Value)
		if err != nil {
			return s
		}
		s.Form = f
	case StepAdvanced:
		if s.CanEdit() != nil {
			return s
		}
		if s.Step < lastStep {
			s.Step++
		}
	case StepRetreated:
		if s.CanEdit() != nil {
			return s
		}
		if s.Step > firstStep {
			s.Step--
		}
	case SubmitStarted:
		if s.CanSubmit() != nil {
			return s
		}
		s.Processing = true
		s.Error = ""
	case SubmitSucceeded:
		if s.Complete || ev.TransactionID == "" {
			return s
		}
		s.Processing = false
		s.Complete = true
		s.Form = s.Form.withoutSecrets()
		s.TransactionID = ev.TransactionID
		s.Error = ""
	case SubmitFailed:
		if s.Complete {
			return s
		}
		s.Processing = false
		s.Step = lastStep
		s.Error = ev.Reason
	}
	return s
}
