// Package flow implements the conversation state machine and escalation rules
// for the Léa assistant.
//
// The machine is pure state/transition logic: it never touches the store or
// the messaging gateway. The pipeline owns persistence of the resulting state.
package flow

import "github.com/FranckSowax/botpharma/internal/models"

// State is one node of the conversation state machine.
type State string

const (
	StateGreeting        State = "greeting"
	StateConsent         State = "consent"
	StateMenu            State = "menu"
	StateProductSearch   State = "product_search"
	StateHealthAdvice    State = "health_advice"
	StatePromotions      State = "promotions"
	StateQAFlow          State = "qa_flow"
	StateRecommendations State = "recommendations"
	StateHumanHandoff    State = "human_handoff"
	StateCompleted       State = "completed"
)

// Event triggers a transition between states.
type Event string

const (
	EventRequestConsent Event = "request_consent"
	EventConsentGiven   Event = "consent_given"
	EventConsentDenied  Event = "consent_denied"
	EventDeleteRequest  Event = "delete_request"
	EventProductSearch  Event = "product_search"
	EventHealthAdvice   Event = "health_advice"
	EventPromotions     Event = "promotions"
	EventStartQA        Event = "start_qa"
	EventQAComplete     Event = "qa_complete"
	EventBackToMenu     Event = "back_to_menu"
	EventComplete       Event = "complete"
	EventHumanHandoff   Event = "human_handoff"
	EventResolved       Event = "resolved"
)

// transitions is the full legal transition table. Any (state, event) pair not
// listed here is a no-op: Transition returns the unchanged current state.
var transitions = map[State]map[Event]State{
	StateGreeting: {
		EventRequestConsent: StateConsent,
	},
	StateConsent: {
		EventConsentGiven:  StateMenu,
		EventConsentDenied: StateCompleted,
		EventDeleteRequest: StateCompleted,
	},
	StateMenu: {
		EventProductSearch: StateProductSearch,
		EventHealthAdvice:  StateHealthAdvice,
		EventPromotions:    StatePromotions,
		EventHumanHandoff:  StateHumanHandoff,
	},
	StateProductSearch: {
		EventStartQA:      StateQAFlow,
		EventHumanHandoff: StateHumanHandoff,
	},
	StateHealthAdvice: {
		EventStartQA:      StateQAFlow,
		EventHumanHandoff: StateHumanHandoff,
	},
	StatePromotions: {
		EventStartQA:      StateQAFlow,
		EventHumanHandoff: StateHumanHandoff,
	},
	StateQAFlow: {
		EventQAComplete:   StateRecommendations,
		EventHumanHandoff: StateHumanHandoff,
	},
	StateRecommendations: {
		EventBackToMenu:   StateMenu,
		EventComplete:     StateCompleted,
		EventHumanHandoff: StateHumanHandoff,
	},
	StateHumanHandoff: {
		EventResolved: StateMenu,
	},
	// StateCompleted is terminal: no outgoing transitions.
}

// InitialState is the state of every newly created conversation.
const InitialState = StateGreeting

// Machine holds the in-flight conversation context while the pipeline
// processes one message.
type Machine struct {
	state State
	data  models.ConversationData
}

// NewMachine creates a machine positioned at the given state with the
// conversation's current scratch data.
func NewMachine(state State, data models.ConversationData) *Machine {
	if state == "" {
		state = InitialState
	}
	return &Machine{state: state, data: data}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Data returns the current scratch data.
func (m *Machine) Data() models.ConversationData {
	return m.data
}

// Transition applies an event and returns the resulting state. The data patch
// is merged into the scratch data unconditionally, even when the (state,
// event) pair is not a legal transition.
func (m *Machine) Transition(event Event, patch models.ConversationData) State {
	m.data.Merge(patch)
	if event == EventConsentGiven {
		m.data.ConsentGiven = true
	}
	if next, ok := transitions[m.state][event]; ok {
		m.state = next
	}
	return m.state
}

// intentStates maps a classified intent to the free-text conversation state
// persisted by the legacy pipeline path.
var intentStates = map[models.Intent]string{
	models.IntentGreeting:      "greeting",
	models.IntentProductSearch: "product_search",
	models.IntentQuestion:      "product_inquiry",
	models.IntentOrder:         "order_creation",
	models.IntentComplaint:     "issue_resolution",
	models.IntentPromotions:    "promotions",
	models.IntentOther:         "general_chat",
}

// StateForIntent returns the conversation state matching a classified intent,
// defaulting to general chat for unknown intents.
func StateForIntent(intent models.Intent) string {
	if s, ok := intentStates[intent]; ok {
		return s
	}
	return "general_chat"
}
