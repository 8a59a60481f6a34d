package models

// EmptyStateKind selects which action payload an EmptyState carries
type EmptyStateKind string

const (
	EmptyStateLink   EmptyStateKind = "link"
	EmptyStateButton EmptyStateKind = "button"
)

// EmptyStateLinkAction points the user to another page
type EmptyStateLinkAction struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// EmptyStateButtonAction triggers an API action
type EmptyStateButtonAction struct {
	Label  string `json:"label"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// EmptyState is shown instead of the conversation list when it is empty.
// Exactly one of Link or Button is set, according to Kind.
type EmptyState struct {
	Kind    EmptyStateKind          `json:"kind"`
	Message string                  `json:"message"`
	Link    *EmptyStateLinkAction   `json:"link,omitempty"`
	Button  *EmptyStateButtonAction `json:"button,omitempty"`
}

// NewLinkEmptyState builds a link variant
func NewLinkEmptyState(message, label, href string) EmptyState {
	return EmptyState{
		Kind:    EmptyStateLink,
		Message: message,
		Link:    &EmptyStateLinkAction{Label: label, Href: href},
	}
}

// NewButtonEmptyState builds a button variant
func NewButtonEmptyState(message, label, method, path string) EmptyState {
	return EmptyState{
		Kind:    EmptyStateButton,
		Message: message,
		Button:  &EmptyStateButtonAction{Label: label, Method: method, Path: path},
	}
}
