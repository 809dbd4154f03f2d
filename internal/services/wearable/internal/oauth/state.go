package oauth

import "strings"

const stateSep = ":"

// ComposeState binds a random state to the local user that started the flow.
func ComposeState(state, userID string) string {
	return state + stateSep + userID
}

// SplitState splits a composite state on the first separator. ok is false when
// there is no separator or the user part is empty.
func SplitState(composite string) (state, userID string, ok bool) {
	state, userID, found := strings.Cut(composite, stateSep)
	if !found || userID == "" {
		return "", "", false
	}

	return state, userID, true
}
