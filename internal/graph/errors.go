package graph

import (
	"fmt"
	"strings"
)

// HTTPError reports a non-success Graph response after any retry has been
// exhausted. Body carries the raw error payload for diagnostics.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graph request failed with status %d: %s", e.StatusCode, e.Body)
}

// AccountCapabilityError indicates the signed-in account's mailbox is not
// enabled for the To Do REST API (personal accounts without the service
// provisioned, or tenants with it disabled). Distinguished from a generic
// HTTP failure so tools can explain the condition instead of suggesting
// re-authentication.
type AccountCapabilityError struct {
	Body string
}

func (e *AccountCapabilityError) Error() string {
	return "this account's mailbox is not enabled for the To Do API"
}

// mailboxNotEnabledCode is the Graph error code for an unprovisioned
// mailbox. It appears inside the JSON error body.
const mailboxNotEnabledCode = "MailboxNotEnabledForRESTAPI"

func isMailboxNotEnabled(body string) bool {
	return strings.Contains(body, mailboxNotEnabledCode)
}
