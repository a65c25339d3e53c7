package directdebit

// State is the terminal outcome of a charge or completion attempt. Exactly one
// state is set per invocation; results are returned, never panicked.
type State string

const (
	// StateRedirecting means the payer must be sent to the gateway-hosted
	// authorisation flow at RedirectURL.
	StateRedirecting State = "redirecting"
	// StateProcessing means a gateway transaction was created and is being
	// collected; TransactionID and Fee are set.
	StateProcessing State = "processing"
	// StateFailed is terminal from any point in the flow. FailureCode and
	// FailureMessage are operator-facing; UserMessage is all the end customer
	// ever sees.
	StateFailed State = "failed"
)

// Internal failure codes. Each gateway error category keeps a distinct code
// even though the customer-facing message is the same generic retry hint.
const (
	FailureGatewayUnreachable = "gateway_unreachable"
	FailureGatewayRejected    = "gateway_rejected"
	FailureGatewayBadResponse = "gateway_bad_response"
	FailureMissingFlowID      = "missing_redirect_flow_id"
	FailureMissingToken       = "missing_session_token"
	FailureSessionStore       = "session_store"
	FailureSourceStore        = "source_store"
	FailureInternal           = "internal"
)

// Result is the tagged outcome of Charge or Complete.
type Result struct {
	State          State
	RedirectURL    string
	TransactionID  string
	Fee            int64
	FailureCode    string
	FailureMessage string
	UserMessage    string
}

// Redirecting builds a result pointing the payer at the authorisation flow.
func Redirecting(url string) Result {
	return Result{State: StateRedirecting, RedirectURL: url}
}

// Processing builds a successful charge-initiated result.
func Processing(transactionID string, fee int64) Result {
	return Result{State: StateProcessing, TransactionID: transactionID, Fee: fee}
}

// Failure builds a terminal failure. The internal message is retained for
// operators; userMessage is shown to the customer.
func Failure(code, internalMessage, userMessage string) Result {
	return Result{
		State:          StateFailed,
		FailureCode:    code,
		FailureMessage: internalMessage,
		UserMessage:    userMessage,
	}
}
