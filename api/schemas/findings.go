package schemas

// -- Finding Schemas --

// RiskLevel is the coarse severity assigned to an inferred endpoint.
type RiskLevel string

// Risk levels, ordered from least to most severe.
const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank orders risk levels so callers can sort and compare them.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// CallKind identifies the syntactic shape that matched a network call.
type CallKind string

const (
	CallKindFetch     CallKind = "fetch"
	CallKindAxios     CallKind = "axios"
	CallKindXHR       CallKind = "xhr-construct"
	CallKindWebSocket CallKind = "websocket-construct"
)

// PatternKind categorizes a dangerous_pattern diagnostic.
type PatternKind string

const (
	PatternStringConcat    PatternKind = "string_concat"
	PatternTemplateLiteral PatternKind = "template_literal_injection"
)

// Placeholder values used when a field cannot be determined statically.
const (
	// MethodUnknown and URLUnknown are recorded for constructor clients whose
	// request is configured by a later call that is not correlated.
	MethodUnknown = "N/A"
	URLUnknown    = "N/A"
	// MethodWebSocket is the fixed method recorded for WebSocket clients.
	MethodWebSocket = "WS"
	// UnknownExpression stands in for any expression that cannot be rendered.
	UnknownExpression = "..."
)

// NetworkCall is the raw evidence for one recognized network call site.
type NetworkCall struct {
	File      string   `json:"file"`
	Line      int      `json:"line"`
	Column    int      `json:"column"`
	EndLine   int      `json:"endLine"`
	EndColumn int      `json:"endColumn"`
	Kind      CallKind `json:"kind"`
	// Callee is the rendered callee, e.g. "fetch", "axios.post", "WebSocket".
	Callee    string   `json:"callee"`
	Arguments []string `json:"arguments"`
	// Context holds the surrounding source lines captured for manual review.
	Context          string `json:"context,omitempty"`
	ContextStartLine int    `json:"contextStartLine,omitempty"`
	ContextEndLine   int    `json:"contextEndLine,omitempty"`
}

// AuthInfo is the authentication scheme guessed from the code around a call.
type AuthInfo struct {
	Type        string `json:"type"`
	Token       string `json:"token,omitempty"`
	Credentials string `json:"credentials,omitempty"`
}

// Endpoint is the request inferred from exactly one NetworkCall.
type Endpoint struct {
	File    string            `json:"file"`
	Line    int               `json:"line"`
	Column  int               `json:"column"`
	Kind    CallKind          `json:"kind"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body,omitempty"`
	Auth    *AuthInfo         `json:"auth,omitempty"`
	Risk    RiskLevel         `json:"riskLevel"`
	// TaintedBy lists the taint sources that reach the URL, body or headers.
	TaintedBy []string `json:"taintedBy,omitempty"`
}

// Provenance records where a RequestSpec came from.
type Provenance struct {
	File   string   `json:"file"`
	Line   int      `json:"line"`
	Column int      `json:"column"`
	Kind   CallKind `json:"kind"`
}

// RequestSpec is an exportable, reproducible description of one Endpoint.
type RequestSpec struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body,omitempty"`
	Auth    *AuthInfo         `json:"auth,omitempty"`
	Risk    RiskLevel         `json:"riskLevel"`
	Source  Provenance        `json:"source"`
}

// DangerousPattern is a standalone diagnostic for tainted data flowing into
// string construction.
type DangerousPattern struct {
	File       string      `json:"file"`
	Line       int         `json:"line"`
	Column     int         `json:"column"`
	Kind       PatternKind `json:"kind"`
	Expression string      `json:"expression"`
	Sources    []string    `json:"sources,omitempty"`
}

// TokenIssueKind names a weakness found in a hardcoded token.
type TokenIssueKind string

const (
	TokenIssueAlgNone           TokenIssueKind = "alg_none"
	TokenIssueWeakSecret        TokenIssueKind = "weak_secret"
	TokenIssueSensitiveClaims   TokenIssueKind = "sensitive_claims"
	TokenIssueMissingExpiration TokenIssueKind = "missing_expiration"
)

// TokenIssue is one weakness of a HardcodedToken.
type TokenIssue struct {
	Kind        TokenIssueKind `json:"kind"`
	Description string         `json:"description"`
	Risk        RiskLevel      `json:"riskLevel"`
}

// HardcodedToken is a JSON Web Token embedded as a string literal. Only a
// short prefix of the token is kept.
type HardcodedToken struct {
	File      string       `json:"file"`
	Line      int          `json:"line"`
	Column    int          `json:"column"`
	Algorithm string       `json:"algorithm"`
	Preview   string       `json:"preview"`
	Subject   string       `json:"subject,omitempty"`
	Issues    []TokenIssue `json:"issues,omitempty"`
	// Risk is the highest risk among Issues, LOW when there are none.
	Risk RiskLevel `json:"riskLevel"`
}

// TaintedBinding is a variable known to carry untrusted data.
type TaintedBinding struct {
	Name    string   `json:"name"`
	Line    int      `json:"line"`
	Sources []string `json:"sources"`
}

// ErrorKind classifies a per-file failure.
type ErrorKind string

const (
	ErrorKindParse    ErrorKind = "parse_error"
	ErrorKindIO       ErrorKind = "io_error"
	ErrorKindInternal ErrorKind = "internal_error"
)

// AnalysisError is a per-file failure recorded in the report instead of
// aborting the run.
type AnalysisError struct {
	File    string    `json:"file"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Line    int       `json:"line,omitempty"`
	Column  int       `json:"column,omitempty"`
}
