package daemon

// Request is one JSON request read from a control connection.
type Request struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
	ID     int    `json:"id,omitempty"`
}

// Response answers a Request.
type Response struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	ID     int    `json:"id,omitempty"`
}

// Control methods.
const (
	MethodStatus    = "status"
	MethodEstop     = "estop"
	MethodReset     = "reset"
	MethodPreflight = "preflight"
	MethodDispense  = "dispense"
	MethodStop      = "stop"
)

// StatusResponse describes the running machine.
type StatusResponse struct {
	State               string     `json:"state"`
	Ready               bool       `json:"ready"`
	EmergencyStop       bool       `json:"emergency_stop"`
	Reason              string     `json:"reason,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Uptime              string     `json:"uptime"`
	StartTime           string     `json:"start_time"`
	Pumps               PumpTotals `json:"pumps"`
}

// PumpTotals holds accumulated pump runtimes in milliseconds.
type PumpTotals struct {
	MilkMS  int64 `json:"milk_ms"`
	CocoaMS int64 `json:"cocoa_ms"`
	SugarMS int64 `json:"sugar_ms"`
}

// PreflightResponse reports a preflight run.
type PreflightResponse struct {
	Passed bool          `json:"passed"`
	Checks []CheckResult `json:"checks"`
}

// CheckResult is one preflight check on the wire.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// EstopParams contains parameters for the estop method.
type EstopParams struct {
	Reason string `json:"reason,omitempty"`
}

// DispenseParams contains parameters for the dispense method.
type DispenseParams struct {
	Recipe string `json:"recipe"`
}

// DispenseResponse reports a finished dispense.
type DispenseResponse struct {
	Recipe  string `json:"recipe"`
	Elapsed string `json:"elapsed"`
}
