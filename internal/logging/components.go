package logging

// Component names passed to For.
const (
	ComponentCompiler  = "hsm.compiler"
	ComponentMachine   = "hsm.machine"
	ComponentRunner    = "hsm.runner"
	ComponentTicker    = "hsm.ticker"
	ComponentLifecycle = "lifecycle"
	ComponentMetrics   = "metrics"
	ComponentServer    = "hsmctl.server"
)
