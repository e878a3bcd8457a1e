package agent

import (
	"log"

	"github.com/ternlabs/tern/internal/recovery"
	"github.com/ternlabs/tern/internal/validation"
)

// Telemetry observes the executor's loop. Implementations must not
// block; recording failures are invisible to the loop because callbacks
// return nothing.
type Telemetry interface {
	OnIterationStart(iteration, allocated int)
	OnStateChange(from, to State)
	OnValidation(iteration int, report validation.Report)
	OnRecoveryAction(symptom recovery.Symptom, action recovery.Action)
	OnFinish(result Result)
}

// NopTelemetry discards everything. Embed it to pick callbacks.
type NopTelemetry struct{}

func (NopTelemetry) OnIterationStart(int, int)                           {}
func (NopTelemetry) OnStateChange(State, State)                          {}
func (NopTelemetry) OnValidation(int, validation.Report)                 {}
func (NopTelemetry) OnRecoveryAction(recovery.Symptom, recovery.Action)  {}
func (NopTelemetry) OnFinish(Result)                                     {}

// LogTelemetry writes loop events through the standard logger.
type LogTelemetry struct {
	NopTelemetry
	Verbose bool
}

func (l LogTelemetry) OnIterationStart(iteration, allocated int) {
	log.Printf("🔁 iteration %d/%d", iteration, allocated)
}

func (l LogTelemetry) OnStateChange(from, to State) {
	if l.Verbose {
		log.Printf("➡️  %s → %s", from, to)
	}
}

func (l LogTelemetry) OnValidation(iteration int, report validation.Report) {
	log.Printf("📊 validation %.2f (%d checks, %d failed)",
		report.Validation.Overall, report.Validation.TotalChecks, len(report.Validation.FailedChecks()))
}

func (l LogTelemetry) OnRecoveryAction(symptom recovery.Symptom, action recovery.Action) {
	log.Printf("🩹 recovery: %s → %s", symptom.Kind, action.Kind)
}

func (l LogTelemetry) OnFinish(result Result) {
	if result.Success {
		log.Printf("✅ done in %d iterations (score %.2f)", result.Iterations, result.ValidationScore)
		return
	}
	log.Printf("❌ failed after %d iterations: %s", result.Iterations, result.Output)
}
