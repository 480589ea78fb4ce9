package guard

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/internal/observability/metrics"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

var pipelineTracer = otel.Tracer("portal.internal.guard")

// Stage identifies which pipeline stage produced a decision.
type Stage string

const (
	StageHeuristic  Stage = "heuristic"
	StageClassifier Stage = "classifier"
	StageValidator  Stage = "validator"
	StagePassed     Stage = "passed"
)

// Canned assistant replies for vetoes raised by the non-heuristic stages.
const (
	MsgMaliciousBlocked = "Malicious prompt detected, request blocked"
	MsgSecurityBlocked  = "Request blocked due to security concerns"
)

// Decision is the pipeline's verdict on one inbound message.
type Decision struct {
	// Allowed is true only when every stage passed.
	Allowed bool
	// Reply is the canned assistant response to surface on a veto.
	Reply string
	// Stage names the stage that vetoed (or StagePassed).
	Stage Stage
	// Reasoning carries the validator's one-sentence explanation, when any.
	Reasoning string
}

// InjectionClassifier scores text for jailbreak intent (fail-open).
type InjectionClassifier interface {
	IsMalicious(ctx context.Context, text string) bool
}

// IntentValidator judges the latest message semantically (fail-closed).
type IntentValidator interface {
	Validate(ctx context.Context, patient *identity.Patient, transcript []Message, prompt string) ValidationVerdict
}

// BlockAuditor records vetoes for the compliance trail.
type BlockAuditor interface {
	LogPromptBlocked(ctx context.Context, patientID int, stage, detail string) error
}

// Pipeline runs the three guard stages in cost order, short-circuiting on the
// first veto: the heuristic filter is free, the classifier is one cheap HTTP
// round trip, the validator is a full LLM call.
type Pipeline struct {
	classifier InjectionClassifier
	validator  IntentValidator
	audit      BlockAuditor
	metrics    *metrics.GuardMetrics
	logger     *logging.Logger
}

// NewPipeline composes the guard stages. audit and metrics may be nil.
func NewPipeline(classifier InjectionClassifier, validator IntentValidator, audit BlockAuditor, m *metrics.GuardMetrics, logger *logging.Logger) *Pipeline {
	if classifier == nil {
		panic("guard: classifier cannot be nil")
	}
	if validator == nil {
		panic("guard: validator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		classifier: classifier,
		validator:  validator,
		audit:      audit,
		metrics:    m,
		logger:     logger,
	}
}

// Inspect decides whether message may be forwarded to the conversational
// LLM. transcript holds the prior user/assistant turns for validator context.
func (p *Pipeline) Inspect(ctx context.Context, patient *identity.Patient, transcript []Message, message string) Decision {
	ctx, span := pipelineTracer.Start(ctx, "guard.inspect")
	defer span.End()

	if result := CheckMessage(message); !result.Allowed {
		p.metrics.ObserveGuardCheck(string(StageHeuristic), "blocked")
		span.SetAttributes(attribute.String("portal.guard.veto", result.Rule))
		p.recordBlock(ctx, patient, StageHeuristic, result.Rule)
		return Decision{Allowed: false, Reply: result.Reply, Stage: StageHeuristic}
	}
	p.metrics.ObserveGuardCheck(string(StageHeuristic), "passed")

	start := time.Now()
	malicious := p.classifier.IsMalicious(ctx, message)
	p.metrics.ObserveClassifierLatency(time.Since(start).Seconds())
	if malicious {
		p.metrics.ObserveGuardCheck(string(StageClassifier), "blocked")
		span.SetAttributes(attribute.String("portal.guard.veto", "jailbreak_score"))
		p.recordBlock(ctx, patient, StageClassifier, "jailbreak score above threshold")
		return Decision{Allowed: false, Reply: MsgMaliciousBlocked, Stage: StageClassifier}
	}
	p.metrics.ObserveGuardCheck(string(StageClassifier), "passed")

	verdict := p.validator.Validate(ctx, patient, transcript, message)
	if !verdict.IsValid {
		p.metrics.ObserveGuardCheck(string(StageValidator), "blocked")
		span.SetAttributes(attribute.String("portal.guard.veto", "semantic"))
		p.recordBlock(ctx, patient, StageValidator, verdict.Reasoning)
		return Decision{Allowed: false, Reply: MsgSecurityBlocked, Stage: StageValidator, Reasoning: verdict.Reasoning}
	}
	p.metrics.ObserveGuardCheck(string(StageValidator), "passed")

	return Decision{Allowed: true, Stage: StagePassed, Reasoning: verdict.Reasoning}
}

func (p *Pipeline) recordBlock(ctx context.Context, patient *identity.Patient, stage Stage, detail string) {
	p.logger.Info("chat message vetoed", "stage", stage, "detail", detail)
	if p.audit == nil {
		return
	}
	patientID := 0
	if patient != nil {
		patientID = patient.ID
	}
	if err := p.audit.LogPromptBlocked(ctx, patientID, string(stage), detail); err != nil {
		p.logger.Error("failed to audit blocked prompt", "error", err)
	}
}
