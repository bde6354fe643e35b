// Package hitl implements the HITL Gate (C5): risk assessment, a blocking
// approval queue keyed by one-shot futures, and an append-only audit log.
package hitl

import (
	"strings"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// AssessorConfig configures the keyword/file-scope heuristic.
type AssessorConfig struct {
	// HighRiskKeywords bump a task to High when its description contains one.
	HighRiskKeywords []string
	// CriticalRiskKeywords bump a task to Critical when its description
	// contains one (checked before HighRiskKeywords).
	CriticalRiskKeywords []string
	// FileScopeMediumThreshold: declaring at least this many write files
	// without a keyword match bumps Low to Medium.
	FileScopeMediumThreshold int
}

func DefaultAssessorConfig() AssessorConfig {
	return AssessorConfig{
		CriticalRiskKeywords:     []string{"delete", "drop table", "rm -rf", "force-push"},
		HighRiskKeywords:         []string{"deploy", "secret", "credential", "production", "migrate"},
		FileScopeMediumThreshold: 5,
	}
}

// Assessor classifies a task description into a RiskLevel. The decision is
// deterministic given the same inputs and classifier version: no random
// component, no external calls by default. An optional LLM classifier may be
// layered on by wrapping Assessor.
type Assessor struct {
	cfg AssessorConfig
}

func NewAssessor(cfg AssessorConfig) *Assessor {
	return &Assessor{cfg: cfg}
}

// AssessRisk classifies a task by keyword match and file-scope breadth.
func (a *Assessor) AssessRisk(node model.TaskNode) model.RiskLevel {
	desc := strings.ToLower(node.Description)

	for _, kw := range a.cfg.CriticalRiskKeywords {
		if strings.Contains(desc, kw) {
			return model.RiskCritical
		}
	}
	for _, kw := range a.cfg.HighRiskKeywords {
		if strings.Contains(desc, kw) {
			return model.RiskHigh
		}
	}
	if len(node.WriteFiles) >= a.cfg.FileScopeMediumThreshold {
		return model.RiskMedium
	}
	return model.RiskLow
}

// RequiresHitl reports whether, under the given mode, a task at riskLevel
// must be gated:
//   - Blocking: always true.
//   - Async: true only for High|Critical.
//   - SampleBased: Critical always gates; Medium|High gate with probability
//     sampleRate. Critical is never left ungated regardless of sample.
//
// sample is a caller-supplied draw in [0,1); pass a fresh pseudo-random value
// per call (e.g. rand/v2.Float64()) for SampleBased mode, ignored otherwise.
func RequiresHitl(mode model.HitlMode, risk model.RiskLevel, sampleRate, sample float64) bool {
	switch mode {
	case model.HitlBlocking:
		return true
	case model.HitlAsync:
		return risk == model.RiskHigh || risk == model.RiskCritical
	case model.HitlSampleBased:
		if risk == model.RiskCritical {
			return true
		}
		if risk == model.RiskMedium || risk == model.RiskHigh {
			return sample < sampleRate
		}
		return false
	default:
		return false
	}
}
