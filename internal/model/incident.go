// Package model provides data models for the incident detector.
package model

import (
	"fmt"
	"time"
)

// NewIncidentID derives the incident id from the entity and the alert time.
// The cooldown gate guarantees at most one alert per entity per second.
func NewIncidentID(entityID string, at time.Time) string {
	return fmt.Sprintf("%s-%d", entityID, at.Unix())
}

// Incident is one emitted, deduplicated alert event.
type Incident struct {
	ID         string         `json:"incident_id" yaml:"incident_id"` // 事件 ID
	EntityID   string         `json:"instance" yaml:"instance"`       // 实体 ID
	Signals    []BreachSignal `json:"signals" yaml:"signals"`         // 越限信号
	Snapshots  []string       `json:"snapshots" yaml:"snapshots"`     // 快照 ID
	DetectedAt time.Time      `json:"detected_at" yaml:"detected_at"` // 检测时间
}

// NewIncident creates an Incident for an entity that passed the cooldown gate.
func NewIncident(entityID string, signals []BreachSignal, at time.Time) *Incident {
	return &Incident{
		ID:         NewIncidentID(entityID, at),
		EntityID:   entityID,
		Signals:    signals,
		Snapshots:  []string{},
		DetectedAt: at,
	}
}

// Step names a side-effecting step of the per-entity pipeline.
type Step string

const (
	StepNotify    Step = "notify"    // 告警通知
	StepForensics Step = "forensics" // 取证快照
	StepPlaybook  Step = "playbook"  // 处置剧本
)

// StepOutcome is the typed result of one side-effecting step.
type StepOutcome struct {
	Step   Step   `json:"step" yaml:"step"`                         // 步骤
	OK     bool   `json:"ok" yaml:"ok"`                             // 是否成功
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`   // 错误信息
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"` // 附加说明
}

// Succeeded builds a successful outcome.
func Succeeded(step Step, detail string) StepOutcome {
	return StepOutcome{Step: step, OK: true, Detail: detail}
}

// Failed builds a failed outcome from err.
func Failed(step Step, err error) StepOutcome {
	outcome := StepOutcome{Step: step}
	if err != nil {
		outcome.Error = err.Error()
	}
	return outcome
}

// EvaluationResult is the per-entity output of an evaluation pass.
type EvaluationResult struct {
	EntityID   string         `json:"instance" yaml:"instance"`       // 实体 ID
	IncidentID string         `json:"incident_id" yaml:"incident_id"` // 事件 ID
	Signals    []BreachSignal `json:"signals" yaml:"signals"`         // 越限信号
	Snapshots  []string       `json:"snapshots" yaml:"snapshots"`     // 快照 ID
	Steps      []StepOutcome  `json:"steps,omitempty" yaml:"steps"`   // 各步骤结果
}

// NewEvaluationResult builds the result record for an incident.
func NewEvaluationResult(inc *Incident, steps []StepOutcome) EvaluationResult {
	return EvaluationResult{
		EntityID:   inc.EntityID,
		IncidentID: inc.ID,
		Signals:    inc.Signals,
		Snapshots:  inc.Snapshots,
		Steps:      steps,
	}
}

// FailedSteps returns the steps that did not succeed.
func (r EvaluationResult) FailedSteps() []StepOutcome {
	var failed []StepOutcome
	for _, s := range r.Steps {
		if !s.OK {
			failed = append(failed, s)
		}
	}
	return failed
}

// PassSummary provides aggregated statistics about one evaluation pass.
type PassSummary struct {
	Entities   int `json:"entities" yaml:"entities"`       // 实体总数
	Breaching  int `json:"breaching" yaml:"breaching"`     // 越限实体数
	Suppressed int `json:"suppressed" yaml:"suppressed"`   // 冷却抑制数
	Incidents  int `json:"incidents" yaml:"incidents"`     // 事件数
	StepErrors int `json:"step_errors" yaml:"step_errors"` // 步骤失败数
}

// PassResult is the output of one evaluation pass.
type PassResult struct {
	StartedAt  time.Time          `json:"started_at" yaml:"started_at"`             // 开始时间
	FinishedAt time.Time          `json:"finished_at" yaml:"finished_at"`           // 结束时间
	Incidents  []EvaluationResult `json:"incidents" yaml:"incidents"`               // 事件结果
	Summary    PassSummary        `json:"summary" yaml:"summary"`                   // 统计
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`   // 配置错误
}

// NewPassResult creates an empty PassResult.
func NewPassResult(startedAt time.Time) *PassResult {
	return &PassResult{
		StartedAt: startedAt,
		Incidents: []EvaluationResult{},
	}
}

// Finalize stamps the finish time and counts step failures.
func (r *PassResult) Finalize(finishedAt time.Time) {
	r.FinishedAt = finishedAt
	r.Summary.Incidents = len(r.Incidents)
	r.Summary.StepErrors = 0
	for _, inc := range r.Incidents {
		r.Summary.StepErrors += len(inc.FailedSteps())
	}
}

// Duration returns the wall-clock duration of the pass.
func (r *PassResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PlaybookPayload is the structured input handed to the remediation workflow.
type PlaybookPayload struct {
	IncidentID string   `json:"incidentId"`
	InstanceID string   `json:"instanceId"`
	Signals    []string `json:"signals"`
	Snapshots  []string `json:"snapshots"`
}

// NewPlaybookPayload builds the payload for an incident.
func NewPlaybookPayload(inc *Incident) PlaybookPayload {
	snaps := inc.Snapshots
	if snaps == nil {
		snaps = []string{}
	}
	return PlaybookPayload{
		IncidentID: inc.ID,
		InstanceID: inc.EntityID,
		Signals:    SignalStrings(inc.Signals),
		Snapshots:  snaps,
	}
}

// CooldownRecord is the persisted last-alert time of one entity.
type CooldownRecord struct {
	EntityID  string    `json:"entity_id" yaml:"entity_id"`   // 实体 ID
	LastAlert time.Time `json:"last_alert" yaml:"last_alert"` // 上次告警时间
}

// Suppresses reports whether an alert at now falls inside the cooldown window.
// A nil record never suppresses.
func (r *CooldownRecord) Suppresses(now time.Time, cooldown time.Duration) bool {
	if r == nil {
		return false
	}
	return now.Sub(r.LastAlert) < cooldown
}
