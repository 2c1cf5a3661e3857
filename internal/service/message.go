// Package service provides the incident evaluation and response pipeline.
package service

import (
	"fmt"
	"strings"

	"incident-detector/internal/model"
)

const noEntitiesMessage = "⚠️ IR Detector: No entities configured."

// FormatIncidentMessage builds the primary alert text for an incident.
func FormatIncidentMessage(inc *model.Incident) string {
	return fmt.Sprintf("🚨 Incident detected\nInstance: %s\nSignals: %s\nIncidentId: %s",
		inc.EntityID,
		strings.Join(model.SignalStrings(inc.Signals), ", "),
		inc.ID)
}

// FormatSnapshotMessage lists captured snapshot ids.
func FormatSnapshotMessage(entityID string, snapshots []string) string {
	list := "none"
	if len(snapshots) > 0 {
		list = strings.Join(snapshots, ", ")
	}
	return fmt.Sprintf("🧩 Snapshots taken for %s: %s", entityID, list)
}

// FormatSnapshotErrorMessage reports a failed forensics capture.
func FormatSnapshotErrorMessage(entityID, reason string) string {
	return fmt.Sprintf("⚠️ Snapshot error for %s: %s", entityID, reason)
}

// FormatPlaybookStartedMessage confirms the remediation workflow was started.
func FormatPlaybookStartedMessage(incidentID string) string {
	return fmt.Sprintf("▶️ Playbook started for %s.", incidentID)
}

// FormatPlaybookErrorMessage reports a failed playbook start.
func FormatPlaybookErrorMessage(reason string) string {
	return fmt.Sprintf("⚠️ Failed to start playbook: %s", reason)
}
