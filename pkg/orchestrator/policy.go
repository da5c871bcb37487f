package orchestrator

import (
	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// DefaultPolicy is the admission-time notification policy before the
// sentinel gate has run: silent for worker and simulated packets, alert
// otherwise. A requested urgent is kept provisionally and re-checked
// after the gates.
func DefaultPolicy(packetType string, simulate bool, requested contracts.NotificationPolicy) contracts.NotificationPolicy {
	base := contracts.NotificationAlert
	if packetType == "worker" || simulate {
		base = contracts.NotificationSilent
	}
	if requested == "" {
		return base
	}
	if requested == contracts.NotificationUrgent {
		// Escalation is decided after the sentinel gate; start from base.
		return base
	}
	return requested
}

// FinalPolicy applies the urgency rule after the gate chain: urgent only
// when the sentinel flagged it or the persona is cassandra. A requested
// urgent that is not allowed is downgraded to the current policy.
func FinalPolicy(current, requested contracts.NotificationPolicy, sentinelUrgent bool, personaLabel string) contracts.NotificationPolicy {
	urgentAllowed := sentinelUrgent || personaLabel == "cassandra"
	if urgentAllowed && (sentinelUrgent || requested == contracts.NotificationUrgent) {
		return contracts.NotificationUrgent
	}
	return current
}
