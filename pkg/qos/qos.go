// Package qos implements the DCPS QoS policy set: the per-entity policy
// bundle, its self-consistency check, and the offered/requested
// compatibility matching used by SEDP to decide whether a reader-proxy or
// writer-proxy is added for a discovered endpoint.
package qos

import (
	"time"

	"github.com/odin-rtps/rtps/pkg/ddserror"
)

// DurabilityKind orders weakest to strongest: a writer's durability must be
// at least as strong as a reader's for the policies to be compatible.
type DurabilityKind int

const (
	DurabilityVolatile DurabilityKind = iota
	DurabilityTransientLocal
	DurabilityTransient
	DurabilityPersistent
)

// DurabilityQos controls whether late-joining readers receive historical
// samples.
type DurabilityQos struct {
	Kind DurabilityKind
}

// OwnershipKind selects whether multiple writers may update one instance.
type OwnershipKind int

const (
	OwnershipShared OwnershipKind = iota
	OwnershipExclusive
)

// OwnershipQos controls instance-level write arbitration. Shared and
// Exclusive are not mix-and-matchable: a mismatch is always incompatible,
// not merely weaker.
type OwnershipQos struct {
	Kind OwnershipKind
}

// LivelinessKind selects who is responsible for asserting liveliness.
type LivelinessKind int

const (
	LivelinessAutomatic LivelinessKind = iota
	LivelinessManualByParticipant
	LivelinessManualByTopic
)

// LivelinessQos controls how long a matched writer may go silent before its
// instances are considered not-alive. Stronger ordering: Automatic <
// ManualByParticipant < ManualByTopic, shorter lease is stronger.
type LivelinessQos struct {
	Kind          LivelinessKind
	LeaseDuration time.Duration
}

// DestinationOrderKind selects the timestamp used to order samples of one
// instance.
type DestinationOrderKind int

const (
	DestinationOrderByReception DestinationOrderKind = iota
	DestinationOrderBySourceTimestamp
)

// DestinationOrderQos orders BySourceTimestamp as stronger than ByReception.
type DestinationOrderQos struct {
	Kind DestinationOrderKind
}

// DeadlineQos bounds the period within which a new sample must be written
// (writer side) or is expected (reader side). A writer's period must be no
// greater than a reader's to be compatible.
type DeadlineQos struct {
	Period time.Duration
}

// LatencyBudgetQos is a non-binding hint at acceptable end-to-end delay; it
// never fails compatibility matching, and the SEDP payload does not carry
// it.
type LatencyBudgetQos struct {
	Duration time.Duration
}

// PresentationAccessScope controls the grouping of coherent/ordered access.
type PresentationAccessScope int

const (
	PresentationInstance PresentationAccessScope = iota
	PresentationTopic
	PresentationGroup
)

// PresentationQos orders AccessScope Instance < Topic < Group; a writer's
// scope must be at least as wide as a reader's, and CoherentAccess/
// OrderedAccess may only be requested if offered.
type PresentationQos struct {
	AccessScope     PresentationAccessScope
	CoherentAccess  bool
	OrderedAccess   bool
}

// ReliabilityQos controls whether the reliability loop (HEARTBEAT/ACKNACK)
// runs for an endpoint. Reliable is stronger than BestEffort.
type ReliabilityQos struct {
	Kind            int // rtpstypes.ReliabilityKind, kept untyped here to avoid an import cycle with rtpstypes' endpoint-facing constants
	MaxBlockingTime time.Duration
}

const (
	ReliabilityBestEffort = 0
	ReliabilityReliable   = 1
)

// Policies bundles every QoS policy recognized by a DataWriter or
// DataReader. Default returns the DCPS-mandated defaults: best-effort,
// volatile, shared ownership, automatic liveliness with infinite lease,
// reception-order, infinite deadline, zero latency budget, instance-scoped
// presentation.
type Policies struct {
	Reliability      ReliabilityQos
	Durability       DurabilityQos
	Deadline         DeadlineQos
	LatencyBudget    LatencyBudgetQos
	Ownership        OwnershipQos
	Liveliness       LivelinessQos
	DestinationOrder DestinationOrderQos
	Presentation     PresentationQos
}

// Default returns the DCPS spec defaults used when an entity is created
// without an explicit QoS bundle.
func Default() Policies {
	return Policies{
		Reliability:      ReliabilityQos{Kind: ReliabilityBestEffort},
		Durability:       DurabilityQos{Kind: DurabilityVolatile},
		Deadline:         DeadlineQos{Period: 0},
		LatencyBudget:    LatencyBudgetQos{Duration: 0},
		Ownership:        OwnershipQos{Kind: OwnershipShared},
		Liveliness:       LivelinessQos{Kind: LivelinessAutomatic, LeaseDuration: 0},
		DestinationOrder: DestinationOrderQos{Kind: DestinationOrderByReception},
		Presentation:     PresentationQos{AccessScope: PresentationInstance},
	}
}

// CheckSelfConsistent rejects a bundle whose policies contradict each other,
// e.g. requesting CoherentAccess with an Instance-scoped Presentation. Returns
// an ddserror.ErrInconsistentPolicy-wrapped error on failure.
func (p Policies) CheckSelfConsistent(op, entity string) error {
	if p.Presentation.CoherentAccess && p.Presentation.AccessScope == PresentationInstance {
		return ddserror.InconsistentPolicy(op, entity)
	}
	return nil
}

// IncompatiblePolicy names one policy that failed offered/requested
// matching, mirroring the QosPolicyId the DCPS spec reports in
// OFFERED_INCOMPATIBLE_QOS / REQUESTED_INCOMPATIBLE_QOS status.
type IncompatiblePolicy struct {
	Name string
}

// CheckCompatible reports whether offered (a writer's QoS) is
// stronger-or-equal to requested (a reader's QoS) for every policy the
// standard requires to match, per the compatibility table: Reliability,
// Durability, Presentation, Deadline, Ownership, Liveliness,
// DestinationOrder. LatencyBudget is a hint and never fails matching.
func CheckCompatible(offered, requested Policies) (bool, []IncompatiblePolicy) {
	var mismatches []IncompatiblePolicy

	if offered.Reliability.Kind < requested.Reliability.Kind {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Reliability"})
	}
	if offered.Durability.Kind < requested.Durability.Kind {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Durability"})
	}
	if offered.Presentation.AccessScope < requested.Presentation.AccessScope {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Presentation"})
	}
	if requested.Presentation.CoherentAccess && !offered.Presentation.CoherentAccess {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Presentation"})
	}
	if requested.Presentation.OrderedAccess && !offered.Presentation.OrderedAccess {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Presentation"})
	}
	if requested.Deadline.Period > 0 && (offered.Deadline.Period == 0 || offered.Deadline.Period > requested.Deadline.Period) {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Deadline"})
	}
	if offered.Ownership.Kind != requested.Ownership.Kind {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Ownership"})
	}
	if offered.Liveliness.Kind < requested.Liveliness.Kind {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Liveliness"})
	}
	if requested.Liveliness.LeaseDuration > 0 &&
		(offered.Liveliness.LeaseDuration == 0 || offered.Liveliness.LeaseDuration > requested.Liveliness.LeaseDuration) {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "Liveliness"})
	}
	if offered.DestinationOrder.Kind < requested.DestinationOrder.Kind {
		mismatches = append(mismatches, IncompatiblePolicy{Name: "DestinationOrder"})
	}

	return len(mismatches) == 0, mismatches
}
