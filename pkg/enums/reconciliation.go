package enums

// ReconciliationKind names the cleanup a reconciliation task retries.
type ReconciliationKind string

const (
	ReconcileDeleteIdentity ReconciliationKind = "delete_identity"
	ReconcileDeleteRole     ReconciliationKind = "delete_role"
)

func (k ReconciliationKind) IsValid() bool {
	return k == ReconcileDeleteIdentity || k == ReconcileDeleteRole
}

type ReconciliationStatus string

const (
	ReconciliationPending ReconciliationStatus = "pending"
	ReconciliationDone    ReconciliationStatus = "done"
	ReconciliationFailed  ReconciliationStatus = "failed"
)
