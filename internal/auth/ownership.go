package auth

// Decision is the outcome of an ownership check.
type Decision int

const (
	Allowed Decision = iota
	Forbidden
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "forbidden"
}

// AuthorizeMutation allows a write only when the requester owns the resource.
// Callers look the resource up first so that a missing resource is reported
// as not found regardless of who asks.
func AuthorizeMutation(ownerID, requesterID int64) Decision {
	if ownerID == requesterID {
		return Allowed
	}
	return Forbidden
}
