package domain

// Principal is the authenticated actor attached to every request by the
// external identity provider. Mutating operations take it explicitly;
// nothing ever falls back to an implicit default account.
type Principal struct {
	ID    string
	Admin bool
}

// CanActOn reports whether the principal may operate on accountID's
// resources. Admins may act on anyone's.
func (p Principal) CanActOn(accountID string) bool {
	return p.Admin || p.ID == accountID
}
