package domain

// BookingRef read only projection of a booking
type BookingRef struct {
	ID         int64
	CustomerID int64
	// ProviderUserID 服務提供者的 user id (api_booking.provider_profile_id)
	ProviderUserID int64
	Status         string
}

// Allows customer 或 provider 身分的 provider user 可進入
func (b BookingRef) Allows(id Identity) bool {
	if id.ID == b.CustomerID {
		return true
	}
	return id.IsProvider && id.ID == b.ProviderUserID
}
