package events

func PhotosReady(sessionID string) string    { return "photos-ready-for-" + sessionID }
func PhotosDeleted(sessionID string) string  { return "photos-deleted-for-" + sessionID }
func ShippingUpdate(sessionID string) string { return "shipping-update-" + sessionID }
func VariantsPosted(sessionID string) string { return "variants-posted-for-" + sessionID }
