package models

// UserHotel assigns a user to a hotel tenant. Rows are owned by the hotel
// administration side; this module only reads them to scope session listings.
type UserHotel struct {
	UserID    int64
	HotelGUID string
	HotelCode string
}

// Hotel is a hotel the identity gateway lists for a username.
type Hotel struct {
	HotelCode      string `json:"hotelCode"`
	HotelName      string `json:"hotelName"`
	HotelAvatarURL string `json:"hotelAvatarUrl"`
}
