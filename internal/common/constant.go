package common

// AccessTokenHeaderName is the gRPC metadata key carrying the access token.
const AccessTokenHeaderName = "access_token"

// DefaultHotelCode is sent to the identity gateway when the caller did not
// name a hotel.
const DefaultHotelCode = "PERFECT.KEY"
