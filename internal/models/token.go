package models

// TokenDetails holds a freshly issued access/refresh token pair together with
// the UUIDs under which they are tracked in the token store.
type TokenDetails struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccessUUID   string `json:"-"`
	RefreshUUID  string `json:"-"`
	AtExpires    int64  `json:"-"` // unix seconds
	RtExpires    int64  `json:"-"` // unix seconds
}
