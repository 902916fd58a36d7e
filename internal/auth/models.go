package auth

import "time"

const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

type Device struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	LocationPermission string    `json:"location_permission"`
	SecretHash         string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type RegisterDeviceRequest struct {
	Name               string `json:"name" validate:"required,max=120"`
	LocationPermission string `json:"location_permission" validate:"omitempty,oneof=granted denied"`
}

type TokenRequest struct {
	DeviceID string `json:"device_id" validate:"required,uuid"`
	Secret   string `json:"secret" validate:"required"`
}

type PermissionRequest struct {
	LocationPermission string `json:"location_permission" validate:"required,oneof=granted denied"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
