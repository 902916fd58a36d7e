package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-routerecorder/internal/db"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenTTL = 24 * time.Hour

var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	hashSecretFn = bcrypt.GenerateFromPassword
	signTokenFn  = (*Service).signToken
)

type Service struct {
	secret   []byte
	db       db.Querier
	validate *validator.Validate
}

// Claims identify a recording device and carry its foreground location
// permission as last reported by the device.
type Claims struct {
	DeviceID           string `json:"device_id"`
	LocationPermission string `json:"location_permission"`
	jwt.RegisteredClaims
}

func NewService(secret string, q db.Querier) *Service {
	return &Service{
		secret:   []byte(secret),
		db:       q,
		validate: validator.New(),
	}
}

// RegisterDevice stores a new device and returns it with its one-time
// plaintext secret.
func (s *Service) RegisterDevice(ctx context.Context, req RegisterDeviceRequest) (Device, string, error) {
	if err := s.validate.Struct(req); err != nil {
		return Device{}, "", err
	}
	if req.LocationPermission == "" {
		req.LocationPermission = PermissionDenied
	}

	secret := uuid.NewString()
	hash, err := hashSecretFn([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Device{}, "", fmt.Errorf("hash device secret: %w", err)
	}

	device := Device{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		LocationPermission: req.LocationPermission,
		SecretHash:         string(hash),
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO devices (id, name, location_permission, secret_hash)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at
	`, device.ID, device.Name, device.LocationPermission, device.SecretHash)
	if err := row.Scan(&device.CreatedAt, &device.UpdatedAt); err != nil {
		return Device{}, "", fmt.Errorf("insert device: %w", err)
	}
	return device, secret, nil
}

// Authenticate checks a device secret and issues an access token carrying
// the device's stored permission.
func (s *Service) Authenticate(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return TokenResponse{}, err
	}
	device, err := s.device(ctx, req.DeviceID)
	if err != nil {
		return TokenResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(device.SecretHash), []byte(req.Secret)); err != nil {
		return TokenResponse{}, ErrInvalidCredentials
	}
	return s.IssueToken(device.ID, device.LocationPermission)
}

// UpdatePermission records a new permission answer for the device and
// returns a token reflecting it.
func (s *Service) UpdatePermission(ctx context.Context, deviceID string, req PermissionRequest) (TokenResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return TokenResponse{}, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE devices SET location_permission = $2, updated_at = NOW()
		WHERE id = $1
	`, deviceID, req.LocationPermission)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("update permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return TokenResponse{}, ErrInvalidCredentials
	}
	return s.IssueToken(deviceID, req.LocationPermission)
}

func (s *Service) IssueToken(deviceID, permission string) (TokenResponse, error) {
	token, err := signTokenFn(s, deviceID, permission, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ParseToken(token string) (*Claims, error) {
	return parseClaims(token, s.secret)
}

func (s *Service) signToken(deviceID, permission string, ttl time.Duration) (string, error) {
	claims := Claims{
		DeviceID:           deviceID,
		LocationPermission: permission,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) device(ctx context.Context, id string) (Device, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, location_permission, secret_hash, created_at, updated_at
		FROM devices WHERE id = $1
	`, id)

	var d Device
	if err := row.Scan(&d.ID, &d.Name, &d.LocationPermission, &d.SecretHash, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Device{}, err
	}
	return d, nil
}

func parseClaims(token string, secret []byte) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

var parseClaimsFn = jwt.ParseWithClaims
