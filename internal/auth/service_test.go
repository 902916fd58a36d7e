package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"
)

var errDB = errors.New("db error")

func TestRegisterDeviceAndAuthenticate(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Now().Add(-time.Minute)
	mock.ExpectQuery(`INSERT INTO devices`).
		WithArgs(pgxmock.AnyArg(), "phone", PermissionGranted, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(createdAt, createdAt))

	svc := NewService("test-secret", mock)
	device, secret, err := svc.RegisterDevice(context.Background(), RegisterDeviceRequest{Name: "phone", LocationPermission: PermissionGranted})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if device.ID == "" || secret == "" || device.SecretHash == secret {
		t.Fatalf("expected id, secret and hashed secret: %+v", device)
	}

	mock.ExpectQuery(`SELECT id, name, location_permission, secret_hash`).
		WithArgs(device.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "location_permission", "secret_hash", "created_at", "updated_at"}).
			AddRow(device.ID, device.Name, device.LocationPermission, device.SecretHash, createdAt, createdAt))

	tokens, err := svc.Authenticate(context.Background(), TokenRequest{DeviceID: device.ID, Secret: secret})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	claims, err := svc.ParseToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.DeviceID != device.ID || claims.LocationPermission != PermissionGranted {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterDeviceDefaultsToDenied(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO devices`).
		WithArgs(pgxmock.AnyArg(), "tablet", PermissionDenied, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	svc := NewService("test-secret", mock)
	device, _, err := svc.RegisterDevice(context.Background(), RegisterDeviceRequest{Name: "tablet"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if device.LocationPermission != PermissionDenied {
		t.Fatalf("expected denied default, got %s", device.LocationPermission)
	}
}

func TestRegisterDeviceValidation(t *testing.T) {
	svc := NewService("test-secret", nil)
	if _, _, err := svc.RegisterDevice(context.Background(), RegisterDeviceRequest{}); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if _, _, err := svc.RegisterDevice(context.Background(), RegisterDeviceRequest{Name: "x", LocationPermission: "maybe"}); err == nil {
		t.Fatalf("expected error for unknown permission")
	}
}

func TestRegisterDeviceHashError(t *testing.T) {
	oldHash := hashSecretFn
	hashSecretFn = func(_ []byte, _ int) ([]byte, error) {
		return nil, errDB
	}
	defer func() { hashSecretFn = oldHash }()

	svc := NewService("test-secret", nil)
	if _, _, err := svc.RegisterDevice(context.Background(), RegisterDeviceRequest{Name: "phone"}); !errors.Is(err, errDB) {
		t.Fatalf("expected hash error, got %v", err)
	}
}

func TestRegisterDeviceInsertError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO devices`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errDB)

	svc := NewService("test-secret", mock)
	if _, _, err := svc.RegisterDevice(context.Background(), RegisterDeviceRequest{Name: "phone"}); !errors.Is(err, errDB) {
		t.Fatalf("expected insert error, got %v", err)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	id := uuid.NewString()
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	mock.ExpectQuery(`SELECT id, name, location_permission, secret_hash`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "location_permission", "secret_hash", "created_at", "updated_at"}).
			AddRow(id, "phone", PermissionGranted, string(hash), time.Now(), time.Now()))

	svc := NewService("test-secret", mock)
	if _, err := svc.Authenticate(context.Background(), TokenRequest{DeviceID: id, Secret: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthenticateUnknownDevice(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	id := uuid.NewString()
	mock.ExpectQuery(`SELECT id, name`).WithArgs(id).WillReturnError(errDB)

	svc := NewService("test-secret", mock)
	if _, err := svc.Authenticate(context.Background(), TokenRequest{DeviceID: id, Secret: "s"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestUpdatePermission(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`UPDATE devices SET location_permission`).
		WithArgs("device-1", PermissionGranted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE devices SET location_permission`).
		WithArgs("missing", PermissionDenied).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	svc := NewService("test-secret", mock)
	tokens, err := svc.UpdatePermission(context.Background(), "device-1", PermissionRequest{LocationPermission: PermissionGranted})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	claims, err := svc.ParseToken(tokens.AccessToken)
	if err != nil || claims.LocationPermission != PermissionGranted {
		t.Fatalf("expected granted claim, got %+v err=%v", claims, err)
	}

	if _, err := svc.UpdatePermission(context.Background(), "missing", PermissionRequest{LocationPermission: PermissionDenied}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown device, got %v", err)
	}
}

func TestIssueTokenSignError(t *testing.T) {
	oldSign := signTokenFn
	signTokenFn = func(_ *Service, _, _ string, _ time.Duration) (string, error) {
		return "", errDB
	}
	defer func() { signTokenFn = oldSign }()

	svc := NewService("test-secret", nil)
	if _, err := svc.IssueToken("device-1", PermissionGranted); !errors.Is(err, errDB) {
		t.Fatalf("expected sign error, got %v", err)
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	tokens, err := NewService("one", nil).IssueToken("device-1", PermissionGranted)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewService("two", nil).ParseToken(tokens.AccessToken); err == nil {
		t.Fatalf("expected signature error")
	}
}
