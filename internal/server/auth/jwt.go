// Package auth issues and validates the HS256 tokens that bind a request
// to an account and device. Token issuance for end users lives in the
// identity service; this server only consumes the claims.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
)

// Claims carries the registered claims plus the account and device the
// token was issued for.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	DeviceID  string `json:"device_id"`
}

// GenerateToken signs a token for the given account and device.
func GenerateToken(accountID, deviceID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		AccountID: accountID,
		DeviceID:  deviceID,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates the token and returns its claims. Expired or
// otherwise invalid tokens map to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}

	if !token.Valid || claims.AccountID == "" || claims.DeviceID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
