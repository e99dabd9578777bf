package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HMACVerifier validates locally signed tokens. It backs development setups
// without a Clerk instance and the test suites.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Validate validates a token using HMAC signing
func (v *HMACVerifier) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (v *HMACVerifier) Close() error {
	return nil
}

// Sign issues an HMAC token for userID valid for ttl
func (v *HMACVerifier) Sign(userID, name, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Name:   name,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "castos-studio",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Chain tries each verifier in order and returns the first success
type Chain []TokenVerifier

func (c Chain) Validate(tokenString string) (*Claims, error) {
	err := error(jwt.ErrTokenUnverifiable)
	for _, v := range c {
		claims, verr := v.Validate(tokenString)
		if verr == nil {
			return claims, nil
		}
		err = verr
	}
	return nil, err
}

func (c Chain) Close() error {
	for _, v := range c {
		v.Close()
	}
	return nil
}
