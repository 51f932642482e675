package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tabletap/api/internal/policy"
)

// TokenTTL is the lifetime of tokens minted by GenerateToken.
const TokenTTL = 12 * time.Hour

type Claims struct {
	UserID       int64    `json:"user_id"`
	RestaurantID *int64   `json:"restaurant_id,omitempty"`
	Roles        []string `json:"roles"`
	jwt.RegisteredClaims
}

// Actor converts the token identity into a policy actor.
func (c *Claims) Actor() policy.Actor {
	return policy.Actor{
		UserID:       c.UserID,
		RestaurantID: c.RestaurantID,
		Roles:        c.Roles,
	}
}

func GenerateToken(secret string, userID int64, restaurantID *int64, roles []string) (string, error) {
	claims := Claims{
		UserID:       userID,
		RestaurantID: restaurantID,
		Roles:        roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
