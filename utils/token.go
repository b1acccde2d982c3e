package utils

import (
	"fmt"
	"strconv"
	"time"

	"chat-service/config"
	"chat-service/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Tokens struct to describe tokens object.
type Tokens struct {
	Access    string
	Refresh   string
	SessionID string
}

// TokenMetadata struct to describe metadata in JWT.
type TokenMetadata struct {
	ID        string
	Roles     []string
	SessionID string
	Exp       int64
}

// UserID parses the string id claim.
func (t *TokenMetadata) UserID() (uint, error) {
	id, err := strconv.ParseUint(t.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed id claim", store.ErrUnauthorized)
	}
	return uint(id), nil
}

// GenerateTokens issues a new Access & Refresh token pair sharing a session id.
func GenerateTokens(id string, roles []string) (*Tokens, error) {
	sessionID := uuid.NewString()

	accessToken, err := generateToken(id, roles, sessionID, "JWT_ACCESS_EXPIRE", "JWT_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	refreshToken, err := generateToken(id, roles, sessionID, "JWT_REFRESH_EXPIRE", "JWT_REFRESH_KEY")
	if err != nil {
		return nil, err
	}

	return &Tokens{
		Access:    accessToken,
		Refresh:   refreshToken,
		SessionID: sessionID,
	}, nil
}

func generateToken(id string, roles []string, sessionID string, expire string, key string) (string, error) {
	minutesCount := config.Int(expire, 15)

	claims := jwt.MapClaims{}
	claims["id"] = id
	claims["roles"] = roles
	claims["sid"] = sessionID
	claims["exp"] = time.Now().Add(time.Minute * time.Duration(minutesCount)).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString([]byte(config.Config(key)))
}

// VerifyToken checks the signature and expiry and extracts identity metadata.
// Any failure yields ErrUnauthorized; the connection layer never sees partial
// claims.
func VerifyToken(token string, key string) (*TokenMetadata, error) {
	t, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(config.Config(key)), nil
	})
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("%w: %v", store.ErrUnauthorized, err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, store.ErrUnauthorized
	}

	id, ok := claims["id"].(string)
	if !ok {
		return nil, store.ErrUnauthorized
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, store.ErrUnauthorized
	}

	metadata := &TokenMetadata{
		ID:  id,
		Exp: int64(exp),
	}
	if sid, ok := claims["sid"].(string); ok {
		metadata.SessionID = sid
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, role := range raw {
			if name, ok := role.(string); ok {
				metadata.Roles = append(metadata.Roles, name)
			}
		}
	}
	return metadata, nil
}
