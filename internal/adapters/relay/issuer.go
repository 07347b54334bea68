// Package relay issues access tokens for the managed media relay.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

const DefaultTTL = time.Hour

var (
	ErrNotConfigured = errors.New("relay credentials not configured")
	ErrMissingGrant  = errors.New("room name and identity are required")
)

var _ core.TokenIssuer = (*Issuer)(nil)

type Config struct {
	AccountSID string        `mapstructure:"account_sid"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type VideoGrant struct {
	Room string `json:"room,omitempty"`
}

type Grants struct {
	Identity string      `json:"identity"`
	Video    *VideoGrant `json:"video,omitempty"`
}

// Claims follow the relay's access token layout: the API key issues the
// token for the account, grants carry identity and room.
type Claims struct {
	Grants Grants `json:"grants"`
	jwt.RegisteredClaims
}

type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AccountSID == "" || cfg.APISecret == "" {
		return nil, ErrNotConfigured
	}
	if cfg.APIKey == "" {
		cfg.APIKey = cfg.AccountSID
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// Issue signs an HS256 token granting identity access to roomName.
func (i *Issuer) Issue(_ context.Context, roomName string, identity domain.ParticipantID) (string, error) {
	if roomName == "" || identity == "" {
		return "", ErrMissingGrant
	}
	now := i.now()
	claims := &Claims{
		Grants: Grants{
			Identity: string(identity),
			Video:    &VideoGrant{Room: roomName},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%s-%d", i.cfg.APIKey, now.Unix()),
			Issuer:    i.cfg.APIKey,
			Subject:   i.cfg.AccountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = "twilio-fpa;v=1"
	return token.SignedString([]byte(i.cfg.APISecret))
}

// Verify parses a token issued with the same secret.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(i.cfg.APISecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
