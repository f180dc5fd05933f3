// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package principal also hosts the token verifier used to authenticate
incoming requests.

# Core Components

  - TokenService: RS256 JWT verification producing a generic [Principal].
  - The gateway never issues tokens itself — the identity provider does —
    but a verifier (and, for local/dev setups, a matching issuer) is needed
    so request claims can be trusted before being handed to the
    Authorization Policy Processor.
*/
package principal

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// mapClaims is the wire shape of a verified token: standard registered
// claims plus an open bag of custom claims, since the gateway does not know
// which claim types a given identity provider or database policy will use.
type mapClaims struct {
	jwt.RegisteredClaims
	Extra map[string]string `json:"-"`
}

// TokenService handles verification (and, for local testing, issuance) of
// JWT tokens using RS256.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewTokenService creates a new TokenService from a PEM key pair on disk.
func NewTokenService(privateKeyPath, publicKeyPath, issuer string) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("principal: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("principal: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("principal: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("principal: failed to parse public key: %w", err)
	}

	return &TokenService{privateKey: privateKey, publicKey: publicKey, issuer: issuer}, nil
}

// IssueToken signs a token carrying an arbitrary claim bag. Used by local
// development tooling and integration tests; production deployments trust
// tokens minted by an external identity provider instead.
func (service *TokenService) IssueToken(subject string, claims map[string]string, timeToLive time.Duration) (string, error) {
	now := time.Now()

	registered := jwt.MapClaims{
		"sub": subject,
		"iss": service.issuer,
		"iat": jwt.NewNumericDate(now).Unix(),
		"exp": jwt.NewNumericDate(now.Add(timeToLive)).Unix(),
	}
	for k, v := range claims {
		registered[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, registered)
	signed, err := token.SignedString(service.privateKey)
	if err != nil {
		return "", fmt.Errorf("principal: failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks the signature and validity of a bearer JWT and
// translates it into a [Principal]. The Role field is left empty — it is
// populated separately from the X-MS-API-ROLE header, never from the token.
func (service *TokenService) VerifyToken(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("principal: unexpected signing method: %v", token.Header["alg"])
		}
		return service.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("principal: invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("principal: invalid token claims")
	}

	extracted := make(map[string]string, len(claims))
	for k, v := range claims {
		switch value := v.(type) {
		case string:
			extracted[k] = value
		case float64, int64, bool:
			extracted[k] = fmt.Sprint(value)
		}
	}

	return &Principal{Claims: extracted, BearerToken: tokenString}, nil
}
