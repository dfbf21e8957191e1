package auth

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
)

// Verifier checks HMAC-signed bearer tokens issued by the identity service.
type Verifier struct {
	secret    []byte
	algorithm string
}

func NewVerifier(secret, algorithm string) *Verifier {
	return &Verifier{secret: []byte(secret), algorithm: algorithm}
}

// Verify returns the claims of a valid token or an error wrapping
// pkg/errors.ErrUnauthorized. It never returns partial claims.
func (v *Verifier) Verify(tokenStr string) (*models.Claims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{v.algorithm}), jwt.WithJSONNumber())
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			slog.Warn("token expired")
			return nil, pkgerrors.ErrTokenExpired
		}
		slog.Warn("token rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, pkgerrors.ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, pkgerrors.ErrInvalidToken
	}

	subject := claimString(mapClaims["id"])
	role := claimString(mapClaims["role"])
	if subject == "" || role == "" {
		slog.Warn("token missing required claims", "has_id", subject != "", "has_role", role != "")
		return nil, pkgerrors.ErrMissingClaims
	}

	return &models.Claims{SubjectID: subject, Role: role}, nil
}

// claimString normalises string and numeric claims. Other types yield "".
func claimString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

// IssueToken signs claims the way the identity service does. The service
// itself only verifies; this is used by tests and local tooling.
func IssueToken(secret, algorithm string, claims models.Claims, ttl time.Duration) (string, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return "", fmt.Errorf("unknown signing method %q", algorithm)
	}
	now := time.Now()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"id":   claims.SubjectID,
		"role": claims.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
