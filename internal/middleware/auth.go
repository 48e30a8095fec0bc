package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	authorizationHeader = "authorization"
	userIDHeader        = "user-id"
	bearerPrefix        = "Bearer "
)

var errInvalidToken = errors.New("invalid token")

type ownerKey struct{}

// Claims is the JWT payload. UserID becomes the owner of every file the
// caller touches.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// Authenticator resolves the caller's owner id. With a secret it requires
// an HS256 bearer token; without one it trusts the user-id header, which
// is only meant for local development.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) TrustsHeader() bool {
	return len(a.secret) == 0
}

func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := a.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := a.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

func (a *Authenticator) authenticate(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	var owner string
	if a.TrustsHeader() {
		if ids := md.Get(userIDHeader); len(ids) > 0 {
			owner = strings.TrimSpace(ids[0])
		}
		if owner == "" {
			return nil, status.Error(codes.Unauthenticated, "missing user-id")
		}
		return WithOwner(ctx, owner), nil
	}

	values := md.Get(authorizationHeader)
	if len(values) == 0 || !strings.HasPrefix(values[0], bearerPrefix) {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	owner, err := ParseToken(strings.TrimPrefix(values[0], bearerPrefix), a.secret)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return WithOwner(ctx, owner), nil
}

// GenerateToken signs an HS256 token for userID.
func GenerateToken(userID string, secret []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			Issuer:    "clouddrive",
		},
		UserID: userID,
	})
	return token.SignedString(secret)
}

// ParseToken validates tokenString and returns its user id.
func ParseToken(tokenString string, secret []byte) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return "", errInvalidToken
	}
	return claims.UserID, nil
}

func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the owner id set by the auth interceptor.
func OwnerFromContext(ctx context.Context) (string, error) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	if !ok || owner == "" {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return owner, nil
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context {
	return s.ctx
}
