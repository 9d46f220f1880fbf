package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
)

const (
	tokenContextKey = "userToken"
	audience        = "Feedesk"
)

// Claims represents the authorization claims transmitted via a JWT.
// The subject is the caller id; issuing tokens belongs to the identity provider.
type Claims struct {
	jwt.StandardClaims
	Role core.Role `json:"role"`
}

func (c Claims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if c.Subject == "" || !c.Role.Valid() {
		return errors.New("token has no valid subject or role")
	}
	return nil
}

func (c Claims) Caller() core.Caller {
	return core.Caller{ID: c.Subject, Role: c.Role}
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// NewClaims returns the claims of a token identifying caller.
func NewClaims(caller core.Caller, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   caller.ID,
			Audience:  audience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role: caller.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getCaller returns the authenticated Caller of the request.
func getCaller(ctx echo.Context) (core.Caller, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Caller{}, err
	}
	return claims.Caller(), nil
}
