package middleware

import (
	"errors"
	"fmt"
	"time"

	"badgerland/internal/common"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const tokenContextKey = "user"

// AuthConfig selects how bearer tokens are verified. A JWKS URL wins over
// the shared secret when both are set.
type AuthConfig struct {
	JWTSecret string
	JWKSURL   string
}

// Claims is the token payload issued by the auth provider. The admin role
// lives in app_metadata so that users cannot set it themselves.
type Claims struct {
	jwt.RegisteredClaims
	Role        string `json:"role,omitempty"`
	AppMetadata struct {
		Role string `json:"role,omitempty"`
	} `json:"app_metadata"`
}

func (c *Claims) role() string {
	if c.AppMetadata.Role != "" {
		return c.AppMetadata.Role
	}
	return c.Role
}

// Authenticator verifies bearer tokens and puts the caller on the request context.
type Authenticator struct {
	config echojwt.Config
	jwks   *keyfunc.JWKS
	logger *zap.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *zap.Logger) (*Authenticator, error) {
	a := &Authenticator{logger: logger}
	a.config = echojwt.Config{
		ContextKey:    tokenContextKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims { return new(Claims) },
		ErrorHandler: func(c echo.Context, err error) error {
			a.logger.Debug("rejected bearer token", zap.String("path", c.Path()), zap.Error(err))
			return common.SendUnauthorizedError(c)
		},
	}

	switch {
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.Warn("refreshing JWKS failed", zap.String("url", cfg.JWKSURL), zap.Error(err))
			},
		})
		if err != nil {
			return nil, fmt.Errorf("load JWKS: %w", err)
		}
		a.jwks = jwks
		a.config.KeyFunc = jwks.Keyfunc
	case cfg.JWTSecret != "":
		a.config.SigningKey = []byte(cfg.JWTSecret)
		a.config.SigningMethod = jwt.SigningMethodHS256.Alg()
	default:
		return nil, errors.New("either a JWT secret or a JWKS URL is required")
	}
	return a, nil
}

// Close stops the background JWKS refresh.
func (a *Authenticator) Close() {
	if a.jwks != nil {
		a.jwks.EndBackground()
	}
}

// RequireUser rejects requests without a valid bearer token.
func (a *Authenticator) RequireUser() echo.MiddlewareFunc {
	verify := echojwt.WithConfig(a.config)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(attachUser(next))
	}
}

// OptionalUser verifies a bearer token when one is sent and lets anonymous
// requests through.
func (a *Authenticator) OptionalUser() echo.MiddlewareFunc {
	required := a.RequireUser()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withUser := required(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return next(c)
			}
			return withUser(c)
		}
	}
}

// attachUser moves the verified subject and role from the token to the request context.
func attachUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get(tokenContextKey).(*jwt.Token)
		if !ok {
			return common.SendUnauthorizedError(c)
		}
		claims, ok := token.Claims.(*Claims)
		if !ok {
			return common.SendUnauthorizedError(c)
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return common.SendUnauthorizedError(c)
		}

		ctx := common.WithUser(c.Request().Context(), userID, claims.role())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RequireAdmin must run after RequireUser.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !common.IsAdmin(c.Request().Context()) {
				return common.SendForbiddenError(c)
			}
			return next(c)
		}
	}
}
