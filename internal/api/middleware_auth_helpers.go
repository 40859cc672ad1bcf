package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingIdentity = errors.New("missing identity")
	errInvalidIdentity = errors.New("invalid identity")
)

// resolveUserID accepts a signed bearer token and, behind a trusted gateway,
// the x-user-id header.
func (handler *Handler) resolveUserID(c *fiber.Ctx) (uint, error) {
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(handler.secretKey) > 0 && len(authorization) > len("bearer ") && strings.EqualFold(authorization[:len("bearer ")], "bearer ") {
		return handler.parseIdentityToken(strings.TrimSpace(authorization[len("bearer "):]))
	}

	if !handler.trustUserIDHeader {
		return 0, errMissingIdentity
	}
	rawUserID := strings.TrimSpace(c.Get(userIDHeader))
	if rawUserID == "" {
		return 0, errMissingIdentity
	}
	userID, err := strconv.ParseUint(rawUserID, 10, 64)
	if err != nil || userID == 0 {
		return 0, errInvalidIdentity
	}
	return uint(userID), nil
}

func (handler *Handler) parseIdentityToken(rawToken string) (uint, error) {
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return handler.secretKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, errInvalidIdentity
	}
	if claims.UserID == 0 {
		return 0, errInvalidIdentity
	}
	return claims.UserID, nil
}
