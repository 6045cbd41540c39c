package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/playnexus/slotbridge/pkg/wallet"
)

const contextUserKey = "auth_user_id"

// sessionClaims is the expected shape of player bearer tokens: the subject
// carries the numeric platform user id.
type sessionClaims struct {
	jwt.RegisteredClaims
}

func authMiddleware(signingKey []byte, issuer string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "authorization header required"))
			ctx.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid authorization format"))
			ctx.Abort()
			return
		}

		userID, err := validateToken(parts[1], signingKey, issuer)
		if err != nil {
			ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid or expired token"))
			ctx.Abort()
			return
		}
		ctx.Set(contextUserKey, userID)
		ctx.Next()
	}
}

func validateToken(tokenString string, signingKey []byte, issuer string) (wallet.UserID, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return wallet.UserID{}, err
	}
	if !token.Valid {
		return wallet.UserID{}, jwt.ErrTokenUnverifiable
	}
	raw, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return wallet.UserID{}, fmt.Errorf("non-numeric subject %q", claims.Subject)
	}
	return wallet.NewUserID(raw)
}

func authenticatedUser(ctx *gin.Context) (wallet.UserID, bool) {
	value, ok := ctx.Get(contextUserKey)
	if !ok {
		return wallet.UserID{}, false
	}
	userID, ok := value.(wallet.UserID)
	return userID, ok
}
