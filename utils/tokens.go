package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Jahangir-Hossain99/Job-Site/models"
	"github.com/Jahangir-Hossain99/Job-Site/storage"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

var bgContext = context.Background()

// CreateTokenPair signs an access/refresh pair for a party. The refresh
// token subject carries both the kind and the id ("user:42") so rotation
// reissues for the right directory.
func CreateTokenPair(id uint, kind string) (*jwt.TokenPair, error) {
	accessTokenSigner := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), 24*time.Hour)
	refreshTokenSigner := jwt.NewSigner(jwt.HS256, os.Getenv("REFRESH_TOKEN_SECRET"), 365*24*time.Hour)

	refreshClaims := jwt.Claims{Subject: fmt.Sprintf("%s:%d", kind, id)}

	role := ""
	if kind == models.PartyKindUser {
		// Load role for embedding into access token
		var u models.User
		role = "user"
		if err := storage.DB.Select("id, role").First(&u, id).Error; err == nil && u.Role != "" {
			role = u.Role
		}
	}

	accessTokenClaims := AccessToken{
		ID:   id,
		Kind: kind,
		Role: role,
	}

	accessToken, err := accessTokenSigner.Sign(accessTokenClaims)
	if err != nil {
		return nil, err
	}

	refreshToken, err := refreshTokenSigner.Sign(refreshClaims)
	if err != nil {
		return nil, err
	}

	var tokenPair jwt.TokenPair
	tokenPair.AccessToken = accessToken
	tokenPair.RefreshToken = refreshToken

	storage.Redis.Set(bgContext, string(refreshToken), "true", 365*24*time.Hour+5*time.Minute)

	return &tokenPair, nil
}

func RefreshToken(ctx iris.Context) {
	token := jwt.GetVerifiedToken(ctx)
	tokenStr := string(token.Token)
	validToken, tokenErr := storage.Redis.Get(bgContext, tokenStr).Result()

	if tokenErr != nil {
		CreateNotFound(ctx)
		return
	}

	if validToken != "true" {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	storage.Redis.Del(bgContext, tokenStr)
	kind, id, parseErr := ParsePartySubject(token.StandardClaims.Subject)
	if parseErr != nil {
		CreateInternalServerError(ctx)
		return
	}

	tokenPair, tokenPairErr := CreateTokenPair(id, kind)
	if tokenPairErr != nil {
		CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

// ParsePartySubject splits a "kind:id" refresh subject.
func ParsePartySubject(subject string) (kind string, id uint, err error) {
	parts := strings.SplitN(subject, ":", 2)
	if len(parts) != 2 || !models.KnownPartyKind(parts[0]) {
		return "", 0, fmt.Errorf("malformed token subject %q", subject)
	}
	parsed, parseErr := strconv.ParseUint(parts[1], 10, 32)
	if parseErr != nil {
		return "", 0, parseErr
	}
	return parts[0], uint(parsed), nil
}

// VerifyAccessToken checks a raw bearer token outside of the HTTP middleware
// path. The websocket authenticate event goes through here.
func VerifyAccessToken(raw string) (*AccessToken, error) {
	verifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	verifiedToken, err := verifier.VerifyToken([]byte(raw))
	if err != nil {
		return nil, err
	}

	var claims AccessToken
	if err := verifiedToken.Claims(&claims); err != nil {
		return nil, err
	}

	if !models.KnownPartyKind(claims.Kind) {
		return nil, fmt.Errorf("unknown party kind %q in token", claims.Kind)
	}

	return &claims, nil
}

type AccessToken struct {
	ID   uint   `json:"ID"`
	Kind string `json:"kind"`
	Role string `json:"role,omitempty"`
}

type RefreshTokenInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}
