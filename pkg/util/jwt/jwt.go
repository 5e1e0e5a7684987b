package jwt

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kama_chat_client/pkg/errorx"
)

// Claims 服务端签发的 token 中客户端关心的声明
// 不同版本的服务端把用户 ID 放在 id / user_id / _id / sub 中的任意一个
type Claims struct {
	Id      string `json:"id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	MongoId string `json:"_id,omitempty"`
	jwt.RegisteredClaims
}

// UserId 取出用户 ID
func (c *Claims) UserId() string {
	for _, v := range []string{c.Id, c.UserID, c.MongoId, c.RegisteredClaims.Subject} {
		if v != "" {
			return v
		}
	}
	return ""
}

// ExtractBearerToken 去掉 "Bearer " 前缀
func ExtractBearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

// UserIDFromBearer 解析 token 中的用户 ID
// 客户端没有签名密钥，只解析不验签；签名由服务端在每次请求时校验
func UserIDFromBearer(raw string) (string, error) {
	tokenString := ExtractBearerToken(raw)
	if tokenString == "" {
		return "", errorx.Wrap(errorx.ErrUnauthorized, errorx.CodeUnauthorized, "empty token")
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", errorx.Wrap(err, errorx.CodeUnauthorized, "malformed token")
	}
	if exp := claims.ExpiresAt; exp != nil && exp.Time.Before(time.Now()) {
		return "", errorx.Newf(errorx.CodeUnauthorized, "token expired at %s", exp.Time.Format(time.RFC3339))
	}
	id := claims.UserId()
	if id == "" {
		return "", errorx.New(errorx.CodeUnauthorized, "token carries no user id")
	}
	return id, nil
}
