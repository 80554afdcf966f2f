package main

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/councilgate/api/handlers"
	"github.com/BaSui01/councilgate/config"
	"github.com/BaSui01/councilgate/types"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// =============================================================================
// 🔐 认证中间件
// =============================================================================
// 两种认证共用同一个 401 信封（code=UNAUTHORIZED），skipPaths 中的探针路径放行。
// =============================================================================

// unauthorized 写出统一的 401 响应
func unauthorized(w http.ResponseWriter, message string) {
	handlers.WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, message, nil)
}

// APIKeyAuth 校验 X-API-Key；allowQuery 时也接受 ?api_key=
func APIKeyAuth(validKeys []string, skipPaths []string, allowQuery bool, logger *zap.Logger) Middleware {
	keys := newPathSet(validKeys...)
	skip := newPathSet(skipPaths...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip.has(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" && allowQuery {
				key = r.URL.Query().Get("api_key")
			}
			if !keys.has(key) {
				logger.Debug("api key rejected", zap.String("path", r.URL.Path))
				unauthorized(w, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// councilClaims 网关读取的身份声明
type councilClaims struct {
	TenantID string   `json:"tenant_id,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// jwtVerifier 只接受已配置密钥对应的签名算法：
// Secret → HS256，PublicKey → RS256。
type jwtVerifier struct {
	secret []byte
	pubKey *rsa.PublicKey
	parser *jwt.Parser
}

func newJWTVerifier(cfg config.JWTConfig) (*jwtVerifier, error) {
	v := &jwtVerifier{}
	var methods []string
	if cfg.Secret != "" {
		v.secret = []byte(cfg.Secret)
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if cfg.PublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		v.pubKey = key
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	if len(methods) == 0 {
		return nil, errors.New("jwt requires secret or public_key")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

func (v *jwtVerifier) keyFor(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		return v.pubKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
}

func (v *jwtVerifier) verify(raw string) (*councilClaims, error) {
	claims := &councilClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.keyFor); err != nil {
		return nil, err
	}
	return claims, nil
}

// JWTAuth 校验 Authorization: Bearer，并把 tenant_id / user_id / roles 写入 context。
// 公钥无法解析时返回错误，服务拒绝启动。
func JWTAuth(cfg config.JWTConfig, skipPaths []string, logger *zap.Logger) (Middleware, error) {
	verifier, err := newJWTVerifier(cfg)
	if err != nil {
		return nil, err
	}
	skip := newPathSet(skipPaths...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip.has(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, "missing or malformed Authorization header")
				return
			}
			claims, err := verifier.verify(raw)
			if err != nil {
				logger.Debug("jwt rejected", zap.String("path", r.URL.Path), zap.Error(err))
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := r.Context()
			if claims.TenantID != "" {
				ctx = types.WithTenantID(ctx, claims.TenantID)
			}
			if claims.UserID != "" {
				ctx = types.WithUserID(ctx, claims.UserID)
			}
			if len(claims.Roles) > 0 {
				ctx = types.WithRoles(ctx, claims.Roles)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
