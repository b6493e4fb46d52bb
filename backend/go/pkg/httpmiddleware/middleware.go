package httpmiddleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/logger"
	"jaqpot/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

const (
	// ContextPrincipal 是认证通过后存入 gin.Context 的用户标识键。
	ContextPrincipal = "principal"
	// ContextLogger 是带追踪字段的请求级 Logger 的键。
	ContextLogger = "logger"
	// HeaderTraceID 用于在请求和响应之间传递追踪 ID。
	HeaderTraceID = "X-Trace-Id"
)

// Principal 返回认证中间件写入的用户标识。
func Principal(c *gin.Context) string {
	return c.GetString(ContextPrincipal)
}

// RequestLogger 返回请求级 Logger，未经过 RequestLog 中间件时返回 fallback。
func RequestLogger(c *gin.Context, fallback *logger.Logger) *logger.Logger {
	if l, ok := c.Get(ContextLogger); ok {
		if rl, ok := l.(*logger.Logger); ok {
			return rl
		}
	}
	return fallback
}

// Auth 创建一个 Gin 中间件，用于验证 HMAC 签名的 JWT，并把 "sub" 声明作为用户标识。
// issuer 为空时不校验 "iss"。
func Auth(jwtSecret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权标头"})
			return
		}

		// 我们期望的格式是 "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "授权标头格式不正确"})
			return
		}

		principal, err := ParsePrincipal(parts[1], jwtSecret, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			return
		}

		c.Set(ContextPrincipal, principal)
		c.Next()
	}
}

// ParsePrincipal 校验 token 并返回其 "sub" 声明。
func ParsePrincipal(tokenString, jwtSecret, issuer string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 确保 token 的签名方法是我们期望的
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("非预期的签名方法")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("无效的 token")
	}
	if issuer != "" && !claims.VerifyIssuer(issuer, true) {
		return "", errors.New("签发者不匹配")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token 缺少 sub 声明")
	}
	return sub, nil
}

// RateLimit 按用户限流，未认证的请求按客户端 IP 计数。
func RateLimit(limiter *ratelimiter.KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := Principal(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁"})
			return
		}
		c.Next()
	}
}

// RequestLog 为每个请求生成追踪 ID，并在请求结束后记录访问日志。
func RequestLog(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Header(HeaderTraceID, traceID)

		reqLog := base.WithTrace(traceID, "")
		c.Set(ContextLogger, reqLog)

		c.Next()

		entry := reqLog.WithTrace(traceID, Principal(c)).WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.FullPath(),
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Status:     c.Writer.Status(),
			LatencyMs:  time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request failed")
			return
		}
		entry.Info("request handled")
	}
}
