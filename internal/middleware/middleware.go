package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context keys
const (
	ContextKeyIdentity  = "identity"
	ContextKeyUserID    = "user_id"
	ContextKeyRequestID = "request_id"
)

// Logger 日志中间件
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("user-agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
			zap.String("request_id", c.GetString(ContextKeyRequestID)),
		}

		if userID := c.GetString(ContextKeyUserID); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		if status >= 500 {
			logger.Error("Server error", fields...)
		} else if status >= 400 {
			logger.Warn("Client error", fields...)
		} else {
			logger.Info("Request", fields...)
		}
	}
}

// CORS 跨域中间件
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID, "+identity.HeaderUserID+", "+identity.HeaderRole)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID 请求ID中间件
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Request.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// JWTClaims JWT claims
type JWTClaims struct {
	UserID string   `json:"uid"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity 身份中间件. The header pair is tried first; when jwtSecret is set a
// bearer token (or ?token= for SSE) is accepted as well. Either way the decoded
// identity.Identity is stored once in the request context.
func Identity(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity.Decode(c.GetHeader(identity.HeaderUserID), c.GetHeader(identity.HeaderRole))
		if !ok && jwtSecret != "" {
			id, ok = fromBearer(c, jwtSecret)
		}
		if !ok {
			abort(c, http.StatusUnauthorized, 40100, "missing or invalid identity")
			return
		}

		c.Set(ContextKeyIdentity, id)
		c.Set(ContextKeyUserID, id.UserID)
		c.Request = c.Request.WithContext(identity.NewContext(c.Request.Context(), id))
		c.Next()
	}
}

func fromBearer(c *gin.Context, secret string) (identity.Identity, bool) {
	var tokenString string
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
	}
	// 回退到 query param（SSE 等场景使用）
	if tokenString == "" {
		tokenString = c.Query("token")
	}
	if tokenString == "" {
		return identity.Identity{}, false
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return identity.Identity{}, false
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return identity.Identity{}, false
	}
	return identity.Identity{
		UserID: strings.TrimSpace(claims.UserID),
		Roles:  identity.NewRoleSet(claims.Roles...),
	}, true
}

// GetIdentity returns the identity set by Identity
func GetIdentity(c *gin.Context) (identity.Identity, bool) {
	v, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

// RequireElevated 管理端路由: admin, super_admin or lab_manager
func RequireElevated() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			abort(c, http.StatusUnauthorized, 40100, "missing or invalid identity")
			return
		}
		if !id.Elevated() {
			abort(c, http.StatusForbidden, 40300, "elevated role required")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status, code int, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
	c.Abort()
}
