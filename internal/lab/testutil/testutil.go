package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTSecret signs test bearer tokens
const JWTSecret = "eleclab-test-secret"

// Caller is the identity a test request is sent as
type Caller struct {
	UserID string
	Roles  []string
}

var (
	Student    = Caller{UserID: "stu-1", Roles: []string{"student"}}
	Student2   = Caller{UserID: "stu-2", Roles: []string{"student"}}
	Teacher    = Caller{UserID: "tea-1", Roles: []string{"teacher"}}
	Admin      = Caller{UserID: "adm-1", Roles: []string{"admin"}}
	LabManager = Caller{UserID: "mgr-1", Roles: []string{"lab_manager"}}
	Anonymous  = Caller{}
)

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// GenerateTestToken creates a valid bearer token for testing
func GenerateTestToken(userID string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"roles": roles,
		"iss":   "eleclab",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DoRequest executes an HTTP request against the test router as caller,
// using the identity header pair.
func DoRequest(r *gin.Engine, method, path string, body interface{}, caller Caller) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header = IdentityHeaders(caller)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// IdentityHeaders returns the header pair for caller; Anonymous yields none
func IdentityHeaders(caller Caller) http.Header {
	h := make(http.Header)
	if caller.UserID != "" {
		h.Set(identity.HeaderUserID, caller.UserID)
		h.Set(identity.HeaderRole, identity.EncodeRoles(identity.NewRoleSet(caller.Roles...)))
	}
	return h
}

// ParseResponse parses the JSON envelope into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// ResponseData returns the envelope's data object
func ResponseData(w *httptest.ResponseRecorder) map[string]interface{} {
	data, _ := ParseResponse(w)["data"].(map[string]interface{})
	return data
}
