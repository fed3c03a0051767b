package middleware

import (
	"context"  // Token verification context
	"net/http" // HTTP status codes

	"firebase.google.com/go/v4/auth" // Firebase Admin auth types
	"github.com/gin-gonic/gin"       // Gin web framework
	"github.com/sirupsen/logrus"     // Logging library
)

// IDTokenVerifier is satisfied by *auth.Client
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthMiddleware verifies a Firebase ID token and stores its UID as the user ID
func FirebaseAuthMiddleware(verifier IDTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		idToken, ok := bearerToken(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), idToken)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err.Error(), "path": c.FullPath()}).Warn("Firebase ID token rejected")
			abortJSON(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		c.Set(ContextUserID, token.UID) // Firebase UID is the ledger user ID
		c.Next()
	}
}
