package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/support-relay-api/utils"
)

// IssueAnonymousID handles POST /api/v1/support/identity.
// Clients normally generate and keep their own id; this serves those that cannot.
func IssueAnonymousID(c *gin.Context) {
	noStore(c)
	c.PureJSON(http.StatusCreated, gin.H{
		"success":      true,
		"anonymous_id": utils.GenerateAnonymousID(),
	})
}
