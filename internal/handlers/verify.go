package handlers

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/services"
	appErrors "github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/response"
)

// VerifyHandler redeems email verification links.
type VerifyHandler struct {
	svc  *services.VerificationService
	site Site
}

// NewVerifyHandler constructs the handler.
func NewVerifyHandler(svc *services.VerificationService, site Site) (*VerifyHandler, error) {
	if svc == nil {
		return nil, errors.New("verify handler: verification service is required")
	}
	return &VerifyHandler{svc: svc, site: site}, nil
}

// GET /verify?token=
func (h *VerifyHandler) Verify(c *gin.Context) {
	member, err := h.svc.Redeem(requestContext(c), c.Query("token"))
	if err != nil {
		appErr := appErrors.FromError(err)
		if middleware.WantsJSON(c) {
			logInternal(c, appErr)
			response.Error(c, appErr)
			return
		}
		state := "invalid"
		switch {
		case errors.Is(err, services.ErrVerificationExpired):
			state = "expired"
		case appErr.Internal != nil:
			state = "error"
			logInternal(c, appErr)
		}
		render(c, h.site, appErr.StatusCode, "verify.tmpl", "Email verification", gin.H{
			"State":   state,
			"Message": appErr.Message,
		})
		return
	}

	message := fmt.Sprintf("Thanks, %s! Your email is confirmed and your %s membership is now active.",
		html.UnescapeString(member.FirstName), h.site.ShortName)
	if middleware.WantsJSON(c) {
		response.Message(c, http.StatusOK, message, gin.H{"member_id": member.ID})
		return
	}
	render(c, h.site, http.StatusOK, "verify.tmpl", "Email verification", gin.H{
		"State":   "success",
		"Message": message,
	})
}
