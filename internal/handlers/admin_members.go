package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/pkg/response"
)

// AdminMembersPath is the member management page.
const AdminMembersPath = "/admin/members"

// MemberAdminHandler lists members and applies admin member commands.
type MemberAdminHandler struct {
	svc  *services.MemberService
	site Site
}

// NewMemberAdminHandler constructs the handler.
func NewMemberAdminHandler(svc *services.MemberService, site Site) (*MemberAdminHandler, error) {
	if svc == nil {
		return nil, errors.New("member admin handler: member service is required")
	}
	return &MemberAdminHandler{svc: svc, site: site}, nil
}

// GET /admin/members?status=&search=&page=
func (h *MemberAdminHandler) List(c *gin.Context) {
	page, err := h.svc.List(requestContext(c), services.MemberListOptions{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   parseIntQuery(c, "page", 1),
	})
	if err != nil {
		logAndRespond(c, err)
		return
	}

	if middleware.WantsJSON(c) {
		response.SuccessWithMeta(c, http.StatusOK, gin.H{
			"members": page.Members,
			"counts":  page.Counts,
			"status":  page.Status,
			"search":  page.Search,
		}, response.NewMeta(page.Page, page.PerPage, page.Total))
		return
	}
	render(c, h.site, http.StatusOK, "admin_members.tmpl", "Members", gin.H{
		"Page":     page,
		"ReturnTo": c.Request.URL.RequestURI(),
	})
}

// POST /admin/members
func (h *MemberAdminHandler) Command(c *gin.Context) {
	cmd, err := services.ParseMemberCommand(c.PostForm("action"), c.PostForm("member_id"))
	if err != nil {
		fail(c, err, returnPath(c, AdminMembersPath))
		return
	}

	message, err := h.svc.Execute(requestContext(c), actorFromContext(c), cmd)
	if err != nil {
		fail(c, err, returnPath(c, AdminMembersPath))
		return
	}
	succeed(c, message, returnPath(c, AdminMembersPath), gin.H{
		"action":    cmd.Action(),
		"member_id": cmd.MemberID(),
	})
}
