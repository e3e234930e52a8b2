package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/services"
	appErrors "github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/response"
)

// JoinPath is the public registration page.
const JoinPath = "/join"

type campusOption struct {
	Value string
	Label string
}

var (
	yearLevels = []string{"Freshman", "Sophomore", "Junior", "Senior"}
	majors     = []string{
		"Computer Science", "Information Technology", "Artificial Intelligence", "Data Science",
		"Engineering - General", "Engineering - Electrical", "Engineering - Mechanical",
		"Engineering - Civil", "Engineering - Chemical", "Mathematics", "Statistics", "Physics",
		"Chemistry", "Biology", "Environmental Science", "Health Sciences", "Pre-Med",
		"Pre-Engineering", "Other STEM", "Undeclared",
	}
	campuses = []campusOption{
		{"Central", "Central Campus"},
		{"Northeast", "Northeast Campus"},
		{"Northwest", "Northwest Campus"},
		{"Southeast", "Southeast Campus"},
		{"Southwest", "Southwest Campus"},
		{"Online", "Online Student"},
		{"Multiple", "Multiple Campuses"},
	}
)

// JoinHandler serves the membership form and its submission endpoint.
type JoinHandler struct {
	svc  *services.RegistrationService
	site Site
}

// NewJoinHandler constructs the handler.
func NewJoinHandler(svc *services.RegistrationService, site Site) (*JoinHandler, error) {
	if svc == nil {
		return nil, errors.New("join handler: registration service is required")
	}
	return &JoinHandler{svc: svc, site: site}, nil
}

// GET /join
func (h *JoinHandler) Form(c *gin.Context) {
	render(c, h.site, http.StatusOK, "join.tmpl", "Join", gin.H{
		"YearLevels": yearLevels,
		"Majors":     majors,
		"Campuses":   campuses,
	})
}

// POST /api/join
func (h *JoinHandler) Submit(c *gin.Context) {
	result, err := h.svc.Register(requestContext(c), services.RegistrationInput{
		CSRFExpected:   sessionCSRFToken(c),
		CSRFSubmitted:  middleware.SubmittedCSRFToken(c),
		CaptchaToken:   c.PostForm("captcha_token"),
		ClientIP:       c.ClientIP(),
		FirstName:      c.PostForm("first_name"),
		LastName:       c.PostForm("last_name"),
		Email:          c.PostForm("email"),
		YearLevel:      c.PostForm("year_level"),
		Major:          c.PostForm("major"),
		Campus:         c.PostForm("campus"),
		Phone:          c.PostForm("phone"),
		ConsentComms:   formBool(c, "consent_comms"),
		AcceptedCode:   formBool(c, "accepted_code"),
		ConsentPrivacy: formBool(c, "consent_privacy"),
	})
	if err != nil {
		fail(c, err, JoinPath)
		return
	}
	succeed(c, result.Message, JoinPath, gin.H{"member_id": result.MemberID})
}

// GET /api/csrf-token
func CSRFToken(c *gin.Context) {
	token := c.GetString(middleware.CtxCSRFTokenKey)
	if token == "" {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"csrf_token": token})
}
