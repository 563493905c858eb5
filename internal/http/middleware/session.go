package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Session issuance lives in the auth service; this middleware only consumes
// the cookie and resolves the caller into request context.

type SessionCfg struct {
	DB         *gorm.DB
	CookieName string
	Secure     bool
}

// Session is a database-backed session model.
type Session struct {
	ID         string    `gorm:"primaryKey;type:char(36)"`
	UserID     string    `gorm:"type:char(36);not null;index:ix_sessions_user_id"`
	TokenHash  []byte    `gorm:"type:binary(32);not null;uniqueIndex:ux_sessions_token_hash"`
	ExpiresAt  time.Time `gorm:"type:datetime(3);not null"`
	CreatedAt  time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt  time.Time `gorm:"type:datetime(3);not null"`
	LastSeenAt time.Time `gorm:"type:datetime(3);not null"`
}

func (Session) TableName() string { return "sessions" }

// AdminPermission grants a staff user one capability token (e.g. order:accept).
type AdminPermission struct {
	ID         string    `gorm:"primaryKey;type:char(36)"`
	UserID     string    `gorm:"type:char(36);not null;index:ix_admin_permissions_user_id"`
	Permission string    `gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time `gorm:"type:datetime(3);not null"`
}

func (AdminPermission) TableName() string { return "admin_permissions" }

// SessionMiddleware loads the session from the database and sets caller
// identity (id, email, role, permission tokens) in context.
func SessionMiddleware(cfg SessionCfg) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(cfg.CookieName)
		if err != nil || sessionID == "" {
			c.Next()
			return
		}

		var sess Session
		if err := cfg.DB.Where("id = ? AND expires_at > ?", sessionID, time.Now()).First(&sess).Error; err != nil {
			// Invalid or expired session, clear cookie
			c.SetCookie(cfg.CookieName, "", -1, "/", "", cfg.Secure, true)
			c.Next()
			return
		}

		c.Set("session", &sess)
		c.Set("user_id", sess.UserID)

		var userEmail, userRole string
		row := cfg.DB.Table("users").Select("email", "role").Where("id = ?", sess.UserID).Row()
		if err := row.Scan(&userEmail, &userRole); err == nil {
			c.Set("user_email", userEmail)
			c.Set("user_role", userRole)
		}

		if userRole == "admin" {
			var perms []string
			if err := cfg.DB.Model(&AdminPermission{}).
				Where("user_id = ?", sess.UserID).
				Pluck("permission", &perms).Error; err == nil {
				c.Set("user_permissions", perms)
			}
		}

		c.Next()
	}
}

// ContextUser represents the authenticated caller stored in request context.
type ContextUser struct {
	ID          string
	Email       string
	Role        string
	Permissions []string
}

func (u ContextUser) IsStaff() bool { return u.Role == "admin" }

func (u ContextUser) HasPermission(perm string) bool {
	if !u.IsStaff() {
		return false
	}
	for _, p := range u.Permissions {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}

// CurrentUser retrieves the authenticated caller from the gin context.
func CurrentUser(c *gin.Context) (ContextUser, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return ContextUser{}, false
	}

	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		return ContextUser{}, false
	}

	var emailStr, roleStr string
	var perms []string
	if email, ok := c.Get("user_email"); ok && email != nil {
		emailStr, _ = email.(string)
	}
	if role, ok := c.Get("user_role"); ok && role != nil {
		roleStr, _ = role.(string)
	}
	if pv, ok := c.Get("user_permissions"); ok && pv != nil {
		perms, _ = pv.([]string)
	}

	return ContextUser{
		ID:          userID,
		Email:       emailStr,
		Role:        roleStr,
		Permissions: perms,
	}, true
}
