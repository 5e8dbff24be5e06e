package api

import (
	"github.com/gin-gonic/gin"

	"jobsdb/internal/database"
)

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

// actorFromContext 拼出执行人视图，角色检查由各服务自行完成。
func actorFromContext(c *gin.Context) (database.User, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return database.User{}, false
	}
	actor := database.User{Role: roleFromContext(c)}
	actor.ID = userID
	return actor, true
}

func roleFromContext(c *gin.Context) database.Role {
	value, exists := c.Get("userRole")
	if !exists {
		return ""
	}
	role, ok := value.(database.Role)
	if !ok {
		return ""
	}
	return role
}
