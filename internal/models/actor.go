package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Role identifies the kind of actor performing an operation.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Valid returns true when the role is a supported value.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// Elevated reports whether the role bypasses teacher-identity and
// time-window checks.
func (r Role) Elevated() bool {
	return r == RoleAdmin
}

// Actor is the already-authenticated identity attached to every call.
// Credentials are issued and validated by the upstream auth gateway; this
// service only consumes the resulting tuple.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name"`
}

// Value implements driver.Valuer so an actor can be stored as JSONB.
func (a Actor) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for JSONB columns.
func (a *Actor) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported actor source type %T", src)
	}
}

// ActorClaims is the payload of the gateway-issued actor token.
type ActorClaims struct {
	ActorID string `json:"actor_id"`
	Role    Role   `json:"role"`
	Name    string `json:"name"`
	jwt.RegisteredClaims
}

// Actor converts token claims into the domain actor tuple.
func (c *ActorClaims) Actor() Actor {
	return Actor{ID: c.ActorID, Role: c.Role, Name: c.Name}
}
