package model

// UserRole distinguishes patients from experts and administrators.
type UserRole string

const (
	RoleUser   UserRole = "user"
	RoleExpert UserRole = "expert"
	RoleAdmin  UserRole = "admin"
)

// LifeStage tailors advice to where a user is in her reproductive life.
type LifeStage string

const (
	LifeStageGeneral          LifeStage = "general"
	LifeStageTryingToConceive LifeStage = "tryingToConceive"
	LifeStagePregnant         LifeStage = "pregnant"
	LifeStagePostpartum       LifeStage = "postpartum"
	LifeStageMenopause        LifeStage = "menopause"
)

// DemoUserID identifies the anonymous user a session acts as when no
// profile is set.
const DemoUserID = "user_demo"

// User is a registered account together with the profile data the
// assistant uses for personalisation.
type User struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Role            UserRole `json:"role"`
	Avatar          string   `json:"avatar,omitempty"`
	IsEmailVerified bool     `json:"isEmailVerified,omitempty"`

	Age                int       `json:"age,omitempty"`
	MaritalStatus      string    `json:"maritalStatus,omitempty"`
	LifeStage          LifeStage `json:"lifeStage,omitempty"`
	ChildrenCount      *int      `json:"childrenCount,omitempty"`
	IsTryingToConceive bool      `json:"isTryingToConceive,omitempty"`
	ActivityLevel      string    `json:"activityLevel,omitempty"`
	HealthInterests    []string  `json:"healthInterests,omitempty"`
}

// UpdateProfileRequest is the request to update the caller's profile.
// Empty fields are left untouched.
type UpdateProfileRequest struct {
	Name               string    `json:"name,omitempty"`
	Avatar             string    `json:"avatar,omitempty"`
	Age                int       `json:"age,omitempty"`
	MaritalStatus      string    `json:"maritalStatus,omitempty"`
	LifeStage          LifeStage `json:"lifeStage,omitempty"`
	ChildrenCount      *int      `json:"childrenCount,omitempty"`
	IsTryingToConceive *bool     `json:"isTryingToConceive,omitempty"`
	ActivityLevel      string    `json:"activityLevel,omitempty"`
	HealthInterests    []string  `json:"healthInterests,omitempty"`
}
