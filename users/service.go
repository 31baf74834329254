// Package users manages workspace members and their project roles.
package users

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/labellerr/labellerr-go/api"
)

// ProjectRole assigns a role to a user within one project.
type ProjectRole struct {
	ProjectID string `json:"project_id"`
	RoleID    string `json:"role_id"`
}

// CreateParams describes a new workspace user.
type CreateParams struct {
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	EmailID   string        `json:"email_id"`
	Projects  []string      `json:"projects"`
	Roles     []ProjectRole `json:"roles"`
	WorkPhone string        `json:"work_phone"`
	JobTitle  string        `json:"job_title"`
	Language  string        `json:"language"`
	Timezone  string        `json:"timezone"`
}

// Validate ...
func (p CreateParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Required),
		validation.Field(&p.EmailID, validation.Required, is.EmailFormat),
		validation.Field(&p.Roles, validation.Required),
	)
}

// UpdateRoleParams describes a role and profile update for an existing user.
type UpdateRoleParams struct {
	ProjectID    string        `json:"-"`
	EmailID      string        `json:"email_id"`
	Roles        []ProjectRole `json:"roles"`
	FirstName    string        `json:"first_name,omitempty"`
	LastName     string        `json:"last_name,omitempty"`
	WorkPhone    string        `json:"work_phone"`
	JobTitle     string        `json:"job_title"`
	Language     string        `json:"language"`
	Timezone     string        `json:"timezone"`
	ProfileImage string        `json:"profile_image"`
}

// Validate ...
func (p UpdateRoleParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ProjectID, validation.Required),
		validation.Field(&p.EmailID, validation.Required, is.EmailFormat),
		validation.Field(&p.Roles, validation.Required),
	)
}

// DeleteParams identifies the user to remove from the workspace.
type DeleteParams struct {
	ProjectID string `json:"-"`
	EmailID   string `json:"email_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
}

// Validate ...
func (p DeleteParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ProjectID, validation.Required),
		validation.Field(&p.EmailID, validation.Required, is.EmailFormat),
		validation.Field(&p.UserID, validation.Required),
	)
}

// Service talks to the user management endpoints.
type Service struct {
	api    *api.Client
	logger log.Logger
}

// NewService ...
func NewService(apiClient *api.Client, logger log.Logger) *Service {
	return &Service{api: apiClient, logger: logger}
}

// Create registers a new user in the workspace.
func (s *Service) Create(ctx context.Context, clientID string, params CreateParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("create user params: %w", err)
	}

	body := struct {
		CreateParams
		ClientID string `json:"client_id"`
	}{CreateParams: params, ClientID: clientID}

	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/users/register",
		Query:    query,
		ClientID: clientID,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", params.EmailID, err)
	}
	s.logger.Debugf("Created user %s", params.EmailID)
	return nil
}

// UpdateRole updates a user's roles and profile. The platform expects the
// project id list to mirror the role assignments.
func (s *Service) UpdateRole(ctx context.Context, clientID string, params UpdateRoleParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("update user role params: %w", err)
	}

	projectIDs := make([]string, 0, len(params.Roles))
	for _, role := range params.Roles {
		if role.ProjectID != "" {
			projectIDs = append(projectIDs, role.ProjectID)
		}
	}

	body := struct {
		UpdateRoleParams
		ClientID string   `json:"client_id"`
		Projects []string `json:"projects"`
	}{UpdateRoleParams: params, ClientID: clientID, Projects: projectIDs}

	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("project_id", params.ProjectID)
	query.Set("uuid", api.RequestID())

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/users/update",
		Query:    query,
		ClientID: clientID,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("update role of %s: %w", params.EmailID, err)
	}
	return nil
}

// Delete removes a user from the workspace.
func (s *Service) Delete(ctx context.Context, clientID string, params DeleteParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("delete user params: %w", err)
	}

	body := struct {
		DeleteParams
		Email string `json:"email"`
	}{DeleteParams: params, Email: params.EmailID}

	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("project_id", params.ProjectID)
	query.Set("uuid", api.RequestID())

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/users/delete",
		Query:    query,
		ClientID: clientID,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("delete user %s: %w", params.EmailID, err)
	}
	return nil
}

// AddToProject grants a user access to a project, optionally with a role.
func (s *Service) AddToProject(ctx context.Context, clientID, projectID, emailID, roleID string) error {
	body := map[string]string{"email_id": emailID, "uuid": api.RequestID()}
	if roleID != "" {
		body["role_id"] = roleID
	}
	return s.projectMembership(ctx, clientID, projectID, "/users/add_user_to_project", body)
}

// RemoveFromProject revokes a user's access to a project.
func (s *Service) RemoveFromProject(ctx context.Context, clientID, projectID, emailID string) error {
	body := map[string]string{"email_id": emailID, "uuid": api.RequestID()}
	return s.projectMembership(ctx, clientID, projectID, "/users/remove_user_from_project", body)
}

// ChangeRole assigns a user a different role within a project.
func (s *Service) ChangeRole(ctx context.Context, clientID, projectID, emailID, newRoleID string) error {
	body := map[string]string{
		"email_id":    emailID,
		"new_role_id": newRoleID,
		"uuid":        api.RequestID(),
	}
	return s.projectMembership(ctx, clientID, projectID, "/users/change_user_role", body)
}

func (s *Service) projectMembership(ctx context.Context, clientID, projectID, path string, body map[string]string) error {
	if projectID == "" || body["email_id"] == "" {
		return fmt.Errorf("project_id and email_id are required")
	}

	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("project_id", projectID)
	query.Set("uuid", body["uuid"])

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     path,
		Query:    query,
		ClientID: clientID,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", path, body["email_id"], err)
	}
	return nil
}
