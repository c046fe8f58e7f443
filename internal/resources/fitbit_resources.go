package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
)

// Resource URIs.
const (
	AuthStatusURI = "fitbit://auth/status"
	ProfileURI    = "fitbit://profile"
)

// AuthStatus is the body of the auth status resource.
type AuthStatus struct {
	Configured bool   `json:"configured"`
	Authorized bool   `json:"authorized"`
	AuthURL    string `json:"authUrl"`
}

// RegisterFitbitResources registers the account resources on s.
func RegisterFitbitResources(s *mcpserver.MCPServer, sc *server.ServerContext) {
	s.AddResource(mcp.NewResource(
		AuthStatusURI,
		"Fitbit Authorization Status",
		mcp.WithResourceDescription("Whether the server holds a Fitbit token and where to authorize"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAuthStatus(ctx, request, sc)
	})

	s.AddResource(mcp.NewResource(
		ProfileURI,
		"Fitbit Profile",
		mcp.WithResourceDescription("Profile of the connected Fitbit account"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleProfile(ctx, request, sc)
	})
}

func handleAuthStatus(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	status := AuthStatus{AuthURL: sc.AuthURL()}
	if oauth := sc.OAuth(); oauth != nil {
		status.Configured = oauth.Configured()
	}
	if tokens := sc.Tokens(); tokens != nil {
		status.Authorized = tokens.Authorized(ctx)
	}

	jsonData, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal auth status: %w", err)
	}
	return textContents(request, jsonData), nil
}

func handleProfile(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	client := sc.FitbitClient()
	if client == nil {
		return nil, fitbit.ErrNotConfigured
	}

	var profile fitbit.Profile
	err := client.GetInto(ctx, fitbit.ProfilePath, nil, &profile)
	if errors.Is(err, fitbit.ErrNotAuthorized) {
		return nil, fmt.Errorf("fitbit access is not authorized yet, visit %s", sc.AuthURL())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get Fitbit profile: %w", err)
	}
	jsonData, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile data: %w", err)
	}
	return textContents(request, jsonData), nil
}

func textContents(request mcp.ReadResourceRequest, data []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}
}
