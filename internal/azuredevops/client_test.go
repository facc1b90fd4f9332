package azuredevops

import (
	"context"
	"testing"
)

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ClientConfig
		wantErr bool
	}{
		{
			name: "valid configuration",
			config: ClientConfig{
				OrganizationURL:     "https://dev.azure.com/testorg",
				PersonalAccessToken: "test-token",
			},
		},
		{
			name: "empty organization URL",
			config: ClientConfig{
				PersonalAccessToken: "test-token",
			},
			wantErr: true,
		},
		{
			name: "organization URL without scheme",
			config: ClientConfig{
				OrganizationURL:     "dev.azure.com/testorg",
				PersonalAccessToken: "test-token",
			},
			wantErr: true,
		},
		{
			name: "empty PAT",
			config: ClientConfig{
				OrganizationURL: "https://dev.azure.com/testorg",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("ClientConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	client, err := NewClient(context.Background(), ClientConfig{OrganizationURL: "https://dev.azure.com/testorg"})
	if err == nil {
		t.Fatal("NewClient() expected error for missing PAT")
	}
	if client != nil {
		t.Error("NewClient() should not return a client on error")
	}
}
