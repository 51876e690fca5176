package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenmart/grocery-backend/internal/auth"
)

func TestProviderClient_Verify(t *testing.T) {
	actorID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name      string
		status    int
		body      string
		wantErrIs error
		wantErr   bool
	}{
		{
			name:   "valid_response",
			status: http.StatusOK,
			body:   `{"user_id":"` + actorID.String() + `","role":"vendor"}`,
		},
		{
			name:      "provider_rejects_token",
			status:    http.StatusUnauthorized,
			wantErrIs: auth.ErrUnauthorized,
		},
		{
			name:      "unknown_role",
			status:    http.StatusOK,
			body:      `{"user_id":"` + actorID.String() + `","role":"superuser"}`,
			wantErrIs: auth.ErrUnauthorized,
		},
		{
			name:      "malformed_user_id",
			status:    http.StatusOK,
			body:      `{"user_id":"not-a-uuid","role":"vendor"}`,
			wantErrIs: auth.ErrUnauthorized,
		},
		{
			name:    "provider_error",
			status:  http.StatusInternalServerError,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/userinfo", r.URL.Path)
				assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := auth.NewProviderClient(srv.URL, 2*time.Second)
			actor, err := client.Verify(context.Background(), "token-123")

			switch {
			case tt.wantErrIs != nil:
				assert.ErrorIs(t, err, tt.wantErrIs)
			case tt.wantErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, actorID, actor.ID)
				assert.Equal(t, auth.RoleVendor, actor.Role)
			}
		})
	}
}
