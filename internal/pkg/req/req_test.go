package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"textrelay/internal/pkg/errs"
)

type credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

func TestBindJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantCode    int
	}{
		{"Valid body", "application/json", `{"username":"alice","password":"pw"}`, 0},
		{"Charset suffix", "application/json; charset=utf-8", `{"username":"alice"}`, 0},
		{"Wrong content type", "text/plain", `{"username":"alice"}`, errs.ErrUnsupportedMediaType},
		{"Broken json", "application/json", `{"username":`, errs.ErrInvalidJSONFormat},
		{"Unknown field", "application/json", `{"username":"alice","admin":true}`, errs.ErrInvalidJSONFormat},
		{"Trailing data", "application/json", `{"username":"alice"}{"username":"bob"}`, errs.ErrExtraContentInBody},
		{"Missing username", "application/json", `{"password":"pw"}`, errs.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			r := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)

			var dst credentials
			customErr := BindJSON(httptest.NewRecorder(), r, &dst)

			if tt.wantCode == 0 {
				req.Nil(customErr)
				req.Equal("alice", dst.Username)
				return
			}
			req.NotNil(customErr)
			req.Equal(tt.wantCode, customErr.Code)
		})
	}
}
