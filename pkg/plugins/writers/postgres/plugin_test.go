package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/logging"
)

func TestPlugin_NewWriter_Validation(t *testing.T) {
	p := &Plugin{}
	tests := []struct {
		config  string
		wantErr string
	}{
		{`{}`, "host is required"},
		{`{"host":"db"}`, "database is required"},
		{`{"host":"db","database":"d"}`, "user is required"},
		{`{"host":"db","database":"d","user":"u"}`, "password is required"},
		{`{"host":"db","database":"d","user":"u","password":"p"}`, "phone is required"},
		{`nope`, "unmarshaling postgres config"},
	}
	for _, tc := range tests {
		_, err := p.NewWriter(context.Background(), plugins.Env{}, json.RawMessage(tc.config), logging.Discard())
		assert.ErrorContains(t, err, tc.wantErr, tc.config)
	}
}
