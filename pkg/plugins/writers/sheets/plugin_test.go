package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/logging"
)

// redirect sends every request to target, keeping the path.
type redirect struct{ target *url.URL }

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestPlugin_NewWriter(t *testing.T) {
	p := &Plugin{}
	assert.Equal(t, "sheets", p.Name())
	assert.Equal(t, []string{sheetsapi.SpreadsheetsScope}, p.RequiredScopes())

	tests := []struct {
		name    string
		config  string
		env     plugins.Env
		wantErr string
	}{
		{"bad json", `[`, plugins.Env{HTTPClient: http.DefaultClient}, "unmarshaling sheets config"},
		{"no sheet name", `{"sheetTitle":"x"}`, plugins.Env{HTTPClient: http.DefaultClient}, "sheetName is required"},
		{"no target", `{"sheetName":"x"}`, plugins.Env{HTTPClient: http.DefaultClient}, "either sheetId or sheetTitle is required"},
		{"no client", `{"sheetName":"x","sheetTitle":"y"}`, plugins.Env{}, "authorized http client"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.NewWriter(context.Background(), tc.env, json.RawMessage(tc.config), logging.Discard())
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestPlugin_NewWriter_Columns(t *testing.T) {
	var (
		mu     sync.Mutex
		header []any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			json.NewEncoder(w).Encode(sheetsapi.Spreadsheet{SpreadsheetId: "audit"})
		case http.MethodPut:
			var vr sheetsapi.ValueRange
			json.NewDecoder(r.Body).Decode(&vr)
			mu.Lock()
			header = vr.Values[0]
			mu.Unlock()
			json.NewEncoder(w).Encode(sheetsapi.UpdateValuesResponse{})
		default:
			http.Error(w, "unexpected", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	env := plugins.Env{HTTPClient: &http.Client{Transport: redirect{target: target}}}
	p := &Plugin{}

	_, err = p.NewWriter(context.Background(), env,
		json.RawMessage(`{"sheetTitle":"Audit","sheetName":"rules","columns":["date","rule","confidence"]}`), logging.Discard())
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []any{"Date", "Rule", "Confidence"}, header)
	mu.Unlock()

	_, err = p.NewWriter(context.Background(), env,
		json.RawMessage(`{"sheetTitle":"Audit","sheetName":"rules","columns":["balance"]}`), logging.Discard())
	assert.ErrorContains(t, err, `unknown column "balance"`)
}
